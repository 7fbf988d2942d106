package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	RealtimeEventEntityChanged = "entity-change"
	RealtimeEventEntityDeleted = "entity-delete"
	realtimeEventHeartbeat     = "heartbeat"
	realtimeSourceBackend      = "basecamp-dev-api"
	realtimeBufferSize         = 16
)

// RealtimeMessage announces that entities of a collection changed.
type RealtimeMessage struct {
	Collection string
	EventType  string
	EntityIDs  []string
	Timestamp  time.Time
}

// RealtimeDispatcher fans collection change events out to stream subscribers.
// Slow subscribers drop messages instead of blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]topic
	sequence    atomic.Int64
}

// topic holds the open streams of one collection keyed by subscription id.
type topic map[int64]chan RealtimeMessage

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{subscribers: make(map[string]topic)}
}

// Subscribe opens a stream for collection. The stream is closed by the returned
// cancel func or when ctx ends, whichever comes first.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, collection string) (<-chan RealtimeMessage, func()) {
	stream := make(chan RealtimeMessage, realtimeBufferSize)
	if collection == "" {
		close(stream)
		return stream, func() {}
	}

	id := d.sequence.Add(1)
	d.mu.Lock()
	if d.subscribers[collection] == nil {
		d.subscribers[collection] = make(topic)
	}
	d.subscribers[collection][id] = stream
	d.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { d.drop(collection, id) })
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return stream, cancel
}

// Publish delivers message to every open stream of its collection without blocking.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.Collection == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, stream := range d.subscribers[message.Collection] {
		select {
		case stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) drop(collection string, id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	streams := d.subscribers[collection]
	stream, ok := streams[id]
	if !ok {
		return
	}
	delete(streams, id)
	close(stream)
	if len(streams) == 0 {
		delete(d.subscribers, collection)
	}
}
