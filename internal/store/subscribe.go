package store

import (
	"context"
	"sync"
)

// Subscribe streams every state installed after the call, starting with the
// current one. Slow subscribers miss intermediate states rather than blocking
// the store. The stream closes when ctx ends or the returned cancel runs.
func (s *Store) Subscribe(ctx context.Context) (<-chan State, func()) {
	sub := &subscriber{
		stream: make(chan State, s.bufferSize),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subscribers[id] = sub
	sub.stream <- s.state
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			close(sub.stream)
			s.mu.Unlock()
			close(sub.done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return sub.stream, cancel
}

func (s *Store) publishLocked() {
	for _, sub := range s.subscribers {
		select {
		case sub.stream <- s.state:
		default:
		}
	}
}
