package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Stream event types published on GET /api/<collection>/stream.
const (
	StreamEventChanged   = "entity-change"
	StreamEventDeleted   = "entity-delete"
	StreamEventHeartbeat = "heartbeat"
)

const (
	opStream               = "apiclient.stream"
	eventStreamContentType = "text/event-stream"
)

// StreamEvent announces that entities of the collection changed on the server.
type StreamEvent struct {
	Type       string    `json:"-"`
	Collection string    `json:"collection"`
	EntityIDs  []string  `json:"entityIds"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
}

// Watch opens the collection's change stream. Heartbeats are consumed here.
// The channel closes when ctx ends or the server drops the connection.
func (c *Client) Watch(ctx context.Context) (<-chan StreamEvent, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String()+c.collectionPath()+"/stream", nil)
	if err != nil {
		return nil, c.fail(opStream, reasonEncode, 0, err)
	}
	request.Header.Set("Accept", eventStreamContentType)
	if c.userID != "" {
		request.Header.Set(UserHeader, c.userID)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, c.fail(opStream, reasonTransport, 0, err)
	}
	if response.StatusCode != http.StatusOK {
		_ = response.Body.Close()
		return nil, c.fail(opStream, reasonStatus, response.StatusCode, errors.New(http.StatusText(response.StatusCode)))
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer response.Body.Close()
		c.readStream(ctx, response.Body, events)
	}()
	return events, nil
}

func (c *Client) readStream(ctx context.Context, body io.Reader, events chan<- StreamEvent) {
	scanner := bufio.NewScanner(body)
	eventType := ""
	var data strings.Builder
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		switch {
		case line == "":
			if data.Len() > 0 && eventType != StreamEventHeartbeat {
				event := StreamEvent{}
				if err := json.Unmarshal([]byte(data.String()), &event); err != nil {
					c.logger.Warn("api stream event undecodable", zap.String("event", eventType), zap.Error(err))
				} else {
					event.Type = eventType
					select {
					case events <- event:
					case <-ctx.Done():
						return
					}
				}
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.Warn("api stream interrupted", zap.Error(err))
	}
}
