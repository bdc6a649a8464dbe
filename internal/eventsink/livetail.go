package eventsink

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/hblink4/hblink4/internal/logger"
)

// LiveTail re-broadcasts every emitted event to connected websocket clients,
// the browser-facing half of the dashboard. It taps the Sink's event stream
// rather than replacing it: the datagram transport remains the primary,
// always-on sink.
type LiveTail struct {
	mu      sync.RWMutex
	clients map[*tailClient]struct{}
	log     *logger.Logger
}

type tailClient struct {
	conn     *websocket.Conn
	messages chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewLiveTail builds an empty LiveTail.
func NewLiveTail(log *logger.Logger) *LiveTail {
	return &LiveTail{clients: make(map[*tailClient]struct{}), log: log}
}

// Broadcast fans an already-marshaled event out to every connected client,
// dropping it for any client whose buffer is full rather than blocking.
func (t *LiveTail) Broadcast(data []byte) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for c := range t.clients {
		select {
		case c.messages <- data:
		default:
		}
	}
}

// Handler upgrades HTTP connections to websockets and streams events to
// them until the client disconnects.
func (t *LiveTail) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
			return
		}
		client := &tailClient{conn: conn, messages: make(chan []byte, 256)}

		t.mu.Lock()
		t.clients[client] = struct{}{}
		t.mu.Unlock()

		go func() {
			defer func() {
				t.mu.Lock()
				delete(t.clients, client)
				t.mu.Unlock()
				close(client.messages)
				_ = conn.Close()
			}()
			conn.SetReadLimit(1024)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		go func() {
			for msg := range client.messages {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()
	})
}

// Tee wraps a Sink so every emitted event is also pushed to the live-tail
// broadcast, running the marshal-and-fanout on its own goroutine so the
// Sink's drain loop never blocks on websocket client behavior.
func Tee(ctx context.Context, s *Sink, tail *LiveTail) {
	mirror := make(chan Event, sendBufferSize)
	s.mirror = mirror

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-mirror:
				if !ok {
					return
				}
				data, err := ev.marshal()
				if err != nil {
					continue
				}
				tail.Broadcast(data)
			}
		}
	}()
}
