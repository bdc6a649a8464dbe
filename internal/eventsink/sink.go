// Package eventsink emits connection/stream lifecycle events to the
// monitoring dashboard. It is write-only and best-effort: a full send
// buffer drops the event rather than blocking the forwarding path.
package eventsink

import (
	"encoding/json"
	"net"
	"time"

	"github.com/hblink4/hblink4/internal/logger"
)

// Event is one JSON-encoded datagram sent to the dashboard transport.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func (e Event) marshal() ([]byte, error) { return json.Marshal(e) }

// Transport abstracts the local datagram socket the sink writes to: either
// a unix datagram socket or a UDP socket, selected by dashboard.transport.
type Transport interface {
	Write([]byte) (int, error)
	Close() error
}

// Config selects and addresses the dashboard transport.
type Config struct {
	Transport  string // "unix" or "tcp" (tcp dials UDP for the datagram event stream)
	UnixSocket string
	Host       string
	Port       int
}

// Sink owns the bounded outbound queue and the single writer goroutine that
// drains it. Nothing on the forwarding path ever blocks on this channel.
type Sink struct {
	events    chan Event
	transport Transport
	log       *logger.Logger
	done      chan struct{}
	mirror    chan Event // optional, set by Tee for live-tail fanout
}

const sendBufferSize = 1024

// Dial opens the configured transport and starts the drain goroutine.
func Dial(cfg Config, log *logger.Logger) (*Sink, error) {
	var (
		conn net.Conn
		err  error
	)
	switch cfg.Transport {
	case "unix":
		conn, err = net.Dial("unixgram", cfg.UnixSocket)
	default:
		conn, err = net.Dial("udp", net.JoinHostPort(cfg.Host, itoa(cfg.Port)))
	}
	if err != nil {
		return nil, err
	}

	s := &Sink{
		events:    make(chan Event, sendBufferSize),
		transport: conn,
		log:       log,
		done:      make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *Sink) run() {
	defer close(s.done)
	for ev := range s.events {
		data, err := ev.marshal()
		if err != nil {
			continue
		}
		if _, err := s.transport.Write(data); err != nil && s.log != nil {
			s.log.Debug("event sink write failed", logger.Error(err))
		}
		if s.mirror != nil {
			select {
			case s.mirror <- ev:
			default:
			}
		}
	}
}

// Emit queues ev for delivery. Never blocks: if the buffer is full the event
// is dropped.
func (s *Sink) Emit(eventType string, data map[string]interface{}) {
	select {
	case s.events <- Event{Type: eventType, Timestamp: time.Now(), Data: data}:
	default:
		if s.log != nil {
			s.log.Debug("event sink buffer full, dropping event", logger.String("type", eventType))
		}
	}
}

// Close stops accepting events, drains the buffer, and closes the transport.
func (s *Sink) Close() error {
	close(s.events)
	<-s.done
	return s.transport.Close()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
