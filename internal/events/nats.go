package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// Message headers set by NATSPublisher. Nats-Msg-Id lets a JetStream
// stream on the tracker subjects deduplicate redelivered publishes.
const (
	headerMsgID   = "Nats-Msg-Id"
	headerProject = "Tracker-Project"
)

// projectScoped is implemented by events that belong to one project.
type projectScoped interface {
	eventProject() string
}

func (e IssueChanged) eventProject() string       { return e.ProjectUUID }
func (e ReindexRequested) eventProject() string   { return e.ProjectUUID }
func (e ProjectDeleted) eventProject() string     { return e.ProjectUUID }
func (e PermissionsChanged) eventProject() string { return e.ProjectUUID }

func connect(url, name string, opts ...nats.Option) (*nats.Conn, error) {
	defaults := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes JSON-encoded events to NATS subjects named after
// their topic.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url (TRACKER_NATS_URL).
func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := connect(url, "tracker-publisher", opts...)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", topic, err)
	}

	msg := nats.NewMsg(topic)
	msg.Data = data
	if ev, ok := event.(IssueChanged); ok && ev.ID != "" {
		msg.Header.Set(headerMsgID, ev.ID)
	}
	if ev, ok := event.(projectScoped); ok && ev.eventProject() != "" {
		msg.Header.Set(headerProject, ev.eventProject())
	}

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber subscribes to events from NATS subjects. It reconnects
// forever; extra nats.Option values (disconnect and reconnect handlers)
// are applied after the defaults.
type NATSSubscriber struct {
	conn    *nats.Conn
	dropped atomic.Uint64
}

func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := connect(url, "tracker-subscriber", opts...)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Dropped returns how many messages were discarded because a consumer's
// channel was full.
func (s *NATSSubscriber) Dropped() uint64 {
	return s.dropped.Load()
}

// Subscribe delivers messages of topic, which may use NATS wildcards
// ("tracker.>").
func (s *NATSSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	ch := make(chan Message, 64)

	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)

	sub, err := s.conn.Subscribe(topic, func(msg *nats.Msg) {
		m := Message{Topic: msg.Subject, Data: msg.Data}
		if msg.Header != nil {
			m.ID = msg.Header.Get(headerMsgID)
			m.Project = msg.Header.Get(headerProject)
		}

		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		// Never block the NATS dispatch goroutine.
		select {
		case ch <- m:
		default:
			s.dropped.Add(1)
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// The subscription must reach the server before we return, or
	// publishes from other connections can miss it.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			mu.Unlock()
			for {
				select {
				case <-ch:
				default:
					close(ch)
					return
				}
			}
		})
	}

	return ch, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
