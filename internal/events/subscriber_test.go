package events

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

// connectPair returns a publisher and subscriber on a fresh embedded server.
func connectPair(t *testing.T, opts ...nats.Option) (*NATSPublisher, *NATSSubscriber) {
	t.Helper()
	url := startTestNATS(t)
	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	t.Cleanup(func() { pub.Close() })
	sub, err := NewNATSSubscriber(url, opts...)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	t.Cleanup(func() { sub.Close() })
	return pub, sub
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestNATSSubscriber_RawPayload(t *testing.T) {
	pub, sub := connectPair(t)
	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	// A message from a foreign publisher has no tracker headers.
	if err := pub.conn.Publish(TopicIssueChanged, []byte(`{"id":"1"}`)); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	pub.conn.Flush()
	msg := receive(t, ch)
	if string(msg.Data) != `{"id":"1"}` || msg.Topic != TopicIssueChanged || msg.ID != "" || msg.Project != "" {
		t.Errorf("message = %+v", msg)
	}
}

func TestNATSSubscriber_TopicFilter(t *testing.T) {
	pub, sub := connectPair(t)
	ch, cancel, err := sub.Subscribe(TopicReindexRequested)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	ctx := context.Background()
	_ = pub.Publish(ctx, TopicProjectDeleted, ProjectDeleted{ProjectUUID: "p1"})
	_ = pub.Publish(ctx, TopicReindexRequested, ReindexRequested{ProjectUUID: "p2"})

	msg := receive(t, ch)
	if msg.Topic != TopicReindexRequested || msg.Project != "p2" {
		t.Errorf("message = %+v", msg)
	}
}

func TestNATSSubscriber_CancelClosesChannel(t *testing.T) {
	pub, sub := connectPair(t)
	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			_ = pub.conn.Publish(TopicIssueChanged, []byte(`{}`))
		}
		pub.conn.Flush()
	}()

	// Cancelling while messages arrive must not panic; a second cancel is
	// a no-op.
	cancel()
	cancel()
	<-done

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}

func TestNATSSubscriber_ImplementsSubscriber(t *testing.T) {
	var _ Subscriber = (*NATSSubscriber)(nil)
}

func TestNATSSubscriber_ExtraOptions(t *testing.T) {
	_, sub := connectPair(t, nats.ReconnectHandler(func(*nats.Conn) {}))
	if !sub.conn.IsConnected() {
		t.Fatal("expected subscriber to be connected")
	}
	if got := sub.conn.Opts.Name; got != "tracker-subscriber" {
		t.Errorf("connection name = %q", got)
	}
}

func TestNATSSubscriber_EventHeaders(t *testing.T) {
	pub, sub := connectPair(t)

	ch, cancel, err := sub.Subscribe(TopicAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	ctx := context.Background()
	changed := NewIssueChanged(&model.Issue{Key: "i1", ProjectUUID: "p1"}, "alice", nil, "", time.Now())
	if err := pub.Publish(ctx, TopicIssueChanged, changed); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Publish(ctx, TopicPermissionsChanged, PermissionsChanged{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	want := []Message{
		{Topic: TopicIssueChanged, ID: changed.ID, Project: "p1"},
		{Topic: TopicPermissionsChanged},
	}
	for i, w := range want {
		msg := receive(t, ch)
		if msg.Topic != w.Topic || msg.ID != w.ID || msg.Project != w.Project {
			t.Errorf("message %d = {%s %s %s}, want {%s %s %s}", i, msg.Topic, msg.ID, msg.Project, w.Topic, w.ID, w.Project)
		}
	}
	if sub.Dropped() != 0 {
		t.Errorf("dropped = %d", sub.Dropped())
	}
}
