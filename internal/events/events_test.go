package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/tracker/internal/model"
)

func TestNoopPublisher(t *testing.T) {
	var pub Publisher = &NoopPublisher{}
	if err := pub.Publish(context.Background(), TopicIssueChanged, IssueChanged{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNATSPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestNewIssueChanged(t *testing.T) {
	now := time.Now()
	issue := &model.Issue{Key: "i1", ProjectUUID: "p1"}
	diffs := model.FieldDiffs{"assignee": {Old: "", New: "u1"}}

	a := NewIssueChanged(issue, "alice", diffs, "triaged", now)
	b := NewIssueChanged(issue, "alice", diffs, "", now)
	if _, err := uuid.Parse(a.ID); err != nil {
		t.Fatalf("event id %q is not a uuid: %v", a.ID, err)
	}
	if a.ID == b.ID {
		t.Error("event ids must be unique")
	}
	if a.IssueKey != "i1" || a.ProjectUUID != "p1" || a.Author != "alice" || a.Comment != "triaged" {
		t.Errorf("event = %+v", a)
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicIssueChanged, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := NewIssueChanged(&model.Issue{Key: "i1", ProjectUUID: "p1"}, "alice",
		model.FieldDiffs{"severity": {Old: "MAJOR", New: "BLOCKER"}}, "", time.Now())
	if err := pub.Publish(context.Background(), TopicIssueChanged, event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-ch:
		var got IssueChanged
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.IssueKey != "i1" || got.Diffs["severity"].New != "BLOCKER" || got.ID != event.ID {
			t.Errorf("got %+v", got)
		}
		if id := msg.Header.Get("Nats-Msg-Id"); id != event.ID {
			t.Errorf("Nats-Msg-Id = %q, want %q", id, event.ID)
		}
		if p := msg.Header.Get("Tracker-Project"); p != "p1" {
			t.Errorf("Tracker-Project = %q", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_CanceledContext(t *testing.T) {
	url := startTestNATS(t)
	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, TopicIssueChanged, IssueChanged{}); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	// Publishing after close should fail.
	err = pub.Publish(context.Background(), TopicProjectDeleted, ProjectDeleted{ProjectUUID: "p1"})
	if err == nil {
		t.Error("expected error publishing after close")
	}
}
