package model

import (
	"encoding/json"
	"time"
)

// Event is a persisted event record, mirroring what is published to NATS.
type Event struct {
	ID        int64           `json:"id"`
	Topic     string          `json:"topic"`
	IssueKey  string          `json:"issue_key"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// ReindexItem is a pending request to refresh one issue document. Items
// are written in the same transaction as the issue change they follow.
type ReindexItem struct {
	ID        int64     `json:"id"`
	IssueKey  string    `json:"issue_key"`
	CreatedAt time.Time `json:"created_at"`
}
