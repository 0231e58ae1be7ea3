package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// Event topic constants
const (
	TopicIssueChanged = "tracker.issue.changed"

	// Index maintenance requests, consumed by every node's indexer.
	TopicReindexRequested   = "tracker.index.reindex"
	TopicProjectDeleted     = "tracker.project.deleted"
	TopicPermissionsChanged = "tracker.permissions.changed"

	// TopicAll matches every tracker topic.
	TopicAll = "tracker.>"
)

// Event types

// IssueChanged notifies that an issue was changed by a user. Diffs carries
// the old and new value of each changed field.
type IssueChanged struct {
	ID          string           `json:"id"`
	IssueKey    string           `json:"issue_key"`
	ProjectUUID string           `json:"project_uuid"`
	Author      string           `json:"author"` // login
	Diffs       model.FieldDiffs `json:"diffs"`
	Comment     string           `json:"comment,omitempty"`
	Date        time.Time        `json:"date"`
}

// NewIssueChanged returns an IssueChanged with a fresh event id.
func NewIssueChanged(issue *model.Issue, author string, diffs model.FieldDiffs, comment string, date time.Time) IssueChanged {
	return IssueChanged{
		ID:          uuid.NewString(),
		IssueKey:    issue.Key,
		ProjectUUID: issue.ProjectUUID,
		Author:      author,
		Diffs:       diffs,
		Comment:     comment,
		Date:        date,
	}
}

// ReindexRequested asks indexers to refresh issue documents: the listed
// issues, or every issue of ProjectUUID.
type ReindexRequested struct {
	IssueKeys   []string `json:"issue_keys,omitempty"`
	ProjectUUID string   `json:"project_uuid,omitempty"`
}

type ProjectDeleted struct {
	ProjectUUID string `json:"project_uuid"`
}

// PermissionsChanged asks indexers to reload authorization entries and
// portfolio membership.
type PermissionsChanged struct {
	ProjectUUID string `json:"project_uuid,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
