package store

import (
	"context"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// IssueFilter selects issues for paged scans. Issues are returned in key
// order, starting after AfterKey.
type IssueFilter struct {
	ProjectUUID string
	AfterKey    string
	Limit       int
}

// Store defines the persistence interface for issues and the data they
// are searched and authorized by.
type Store interface {
	// Components
	GetComponentsByKeys(ctx context.Context, keys []string) ([]*model.Component, error)
	GetComponentsByUUIDs(ctx context.Context, uuids []string) ([]*model.Component, error)
	GetBranch(ctx context.Context, projectUUID, name string) (*model.Branch, error)

	// Issues
	GetIssue(ctx context.Context, key string) (*model.Issue, error)
	GetIssues(ctx context.Context, keys []string) ([]*model.Issue, error) // unknown keys are skipped
	ListIssues(ctx context.Context, filter IssueFilter) ([]*model.Issue, error)
	UpdateIssue(ctx context.Context, issue *model.Issue) error

	// Change log and comments
	InsertChange(ctx context.Context, change *model.IssueChange) error
	GetChanges(ctx context.Context, issueKey string) ([]*model.IssueChange, error)
	InsertComment(ctx context.Context, comment *model.Comment) error
	GetComments(ctx context.Context, issueKey string) ([]*model.Comment, error)

	// Users, permissions and action plans
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetCaller(ctx context.Context, login string) (*model.Caller, error)
	GetActionPlan(ctx context.Context, key string) (*model.ActionPlan, error)

	// Search authorization and portfolio membership
	ListAuthorizations(ctx context.Context) ([]*model.AuthorizationEntry, error)
	ListPortfolioProjects(ctx context.Context) (map[string][]string, error)

	// Re-index queue
	EnqueueReindex(ctx context.Context, issueKeys []string) error
	ListReindexQueue(ctx context.Context, limit int) ([]*model.ReindexItem, error)
	DeleteReindexItems(ctx context.Context, ids []int64) error

	// Events
	RecordEvent(ctx context.Context, event *model.Event) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
