package sync

import (
	"context"
	"slices"

	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/store"
)

// mockStore serves issues, change logs and comments from memory. Methods
// the export never calls panic through the nil Store.
type mockStore struct {
	store.Store

	issues   map[string]*model.Issue
	changes  map[string][]*model.IssueChange
	comments map[string][]*model.Comment
	pages    int
}

func newMockStore() *mockStore {
	return &mockStore{
		issues:   make(map[string]*model.Issue),
		changes:  make(map[string][]*model.IssueChange),
		comments: make(map[string][]*model.Comment),
	}
}

func (m *mockStore) ListIssues(_ context.Context, f store.IssueFilter) ([]*model.Issue, error) {
	m.pages++
	var keys []string
	for k := range m.issues {
		if k > f.AfterKey {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	if f.Limit > 0 && len(keys) > f.Limit {
		keys = keys[:f.Limit]
	}
	out := make([]*model.Issue, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.issues[k])
	}
	return out, nil
}

func (m *mockStore) GetChanges(_ context.Context, key string) ([]*model.IssueChange, error) {
	return m.changes[key], nil
}

func (m *mockStore) GetComments(_ context.Context, key string) ([]*model.Comment, error) {
	return m.comments[key], nil
}
