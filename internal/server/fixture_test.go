package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/tracker/internal/events"
	"github.com/alfredjeanlab/tracker/internal/index"
	"github.com/alfredjeanlab/tracker/internal/indexer"
	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/query"
	"github.com/alfredjeanlab/tracker/internal/search"
	"github.com/alfredjeanlab/tracker/internal/store"
)

// Project p1 is public; p2 is only visible to bob.
var (
	projectPublic  = &model.Component{UUID: "p1", Key: "pub", Name: "Public", Qualifier: model.QualifierProject, ProjectUUID: "p1"}
	projectPrivate = &model.Component{UUID: "p2", Key: "priv", Name: "Private", Qualifier: model.QualifierProject, ProjectUUID: "p2"}
)

// mockStore is an in-memory store.Store holding a handful of issues,
// components and callers.
type mockStore struct {
	store.Store

	mu         sync.Mutex
	issues     map[string]*model.Issue
	components []*model.Component
	callers    map[string]*model.Caller
	comments   []*model.Comment
	recorded   []*model.Event
}

func newMockStore() *mockStore {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &mockStore{
		issues:     make(map[string]*model.Issue),
		components: []*model.Component{projectPublic, projectPrivate},
		callers: map[string]*model.Caller{
			"": {Permissions: map[string][]model.Permission{"p1": {model.PermissionBrowse}}},
			"alice": {
				UUID:        "u-alice",
				Login:       "alice",
				Permissions: map[string][]model.Permission{"p1": {model.PermissionBrowse}},
			},
			"bob": {
				UUID:  "u-bob",
				Login: "bob",
				Permissions: map[string][]model.Permission{
					"p1": {model.PermissionBrowse, model.PermissionIssueAdmin, model.PermissionAdmin},
					"p2": {model.PermissionBrowse},
				},
			},
			"root": {UUID: "u-root", Login: "root", Root: true},
		},
	}
	for _, i := range []*model.Issue{
		{Key: "ISSUE-1", RuleKey: "go:S100", ProjectUUID: "p1", BranchUUID: "p1", ComponentUUID: "f1", MainBranch: true,
			Severity: model.SeverityMajor, Status: model.StatusOpen, Type: model.TypeBug, Tags: []string{"security"}, Author: "ann@example.com"},
		{Key: "ISSUE-2", RuleKey: "go:S200", ProjectUUID: "p1", BranchUUID: "p1", ComponentUUID: "f1", MainBranch: true,
			Severity: model.SeverityBlocker, Status: model.StatusOpen, Type: model.TypeVulnerability, Tags: []string{"perf"},
			OwaspTop10: []string{"a1"}, Cwe: []string{"89"}},
		{Key: "ISSUE-3", RuleKey: "go:S300", ProjectUUID: "p2", BranchUUID: "p2", ComponentUUID: "f2", MainBranch: true,
			Severity: model.SeverityMinor, Status: model.StatusOpen, Type: model.TypeCodeSmell, Tags: []string{"hidden"}},
	} {
		i.CreatedAt = created
		i.UpdatedAt = created
		s.issues[i.Key] = i
	}
	return s
}

func (s *mockStore) GetComponentsByKeys(_ context.Context, keys []string) ([]*model.Component, error) {
	var out []*model.Component
	for _, c := range s.components {
		if slices.Contains(keys, c.Key) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *mockStore) GetComponentsByUUIDs(_ context.Context, uuids []string) ([]*model.Component, error) {
	var out []*model.Component
	for _, c := range s.components {
		if slices.Contains(uuids, c.UUID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *mockStore) GetBranch(_ context.Context, projectUUID, name string) (*model.Branch, error) {
	return nil, &model.NotFoundError{Kind: "branch", Key: name}
}

func (s *mockStore) GetCaller(_ context.Context, login string) (*model.Caller, error) {
	if c, ok := s.callers[login]; ok {
		return c, nil
	}
	return nil, &model.NotFoundError{Kind: "user", Key: login}
}

func (s *mockStore) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	if c, ok := s.callers[login]; ok && c.UUID != "" {
		return &model.User{UUID: c.UUID, Login: c.Login, Active: true}, nil
	}
	return nil, &model.NotFoundError{Kind: "user", Key: login}
}

func (s *mockStore) GetIssue(_ context.Context, key string) (*model.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.issues[key]; ok {
		return i.Clone(), nil
	}
	return nil, &model.NotFoundError{Kind: "issue", Key: key}
}

func (s *mockStore) GetIssues(_ context.Context, keys []string) ([]*model.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Issue
	for _, k := range keys {
		if i, ok := s.issues[k]; ok {
			out = append(out, i.Clone())
		}
	}
	return out, nil
}

func (s *mockStore) ListIssues(_ context.Context, f store.IssueFilter) ([]*model.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k, i := range s.issues {
		if (f.ProjectUUID == "" || i.ProjectUUID == f.ProjectUUID) && k > f.AfterKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if f.Limit > 0 && len(keys) > f.Limit {
		keys = keys[:f.Limit]
	}
	out := make([]*model.Issue, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.issues[k].Clone())
	}
	return out, nil
}

func (s *mockStore) UpdateIssue(_ context.Context, i *model.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[i.Key] = i.Clone()
	return nil
}

func (s *mockStore) InsertChange(context.Context, *model.IssueChange) error { return nil }

func (s *mockStore) InsertComment(_ context.Context, c *model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, c)
	return nil
}

func (s *mockStore) EnqueueReindex(context.Context, []string) error { return nil }

func (s *mockStore) RecordEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, e)
	return nil
}

func (s *mockStore) ListAuthorizations(context.Context) ([]*model.AuthorizationEntry, error) {
	return []*model.AuthorizationEntry{
		{ProjectUUID: "p1", Public: true},
		{ProjectUUID: "p2", Users: []string{"u-bob"}},
	}, nil
}

func (s *mockStore) ListPortfolioProjects(context.Context) (map[string][]string, error) {
	return nil, nil
}

func (s *mockStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *mockStore) issue(key string) *model.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issues[key].Clone()
}

// capturePublisher records published topics.
type capturePublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *capturePublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) published(topic string) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []any
	for i, t := range p.topics {
		if t == topic {
			out = append(out, p.events[i])
		}
	}
	return out
}

var _ events.Publisher = (*capturePublisher)(nil)

// newTestServer builds a server over a fully indexed mockStore.
func newTestServer() (*TrackerServer, *mockStore, http.Handler) {
	srv, ms, _ := newFixture()
	return srv, ms, srv.NewHTTPHandler("")
}

func newFixture() (*TrackerServer, *mockStore, *capturePublisher) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ms := newMockStore()
	idx := index.New()
	ix := indexer.New(ms, idx, 0, logger)
	if _, err := ix.IndexAll(context.Background()); err != nil {
		panic(err)
	}
	svc := search.NewService(query.NewFactory(ms, time.UTC, logger), search.NewExecutor(idx), logger)
	pub := &capturePublisher{}
	return NewTrackerServer(ms, svc, ix, pub, logger), ms, pub
}
