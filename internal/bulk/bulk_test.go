package bulk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/tracker/internal/action"
	"github.com/alfredjeanlab/tracker/internal/events"
	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/store"
	"github.com/alfredjeanlab/tracker/internal/workflow"
)

// fakeStore keeps issues and everything a bulk change writes in memory.
type fakeStore struct {
	store.Store

	mu       sync.Mutex
	issues   map[string]*model.Issue
	users    map[string]*model.User
	reads    int
	updated  []string
	changes  []*model.IssueChange
	comments []*model.Comment
	queued   []string
	recorded []*model.Event
	txErr    error
}

func newFakeStore(issues ...*model.Issue) *fakeStore {
	s := &fakeStore{
		issues: make(map[string]*model.Issue),
		users:  map[string]*model.User{"alice": {UUID: "u-alice", Login: "alice", Active: true}},
	}
	for _, i := range issues {
		s.issues[i.Key] = i
	}
	return s
}

func (s *fakeStore) GetIssue(_ context.Context, key string) (*model.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if i, ok := s.issues[key]; ok {
		return i.Clone(), nil
	}
	return nil, &model.NotFoundError{Kind: "issue", Key: key}
}

func (s *fakeStore) GetIssues(_ context.Context, keys []string) ([]*model.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	var out []*model.Issue
	for _, k := range keys {
		if i, ok := s.issues[k]; ok {
			out = append(out, i.Clone())
		}
	}
	return out, nil
}

func (s *fakeStore) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	if u, ok := s.users[login]; ok {
		return u, nil
	}
	return nil, &model.NotFoundError{Kind: "user", Key: login}
}

func (s *fakeStore) GetActionPlan(_ context.Context, key string) (*model.ActionPlan, error) {
	return nil, &model.NotFoundError{Kind: "action plan", Key: key}
}

func (s *fakeStore) UpdateIssue(_ context.Context, i *model.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[i.Key] = i.Clone()
	s.updated = append(s.updated, i.Key)
	return nil
}

func (s *fakeStore) InsertChange(_ context.Context, c *model.IssueChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, c)
	return nil
}

func (s *fakeStore) InsertComment(_ context.Context, c *model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, c)
	return nil
}

func (s *fakeStore) EnqueueReindex(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, keys...)
	return nil
}

func (s *fakeStore) RecordEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, e)
	return nil
}

func (s *fakeStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	if s.txErr != nil {
		return s.txErr
	}
	return fn(s)
}

type fakeIndexer struct {
	keys []string
	err  error
}

func (f *fakeIndexer) Index(_ context.Context, keys []string) error {
	f.keys = append(f.keys, keys...)
	return f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.IssueChanged
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := event.(events.IssueChanged); ok && topic == events.TopicIssueChanged {
		p.events = append(p.events, e)
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// stubAction embeds action.Action for the unexported marker method; the
// nil embedded value is never called.
type stubAction struct {
	action.Action
	supports bool
	changes  bool
	panicOn  string
}

func (stubAction) Key() string                  { return "stub" }
func (a stubAction) Supports(*model.Issue) bool { return a.supports }
func (a stubAction) Execute(c *action.Context) (bool, error) {
	if c.Issue.Key == a.panicOn {
		panic("boom")
	}
	if a.changes {
		c.Diffs.Set("stub", "", c.Issue.Key)
	}
	return a.changes, nil
}

type stubVerifier struct{ action stubAction }

func (stubVerifier) Key() string { return "stub" }
func (v stubVerifier) Verify(context.Context, action.Params, []*model.Issue, *model.Caller) (action.Action, error) {
	return v.action, nil
}

var (
	admin = &model.Caller{UUID: "u-admin", Login: "admin", Permissions: map[string][]model.Permission{
		"p1": {model.PermissionBrowse, model.PermissionIssueAdmin},
	}}
	reader = &model.Caller{UUID: "u-reader", Login: "reader", Permissions: map[string][]model.Permission{
		"p1": {model.PermissionBrowse},
	}}
)

func issue(key, project string) *model.Issue {
	return &model.Issue{
		Key:         key,
		ProjectUUID: project,
		RuleKey:     "java:S1",
		Severity:    model.SeverityMajor,
		Status:      model.StatusOpen,
		Type:        model.TypeBug,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store   *fakeStore
	indexer *fakeIndexer
	pub     *recordingPublisher
	orch    *Orchestrator
}

func newFixture(registry *action.Registry, issues ...*model.Issue) *fixture {
	f := &fixture{
		store:   newFakeStore(issues...),
		indexer: &fakeIndexer{},
		pub:     &recordingPublisher{},
	}
	if registry == nil {
		registry = action.DefaultRegistry(f.store, workflow.Default)
	}
	f.orch = New(f.store, registry, workflow.Default, f.indexer, f.pub, testLogger())
	f.orch.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func stubRegistry(a stubAction) *action.Registry {
	return action.NewRegistry(stubVerifier{action: a}, action.CommentVerifier{})
}

func keysOf(n int, project string) ([]string, []*model.Issue) {
	var keys []string
	var issues []*model.Issue
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("i%03d", i)
		keys = append(keys, k)
		issues = append(issues, issue(k, project))
	}
	return keys, issues
}

func stub() []ActionRequest { return []ActionRequest{{Key: "stub"}} }

func TestExecute_Unauthenticated(t *testing.T) {
	f := newFixture(nil, issue("i1", "p1"))
	_, err := f.orch.Execute(context.Background(), Query{IssueKeys: []string{"i1"}, Actions: stub()}, model.Anonymous())
	var uerr *model.UnauthenticatedError
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want UnauthenticatedError", err)
	}
}

func TestExecute_SizeCap(t *testing.T) {
	for _, n := range []int{501, 750} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			keys, issues := keysOf(n, "p1")
			f := newFixture(stubRegistry(stubAction{supports: true, changes: true}), issues...)
			_, err := f.orch.Execute(context.Background(), Query{IssueKeys: keys, Actions: stub()}, admin)
			var verr *model.ValidationError
			if !errors.As(err, &verr) || !verr.HasField("issues") {
				t.Fatalf("err = %v, want validation error on issues", err)
			}
			if !strings.Contains(err.Error(), fmt.Sprint(n)) {
				t.Errorf("error %q does not carry the count %d", err, n)
			}
			if f.store.reads != 0 || len(f.store.updated) != 0 {
				t.Error("store touched before validation")
			}
		})
	}
}

func TestExecute_AcceptsMaxIssues(t *testing.T) {
	keys, issues := keysOf(MaxIssues, "p1")
	f := newFixture(stubRegistry(stubAction{supports: true, changes: true}), issues...)
	res, err := f.orch.Execute(context.Background(), Query{IssueKeys: keys, Actions: stub()}, admin)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Changed) != MaxIssues {
		t.Errorf("changed = %d, want %d", len(res.Changed), MaxIssues)
	}
}

func TestExecute_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		field string
	}{
		{"no issues", Query{Actions: stub()}, "issues"},
		{"no actions", Query{IssueKeys: []string{"i1"}}, "actions"},
		{"comment only", Query{IssueKeys: []string{"i1"}, Actions: []ActionRequest{
			{Key: action.KeyComment, Params: action.Params{"comment": "hi"}},
		}}, "actions"},
		{"unknown action", Query{IssueKeys: []string{"i1"}, Actions: []ActionRequest{{Key: "stub"}, {Key: "explode"}}}, "actions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(stubRegistry(stubAction{supports: true, changes: true}), issue("i1", "p1"))
			_, err := f.orch.Execute(context.Background(), tt.query, admin)
			var verr *model.ValidationError
			if !errors.As(err, &verr) || !verr.HasField(tt.field) {
				t.Fatalf("err = %v, want validation error on %s", err, tt.field)
			}
			if f.store.reads != 0 {
				t.Error("issues loaded for an invalid request")
			}
		})
	}
}

func TestExecute_VerifyFailureStopsBatch(t *testing.T) {
	f := newFixture(nil, issue("i1", "p1"))
	_, err := f.orch.Execute(context.Background(), Query{
		IssueKeys: []string{"i1"},
		Actions:   []ActionRequest{{Key: action.KeyAssign, Params: action.Params{"assignee": "nobody"}}},
	}, admin)
	var nf *model.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
	if len(f.store.updated) != 0 {
		t.Error("issues persisted after verification failure")
	}
}

func TestExecute_AllSupportedAllChanged(t *testing.T) {
	keys, issues := keysOf(20, "p1")
	f := newFixture(stubRegistry(stubAction{supports: true, changes: true}), issues...)
	res, err := f.orch.Execute(context.Background(), Query{IssueKeys: keys, Actions: stub()}, admin)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Changed) != 20 || len(res.NotChanged) != 0 {
		t.Fatalf("changed = %d, not changed = %d", len(res.Changed), len(res.NotChanged))
	}
	if len(f.store.updated) != 20 || len(f.store.changes) != 20 {
		t.Errorf("updated = %d, changes = %d", len(f.store.updated), len(f.store.changes))
	}
	if !slices.Equal(f.store.queued, res.Changed) || !slices.Equal(f.indexer.keys, res.Changed) {
		t.Errorf("queued = %v, indexed = %v", f.store.queued, f.indexer.keys)
	}
	for _, c := range f.store.changes {
		if !strings.HasPrefix(c.Key, "ch-") || c.UserUUID != "u-admin" {
			t.Errorf("change = %+v", c)
		}
	}
}

func TestExecute_NothingSupportedNothingChanged(t *testing.T) {
	keys, issues := keysOf(20, "p1")
	f := newFixture(stubRegistry(stubAction{supports: false, changes: true}), issues...)
	res, err := f.orch.Execute(context.Background(), Query{IssueKeys: keys, Actions: stub()}, admin)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Changed) != 0 || len(res.NotChanged) != 20 {
		t.Fatalf("changed = %d, not changed = %d", len(res.Changed), len(res.NotChanged))
	}
	if len(f.store.updated) != 0 || len(f.indexer.keys) != 0 {
		t.Error("unchanged issues persisted or re-indexed")
	}
}

func TestExecute_PanicIsolated(t *testing.T) {
	f := newFixture(stubRegistry(stubAction{supports: true, changes: true, panicOn: "b"}),
		issue("a", "p1"), issue("b", "p1"), issue("c", "p1"))
	res, err := f.orch.Execute(context.Background(), Query{IssueKeys: []string{"a", "b", "c"}, Actions: stub()}, admin)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !slices.Equal(res.Changed, []string{"a", "c"}) || !slices.Equal(res.NotChanged, []string{"b"}) {
		t.Errorf("result = %+v", res)
	}
}

func TestExecute_MissingAndHiddenIssues(t *testing.T) {
	f := newFixture(stubRegistry(stubAction{supports: true, changes: true}), issue("a", "p1"), issue("h", "p2"))
	res, err := f.orch.Execute(context.Background(), Query{IssueKeys: []string{"a", "h", "missing", "a"}, Actions: stub()}, reader)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !slices.Equal(res.Changed, []string{"a"}) || !slices.Equal(res.NotChanged, []string{"h", "missing"}) {
		t.Errorf("result = %+v", res)
	}
}

func TestExecute_CommentOnlyOnChanged(t *testing.T) {
	resolved := issue("done", "p1")
	resolved.Status = model.StatusResolved
	resolved.Resolution = model.ResolutionFixed
	f := newFixture(nil, issue("open", "p1"), resolved)

	res, err := f.orch.Execute(context.Background(), Query{
		IssueKeys: []string{"open", "done"},
		Actions: []ActionRequest{
			{Key: action.KeyAssign, Params: action.Params{"assignee": "alice"}},
			{Key: action.KeyComment, Params: action.Params{"comment": "assigned in bulk"}},
		},
		Comment:           "sprint triage",
		SendNotifications: true,
	}, admin)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !slices.Equal(res.Changed, []string{"open"}) || !slices.Equal(res.NotChanged, []string{"done"}) {
		t.Fatalf("result = %+v", res)
	}
	if len(f.store.comments) != 2 {
		t.Fatalf("comments = %d, want 2", len(f.store.comments))
	}
	for _, c := range f.store.comments {
		if c.IssueKey != "open" || !strings.HasPrefix(c.Key, "cm-") {
			t.Errorf("comment = %+v", c)
		}
	}
	if got := f.store.issues["open"].Assignee; got != "u-alice" {
		t.Errorf("assignee = %q", got)
	}

	if len(f.pub.events) != 1 {
		t.Fatalf("events = %d, want 1", len(f.pub.events))
	}
	ev := f.pub.events[0]
	if ev.IssueKey != "open" || ev.Author != "admin" || ev.Diffs["assignee"].New != "u-alice" {
		t.Errorf("event = %+v", ev)
	}
	if !strings.Contains(ev.Comment, "sprint triage") {
		t.Errorf("event comment = %q", ev.Comment)
	}
	if len(f.store.recorded) != 1 || f.store.recorded[0].Topic != events.TopicIssueChanged {
		t.Errorf("recorded = %+v", f.store.recorded)
	}
}

func TestExecute_NoNotificationsUnlessRequested(t *testing.T) {
	f := newFixture(stubRegistry(stubAction{supports: true, changes: true}), issue("a", "p1"))
	if _, err := f.orch.Execute(context.Background(), Query{IssueKeys: []string{"a"}, Actions: stub()}, admin); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(f.pub.events) != 0 || len(f.store.recorded) != 0 {
		t.Error("notification sent without request")
	}
}

func TestExecute_PersistFailure(t *testing.T) {
	f := newFixture(stubRegistry(stubAction{supports: true, changes: true}), issue("a", "p1"))
	f.store.txErr = errors.New("db down")
	if _, err := f.orch.Execute(context.Background(), Query{IssueKeys: []string{"a"}, Actions: stub()}, admin); err == nil {
		t.Fatal("expected error")
	}
	if len(f.indexer.keys) != 0 {
		t.Error("re-indexed after failed commit")
	}
}

func TestExecute_IndexFailureIsNotFatal(t *testing.T) {
	f := newFixture(stubRegistry(stubAction{supports: true, changes: true}), issue("a", "p1"))
	f.indexer.err = errors.New("index unavailable")
	res, err := f.orch.Execute(context.Background(), Query{IssueKeys: []string{"a"}, Actions: stub()}, admin)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !slices.Equal(res.Changed, []string{"a"}) || !slices.Equal(f.store.queued, []string{"a"}) {
		t.Errorf("result = %+v, queued = %v", res, f.store.queued)
	}
}

func TestExecute_ManualSeverityIsSticky(t *testing.T) {
	i := issue("a", "p1")
	i.Severity = model.SeverityBlocker
	i.ManualSeverity = true
	f := newFixture(nil, i)
	ctx := context.Background()

	res, err := f.orch.Execute(ctx, Query{IssueKeys: []string{"a"}, Actions: []ActionRequest{
		{Key: action.KeySetSeverity, Params: action.Params{"severity": "MINOR", "manual": "false"}},
	}}, admin)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Changed) != 0 || f.store.issues["a"].Severity != model.SeverityBlocker {
		t.Fatalf("non-manual severity overrode manual one: %+v", res)
	}

	res, err = f.orch.Execute(ctx, Query{IssueKeys: []string{"a"}, Actions: []ActionRequest{
		{Key: action.KeySetSeverity, Params: action.Params{"severity": "MINOR"}},
	}}, admin)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !slices.Equal(res.Changed, []string{"a"}) || f.store.issues["a"].Severity != model.SeverityMinor {
		t.Errorf("manual severity not applied: %+v", res)
	}
}

func TestDoTransition(t *testing.T) {
	f := newFixture(nil, issue("a", "p1"))
	got, err := f.orch.DoTransition(context.Background(), "a", workflow.EventConfirm, "looks real", reader)
	if err != nil {
		t.Fatalf("DoTransition: %v", err)
	}
	if got.Status != model.StatusConfirmed || f.store.issues["a"].Status != model.StatusConfirmed {
		t.Errorf("status = %s", got.Status)
	}
	if len(f.store.comments) != 1 || len(f.store.changes) != 1 {
		t.Errorf("comments = %d, changes = %d", len(f.store.comments), len(f.store.changes))
	}
	if !slices.Equal(f.indexer.keys, []string{"a"}) || len(f.pub.events) != 1 {
		t.Errorf("indexed = %v, events = %d", f.indexer.keys, len(f.pub.events))
	}
}

func TestDoTransition_Errors(t *testing.T) {
	external := issue("ext", "p1")
	external.ExternalRule = true
	tests := []struct {
		name   string
		key    string
		event  workflow.Event
		caller *model.Caller
		check  func(error) bool
	}{
		{"anonymous", "a", workflow.EventConfirm, model.Anonymous(), func(err error) bool {
			var e *model.UnauthenticatedError
			return errors.As(err, &e)
		}},
		{"missing", "nope", workflow.EventConfirm, reader, func(err error) bool {
			var e *model.NotFoundError
			return errors.As(err, &e)
		}},
		{"not outgoing", "a", workflow.EventReopen, reader, func(err error) bool {
			var e *model.ValidationError
			return errors.As(err, &e) && e.HasField("transition")
		}},
		{"admin only", "a", workflow.EventFalsePositive, reader, func(err error) bool {
			var e *model.PermissionError
			return errors.As(err, &e) && e.Permission == model.PermissionIssueAdmin
		}},
		{"external rule", "ext", workflow.EventConfirm, admin, func(err error) bool {
			var e *model.ValidationError
			return errors.As(err, &e)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil, issue("a", "p1"), external)
			_, err := f.orch.DoTransition(context.Background(), tt.key, tt.event, "", tt.caller)
			if !tt.check(err) {
				t.Fatalf("err = %v", err)
			}
			if len(f.store.updated) != 0 {
				t.Error("issue persisted after failed transition")
			}
			if f.store.issues["a"].Status != model.StatusOpen {
				t.Error("stored issue mutated")
			}
		})
	}
}

func TestListTransitions(t *testing.T) {
	external := issue("ext", "p1")
	external.ExternalRule = true
	f := newFixture(nil, issue("a", "p1"), external)
	ctx := context.Background()

	got, err := f.orch.ListTransitions(ctx, "a", reader)
	if err != nil {
		t.Fatalf("ListTransitions: %v", err)
	}
	if events := workflow.Events(got); !slices.Equal(events, []workflow.Event{workflow.EventConfirm, workflow.EventResolve}) {
		t.Errorf("reader transitions = %v", events)
	}

	got, err = f.orch.ListTransitions(ctx, "ext", admin)
	if err != nil {
		t.Fatalf("ListTransitions: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("external rule transitions = %v", got)
	}

	if _, err := f.orch.ListTransitions(ctx, "a", &model.Caller{UUID: "u-x"}); err == nil {
		t.Error("expected permission error for caller without browse")
	}
}
