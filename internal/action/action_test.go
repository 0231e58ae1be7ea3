package action

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/workflow"
)

type fakeLookup struct {
	users map[string]*model.User
	plans map[string]*model.ActionPlan
}

func (f *fakeLookup) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	if u, ok := f.users[login]; ok {
		return u, nil
	}
	return nil, &model.NotFoundError{Kind: "user", Key: login}
}

func (f *fakeLookup) GetActionPlan(_ context.Context, key string) (*model.ActionPlan, error) {
	if p, ok := f.plans[key]; ok {
		return p, nil
	}
	return nil, &model.NotFoundError{Kind: "action plan", Key: key}
}

func newLookup() *fakeLookup {
	return &fakeLookup{
		users: map[string]*model.User{
			"alice": {UUID: "u-alice", Login: "alice", Active: true},
			"gone":  {UUID: "u-gone", Login: "gone", Active: false},
		},
		plans: map[string]*model.ActionPlan{
			"sprint-1": {Key: "sprint-1", Name: "Sprint 1", ProjectUUID: "p1"},
		},
	}
}

var (
	admin = &model.Caller{UUID: "u-admin", Login: "admin", Permissions: map[string][]model.Permission{
		"p1": {model.PermissionBrowse, model.PermissionIssueAdmin},
		"p2": {model.PermissionBrowse},
	}}
	reader = &model.Caller{UUID: "u-reader", Login: "reader", Permissions: map[string][]model.Permission{
		"p1": {model.PermissionBrowse},
	}}
)

func issue(key, project string) *model.Issue {
	return &model.Issue{
		Key:         key,
		ProjectUUID: project,
		Severity:    model.SeverityMajor,
		Status:      model.StatusOpen,
		Type:        model.TypeBug,
	}
}

func newContext(i *model.Issue) *Context {
	return NewContext(i, model.ChangeContext{Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), UserUUID: "u-admin"})
}

func verify(t *testing.T, v Verifier, params Params, issues []*model.Issue, caller *model.Caller) Action {
	t.Helper()
	a, err := v.Verify(context.Background(), params, issues, caller)
	if err != nil {
		t.Fatalf("Verify(%v): %v", params, err)
	}
	return a
}

func wantField(t *testing.T, err error, field string) {
	t.Helper()
	var ve *model.ValidationError
	if !errors.As(err, &ve) || !ve.HasField(field) {
		t.Fatalf("expected validation error on %q, got %v", field, err)
	}
}

func TestNewRegistry_PanicsOnBadKeys(t *testing.T) {
	tests := []struct {
		name string
		vs   []Verifier
	}{
		{"duplicate", []Verifier{CommentVerifier{}, CommentVerifier{}}},
		{"empty", []Verifier{emptyKey{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			NewRegistry(tt.vs...)
		})
	}
}

type emptyKey struct{ CommentVerifier }

func (emptyKey) Key() string { return "" }

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(newLookup(), workflow.Default)
	want := []string{KeyAssign, KeyPlan, KeySetSeverity, KeySetType, KeyTransition, KeyAddTags, KeyRemoveTags, KeyComment}
	if got := r.Keys(); !slices.Equal(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	if _, ok := r.Get("delete"); ok {
		t.Error("unexpected verifier for delete")
	}
}

func TestAssign(t *testing.T) {
	v := AssignVerifier{Lookup: newLookup()}

	_, err := v.Verify(context.Background(), Params{}, nil, admin)
	wantField(t, err, "assignee")

	_, err = v.Verify(context.Background(), Params{"assignee": "bob"}, nil, admin)
	var nf *model.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "user" {
		t.Fatalf("expected user not found, got %v", err)
	}
	if _, err = v.Verify(context.Background(), Params{"assignee": "gone"}, nil, admin); !errors.As(err, &nf) {
		t.Fatalf("inactive user: expected not found, got %v", err)
	}

	a := verify(t, v, Params{"assignee": "alice"}, nil, admin)
	orig := issue("i1", "p1")
	c := newContext(orig)
	if changed, err := a.Execute(c); err != nil || !changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	if c.Issue.Assignee != "u-alice" || orig.Assignee != "" {
		t.Fatalf("context issue %q, original %q", c.Issue.Assignee, orig.Assignee)
	}
	if d := c.Diffs["assignee"]; d.New != "u-alice" {
		t.Errorf("diff = %+v", d)
	}
	if changed, _ := a.Execute(c); changed {
		t.Error("assigning the same user again is a no-op")
	}

	resolved := issue("i2", "p1")
	resolved.Status, resolved.Resolution = model.StatusResolved, model.ResolutionFixed
	if a.Supports(resolved) {
		t.Error("resolved issues cannot be assigned")
	}

	unassign := verify(t, v, Params{"assignee": ""}, nil, admin)
	if changed, _ := unassign.Execute(c); !changed || c.Issue.Assignee != "" {
		t.Errorf("unassign: assignee %q", c.Issue.Assignee)
	}
}

func TestPlan(t *testing.T) {
	v := PlanVerifier{Lookup: newLookup()}

	_, err := v.Verify(context.Background(), Params{"plan": "sprint-1"}, []*model.Issue{issue("i1", "p1"), issue("i2", "p2")}, admin)
	wantField(t, err, "plan")

	_, err = v.Verify(context.Background(), Params{"plan": "nope"}, nil, admin)
	var nf *model.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "action plan" {
		t.Fatalf("expected action plan not found, got %v", err)
	}

	a := verify(t, v, Params{"plan": "sprint-1"}, []*model.Issue{issue("i1", "p1")}, admin)
	c := newContext(issue("i1", "p1"))
	if changed, _ := a.Execute(c); !changed || c.Issue.ActionPlan != "sprint-1" {
		t.Fatalf("plan = %q", c.Issue.ActionPlan)
	}
}

func TestSetSeverity_ManualOverrideIsSticky(t *testing.T) {
	v := SetSeverityVerifier{}
	issues := []*model.Issue{issue("i1", "p1")}
	issues[0].ManualSeverity = true

	auto := verify(t, v, Params{"severity": "BLOCKER", "manual": "false"}, issues, admin)
	c := newContext(issues[0])
	if changed, err := auto.Execute(c); err != nil || changed {
		t.Fatalf("non-manual change: changed=%v err=%v", changed, err)
	}
	if c.Issue.Severity != model.SeverityMajor {
		t.Fatalf("severity = %s", c.Issue.Severity)
	}

	manual := verify(t, v, Params{"severity": "blocker"}, issues, admin)
	if changed, err := manual.Execute(c); err != nil || !changed {
		t.Fatalf("manual change: changed=%v err=%v", changed, err)
	}
	if c.Issue.Severity != model.SeverityBlocker || !c.Issue.ManualSeverity {
		t.Fatalf("issue = %s manual=%v", c.Issue.Severity, c.Issue.ManualSeverity)
	}
	if d := c.Diffs["severity"]; d.Old != "MAJOR" || d.New != "BLOCKER" {
		t.Errorf("diff = %+v", d)
	}
}

func TestSetSeverity_NonManualOnPlainIssue(t *testing.T) {
	i := issue("i1", "p1")
	a := verify(t, SetSeverityVerifier{}, Params{"severity": "MINOR", "manual": "false"}, []*model.Issue{i}, admin)
	c := newContext(i)
	if changed, _ := a.Execute(c); !changed || c.Issue.Severity != model.SeverityMinor || c.Issue.ManualSeverity {
		t.Fatalf("issue = %s manual=%v", c.Issue.Severity, c.Issue.ManualSeverity)
	}
}

func TestSetSeverity_Verify(t *testing.T) {
	v := SetSeverityVerifier{}
	_, err := v.Verify(context.Background(), Params{}, nil, admin)
	wantField(t, err, "severity")
	_, err = v.Verify(context.Background(), Params{"severity": "HUGE"}, nil, admin)
	wantField(t, err, "severity")
	_, err = v.Verify(context.Background(), Params{"severity": "MAJOR", "manual": "maybe"}, nil, admin)
	wantField(t, err, "manual")

	_, err = v.Verify(context.Background(), Params{"severity": "MAJOR"}, []*model.Issue{issue("i1", "p1")}, reader)
	var pe *model.PermissionError
	if !errors.As(err, &pe) || pe.Permission != model.PermissionIssueAdmin {
		t.Fatalf("expected permission error, got %v", err)
	}

	a := verify(t, v, Params{"severity": "MAJOR"}, []*model.Issue{issue("i1", "p1"), issue("i2", "p2")}, admin)
	if !a.Supports(issue("i1", "p1")) || a.Supports(issue("i2", "p2")) {
		t.Error("severity changes apply only to administered projects")
	}
}

func TestSetType(t *testing.T) {
	v := SetTypeVerifier{}
	_, err := v.Verify(context.Background(), Params{"type": "SECURITY_HOTSPOT"}, nil, admin)
	wantField(t, err, "type")

	a := verify(t, v, Params{"type": "vulnerability"}, []*model.Issue{issue("i1", "p1")}, admin)
	hs := issue("hs", "p1")
	hs.Type = model.TypeSecurityHotspot
	if a.Supports(hs) {
		t.Error("hotspots keep their type")
	}
	c := newContext(issue("i1", "p1"))
	if changed, _ := a.Execute(c); !changed || c.Issue.Type != model.TypeVulnerability {
		t.Fatalf("type = %s", c.Issue.Type)
	}
}

func TestTransition(t *testing.T) {
	v := TransitionVerifier{Workflow: workflow.Default}
	_, err := v.Verify(context.Background(), Params{"transition": "close"}, nil, admin)
	wantField(t, err, "transition")

	wontfix := verify(t, v, Params{"transition": "wontfix"}, nil, reader)
	if wontfix.Supports(issue("i1", "p1")) {
		t.Error("wontfix requires issueadmin")
	}

	resolve := verify(t, v, Params{"transition": "resolve"}, nil, admin)
	i := issue("i1", "p1")
	if !resolve.Supports(i) {
		t.Fatal("resolve should be supported on open issues")
	}
	c := newContext(i)
	if changed, err := resolve.Execute(c); err != nil || !changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}
	if c.Issue.Status != model.StatusResolved || c.Issue.Resolution != model.ResolutionFixed {
		t.Fatalf("issue = %s/%s", c.Issue.Status, c.Issue.Resolution)
	}
	// Already resolved: nothing left to do.
	if changed, err := resolve.Execute(c); err != nil || changed {
		t.Fatalf("second resolve: changed=%v err=%v", changed, err)
	}
}

func TestTags(t *testing.T) {
	add := verify(t, TagsVerifier{}, Params{"tags": "Security, perf,security"}, nil, admin)
	if got := add.(AddTags).Tags; !slices.Equal(got, []string{"security", "perf"}) {
		t.Fatalf("tags = %v", got)
	}
	i := issue("i1", "p1")
	i.Tags = []string{"perf"}
	c := newContext(i)
	if changed, _ := add.Execute(c); !changed || !slices.Equal(c.Issue.Tags, []string{"perf", "security"}) {
		t.Fatalf("tags = %v", c.Issue.Tags)
	}
	if changed, _ := add.Execute(c); changed {
		t.Error("adding present tags is a no-op")
	}

	rm := verify(t, TagsVerifier{Remove: true}, Params{"tags": "perf,security"}, nil, admin)
	if changed, _ := rm.Execute(c); !changed || c.Issue.Tags != nil {
		t.Fatalf("tags = %v", c.Issue.Tags)
	}
	if d := c.Diffs["tags"]; d.Old != "perf" || d.New != "" {
		t.Errorf("diff = %+v", d)
	}

	_, err := TagsVerifier{}.Verify(context.Background(), Params{"tags": "Bad Tag"}, nil, admin)
	wantField(t, err, "tags")
	_, err = TagsVerifier{}.Verify(context.Background(), Params{"tags": " , "}, nil, admin)
	wantField(t, err, "tags")
}

func TestComment(t *testing.T) {
	_, err := CommentVerifier{}.Verify(context.Background(), Params{"comment": "  "}, nil, admin)
	wantField(t, err, "comment")

	a := verify(t, CommentVerifier{}, Params{"comment": "triaged"}, nil, admin)
	c := newContext(issue("i1", "p1"))
	if _, err := a.Execute(c); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(c.Comments, []string{"triaged"}) || len(c.Diffs) != 0 {
		t.Fatalf("comments=%v diffs=%v", c.Comments, c.Diffs)
	}
}
