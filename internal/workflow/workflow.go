// Package workflow holds the issue status machine: a static table of
// transitions checked for determinism when loaded.
package workflow

import (
	"fmt"
	"slices"
	"strings"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// Event names a manual transition.
type Event string

const (
	EventConfirm       Event = "confirm"
	EventUnconfirm     Event = "unconfirm"
	EventReopen        Event = "reopen"
	EventResolve       Event = "resolve"
	EventFalsePositive Event = "falsepositive"
	EventWontFix       Event = "wontfix"
)

func (e Event) String() string { return string(e) }

// Transition is one edge of the status machine. An empty Permission means
// any logged-in user may run it.
type Transition struct {
	From       model.Status
	Event      Event
	To         model.Status
	Resolution model.Resolution
	Permission model.Permission
}

// Transitions is the default issue workflow.
var Transitions = []Transition{
	{From: model.StatusOpen, Event: EventConfirm, To: model.StatusConfirmed},
	{From: model.StatusOpen, Event: EventFalsePositive, To: model.StatusResolved, Resolution: model.ResolutionFalsePositive, Permission: model.PermissionIssueAdmin},
	{From: model.StatusOpen, Event: EventResolve, To: model.StatusResolved, Resolution: model.ResolutionFixed},
	{From: model.StatusOpen, Event: EventWontFix, To: model.StatusResolved, Resolution: model.ResolutionWontFix, Permission: model.PermissionIssueAdmin},

	{From: model.StatusConfirmed, Event: EventUnconfirm, To: model.StatusReopened},
	{From: model.StatusConfirmed, Event: EventFalsePositive, To: model.StatusResolved, Resolution: model.ResolutionFalsePositive, Permission: model.PermissionIssueAdmin},
	{From: model.StatusConfirmed, Event: EventResolve, To: model.StatusResolved, Resolution: model.ResolutionFixed},
	{From: model.StatusConfirmed, Event: EventWontFix, To: model.StatusResolved, Resolution: model.ResolutionWontFix, Permission: model.PermissionIssueAdmin},

	{From: model.StatusReopened, Event: EventConfirm, To: model.StatusConfirmed},
	{From: model.StatusReopened, Event: EventResolve, To: model.StatusResolved, Resolution: model.ResolutionFixed},
	{From: model.StatusReopened, Event: EventFalsePositive, To: model.StatusResolved, Resolution: model.ResolutionFalsePositive, Permission: model.PermissionIssueAdmin},
	{From: model.StatusReopened, Event: EventWontFix, To: model.StatusResolved, Resolution: model.ResolutionWontFix, Permission: model.PermissionIssueAdmin},

	{From: model.StatusResolved, Event: EventReopen, To: model.StatusReopened},
}

// Workflow answers which transitions apply to an issue and runs them.
type Workflow struct {
	transitions []Transition
	byFrom      map[model.Status][]Transition
}

// New builds a Workflow from a transition table after validating it.
func New(transitions []Transition) (*Workflow, error) {
	if err := Validate(transitions); err != nil {
		return nil, err
	}
	w := &Workflow{
		transitions: slices.Clone(transitions),
		byFrom:      make(map[model.Status][]Transition),
	}
	for _, t := range w.transitions {
		w.byFrom[t.From] = append(w.byFrom[t.From], t)
	}
	return w, nil
}

// Default is the workflow built from Transitions.
var Default = mustNew(Transitions)

func mustNew(transitions []Transition) *Workflow {
	w, err := New(transitions)
	if err != nil {
		panic(err)
	}
	return w
}

// Validate checks a transition table: statuses and resolutions must be
// known, events non-empty, and no two transitions may share the same
// (from, event) pair.
func Validate(transitions []Transition) error {
	var problems []string
	seen := make(map[string]bool, len(transitions))
	for i, t := range transitions {
		if !t.From.IsValid() || !t.To.IsValid() {
			problems = append(problems, fmt.Sprintf("transition %d: unknown status %s -> %s", i, t.From, t.To))
		}
		if t.Event == "" {
			problems = append(problems, fmt.Sprintf("transition %d: empty event", i))
		}
		if !t.Resolution.IsValid() {
			problems = append(problems, fmt.Sprintf("transition %d: unknown resolution %q", i, t.Resolution))
		}
		key := string(t.From) + "/" + string(t.Event)
		if seen[key] {
			problems = append(problems, fmt.Sprintf("transition %d: duplicate event %s from %s", i, t.Event, t.From))
		}
		seen[key] = true
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid workflow: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Outgoing returns the transition triggered by event from status.
func (w *Workflow) Outgoing(from model.Status, event Event) (Transition, bool) {
	for _, t := range w.byFrom[from] {
		if t.Event == event {
			return t, true
		}
	}
	return Transition{}, false
}

// Allowed reports whether caller may run t on issue.
func Allowed(t Transition, issue *model.Issue, caller *model.Caller) bool {
	if !caller.IsLoggedIn() {
		return false
	}
	return t.Permission == "" || caller.HasProjectPermission(t.Permission, issue.ProjectUUID)
}

// ListTransitions returns the transitions available on issue to caller, in
// table order. Issues raised by external rules have none.
func (w *Workflow) ListTransitions(issue *model.Issue, caller *model.Caller) []Transition {
	if issue.ExternalRule {
		return nil
	}
	var out []Transition
	for _, t := range w.byFrom[issue.Status] {
		if Allowed(t, issue, caller) {
			out = append(out, t)
		}
	}
	return out
}

// DoTransition runs event on issue, recording status and resolution
// changes in diffs. It fails without touching the issue when the event is
// not an outgoing transition of the current status or the issue comes
// from an external rule. Permissions are the caller's concern.
func (w *Workflow) DoTransition(issue *model.Issue, event Event, change model.ChangeContext, diffs model.FieldDiffs) (bool, error) {
	if issue.ExternalRule {
		return false, model.Invalid("transition", "issue %s is raised by an external rule and has no workflow", issue.Key)
	}
	t, ok := w.Outgoing(issue.Status, event)
	if !ok {
		return false, model.Invalid("transition", "transition %q is not available from status %s", event, issue.Status)
	}

	diffs.Set("status", string(issue.Status), string(t.To))
	diffs.Set("resolution", string(issue.Resolution), string(t.Resolution))
	issue.Status = t.To
	issue.Resolution = t.Resolution
	issue.UpdatedAt = change.Date

	if t.To == model.StatusClosed && issue.ClosedAt == nil {
		closed := change.Date
		issue.ClosedAt = &closed
	}
	if t.To != model.StatusClosed && issue.ClosedAt != nil {
		issue.ClosedAt = nil
	}
	return true, nil
}

// AllEvents returns the distinct events of the workflow in table order.
func (w *Workflow) AllEvents() []Event {
	var out []Event
	for _, t := range w.transitions {
		if !slices.Contains(out, t.Event) {
			out = append(out, t.Event)
		}
	}
	return out
}

// Events returns the events of ts.
func Events(ts []Transition) []Event {
	out := make([]Event, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Event)
	}
	return out
}
