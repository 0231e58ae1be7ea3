package action

import (
	"context"
	"slices"

	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/workflow"
)

// Transition runs a workflow event on the issues where the caller may run
// it.
type Transition struct {
	Event    workflow.Event
	workflow *workflow.Workflow
	caller   *model.Caller
}

func (Transition) Key() string { return KeyTransition }
func (Transition) sealed()     {}

func (t Transition) Supports(issue *model.Issue) bool {
	return slices.Contains(workflow.Events(t.workflow.ListTransitions(issue, t.caller)), t.Event)
}

// Execute is a no-op when the event is not available from the issue's
// current status, which happens when an earlier action of the same batch
// moved it.
func (t Transition) Execute(c *Context) (bool, error) {
	tr, ok := t.workflow.Outgoing(c.Issue.Status, t.Event)
	if !ok || !workflow.Allowed(tr, c.Issue, t.caller) {
		return false, nil
	}
	return t.workflow.DoTransition(c.Issue, t.Event, c.Change, c.Diffs)
}

// TransitionVerifier reads "transition", which must name an event of the
// workflow.
type TransitionVerifier struct {
	Workflow *workflow.Workflow
}

func (TransitionVerifier) Key() string { return KeyTransition }

func (v TransitionVerifier) Verify(_ context.Context, params Params, _ []*model.Issue, caller *model.Caller) (Action, error) {
	raw, err := params.required("transition")
	if err != nil {
		return nil, err
	}
	wf := v.Workflow
	if wf == nil {
		wf = workflow.Default
	}
	event := workflow.Event(raw)
	if !slices.Contains(wf.AllEvents(), event) {
		return nil, model.Invalid("transition", "unknown transition %q", raw)
	}
	return Transition{Event: event, workflow: wf, caller: caller}, nil
}
