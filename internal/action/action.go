// Package action implements the changes a bulk change can apply to
// issues. Each action key has a Verifier that checks the raw parameters
// once for the whole batch and returns an immutable Action, which is then
// executed against each issue independently.
package action

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/workflow"
)

// Action keys.
const (
	KeyAssign      = "assign"
	KeyPlan        = "plan"
	KeySetSeverity = "set_severity"
	KeySetType     = "set_type"
	KeyTransition  = "do_transition"
	KeyAddTags     = "add_tags"
	KeyRemoveTags  = "remove_tags"
	KeyComment     = "comment"
)

// Params are the raw parameters of one action, as sent by clients.
type Params map[string]string

// required returns the trimmed value of name, or a validation error naming
// the parameter.
func (p Params) required(name string) (string, error) {
	v, ok := p[name]
	if !ok || strings.TrimSpace(v) == "" {
		return "", model.Invalid(name, "missing parameter: '%s'", name)
	}
	return strings.TrimSpace(v), nil
}

// Context is the state one issue goes through during a bulk change. Issue
// is a private copy; actions mutate it and record their changes in Diffs.
type Context struct {
	Issue    *model.Issue
	Change   model.ChangeContext
	Diffs    model.FieldDiffs
	Comments []string
}

// NewContext returns a Context over a copy of issue.
func NewContext(issue *model.Issue, change model.ChangeContext) *Context {
	return &Context{
		Issue:  issue.Clone(),
		Change: change,
		Diffs:  model.FieldDiffs{},
	}
}

// Action is a verified change. The set of implementations is closed.
type Action interface {
	Key() string
	// Supports reports whether the action applies to issue.
	Supports(issue *model.Issue) bool
	// Execute applies the action to c.Issue. It returns false when the
	// issue is left unchanged.
	Execute(c *Context) (bool, error)

	sealed()
}

// Verifier validates the parameters of one action key against the whole
// batch of issues and the caller.
type Verifier interface {
	Key() string
	Verify(ctx context.Context, params Params, issues []*model.Issue, caller *model.Caller) (Action, error)
}

// Lookup resolves the entities actions refer to. Missing entities are
// reported as *model.NotFoundError.
type Lookup interface {
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetActionPlan(ctx context.Context, key string) (*model.ActionPlan, error)
}

// Registry maps action keys to their verifiers.
type Registry struct {
	verifiers map[string]Verifier
	keys      []string
}

// NewRegistry registers vs. It panics on an empty or duplicate key.
func NewRegistry(vs ...Verifier) *Registry {
	r := &Registry{verifiers: make(map[string]Verifier, len(vs))}
	for _, v := range vs {
		key := v.Key()
		if key == "" {
			panic("action: empty action key")
		}
		if _, dup := r.verifiers[key]; dup {
			panic(fmt.Sprintf("action: duplicate action key %q", key))
		}
		r.verifiers[key] = v
		r.keys = append(r.keys, key)
	}
	return r
}

// DefaultRegistry returns the registry of all built-in actions.
func DefaultRegistry(lookup Lookup, wf *workflow.Workflow) *Registry {
	return NewRegistry(
		AssignVerifier{Lookup: lookup},
		PlanVerifier{Lookup: lookup},
		SetSeverityVerifier{},
		SetTypeVerifier{},
		TransitionVerifier{Workflow: wf},
		TagsVerifier{Remove: false},
		TagsVerifier{Remove: true},
		CommentVerifier{},
	)
}

// Get returns the verifier registered under key.
func (r *Registry) Get(key string) (Verifier, bool) {
	v, ok := r.verifiers[key]
	return v, ok
}

// Keys returns the registered keys in registration order.
func (r *Registry) Keys() []string {
	return slices.Clone(r.keys)
}

// administered returns the projects of issues on which caller holds the
// issueadmin permission.
func administered(issues []*model.Issue, caller *model.Caller) map[string]bool {
	out := make(map[string]bool)
	for _, i := range issues {
		if _, done := out[i.ProjectUUID]; done {
			continue
		}
		out[i.ProjectUUID] = caller.HasProjectPermission(model.PermissionIssueAdmin, i.ProjectUUID)
	}
	return out
}

// requireAdmin fails unless caller administers at least one project of
// issues.
func requireAdmin(projects map[string]bool) error {
	var first string
	for p, ok := range projects {
		if ok {
			return nil
		}
		if first == "" || p < first {
			first = p
		}
	}
	if first == "" {
		return nil
	}
	return &model.PermissionError{Permission: model.PermissionIssueAdmin, ProjectUUID: first}
}
