package bulk

import (
	"context"
	"strings"

	"github.com/alfredjeanlab/tracker/internal/action"
	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/workflow"
)

// browsable loads an issue the caller may browse.
func (o *Orchestrator) browsable(ctx context.Context, key string, caller *model.Caller) (*model.Issue, error) {
	issue, err := o.store.GetIssue(ctx, key)
	if err != nil {
		return nil, err
	}
	if !caller.HasProjectPermission(model.PermissionBrowse, issue.ProjectUUID) {
		return nil, &model.PermissionError{Permission: model.PermissionBrowse, ProjectUUID: issue.ProjectUUID}
	}
	return issue, nil
}

// ListTransitions returns the transitions caller may run on an issue.
func (o *Orchestrator) ListTransitions(ctx context.Context, key string, caller *model.Caller) ([]workflow.Transition, error) {
	issue, err := o.browsable(ctx, key, caller)
	if err != nil {
		return nil, err
	}
	return o.workflow.ListTransitions(issue, caller), nil
}

// DoTransition runs event on a single issue, persists it with an optional
// comment, re-indexes it and publishes the change. It returns the updated
// issue.
func (o *Orchestrator) DoTransition(ctx context.Context, key string, event workflow.Event, comment string, caller *model.Caller) (*model.Issue, error) {
	if !caller.IsLoggedIn() {
		return nil, &model.UnauthenticatedError{}
	}
	issue, err := o.browsable(ctx, key, caller)
	if err != nil {
		return nil, err
	}
	if t, ok := o.workflow.Outgoing(issue.Status, event); ok && !issue.ExternalRule && !workflow.Allowed(t, issue, caller) {
		return nil, &model.PermissionError{Permission: t.Permission, ProjectUUID: issue.ProjectUUID}
	}

	c := action.NewContext(issue, model.ChangeContext{Date: o.now(), UserUUID: caller.UUID})
	if _, err := o.workflow.DoTransition(c.Issue, event, c.Change, c.Diffs); err != nil {
		return nil, err
	}
	if text := strings.TrimSpace(comment); text != "" {
		c.Comments = append(c.Comments, text)
	}
	if err := o.persist(ctx, []*action.Context{c}); err != nil {
		return nil, err
	}
	if err := o.indexer.Index(ctx, []string{key}); err != nil {
		o.logger.Warn("re-index after transition failed; left to recovery", "issue", key, "error", err)
	}
	o.notify(ctx, c, caller)
	return c.Issue, nil
}
