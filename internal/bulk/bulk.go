// Package bulk applies actions to batches of issues. Each issue is changed
// on its own copy; a failure on one issue leaves it unchanged without
// affecting the others. Changed issues are persisted in one transaction
// together with their re-index request, then re-indexed and announced.
package bulk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/alfredjeanlab/tracker/internal/action"
	"github.com/alfredjeanlab/tracker/internal/events"
	"github.com/alfredjeanlab/tracker/internal/idgen"
	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/store"
	"github.com/alfredjeanlab/tracker/internal/workflow"
)

// MaxIssues is the largest batch a bulk change accepts.
const MaxIssues = 500

// ActionRequest names one action and its raw parameters.
type ActionRequest struct {
	Key    string        `json:"key"`
	Params action.Params `json:"params,omitempty"`
}

// Query is a bulk change request. Actions run in order on each issue.
type Query struct {
	IssueKeys         []string        `json:"issues"`
	Actions           []ActionRequest `json:"actions"`
	Comment           string          `json:"comment,omitempty"`
	SendNotifications bool            `json:"send_notifications,omitempty"`
}

// Result lists the issue keys that were and were not changed. The two
// lists never overlap.
type Result struct {
	Changed    []string `json:"issues_changed"`
	NotChanged []string `json:"issues_not_changed"`
}

// Outcome is what happened to one issue of a batch.
type Outcome struct {
	Key     string
	Changed bool
	Err     error
	// Context holds the changed copy of the issue; nil unless Changed.
	Context *action.Context
}

// Reindexer refreshes index documents after a change.
type Reindexer interface {
	Index(ctx context.Context, keys []string) error
}

// Orchestrator runs bulk changes.
type Orchestrator struct {
	store     store.Store
	registry  *action.Registry
	workflow  *workflow.Workflow
	indexer   Reindexer
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// New returns an orchestrator. A nil publisher disables notifications.
func New(s store.Store, registry *action.Registry, wf *workflow.Workflow, ix Reindexer, pub events.Publisher, logger *slog.Logger) *Orchestrator {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	return &Orchestrator{
		store:     s,
		registry:  registry,
		workflow:  wf,
		indexer:   ix,
		publisher: pub,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// validate checks the request before anything is loaded.
func (o *Orchestrator) validate(q *Query) error {
	if len(q.IssueKeys) > MaxIssues {
		return model.Invalid("issues", "number of issues is limited to %d, got %d", MaxIssues, len(q.IssueKeys))
	}
	verr := &model.ValidationError{}
	if len(q.IssueKeys) == 0 {
		verr.Add("issues", "at least one issue must be provided")
	}
	applied := 0
	for _, a := range q.Actions {
		if _, ok := o.registry.Get(a.Key); !ok {
			verr.Add("actions", "unknown action: '%s'", a.Key)
			continue
		}
		if a.Key != action.KeyComment {
			applied++
		}
	}
	if applied == 0 {
		verr.Add("actions", "at least one action must be provided")
	}
	return verr.Err()
}

// Execute runs q on behalf of caller.
func (o *Orchestrator) Execute(ctx context.Context, q Query, caller *model.Caller) (*Result, error) {
	if !caller.IsLoggedIn() {
		return nil, &model.UnauthenticatedError{}
	}
	if err := o.validate(&q); err != nil {
		return nil, err
	}

	keys := dedupe(q.IssueKeys)
	loaded, err := o.store.GetIssues(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("loading issues: %w", err)
	}
	issues := make([]*model.Issue, 0, len(loaded))
	for _, i := range loaded {
		if caller.HasProjectPermission(model.PermissionBrowse, i.ProjectUUID) {
			issues = append(issues, i)
		}
	}

	var applied, comments []action.Action
	for _, req := range q.Actions {
		v, _ := o.registry.Get(req.Key)
		a, err := v.Verify(ctx, req.Params, issues, caller)
		if err != nil {
			return nil, err
		}
		if a.Key() == action.KeyComment {
			comments = append(comments, a)
		} else {
			applied = append(applied, a)
		}
	}
	if text := strings.TrimSpace(q.Comment); text != "" {
		comments = append(comments, action.Comment{Text: text})
	}

	change := model.ChangeContext{Date: o.now(), UserUUID: caller.UUID}
	outcomes := make([]Outcome, 0, len(issues))
	for _, i := range issues {
		out := apply(i, applied, comments, change)
		if out.Err != nil {
			o.logger.Warn("bulk change failed on issue", "issue", out.Key, "error", out.Err)
		}
		outcomes = append(outcomes, out)
	}

	var changed []*action.Context
	for _, out := range outcomes {
		if out.Changed {
			changed = append(changed, out.Context)
		}
	}
	if err := o.persist(ctx, changed); err != nil {
		return nil, err
	}

	res := &Result{Changed: []string{}, NotChanged: []string{}}
	done := make(map[string]bool, len(changed))
	for _, c := range changed {
		done[c.Issue.Key] = true
		res.Changed = append(res.Changed, c.Issue.Key)
	}
	for _, k := range keys {
		if !done[k] {
			res.NotChanged = append(res.NotChanged, k)
		}
	}
	if len(changed) == 0 {
		return res, nil
	}

	if err := o.indexer.Index(ctx, res.Changed); err != nil {
		o.logger.Warn("re-index after bulk change failed; left to recovery", "issues", len(res.Changed), "error", err)
	}
	if q.SendNotifications {
		for _, c := range changed {
			o.notify(ctx, c, caller)
		}
	}
	o.logger.Info("bulk change", "user", caller.Login, "changed", len(res.Changed), "not_changed", len(res.NotChanged))
	return res, nil
}

// apply runs the actions on a copy of issue. Comment actions run only when
// another action changed the issue.
func apply(issue *model.Issue, applied, comments []action.Action, change model.ChangeContext) (out Outcome) {
	out.Key = issue.Key
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Key: issue.Key, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	c := action.NewContext(issue, change)
	changed := false
	for _, a := range applied {
		if !a.Supports(c.Issue) {
			continue
		}
		ok, err := a.Execute(c)
		if err != nil {
			return Outcome{Key: issue.Key, Err: fmt.Errorf("%s: %w", a.Key(), err)}
		}
		changed = changed || ok
	}
	if !changed {
		return out
	}
	for _, a := range comments {
		if _, err := a.Execute(c); err != nil {
			return Outcome{Key: issue.Key, Err: fmt.Errorf("%s: %w", a.Key(), err)}
		}
	}
	c.Issue.UpdatedAt = change.Date
	return Outcome{Key: issue.Key, Changed: true, Context: c}
}

// persist writes the changed issues, their change log entries, comments and
// re-index requests in one transaction.
func (o *Orchestrator) persist(ctx context.Context, changed []*action.Context) error {
	if len(changed) == 0 {
		return nil
	}
	return o.store.RunInTransaction(ctx, func(tx store.Store) error {
		keys := make([]string, 0, len(changed))
		for _, c := range changed {
			if err := saveIssue(ctx, tx, c); err != nil {
				return err
			}
			keys = append(keys, c.Issue.Key)
		}
		if err := tx.EnqueueReindex(ctx, keys); err != nil {
			return fmt.Errorf("enqueueing re-index: %w", err)
		}
		return nil
	})
}

func saveIssue(ctx context.Context, tx store.Store, c *action.Context) error {
	if err := tx.UpdateIssue(ctx, c.Issue); err != nil {
		return fmt.Errorf("updating issue %s: %w", c.Issue.Key, err)
	}
	if len(c.Diffs) > 0 {
		key, err := idgen.ChangeKey()
		if err != nil {
			return err
		}
		if err := tx.InsertChange(ctx, &model.IssueChange{
			Key:       key,
			IssueKey:  c.Issue.Key,
			UserUUID:  c.Change.UserUUID,
			Diffs:     c.Diffs,
			CreatedAt: c.Change.Date,
		}); err != nil {
			return fmt.Errorf("inserting change of %s: %w", c.Issue.Key, err)
		}
	}
	for _, text := range c.Comments {
		key, err := idgen.CommentKey()
		if err != nil {
			return err
		}
		if err := tx.InsertComment(ctx, &model.Comment{
			Key:       key,
			IssueKey:  c.Issue.Key,
			UserUUID:  c.Change.UserUUID,
			Text:      text,
			CreatedAt: c.Change.Date,
		}); err != nil {
			return fmt.Errorf("inserting comment on %s: %w", c.Issue.Key, err)
		}
	}
	return nil
}

// notify records and publishes the change of one issue. Failures are
// logged only.
func (o *Orchestrator) notify(ctx context.Context, c *action.Context, caller *model.Caller) {
	event := events.NewIssueChanged(c.Issue, caller.Login, c.Diffs, strings.Join(c.Comments, "\n"), c.Change.Date)
	payload, err := json.Marshal(event)
	if err != nil {
		o.logger.Warn("failed to marshal event", "topic", events.TopicIssueChanged, "issue", c.Issue.Key, "error", err)
		return
	}
	if err := o.store.RecordEvent(ctx, &model.Event{
		Topic:    events.TopicIssueChanged,
		IssueKey: c.Issue.Key,
		Actor:    caller.Login,
		Payload:  payload,
	}); err != nil {
		o.logger.Warn("failed to record event", "topic", events.TopicIssueChanged, "issue", c.Issue.Key, "error", err)
	}
	if err := o.publisher.Publish(ctx, events.TopicIssueChanged, event); err != nil {
		o.logger.Warn("failed to publish event", "topic", events.TopicIssueChanged, "issue", c.Issue.Key, "error", err)
	}
}

func dedupe(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}
