package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// Assign sets or clears the assignee of unresolved issues.
type Assign struct {
	// UserUUID is empty to unassign.
	UserUUID string
	Login    string
}

func (Assign) Key() string { return KeyAssign }
func (Assign) sealed()     {}

func (Assign) Supports(issue *model.Issue) bool { return !issue.IsResolved() }

func (a Assign) Execute(c *Context) (bool, error) {
	if c.Issue.Assignee == a.UserUUID {
		return false, nil
	}
	c.Diffs.Set("assignee", c.Issue.Assignee, a.UserUUID)
	c.Issue.Assignee = a.UserUUID
	c.Issue.UpdatedAt = c.Change.Date
	return true, nil
}

// AssignVerifier resolves the "assignee" login. An empty login unassigns.
type AssignVerifier struct {
	Lookup Lookup
}

func (AssignVerifier) Key() string { return KeyAssign }

func (v AssignVerifier) Verify(ctx context.Context, params Params, _ []*model.Issue, _ *model.Caller) (Action, error) {
	login, ok := params["assignee"]
	if !ok {
		return nil, model.Invalid("assignee", "missing parameter: 'assignee'")
	}
	login = strings.TrimSpace(login)
	if login == "" {
		return Assign{}, nil
	}
	user, err := v.Lookup.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("resolving assignee: %w", err)
	}
	if !user.Active {
		return nil, &model.NotFoundError{Kind: "user", Key: login}
	}
	return Assign{UserUUID: user.UUID, Login: user.Login}, nil
}

// Plan attaches unresolved issues to an action plan, or detaches them.
type Plan struct {
	// PlanKey is empty to unplan.
	PlanKey string
}

func (Plan) Key() string { return KeyPlan }
func (Plan) sealed()     {}

func (Plan) Supports(issue *model.Issue) bool { return !issue.IsResolved() }

func (p Plan) Execute(c *Context) (bool, error) {
	if c.Issue.ActionPlan == p.PlanKey {
		return false, nil
	}
	c.Diffs.Set("actionPlan", c.Issue.ActionPlan, p.PlanKey)
	c.Issue.ActionPlan = p.PlanKey
	c.Issue.UpdatedAt = c.Change.Date
	return true, nil
}

// PlanVerifier resolves the "plan" key. All issues must belong to the
// plan's project.
type PlanVerifier struct {
	Lookup Lookup
}

func (PlanVerifier) Key() string { return KeyPlan }

func (v PlanVerifier) Verify(ctx context.Context, params Params, issues []*model.Issue, _ *model.Caller) (Action, error) {
	key, ok := params["plan"]
	if !ok {
		return nil, model.Invalid("plan", "missing parameter: 'plan'")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Plan{}, nil
	}
	plan, err := v.Lookup.GetActionPlan(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("resolving action plan: %w", err)
	}
	for _, i := range issues {
		if i.ProjectUUID != plan.ProjectUUID {
			return nil, model.Invalid("plan", "issues are not all related to the action plan project %s", plan.ProjectUUID)
		}
	}
	return Plan{PlanKey: plan.Key}, nil
}
