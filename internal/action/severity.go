package action

import (
	"context"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// SetSeverity changes the severity of issues on projects the caller
// administers. A manual change marks the severity as overridden; a
// non-manual change never replaces an overridden severity.
type SetSeverity struct {
	Severity model.Severity
	Manual   bool
	projects map[string]bool
}

func (SetSeverity) Key() string { return KeySetSeverity }
func (SetSeverity) sealed()     {}

func (s SetSeverity) Supports(issue *model.Issue) bool { return s.projects[issue.ProjectUUID] }

func (s SetSeverity) Execute(c *Context) (bool, error) {
	i := c.Issue
	if i.Severity == s.Severity || (i.ManualSeverity && !s.Manual) {
		return false, nil
	}
	c.Diffs.Set("severity", string(i.Severity), string(s.Severity))
	i.Severity = s.Severity
	if s.Manual {
		i.ManualSeverity = true
	}
	i.UpdatedAt = c.Change.Date
	return true, nil
}

// SetSeverityVerifier reads "severity" and the optional "manual" flag,
// which defaults to true for client requests.
type SetSeverityVerifier struct{}

func (SetSeverityVerifier) Key() string { return KeySetSeverity }

func (SetSeverityVerifier) Verify(_ context.Context, params Params, issues []*model.Issue, caller *model.Caller) (Action, error) {
	raw, err := params.required("severity")
	if err != nil {
		return nil, err
	}
	sev := model.Severity(strings.ToUpper(raw))
	if !sev.IsValid() {
		return nil, model.Invalid("severity", "unknown severity %q", raw)
	}
	manual := true
	if v, ok := params["manual"]; ok {
		if manual, err = strconv.ParseBool(v); err != nil {
			return nil, model.Invalid("manual", "must be true or false")
		}
	}
	projects := administered(issues, caller)
	if err := requireAdmin(projects); err != nil {
		return nil, err
	}
	return SetSeverity{Severity: sev, Manual: manual, projects: projects}, nil
}

// SetType changes the type of issues on projects the caller administers.
// Security hotspots keep their type.
type SetType struct {
	Type     model.IssueType
	projects map[string]bool
}

func (SetType) Key() string { return KeySetType }
func (SetType) sealed()     {}

func (s SetType) Supports(issue *model.Issue) bool {
	return s.projects[issue.ProjectUUID] && issue.Type != model.TypeSecurityHotspot
}

func (s SetType) Execute(c *Context) (bool, error) {
	if c.Issue.Type == s.Type {
		return false, nil
	}
	c.Diffs.Set("type", string(c.Issue.Type), string(s.Type))
	c.Issue.Type = s.Type
	c.Issue.UpdatedAt = c.Change.Date
	return true, nil
}

// SetTypeVerifier reads "type".
type SetTypeVerifier struct{}

func (SetTypeVerifier) Key() string { return KeySetType }

func (SetTypeVerifier) Verify(_ context.Context, params Params, issues []*model.Issue, caller *model.Caller) (Action, error) {
	raw, err := params.required("type")
	if err != nil {
		return nil, err
	}
	typ := model.IssueType(strings.ToUpper(raw))
	if !typ.IsValid() || typ == model.TypeSecurityHotspot {
		return nil, model.Invalid("type", "unknown type %q", raw)
	}
	projects := administered(issues, caller)
	if err := requireAdmin(projects); err != nil {
		return nil, err
	}
	return SetType{Type: typ, projects: projects}, nil
}
