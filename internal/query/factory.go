package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// AssigneeMe in the assignees of a request stands for the caller.
const AssigneeMe = "__me__"

const (
	defaultFacetSize = 15
	maxFacetSize     = 100
)

// Request is an issue search as received from a client. Keys and dates
// are in their human-facing form.
type Request struct {
	Issues      []string `json:"issues,omitempty"`
	Severities  []string `json:"severities,omitempty"`
	Statuses    []string `json:"statuses,omitempty"`
	Resolutions []string `json:"resolutions,omitempty"`
	Rules       []string `json:"rules,omitempty"`
	Languages   []string `json:"languages,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Assignees   []string `json:"assignees,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	Types       []string `json:"types,omitempty"`
	Directories []string `json:"directories,omitempty"`
	OwaspTop10  []string `json:"owaspTop10,omitempty"`
	SansTop25   []string `json:"sansTop25,omitempty"`
	Cwe         []string `json:"cwe,omitempty"`

	ComponentKeys  []string `json:"componentKeys,omitempty"`
	ComponentUUIDs []string `json:"componentUuids,omitempty"`
	Branch         string   `json:"branch,omitempty"`

	Resolved *bool `json:"resolved,omitempty"`
	Assigned *bool `json:"assigned,omitempty"`

	CreatedAfter  string `json:"createdAfter,omitempty"`
	CreatedBefore string `json:"createdBefore,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	CreatedInLast string `json:"createdInLast,omitempty"`
	TimeZone      string `json:"timeZone,omitempty"`

	Sort string `json:"s,omitempty"`
	Asc  *bool  `json:"asc,omitempty"`

	Facets    []string `json:"facets,omitempty"`
	FacetMode string   `json:"facetMode,omitempty"`
	FacetSize int      `json:"facetSize,omitempty"`

	Page     int `json:"p,omitempty"`
	PageSize int `json:"ps,omitempty"`
}

// ComponentFinder resolves components and branches. Lookups by key or
// uuid skip unknown entries; GetBranch returns a *model.NotFoundError when
// the branch does not exist.
type ComponentFinder interface {
	GetComponentsByKeys(ctx context.Context, keys []string) ([]*model.Component, error)
	GetComponentsByUUIDs(ctx context.Context, uuids []string) ([]*model.Component, error)
	GetBranch(ctx context.Context, projectUUID, name string) (*model.Branch, error)
}

// Factory builds validated Specs from Requests.
type Factory struct {
	components ComponentFinder
	location   *time.Location
	logger     *slog.Logger
	now        func() time.Time
}

// NewFactory returns a Factory. loc is the zone used when a request has no
// valid time zone of its own.
func NewFactory(components ComponentFinder, loc *time.Location, logger *slog.Logger) *Factory {
	if loc == nil {
		loc = time.UTC
	}
	return &Factory{components: components, location: loc, logger: logger, now: time.Now}
}

// Create validates req and resolves its components. Validation failures
// are returned as a *model.ValidationError.
func (f *Factory) Create(ctx context.Context, req *Request, caller *model.Caller) (*Spec, error) {
	var ve model.ValidationError
	loc := f.timeZone(req.TimeZone)

	spec := &Spec{
		IssueKeys:   slices.Clone(req.Issues),
		Severities:  slices.Clone(req.Severities),
		Statuses:    slices.Clone(req.Statuses),
		Resolutions: slices.Clone(req.Resolutions),
		Rules:       slices.Clone(req.Rules),
		Languages:   slices.Clone(req.Languages),
		Tags:        slices.Clone(req.Tags),
		Authors:     slices.Clone(req.Authors),
		Types:       slices.Clone(req.Types),
		Directories: slices.Clone(req.Directories),
		OwaspTop10:  slices.Clone(req.OwaspTop10),
		SansTop25:   slices.Clone(req.SansTop25),
		Cwe:         slices.Clone(req.Cwe),
		Resolved:    req.Resolved,
		Assigned:    req.Assigned,
		Sort:        req.Sort,
		Asc:         req.Asc == nil || *req.Asc,
		Facets:      slices.Clone(req.Facets),
		Location:    loc,
	}
	if caller.IsLoggedIn() {
		spec.Me = caller.UUID
	}
	for _, a := range req.Assignees {
		if a == AssigneeMe {
			a = UnknownUUID
			if spec.Me != "" {
				a = spec.Me
			}
		}
		spec.Assignees = append(spec.Assignees, a)
	}

	checkValues(&ve, "severities", spec.Severities, func(v string) bool { return model.Severity(v).IsValid() })
	checkValues(&ve, "statuses", spec.Statuses, func(v string) bool { return model.Status(v).IsValid() })
	checkValues(&ve, "resolutions", spec.Resolutions, func(v string) bool { return v != "" && model.Resolution(v).IsValid() })
	checkValues(&ve, "types", spec.Types, func(v string) bool { return model.IssueType(v).IsValid() })
	checkValues(&ve, "facets", spec.Facets, func(v string) bool { return slices.Contains(Facets, v) })

	if spec.Sort != "" && !slices.Contains(SortKeys, spec.Sort) {
		ve.Add("sort", "unknown sort key %q, expected one of %s", spec.Sort, strings.Join(SortKeys, ", "))
	}

	switch req.FacetMode {
	case "", FacetModeCount:
		spec.FacetMode = FacetModeCount
	case FacetModeEffort, "debt":
		spec.FacetMode = FacetModeEffort
	default:
		ve.Add("facetMode", "unknown facet mode %q", req.FacetMode)
	}
	switch {
	case req.FacetSize <= 0:
		spec.FacetSize = defaultFacetSize
	case req.FacetSize > maxFacetSize:
		spec.FacetSize = maxFacetSize
	default:
		spec.FacetSize = req.FacetSize
	}

	if len(req.ComponentKeys) > 0 && len(req.ComponentUUIDs) > 0 {
		ve.Add("componentKeys", "at most one of componentKeys and componentUuids can be provided")
	}
	f.setDates(&ve, spec, req, loc)

	if err := ve.Err(); err != nil {
		return nil, err
	}
	if err := f.setScope(ctx, spec, req, caller); err != nil {
		return nil, err
	}
	return spec, nil
}

func (f *Factory) timeZone(name string) *time.Location {
	if name == "" {
		return f.location
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		f.logger.Warn("ignoring invalid time zone", "timezone", name, "error", err)
		return f.location
	}
	return loc
}

func checkValues(ve *model.ValidationError, field string, values []string, valid func(string) bool) {
	for _, v := range values {
		if !valid(v) {
			ve.Add(field, "invalid value %q", v)
		}
	}
}

func (f *Factory) setDates(ve *model.ValidationError, spec *Spec, req *Request, loc *time.Location) {
	if req.CreatedAt != "" && (req.CreatedAfter != "" || req.CreatedBefore != "" || req.CreatedInLast != "") {
		ve.Add("createdAt", "createdAt cannot be combined with createdAfter, createdBefore or createdInLast")
		return
	}
	if req.CreatedAfter != "" && req.CreatedInLast != "" {
		ve.Add("createdInLast", "createdAfter and createdInLast cannot be set simultaneously")
		return
	}

	var err error
	now := f.now()
	collect := func(e error) {
		var fe *model.ValidationError
		if errors.As(e, &fe) {
			ve.Errors = append(ve.Errors, fe.Errors...)
		}
	}
	if spec.CreatedAt, err = parseStart("createdAt", req.CreatedAt, loc); err != nil {
		collect(err)
	}
	if spec.CreatedAfter, err = parseStart("createdAfter", req.CreatedAfter, loc); err != nil {
		collect(err)
	}
	if spec.CreatedBefore, err = parseEnd("createdBefore", req.CreatedBefore, loc); err != nil {
		collect(err)
	}
	if req.CreatedInLast != "" {
		if spec.CreatedAfter, err = subtractPeriod("createdInLast", req.CreatedInLast, now); err != nil {
			collect(err)
		}
	}

	if spec.CreatedAfter.IsZero() {
		return
	}
	if spec.CreatedAfter.After(now) {
		ve.Add("createdAfter", "Start bound cannot be in the future")
	}
	if !spec.CreatedBefore.IsZero() && !spec.CreatedAfter.Before(spec.CreatedBefore) {
		ve.Add("createdAfter", "Start bound cannot be larger or equal to end bound")
	}
}

func (f *Factory) setScope(ctx context.Context, spec *Spec, req *Request, caller *model.Caller) error {
	var (
		comps []*model.Component
		err   error
	)
	switch {
	case len(req.ComponentKeys) > 0:
		comps, err = f.components.GetComponentsByKeys(ctx, req.ComponentKeys)
	case len(req.ComponentUUIDs) > 0:
		comps, err = f.components.GetComponentsByUUIDs(ctx, req.ComponentUUIDs)
	default:
		if req.Branch != "" {
			return model.Invalid("branch", "a component is required when a branch is set")
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving components: %w", err)
	}
	if len(comps) == 0 {
		spec.Scope = FileScope{UUIDs: []string{UnknownUUID}}
		return nil
	}

	var qualifiers []string
	for _, c := range comps {
		if q := c.Qualifier.String(); !slices.Contains(qualifiers, q) {
			qualifiers = append(qualifiers, q)
		}
	}
	if len(qualifiers) > 1 {
		slices.Sort(qualifiers)
		return model.Invalid("componentKeys", "All components must have the same qualifier, found %s", strings.Join(qualifiers, ","))
	}

	if req.Branch != "" {
		b, err := f.components.GetBranch(ctx, comps[0].ProjectUUID, req.Branch)
		var nf *model.NotFoundError
		switch {
		case errors.As(err, &nf):
			spec.Branch = &BranchScope{UUID: UnknownUUID}
		case err != nil:
			return fmt.Errorf("resolving branch %q: %w", req.Branch, err)
		default:
			spec.Branch = &BranchScope{UUID: b.UUID, Main: b.Main}
		}
	}

	uuids := make([]string, len(comps))
	for i, c := range comps {
		uuids[i] = c.UUID
	}
	switch model.Qualifier(qualifiers[0]) {
	case model.QualifierProject:
		spec.Scope = ProjectScope{UUIDs: uuids}
	case model.QualifierModule:
		spec.Scope = ModuleScope{UUIDs: uuids}
	case model.QualifierDirectory:
		var scope DirectoryScope
		for _, c := range comps {
			scope.Paths = append(scope.Paths, c.Path)
			if !slices.Contains(scope.ProjectUUIDs, c.ProjectUUID) {
				scope.ProjectUUIDs = append(scope.ProjectUUIDs, c.ProjectUUID)
			}
		}
		spec.Scope = scope
	case model.QualifierFile, model.QualifierUnitTest:
		spec.Scope = FileScope{UUIDs: uuids}
	case model.QualifierPortfolio, model.QualifierSubPortfolio, model.QualifierApplication:
		// Portfolios are only searchable by callers who can browse them.
		var visible []string
		for _, u := range uuids {
			if caller.HasProjectPermission(model.PermissionBrowse, u) {
				visible = append(visible, u)
			}
		}
		if len(visible) == 0 {
			visible = []string{UnknownUUID}
		}
		spec.Scope = PortfolioScope{UUIDs: visible}
	default:
		return model.Invalid("componentKeys", "unable to search issues of components with qualifier %s", qualifiers[0])
	}
	return nil
}
