// Package search runs compiled issue queries against the index. It owns
// pagination limits, sort keys and the decoding of aggregation results.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/alfredjeanlab/tracker/internal/authz"
	"github.com/alfredjeanlab/tracker/internal/index"
	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/query"
)

// Page size limits.
const (
	MaxPageSize     = 500
	DefaultPageSize = 100
)

// Pagination selects one page of results. Pages start at 1.
type Pagination struct {
	Page int
	Size int
}

// normalize clamps sizes above MaxPageSize and replaces non-positive
// values with the defaults.
func (p Pagination) normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.Size <= 0:
		p.Size = DefaultPageSize
	case p.Size > MaxPageSize:
		p.Size = MaxPageSize
	}
	return p
}

// Result is one page of issues with its facets.
type Result struct {
	Total       int64                  `json:"total"`
	Page        int                    `json:"p"`
	PageSize    int                    `json:"ps"`
	Issues      []*model.IssueDocument `json:"issues"`
	Facets      []query.Facet          `json:"facets,omitempty"`
	EffortTotal *int64                 `json:"effortTotal,omitempty"`
}

// Executor runs searches against an index.
type Executor struct {
	idx *index.Index
	now func() time.Time
}

// NewExecutor returns an Executor over idx.
func NewExecutor(idx *index.Index) *Executor {
	return &Executor{idx: idx, now: time.Now}
}

// sortFields returns the index sort of a sort key. Severity sorts by rank
// and FILE_LINE by file path then line, issues without a line first.
func sortFields(key string, asc bool) ([]index.SortField, error) {
	desc := !asc
	switch key {
	case "":
		return nil, nil
	case query.SortAssignee:
		return []index.SortField{{Field: index.FieldAssignee, Desc: desc}}, nil
	case query.SortStatus:
		return []index.SortField{{Field: index.FieldStatus, Desc: desc}}, nil
	case query.SortSeverity:
		return []index.SortField{{Field: index.FieldSeverityRank, Desc: desc}}, nil
	case query.SortCreationDate:
		return []index.SortField{{Field: index.FieldCreatedAt, Desc: desc}}, nil
	case query.SortUpdateDate:
		return []index.SortField{{Field: index.FieldUpdatedAt, Desc: desc}}, nil
	case query.SortCloseDate:
		return []index.SortField{{Field: index.FieldClosedAt, Desc: desc}}, nil
	case query.SortFileLine:
		return []index.SortField{
			{Field: index.FieldProject, Desc: desc},
			{Field: index.FieldFilePath, Desc: desc},
			{Field: index.FieldLine, Desc: desc, MissingFirst: true},
		}, nil
	}
	return nil, model.Invalid("sort", "unknown sort key %q, expected one of %s", key, strings.Join(query.SortKeys, ", "))
}

// Execute runs c and returns the requested page. The page size is clamped
// to MaxPageSize.
func (e *Executor) Execute(ctx context.Context, c *query.Compiled, p Pagination) (*Result, error) {
	p = p.normalize()
	sort, err := sortFields(c.Spec.Sort, c.Spec.Asc)
	if err != nil {
		return nil, err
	}

	// c may be shared between requests, so the createdAt facet goes into
	// a copy of its aggregations.
	aggs := c.Aggregations
	if c.Spec.HasFacet(query.FacetCreatedAt) {
		hist, err := e.createdAtFacet(ctx, c)
		if err != nil {
			return nil, err
		}
		if hist != nil {
			aggs = maps.Clone(c.Aggregations)
			aggs[query.FacetCreatedAt] = hist
		}
	}

	resp, err := e.idx.Search(ctx, index.SearchRequest{
		Query:        c.Query,
		PostFilter:   c.PostFilter,
		Aggregations: aggs,
		Sort:         sort,
		From:         (p.Page - 1) * p.Size,
		Size:         p.Size,
	})
	if err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}

	res := &Result{
		Total:    resp.Total,
		Page:     p.Page,
		PageSize: p.Size,
		Issues:   resp.Hits,
		Facets:   c.DecodeFacets(resp.Aggregations),
	}
	if res.Issues == nil {
		res.Issues = []*model.IssueDocument{}
	}
	if total, ok := resp.Aggregations[query.AggEffortTotal]; ok {
		v := int64(total.Value)
		res.EffortTotal = &v
	}
	return res, nil
}

// createdAtFacet bounds the histogram by createdAfter, or the earliest
// matching issue, and createdBefore, or now. It returns nil when nothing
// matches.
func (e *Executor) createdAtFacet(ctx context.Context, c *query.Compiled) (index.Aggregation, error) {
	start, end := c.Spec.CreatedAfter, c.Spec.CreatedBefore
	if end.IsZero() {
		end = e.now()
	}
	if start.IsZero() {
		resp, err := e.idx.Search(ctx, index.SearchRequest{
			Query:        c.Query,
			PostFilter:   c.PostFilter,
			Aggregations: map[string]index.Aggregation{"min": index.MinAgg{Field: index.FieldCreatedAt}},
		})
		if err != nil {
			return nil, fmt.Errorf("computing first creation date: %w", err)
		}
		first := resp.Aggregations["min"]
		if !first.HasValue {
			// Nothing matches: the histogram would be empty anyway.
			return nil, nil
		}
		start = index.MillisToTime(first.Value)
	}
	return c.CreatedAtFacet(start, end), nil
}

// SecurityReport runs a compiled security report.
func (e *Executor) SecurityReport(ctx context.Context, r *query.CompiledReport) ([]query.CategoryStatistics, error) {
	resp, err := e.idx.Search(ctx, r.Request)
	if err != nil {
		return nil, fmt.Errorf("computing security report: %w", err)
	}
	return r.DecodeReport(resp.Aggregations), nil
}

// Values runs a tag or author search.
func (e *Executor) Values(ctx context.Context, v *query.CompiledValues) ([]string, error) {
	resp, err := e.idx.Search(ctx, v.Request)
	if err != nil {
		return nil, fmt.Errorf("searching values: %w", err)
	}
	return v.Decode(resp.Aggregations), nil
}

// Service chains query creation, compilation and execution for callers
// that start from client requests.
type Service struct {
	factory  *query.Factory
	executor *Executor
	logger   *slog.Logger
}

// NewService returns a Service.
func NewService(factory *query.Factory, executor *Executor, logger *slog.Logger) *Service {
	return &Service{factory: factory, executor: executor, logger: logger}
}

// Search validates req and returns the requested page of visible issues.
func (s *Service) Search(ctx context.Context, req *query.Request, caller *model.Caller) (*Result, error) {
	spec, err := s.factory.Create(ctx, req, caller)
	if err != nil {
		return nil, err
	}
	compiled, err := query.Compile(spec, authz.ForCaller(caller))
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := s.executor.Execute(ctx, compiled, Pagination{Page: req.Page, Size: req.PageSize})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("issue search", "total", res.Total, "facets", len(spec.Facets), "duration", time.Since(start))
	return res, nil
}

// SecurityReport returns the security report of a component.
func (s *Service) SecurityReport(ctx context.Context, req *query.ReportRequest, caller *model.Caller) ([]query.CategoryStatistics, error) {
	rs, err := s.factory.CreateReport(ctx, req, caller)
	if err != nil {
		return nil, err
	}
	compiled, err := query.CompileReport(rs, authz.ForCaller(caller))
	if err != nil {
		return nil, err
	}
	return s.executor.SecurityReport(ctx, compiled)
}

// Tags returns the tags of visible issues containing req.Query.
func (s *Service) Tags(ctx context.Context, req *query.ValuesRequest, caller *model.Caller) ([]string, error) {
	return s.values(ctx, index.FieldTags, req, caller)
}

// Authors returns the SCM authors of visible issues containing req.Query.
func (s *Service) Authors(ctx context.Context, req *query.ValuesRequest, caller *model.Caller) ([]string, error) {
	return s.values(ctx, index.FieldAuthor, req, caller)
}

func (s *Service) values(ctx context.Context, field string, req *query.ValuesRequest, caller *model.Caller) ([]string, error) {
	v, err := s.factory.CompileValues(ctx, field, req, caller)
	if err != nil {
		return nil, err
	}
	return s.executor.Values(ctx, v)
}

// SortKeys returns the supported sort keys in a stable order.
func SortKeys() []string {
	return slices.Clone(query.SortKeys)
}
