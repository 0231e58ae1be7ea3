package query

import (
	"context"

	"github.com/alfredjeanlab/tracker/internal/authz"
	"github.com/alfredjeanlab/tracker/internal/index"
	"github.com/alfredjeanlab/tracker/internal/model"
)

// Security standards with a report.
const (
	StandardOwaspTop10 = "owaspTop10"
	StandardSansTop25  = "sansTop25"
)

// Categories lists the report categories of each standard, without the
// trailing "unknown" category.
var Categories = map[string][]string{
	StandardOwaspTop10: {"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "a10"},
	StandardSansTop25:  {"insecure-interaction", "risky-resource", "porous-defenses"},
}

var standardFields = map[string]string{
	StandardOwaspTop10: index.FieldOwaspTop10,
	StandardSansTop25:  index.FieldSansTop25,
}

// Report aggregation names.
const (
	AggVulnerabilities = "vulnerabilities"
	AggRating          = "rating"
	AggOpenHotspots    = "openHotspots"
	AggToReview        = "toReviewHotspots"
	AggWontFix         = "wontFixHotspots"
	AggCwe             = "cwe"
)

// ReportRequest asks for the security report of one component.
type ReportRequest struct {
	Standard     string `json:"standard"`
	ComponentKey string `json:"project"`
	Branch       string `json:"branch,omitempty"`
	IncludeCwe   bool   `json:"includeCwe,omitempty"`
}

// ReportSpec is a validated ReportRequest.
type ReportSpec struct {
	Standard   string
	Scope      Scope
	Branch     *BranchScope
	IncludeCwe bool
}

// CreateReport validates a report request and resolves its component.
func (f *Factory) CreateReport(ctx context.Context, req *ReportRequest, caller *model.Caller) (*ReportSpec, error) {
	var ve model.ValidationError
	if _, ok := Categories[req.Standard]; !ok {
		ve.Add("standard", "unknown security standard %q", req.Standard)
	}
	if req.ComponentKey == "" {
		ve.Add("project", "is required")
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}
	spec := &Spec{}
	if err := f.setScope(ctx, spec, &Request{ComponentKeys: []string{req.ComponentKey}, Branch: req.Branch}, caller); err != nil {
		return nil, err
	}
	return &ReportSpec{Standard: req.Standard, Scope: spec.Scope, Branch: spec.Branch, IncludeCwe: req.IncludeCwe}, nil
}

// CompiledReport is a security report translated to an index search. Each
// category is one aggregation named after it.
type CompiledReport struct {
	Spec       *ReportSpec
	Categories []string
	Request    index.SearchRequest
}

// CompileReport builds the search behind a security report. Only
// vulnerabilities and hotspots that are not closed are considered. Each
// category counts an issue at most once, and issues without any category
// of the standard are not counted at all.
func CompileReport(rs *ReportSpec, auth authz.Filter) (*CompiledReport, error) {
	field := standardFields[rs.Standard]
	scoped, err := Compile(&Spec{Scope: rs.Scope, Branch: rs.Branch}, auth)
	if err != nil {
		return nil, err
	}
	categories := append(append([]string(nil), Categories[rs.Standard]...), model.UnknownStandard)

	query := index.And(
		scoped.Query,
		scoped.PostFilter,
		index.Terms(index.FieldType, string(model.TypeVulnerability), string(model.TypeSecurityHotspot)),
		index.Not(index.Terms(index.FieldStatus, string(model.StatusClosed))),
	)
	aggs := make(map[string]index.Aggregation, len(categories))
	for _, cat := range categories {
		subs := reportStatistics()
		if rs.IncludeCwe {
			subs[AggCwe] = index.TermsAgg{Field: index.FieldCwe, Sub: reportStatistics()}
		}
		aggs[cat] = index.FilterAgg{Filter: index.Terms(field, cat), Sub: subs}
	}
	return &CompiledReport{
		Spec:       rs,
		Categories: categories,
		Request:    index.SearchRequest{Query: query, Aggregations: aggs},
	}, nil
}

func reportStatistics() map[string]index.Aggregation {
	hotspot := index.Terms(index.FieldType, string(model.TypeSecurityHotspot))
	resolved := index.Terms(index.FieldStatus, string(model.StatusResolved))
	return map[string]index.Aggregation{
		AggVulnerabilities: index.FilterAgg{
			Filter: index.And(
				index.Terms(index.FieldType, string(model.TypeVulnerability)),
				index.Missing(index.FieldResolution),
			),
			Sub: map[string]index.Aggregation{AggRating: index.MaxAgg{Field: index.FieldSeverityRank}},
		},
		AggOpenHotspots: index.FilterAgg{Filter: index.And(
			hotspot,
			index.Terms(index.FieldStatus, string(model.StatusOpen), string(model.StatusReopened)),
			index.Missing(index.FieldResolution),
		)},
		AggToReview: index.FilterAgg{Filter: index.And(
			hotspot, resolved, index.Terms(index.FieldResolution, string(model.ResolutionFixed)),
		)},
		AggWontFix: index.FilterAgg{Filter: index.And(
			hotspot, resolved, index.Terms(index.FieldResolution, string(model.ResolutionWontFix)),
		)},
	}
}

// CategoryStatistics is one row of a security report.
type CategoryStatistics struct {
	Category         string               `json:"category"`
	Vulnerabilities  int64                `json:"vulnerabilities"`
	Rating           int                  `json:"vulnerabilityRating"`
	OpenHotspots     int64                `json:"openSecurityHotspots"`
	ToReviewHotspots int64                `json:"toReviewSecurityHotspots"`
	WontFixHotspots  int64                `json:"wontFixSecurityHotspots"`
	Children         []CategoryStatistics `json:"distribution,omitempty"`
}

// DecodeReport turns aggregation results into report rows, one per
// category in standard order with "unknown" last.
func (r *CompiledReport) DecodeReport(aggs map[string]*index.AggregationResult) []CategoryStatistics {
	out := make([]CategoryStatistics, 0, len(r.Categories))
	for _, cat := range r.Categories {
		res := aggs[cat]
		row := decodeStatistics(cat, res)
		if res != nil && r.Spec.IncludeCwe {
			if cwe := res.Sub[AggCwe]; cwe != nil {
				for _, b := range cwe.Buckets {
					row.Children = append(row.Children, decodeStatistics(b.Key, &index.AggregationResult{Count: b.Count, Sub: b.Sub}))
				}
			}
		}
		out = append(out, row)
	}
	return out
}

// decodeStatistics reads the statistics of one bucket. The rating goes
// from 1 (no vulnerability or only INFO) to 5 (a BLOCKER vulnerability).
func decodeStatistics(category string, res *index.AggregationResult) CategoryStatistics {
	row := CategoryStatistics{Category: category, Rating: 1}
	if res == nil {
		return row
	}
	count := func(name string) int64 {
		if sub := res.Sub[name]; sub != nil {
			return sub.Count
		}
		return 0
	}
	row.Vulnerabilities = count(AggVulnerabilities)
	row.OpenHotspots = count(AggOpenHotspots)
	row.ToReviewHotspots = count(AggToReview)
	row.WontFixHotspots = count(AggWontFix)
	if v := res.Sub[AggVulnerabilities]; v != nil {
		if rating := v.Sub[AggRating]; rating != nil && rating.HasValue {
			row.Rating = int(rating.Value) + 1
		}
	}
	return row
}
