package query

import (
	"time"

	"github.com/alfredjeanlab/tracker/internal/index"
)

// Facet names.
const (
	FacetSeverities   = "severities"
	FacetStatuses     = "statuses"
	FacetResolutions  = "resolutions"
	FacetTypes        = "types"
	FacetLanguages    = "languages"
	FacetRules        = "rules"
	FacetTags         = "tags"
	FacetAuthors      = "authors"
	FacetAssignees    = "assignees"
	FacetAssignedToMe = "assigned_to_me"
	FacetProjects     = "projects"
	FacetModules      = "moduleUuids"
	FacetFiles        = "fileUuids"
	FacetDirectories  = "directories"
	FacetOwaspTop10   = "owaspTop10"
	FacetSansTop25    = "sansTop25"
	FacetCwe          = "cwe"
	FacetCreatedAt    = "createdAt"
)

// Facets lists every supported facet.
var Facets = []string{
	FacetSeverities, FacetStatuses, FacetResolutions, FacetTypes, FacetLanguages,
	FacetRules, FacetTags, FacetAuthors, FacetAssignees, FacetAssignedToMe,
	FacetProjects, FacetModules, FacetFiles, FacetDirectories,
	FacetOwaspTop10, FacetSansTop25, FacetCwe, FacetCreatedAt,
}

// facetFields maps term facets to the index field they count.
var facetFields = map[string]string{
	FacetSeverities:  index.FieldSeverity,
	FacetStatuses:    index.FieldStatus,
	FacetResolutions: index.FieldResolution,
	FacetTypes:       index.FieldType,
	FacetLanguages:   index.FieldLanguage,
	FacetRules:       index.FieldRule,
	FacetTags:        index.FieldTags,
	FacetAuthors:     index.FieldAuthor,
	FacetAssignees:   index.FieldAssignee,
	FacetProjects:    index.FieldProject,
	FacetModules:     index.FieldModule,
	FacetFiles:       index.FieldComponent,
	FacetDirectories: index.FieldDirectory,
	FacetOwaspTop10:  index.FieldOwaspTop10,
	FacetSansTop25:   index.FieldSansTop25,
	FacetCwe:         index.FieldCwe,
}

// Aggregation names inside a facet.
const (
	aggValues   = "values"
	aggSelected = "selected"
	// AggEffortTotal sums the effort of all hits in effort facet mode.
	AggEffortTotal = "__effort_total"
)

// termsFacet counts the values of one dimension over the hits of every
// other dimension, so that selecting a value never hides its siblings.
func (c *Compiled) termsFacet(name string, selected []string) index.Aggregation {
	values := index.TermsAgg{
		Field:   facetFields[name],
		Size:    c.Spec.FacetSize,
		Missing: name == FacetResolutions || name == FacetAssignees,
	}
	if c.Spec.FacetMode == FacetModeEffort {
		values.SumField = index.FieldEffort
	}
	subs := map[string]index.Aggregation{aggValues: values}
	if len(selected) > 0 {
		sel := values
		sel.Size = 0
		sel.Missing = false
		sel.Include = selected
		subs[aggSelected] = sel
	}
	return index.FilterAgg{Filter: c.stickyExcept(name), Sub: subs}
}

func (c *Compiled) assignedToMeFacet() index.Aggregation {
	values := index.TermsAgg{Field: index.FieldAssignee, Include: []string{c.Spec.Me}}
	if c.Spec.FacetMode == FacetModeEffort {
		values.SumField = index.FieldEffort
	}
	return index.FilterAgg{
		Filter: c.stickyExcept(FacetAssignees),
		Sub:    map[string]index.Aggregation{aggValues: values},
	}
}

// HistogramInterval picks the createdAt bucket width for a period: days
// under 20 days, weeks under 20 weeks, months under 600 days, else years.
func HistogramInterval(start, end time.Time) index.Interval {
	d := end.Sub(start)
	day := 24 * time.Hour
	switch {
	case d < 20*day:
		return index.IntervalDay
	case d < 20*7*day:
		return index.IntervalWeek
	case d < 600*day:
		return index.IntervalMonth
	}
	return index.IntervalYear
}

// CreatedAtFacet returns the createdAt histogram between start and end,
// to be searched under the FacetCreatedAt name. Empty buckets are emitted
// for the whole period. c is not modified.
func (c *Compiled) CreatedAtFacet(start, end time.Time) index.Aggregation {
	hist := index.DateHistogramAgg{
		Field:    index.FieldCreatedAt,
		Interval: HistogramInterval(start, end),
		Location: c.Spec.location(),
		Min:      start,
		Max:      end,
	}
	if c.Spec.FacetMode == FacetModeEffort {
		hist.SumField = index.FieldEffort
	}
	return index.FilterAgg{
		Filter: c.PostFilter,
		Sub:    map[string]index.Aggregation{aggValues: hist},
	}
}

// FacetValue is one bucket of a decoded facet.
type FacetValue struct {
	Value string `json:"val"`
	Count int64  `json:"count"`
}

// Facet is a decoded facet.
type Facet struct {
	Property string       `json:"property"`
	Values   []FacetValue `json:"values"`
}

// DecodeFacets turns the aggregation results of a search into facets, in
// the order they were requested. Selected values missing from the top
// buckets are appended.
func (c *Compiled) DecodeFacets(aggs map[string]*index.AggregationResult) []Facet {
	effort := c.Spec.FacetMode == FacetModeEffort
	value := func(b index.Bucket) int64 {
		if effort {
			return int64(b.Sum)
		}
		return b.Count
	}

	var out []Facet
	for _, name := range c.Spec.Facets {
		res, ok := aggs[name]
		if !ok || res.Sub == nil {
			out = append(out, Facet{Property: name, Values: []FacetValue{}})
			continue
		}
		f := Facet{Property: name, Values: []FacetValue{}}
		seen := make(map[string]bool)
		if vals := res.Sub[aggValues]; vals != nil {
			for _, b := range vals.Buckets {
				f.Values = append(f.Values, FacetValue{Value: b.Key, Count: value(b)})
				seen[b.Key] = true
			}
		}
		if sel := res.Sub[aggSelected]; sel != nil {
			for _, b := range sel.Buckets {
				if !seen[b.Key] {
					f.Values = append(f.Values, FacetValue{Value: b.Key, Count: value(b)})
					seen[b.Key] = true
				}
			}
		}
		for _, v := range c.selected[name] {
			if !seen[v] {
				f.Values = append(f.Values, FacetValue{Value: v})
				seen[v] = true
			}
		}
		out = append(out, f)
	}
	return out
}
