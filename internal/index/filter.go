package index

import (
	"slices"
	"strings"
	"time"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// Filter is a predicate over index documents. Filters are built with the
// constructors of this package and evaluated against a consistent snapshot
// of the index (documents, authorization entries and portfolio members).
type Filter interface {
	match(doc *model.IssueDocument, idx *Index) bool
}

type matchAll struct{}

func (matchAll) match(*model.IssueDocument, *Index) bool { return true }

// MatchAll matches every document.
func MatchAll() Filter { return matchAll{} }

type matchNone struct{}

func (matchNone) match(*model.IssueDocument, *Index) bool { return false }

// MatchNone matches no document.
func MatchNone() Filter { return matchNone{} }

type termsFilter struct {
	field  string
	values []string
}

func (f termsFilter) match(doc *model.IssueDocument, _ *Index) bool {
	for _, v := range keywords(doc, f.field) {
		if slices.Contains(f.values, v) {
			return true
		}
	}
	return false
}

// Terms matches documents having at least one of values in field.
func Terms(field string, values ...string) Filter {
	return termsFilter{field: field, values: slices.Clone(values)}
}

type existsFilter struct{ field string }

func (f existsFilter) match(doc *model.IssueDocument, _ *Index) bool {
	return hasValue(doc, f.field)
}

// Exists matches documents with a value in field.
func Exists(field string) Filter { return existsFilter{field: field} }

// Missing matches documents without a value in field.
func Missing(field string) Filter { return Not(Exists(field)) }

type prefixFilter struct {
	field    string
	prefixes []string
}

func (f prefixFilter) match(doc *model.IssueDocument, _ *Index) bool {
	for _, v := range keywords(doc, f.field) {
		for _, p := range f.prefixes {
			if strings.HasPrefix(v, p) {
				return true
			}
		}
	}
	return false
}

// Prefix matches documents with a value in field starting with any of prefixes.
func Prefix(field string, prefixes ...string) Filter {
	return prefixFilter{field: field, prefixes: slices.Clone(prefixes)}
}

// DateRange matches documents whose date field lies within the bounds.
// A zero From or To leaves that side unbounded.
type DateRange struct {
	Field       string
	From        time.Time
	IncludeFrom bool
	To          time.Time
	IncludeTo   bool
}

func (r DateRange) match(doc *model.IssueDocument, _ *Index) bool {
	t, ok := date(doc, r.Field)
	if !ok {
		return false
	}
	if !r.From.IsZero() {
		if t.Before(r.From) || (!r.IncludeFrom && t.Equal(r.From)) {
			return false
		}
	}
	if !r.To.IsZero() {
		if t.After(r.To) || (!r.IncludeTo && t.Equal(r.To)) {
			return false
		}
	}
	return true
}

// Bool combines filters: every Must filter must match, no MustNot filter
// may match, and at least MinimumShouldMatch Should filters must match
// (at least one when Should is non-empty and MinimumShouldMatch is zero).
type Bool struct {
	Must               []Filter
	Should             []Filter
	MustNot            []Filter
	MinimumShouldMatch int
}

func (b Bool) match(doc *model.IssueDocument, idx *Index) bool {
	for _, f := range b.Must {
		if !f.match(doc, idx) {
			return false
		}
	}
	for _, f := range b.MustNot {
		if f.match(doc, idx) {
			return false
		}
	}
	if len(b.Should) == 0 {
		return true
	}
	min := b.MinimumShouldMatch
	if min <= 0 {
		min = 1
	}
	n := 0
	for _, f := range b.Should {
		if f.match(doc, idx) {
			n++
			if n >= min {
				return true
			}
		}
	}
	return false
}

// And matches documents matched by every filter. Nil filters are skipped.
func And(filters ...Filter) Filter {
	var must []Filter
	for _, f := range filters {
		if f != nil {
			must = append(must, f)
		}
	}
	switch len(must) {
	case 0:
		return MatchAll()
	case 1:
		return must[0]
	}
	return Bool{Must: must}
}

// Or matches documents matched by at least one filter.
func Or(filters ...Filter) Filter {
	return Bool{Should: filters}
}

type notFilter struct{ f Filter }

func (n notFilter) match(doc *model.IssueDocument, idx *Index) bool {
	return !n.f.match(doc, idx)
}

// Not inverts f.
func Not(f Filter) Filter { return notFilter{f: f} }

type portfolioLookup struct {
	field      string
	portfolios []string
}

func (p portfolioLookup) match(doc *model.IssueDocument, idx *Index) bool {
	values := keywords(doc, p.field)
	for _, uuid := range p.portfolios {
		for _, project := range idx.views[uuid] {
			if slices.Contains(values, project) {
				return true
			}
		}
	}
	return false
}

// InPortfolio matches documents whose field holds one of the projects that
// currently belong to any of the given portfolios. Membership is read at
// evaluation time, so portfolio changes apply without re-indexing issues.
func InPortfolio(field string, portfolioUUIDs ...string) Filter {
	return portfolioLookup{field: field, portfolios: slices.Clone(portfolioUUIDs)}
}

type authorizedFilter struct {
	userUUID string
	groups   []string
}

func (a authorizedFilter) match(doc *model.IssueDocument, idx *Index) bool {
	entry, ok := idx.auth[doc.ProjectUUID]
	if !ok {
		return false
	}
	return entry.Allows(a.userUUID, a.groups)
}

// Authorized matches documents of projects readable by the given user and
// groups according to the indexed authorization entries. Documents of
// projects without an entry are never matched.
func Authorized(userUUID string, groups []string) Filter {
	return authorizedFilter{userUUID: userUUID, groups: slices.Clone(groups)}
}
