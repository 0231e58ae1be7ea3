package query

import (
	"fmt"
	"slices"

	"github.com/alfredjeanlab/tracker/internal/authz"
	"github.com/alfredjeanlab/tracker/internal/index"
	"github.com/alfredjeanlab/tracker/internal/model"
)

// Compiled is a Spec translated into index primitives. Query holds the
// mandatory filters (authorization, branch, portfolio, dates, keys) and
// PostFilter the facetable ones, so that each facet can be computed
// without its own dimension.
type Compiled struct {
	Spec         *Spec
	Query        index.Filter
	PostFilter   index.Filter
	Aggregations map[string]index.Aggregation

	sticky   map[string]index.Filter
	selected map[string][]string
}

// Compile translates spec and the caller's authorization into index
// filters and facet aggregations. It does not modify spec and returns the
// same result for the same inputs. The createdAt facet needs the bounds of
// the matching documents and is built by the caller with
// CreatedAtFacet.
func Compile(spec *Spec, auth authz.Filter) (*Compiled, error) {
	c := &Compiled{
		Spec:         spec,
		Aggregations: make(map[string]index.Aggregation),
		sticky:       make(map[string]index.Filter),
		selected:     make(map[string][]string),
	}

	c.addTerms(FacetSeverities, spec.Severities)
	c.addTerms(FacetStatuses, spec.Statuses)
	c.addTerms(FacetResolutions, spec.Resolutions)
	c.addTerms(FacetTypes, spec.Types)
	c.addTerms(FacetLanguages, spec.Languages)
	c.addTerms(FacetRules, spec.Rules)
	c.addTerms(FacetTags, spec.Tags)
	c.addTerms(FacetAuthors, spec.Authors)
	c.addTerms(FacetAssignees, spec.Assignees)
	c.addTerms(FacetDirectories, spec.Directories)
	c.addTerms(FacetOwaspTop10, spec.OwaspTop10)
	c.addTerms(FacetSansTop25, spec.SansTop25)
	c.addTerms(FacetCwe, spec.Cwe)

	mandatory := []index.Filter{auth.Compile()}
	if len(spec.IssueKeys) > 0 {
		mandatory = append(mandatory, index.Terms(index.FieldKey, spec.IssueKeys...))
	}

	switch s := spec.Scope.(type) {
	case nil:
	case ProjectScope:
		c.addTerms(FacetProjects, s.UUIDs)
	case ModuleScope:
		c.sticky[FacetModules] = index.Terms(index.FieldModulePath, s.UUIDs...)
		c.selected[FacetModules] = slices.Clone(s.UUIDs)
	case DirectoryScope:
		dirs := index.And(index.Terms(index.FieldProject, s.ProjectUUIDs...), index.Terms(index.FieldDirectory, s.Paths...))
		c.sticky[FacetDirectories] = index.And(c.sticky[FacetDirectories], dirs)
		c.selected[FacetDirectories] = append(c.selected[FacetDirectories], s.Paths...)
	case FileScope:
		c.addTerms(FacetFiles, s.UUIDs)
	case PortfolioScope:
		mandatory = append(mandatory, index.InPortfolio(index.FieldProject, s.UUIDs...))
	default:
		return nil, fmt.Errorf("unsupported scope %T", s)
	}

	if spec.Branch != nil {
		mandatory = append(mandatory, index.Terms(index.FieldBranch, spec.Branch.UUID))
	} else {
		mandatory = append(mandatory, index.Terms(index.FieldMainBranch, "true"))
	}
	if spec.Resolved != nil {
		mandatory = append(mandatory, existence(index.FieldResolution, *spec.Resolved))
	}
	if spec.Assigned != nil {
		mandatory = append(mandatory, existence(index.FieldAssignee, *spec.Assigned))
	}
	if f := createdRange(spec); f != nil {
		mandatory = append(mandatory, f)
	}

	c.Query = index.And(mandatory...)
	c.PostFilter = c.stickyExcept("")

	for _, name := range spec.Facets {
		switch name {
		case FacetCreatedAt:
			// Built per search by CreatedAtFacet.
		case FacetAssignedToMe:
			if spec.Me != "" {
				c.Aggregations[name] = c.assignedToMeFacet()
			}
		default:
			if _, ok := facetFields[name]; !ok {
				return nil, model.Invalid("facets", "unknown facet %q", name)
			}
			c.Aggregations[name] = c.termsFacet(name, c.selected[name])
		}
	}
	if spec.FacetMode == FacetModeEffort {
		c.Aggregations[AggEffortTotal] = index.FilterAgg{Filter: c.PostFilter, SumField: index.FieldEffort}
	}
	return c, nil
}

func (c *Compiled) addTerms(dimension string, values []string) {
	if len(values) == 0 {
		return
	}
	c.sticky[dimension] = index.Terms(facetFields[dimension], values...)
	c.selected[dimension] = slices.Clone(values)
}

// stickyExcept combines every facetable filter but the one of dimension.
// Dimensions are visited in a fixed order.
func (c *Compiled) stickyExcept(dimension string) index.Filter {
	var filters []index.Filter
	for _, name := range Facets {
		if f, ok := c.sticky[name]; ok && name != dimension {
			filters = append(filters, f)
		}
	}
	return index.And(filters...)
}

func existence(field string, exists bool) index.Filter {
	if exists {
		return index.Exists(field)
	}
	return index.Missing(field)
}

func createdRange(spec *Spec) index.Filter {
	if !spec.CreatedAt.IsZero() {
		return index.DateRange{
			Field:       index.FieldCreatedAt,
			From:        spec.CreatedAt,
			IncludeFrom: true,
			To:          spec.CreatedAt,
			IncludeTo:   true,
		}
	}
	if spec.CreatedAfter.IsZero() && spec.CreatedBefore.IsZero() {
		return nil
	}
	return index.DateRange{
		Field:       index.FieldCreatedAt,
		From:        spec.CreatedAfter,
		IncludeFrom: true,
		To:          spec.CreatedBefore,
	}
}
