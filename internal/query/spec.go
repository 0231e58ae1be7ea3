// Package query turns issue search requests into index searches. A Factory
// normalizes and validates a Request into a Spec, resolving component keys
// against the store; a Builder compiles a Spec and an authorization filter
// into index filters and aggregations.
package query

import (
	"slices"
	"time"
)

// UnknownUUID stands in for components that could not be resolved. It
// matches no document, so such searches return nothing instead of failing.
const UnknownUUID = "<UNKNOWN>"

// Sort keys.
const (
	SortAssignee     = "ASSIGNEE"
	SortStatus       = "STATUS"
	SortSeverity     = "SEVERITY"
	SortCreationDate = "CREATION_DATE"
	SortUpdateDate   = "UPDATE_DATE"
	SortCloseDate    = "CLOSE_DATE"
	SortFileLine     = "FILE_LINE"
)

// SortKeys lists every supported sort key.
var SortKeys = []string{SortAssignee, SortStatus, SortSeverity, SortCreationDate, SortUpdateDate, SortCloseDate, SortFileLine}

// Facet modes.
const (
	FacetModeCount  = "count"
	FacetModeEffort = "effort"
)

// Scope restricts a search to one level of the component hierarchy. The
// concrete types are ProjectScope, ModuleScope, DirectoryScope, FileScope
// and PortfolioScope; a Spec carries at most one of them.
type Scope interface {
	scope()
}

// ProjectScope restricts to issues of the given projects.
type ProjectScope struct{ UUIDs []string }

// ModuleScope restricts to issues anywhere below the given modules.
type ModuleScope struct{ UUIDs []string }

// DirectoryScope restricts to issues of files directly in the given
// directories.
type DirectoryScope struct {
	ProjectUUIDs []string
	Paths        []string
}

// FileScope restricts to issues of the given files.
type FileScope struct{ UUIDs []string }

// PortfolioScope restricts to issues of the projects that belong to the
// given portfolios or applications when the search runs.
type PortfolioScope struct{ UUIDs []string }

func (ProjectScope) scope()   {}
func (ModuleScope) scope()    {}
func (DirectoryScope) scope() {}
func (FileScope) scope()      {}
func (PortfolioScope) scope() {}

// BranchScope selects a branch. Without one, searches cover main branches
// only.
type BranchScope struct {
	UUID string
	Main bool
}

// Spec is a validated issue search. Empty slices do not filter.
type Spec struct {
	IssueKeys   []string
	Severities  []string
	Statuses    []string
	Resolutions []string
	Rules       []string
	Languages   []string
	Tags        []string
	Assignees   []string // user uuids
	Authors     []string
	Types       []string
	Directories []string
	OwaspTop10  []string
	SansTop25   []string
	Cwe         []string

	Scope  Scope
	Branch *BranchScope

	Resolved *bool
	Assigned *bool

	// CreatedAfter is inclusive, CreatedBefore exclusive. CreatedAt selects
	// the exact creation instant and excludes the other two.
	CreatedAfter  time.Time
	CreatedBefore time.Time
	CreatedAt     time.Time

	Sort string
	Asc  bool

	Facets    []string
	FacetMode string
	FacetSize int
	// Me is the uuid of the caller, used by the assigned_to_me facet.
	Me string
	// Location aligns date histogram buckets.
	Location *time.Location
}

// HasFacet reports whether the facet was requested.
func (s *Spec) HasFacet(name string) bool {
	return slices.Contains(s.Facets, name)
}

// location returns the histogram location, UTC by default.
func (s *Spec) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}
