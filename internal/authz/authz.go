// Package authz turns a caller identity into the row-level predicate that
// every issue search carries.
package authz

import (
	"slices"

	"github.com/alfredjeanlab/tracker/internal/index"
	"github.com/alfredjeanlab/tracker/internal/model"
)

// Filter restricts search results to the projects a caller may browse.
// The zero Filter is an anonymous caller, who only sees public projects.
type Filter struct {
	// Skip disables authorization entirely. Only trusted in-process callers
	// such as the indexer set it.
	Skip     bool
	UserUUID string
	Groups   []string
}

// ForCaller returns the filter of a caller. Root callers are filtered like
// everyone else: visibility comes only from authorization entries.
func ForCaller(c *model.Caller) Filter {
	if c == nil {
		return Filter{}
	}
	return Filter{UserUUID: c.UUID, Groups: slices.Clone(c.Groups)}
}

// Trusted returns a filter that does not restrict results.
func Trusted() Filter {
	return Filter{Skip: true}
}

// Compile returns the index filter, or nil when authorization is skipped.
func (f Filter) Compile() index.Filter {
	if f.Skip {
		return nil
	}
	groups := slices.Clone(f.Groups)
	if f.UserUUID != "" {
		groups = append(groups, AnyoneLoggedIn)
	}
	return index.Authorized(f.UserUUID, groups)
}

// AnyoneLoggedIn is the pseudo-group every authenticated user belongs to.
const AnyoneLoggedIn = "tracker-users"
