package model

import "slices"

// Permission is a project-level permission.
type Permission string

const (
	PermissionBrowse     Permission = "user"
	PermissionCodeViewer Permission = "codeviewer"
	PermissionIssueAdmin Permission = "issueadmin"
	PermissionAdmin      Permission = "admin"
)

func (p Permission) String() string { return string(p) }

// User is a registered account.
type User struct {
	UUID   string `json:"uuid"`
	Login  string `json:"login"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Caller is the identity on whose behalf an operation runs, with the
// project permissions resolved at request time. The zero Caller is
// anonymous.
type Caller struct {
	UUID        string
	Login       string
	Groups      []string
	Root        bool
	Permissions map[string][]Permission // project uuid -> permissions
}

// Anonymous returns a caller that is not logged in.
func Anonymous() *Caller {
	return &Caller{}
}

// IsLoggedIn reports whether the caller is an authenticated user.
func (c *Caller) IsLoggedIn() bool {
	return c != nil && c.UUID != ""
}

// HasProjectPermission reports whether the caller holds perm on the project.
// Root callers hold every permission.
func (c *Caller) HasProjectPermission(perm Permission, projectUUID string) bool {
	if c == nil {
		return false
	}
	if c.Root {
		return true
	}
	return slices.Contains(c.Permissions[projectUUID], perm)
}
