package model

import (
	"slices"
	"time"
)

// AuthorizationEntry lists who may browse the issues of a project.
type AuthorizationEntry struct {
	ProjectUUID string    `json:"project_uuid"`
	Groups      []string  `json:"groups,omitempty"`
	Users       []string  `json:"users,omitempty"` // user uuids
	Public      bool      `json:"public"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Allows reports whether a user with the given uuid and group memberships
// may read the project.
func (e *AuthorizationEntry) Allows(userUUID string, groups []string) bool {
	if e.Public {
		return true
	}
	if userUUID != "" && slices.Contains(e.Users, userUUID) {
		return true
	}
	for _, g := range groups {
		if slices.Contains(e.Groups, g) {
			return true
		}
	}
	return false
}
