package model

import "fmt"

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Kind string // "issue", "user", "action plan", "component", ...
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

// PermissionError reports a caller lacking a required permission.
type PermissionError struct {
	Permission  Permission
	ProjectUUID string
}

func (e *PermissionError) Error() string {
	if e.ProjectUUID == "" {
		return fmt.Sprintf("insufficient privileges: %s required", e.Permission)
	}
	return fmt.Sprintf("insufficient privileges: %s required on project %s", e.Permission, e.ProjectUUID)
}

// UnauthenticatedError reports an anonymous caller on an operation that
// requires a logged-in user.
type UnauthenticatedError struct{}

func (e *UnauthenticatedError) Error() string {
	return "authentication is required"
}
