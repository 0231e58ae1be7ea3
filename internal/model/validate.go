package model

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Add appends a field error.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err returns e when it holds errors, nil otherwise.
func (e *ValidationError) Err() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// Invalid returns a ValidationError carrying a single field error.
func Invalid(field, format string, args ...any) *ValidationError {
	var ve ValidationError
	ve.Add(field, format, args...)
	return &ve
}

// HasField reports whether the error carries a failure for field.
func (e *ValidationError) HasField(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

var tagPattern = regexp.MustCompile(`^[a-z0-9+#\-.]+$`)

// ValidateTag checks that a tag is lower case and made of letters, digits
// and the characters + # - .
func ValidateTag(tag string) error {
	if !tagPattern.MatchString(tag) {
		return Invalid("tags", "tag %q is invalid: tags must be lower case and contain only letters, digits and + # - .", tag)
	}
	return nil
}

// ValidateIssue checks an Issue for constraint violations before it is
// written. It returns a *ValidationError if any rules fail, or nil.
func ValidateIssue(i *Issue) error {
	var ve ValidationError

	if strings.TrimSpace(i.Key) == "" {
		ve.Add("key", "is required")
	}
	if !i.Severity.IsValid() {
		ve.Add("severity", "invalid value %q", i.Severity)
	}
	if !i.Status.IsValid() {
		ve.Add("status", "invalid value %q", i.Status)
	}
	if !i.Resolution.IsValid() {
		ve.Add("resolution", "invalid value %q", i.Resolution)
	}
	if !i.Type.IsValid() {
		ve.Add("type", "invalid value %q", i.Type)
	}

	// Resolution consistency with Status.
	switch i.Status {
	case StatusOpen, StatusConfirmed, StatusReopened:
		if i.IsResolved() {
			ve.Add("resolution", "must be empty when status is %s", i.Status)
		}
	case StatusResolved:
		if !i.IsResolved() {
			ve.Add("resolution", "is required when status is %s", i.Status)
		}
	}
	if i.Status == StatusClosed && i.ClosedAt == nil {
		ve.Add("closed_at", "is required when status is closed")
	}

	for _, tag := range i.Tags {
		if !tagPattern.MatchString(tag) {
			ve.Add("tags", "invalid tag %q", tag)
		}
	}

	return ve.Err()
}
