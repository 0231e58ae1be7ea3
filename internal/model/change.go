package model

import (
	"slices"
	"time"
)

// FieldDiff is the before/after value of one issue field.
type FieldDiff struct {
	Old string `json:"old,omitempty"`
	New string `json:"new,omitempty"`
}

// FieldDiffs is the change log of a single issue update, keyed by field name.
type FieldDiffs map[string]FieldDiff

// Set records a change of field from old to new. When the field already
// changed earlier in the same update, the original old value is kept.
// A change back to the original value removes the entry.
func (d FieldDiffs) Set(field, old, new string) {
	if prev, ok := d[field]; ok {
		old = prev.Old
	}
	if old == new {
		delete(d, field)
		return
	}
	d[field] = FieldDiff{Old: old, New: new}
}

// Fields returns the changed field names in sorted order.
func (d FieldDiffs) Fields() []string {
	fields := make([]string, 0, len(d))
	for f := range d {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	return fields
}

// IssueChange is a persisted change log entry.
type IssueChange struct {
	Key       string     `json:"key"`
	IssueKey  string     `json:"issue_key"`
	UserUUID  string     `json:"user_uuid"`
	Diffs     FieldDiffs `json:"diffs"`
	CreatedAt time.Time  `json:"created_at"`
}

// Comment is a free-text note attached to an issue.
type Comment struct {
	Key       string    `json:"key"`
	IssueKey  string    `json:"issue_key"`
	UserUUID  string    `json:"user_uuid"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ChangeContext carries who performs a change and when.
type ChangeContext struct {
	Date     time.Time
	UserUUID string
}
