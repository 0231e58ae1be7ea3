package postgres

import (
	"database/sql"
	"encoding/json"
	"path"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanComponent scans a row with the columns of componentColumns.
func scanComponent(row scannable) (*model.Component, error) {
	var (
		c              model.Component
		moduleUUID     sql.NullString
		moduleUUIDPath sql.NullString
		filePath       sql.NullString
		language       sql.NullString
	)
	err := row.Scan(
		&c.UUID,
		&c.Key,
		&c.Name,
		&c.Qualifier,
		&c.ProjectUUID,
		&moduleUUID,
		&moduleUUIDPath,
		&filePath,
		&language,
	)
	if err != nil {
		return nil, err
	}
	c.ModuleUUID = moduleUUID.String
	c.ModuleUUIDPath = moduleUUIDPath.String
	c.Path = filePath.String
	c.Language = language.String
	return &c, nil
}

func scanComponents(rows *sql.Rows) ([]*model.Component, error) {
	var out []*model.Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// scanIssue scans a row with the columns of issueColumns.
func scanIssue(row scannable) (*model.Issue, error) {
	var (
		i              model.Issue
		branchUUID     sql.NullString
		resolution     sql.NullString
		assignee       sql.NullString
		author         sql.NullString
		actionPlan     sql.NullString
		line           sql.NullInt64
		closedAt       sql.NullTime
		qualifier      string
		moduleUUID     sql.NullString
		moduleUUIDPath sql.NullString
		filePath       sql.NullString
		language       sql.NullString
		main           sql.NullBool
	)

	err := row.Scan(
		&i.Key,
		&i.RuleKey,
		&i.ExternalRule,
		&i.ComponentUUID,
		&i.ProjectUUID,
		&branchUUID,
		&i.Severity,
		&i.ManualSeverity,
		&i.Status,
		&resolution,
		&i.Type,
		&assignee,
		&author,
		&actionPlan,
		pq.Array(&i.Tags),
		&i.Message,
		&line,
		&i.Effort,
		pq.Array(&i.OwaspTop10),
		pq.Array(&i.SansTop25),
		pq.Array(&i.Cwe),
		&i.CreatedAt,
		&i.UpdatedAt,
		&closedAt,
		&qualifier,
		&moduleUUID,
		&moduleUUIDPath,
		&filePath,
		&language,
		&main,
	)
	if err != nil {
		return nil, err
	}

	i.BranchUUID = branchUUID.String
	i.Resolution = model.Resolution(resolution.String)
	i.Assignee = assignee.String
	i.Author = author.String
	i.ActionPlan = actionPlan.String
	i.ModuleUUID = moduleUUID.String
	i.ModuleUUIDPath = moduleUUIDPath.String
	i.Language = language.String
	// Issues without a branch row are on the main branch.
	i.MainBranch = !main.Valid || main.Bool

	if line.Valid {
		l := int(line.Int64)
		i.Line = &l
	}
	if closedAt.Valid {
		t := closedAt.Time
		i.ClosedAt = &t
	}
	switch model.Qualifier(qualifier) {
	case model.QualifierFile, model.QualifierUnitTest:
		i.FilePath = filePath.String
		i.DirectoryPath = path.Dir(filePath.String)
	case model.QualifierDirectory:
		i.DirectoryPath = filePath.String
	}
	if len(i.Tags) == 0 {
		i.Tags = nil
	}

	return &i, nil
}

func scanIssues(rows *sql.Rows) ([]*model.Issue, error) {
	var out []*model.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// scanChanges scans change log rows.
func scanChanges(rows *sql.Rows) ([]*model.IssueChange, error) {
	var out []*model.IssueChange
	for rows.Next() {
		var (
			c        model.IssueChange
			userUUID sql.NullString
			diffs    []byte
		)
		if err := rows.Scan(&c.Key, &c.IssueKey, &userUUID, &diffs, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.UserUUID = userUUID.String
		if err := json.Unmarshal(diffs, &c.Diffs); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// scanComments scans comment rows.
func scanComments(rows *sql.Rows) ([]*model.Comment, error) {
	var out []*model.Comment
	for rows.Next() {
		var (
			c        model.Comment
			userUUID sql.NullString
		)
		if err := rows.Scan(&c.Key, &c.IssueKey, &userUUID, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.UserUUID = userUUID.String
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// nullTimePtr converts a *time.Time to a sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nonNil returns s, or an empty slice for nil, so array columns are never
// written as NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
