package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/tracker/internal/authz"
	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/store"
)

// groupAnyone grants a permission to every caller, logged in or not.
const groupAnyone = "anyone"

// componentColumns is the column list used for SELECT statements on the
// components table.
const componentColumns = `uuid, kee, name, qualifier, project_uuid,
	module_uuid, module_uuid_path, path, language`

// issueColumns and issueFrom select an issue with the component and branch
// data it is indexed with.
const issueColumns = `i.issue_key, i.rule_key, i.external_rule, i.component_uuid,
	i.project_uuid, i.branch_uuid, i.severity, i.manual_severity, i.status,
	i.resolution, i.type, i.assignee, i.author, i.action_plan, i.tags, i.message,
	i.line, i.effort, i.owasp_top10, i.sans_top25, i.cwe,
	i.created_at, i.updated_at, i.closed_at,
	c.qualifier, c.module_uuid, c.module_uuid_path, c.path, c.language, b.main`

const issueFrom = `
	FROM issues i
	JOIN components c ON c.uuid = i.component_uuid
	LEFT JOIN branches b ON b.uuid = i.branch_uuid`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// notFound maps sql.ErrNoRows to a *model.NotFoundError.
func notFound(err error, kind, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &model.NotFoundError{Kind: kind, Key: key}
	}
	return err
}

func queryComponentsByKeys(ctx context.Context, db executor, keys []string) ([]*model.Component, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+componentColumns+`
		FROM components WHERE kee = ANY($1)
		ORDER BY kee`,
		pq.Array(keys),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComponents(rows)
}

func queryComponentsByUUIDs(ctx context.Context, db executor, uuids []string) ([]*model.Component, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+componentColumns+`
		FROM components WHERE uuid = ANY($1)
		ORDER BY kee`,
		pq.Array(uuids),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComponents(rows)
}

func queryGetBranch(ctx context.Context, db executor, projectUUID, name string) (*model.Branch, error) {
	var b model.Branch
	err := db.QueryRowContext(ctx, `
		SELECT uuid, project_uuid, name, main
		FROM branches WHERE project_uuid = $1 AND name = $2`,
		projectUUID, name,
	).Scan(&b.UUID, &b.ProjectUUID, &b.Name, &b.Main)
	if err != nil {
		return nil, notFound(err, "branch", name)
	}
	return &b, nil
}

func queryGetIssue(ctx context.Context, db executor, key string) (*model.Issue, error) {
	row := db.QueryRowContext(ctx, `SELECT `+issueColumns+issueFrom+` WHERE i.issue_key = $1`, key)
	i, err := scanIssue(row)
	if err != nil {
		return nil, notFound(err, "issue", key)
	}
	return i, nil
}

func queryGetIssues(ctx context.Context, db executor, keys []string) ([]*model.Issue, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx, `SELECT `+issueColumns+issueFrom+`
		WHERE i.issue_key = ANY($1)
		ORDER BY i.issue_key`,
		pq.Array(keys),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIssues(rows)
}

func queryListIssues(ctx context.Context, db executor, filter store.IssueFilter) ([]*model.Issue, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.ProjectUUID != "" {
		whereClauses = append(whereClauses, "i.project_uuid = "+nextArg())
		args = append(args, filter.ProjectUUID)
	}
	if filter.AfterKey != "" {
		whereClauses = append(whereClauses, "i.issue_key > "+nextArg())
		args = append(args, filter.AfterKey)
	}

	query := `SELECT ` + issueColumns + issueFrom
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY i.issue_key"
	if filter.Limit > 0 {
		query += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIssues(rows)
}

func queryUpdateIssue(ctx context.Context, db executor, i *model.Issue) error {
	res, err := db.ExecContext(ctx, `
		UPDATE issues SET
			severity = $2,
			manual_severity = $3,
			status = $4,
			resolution = $5,
			type = $6,
			assignee = $7,
			action_plan = $8,
			tags = $9,
			updated_at = $10,
			closed_at = $11
		WHERE issue_key = $1`,
		i.Key,
		string(i.Severity),
		i.ManualSeverity,
		string(i.Status),
		nullString(string(i.Resolution)),
		string(i.Type),
		nullString(i.Assignee),
		nullString(i.ActionPlan),
		pq.Array(nonNil(i.Tags)),
		i.UpdatedAt,
		nullTimePtr(i.ClosedAt),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return &model.NotFoundError{Kind: "issue", Key: i.Key}
	}
	return nil
}

func queryInsertChange(ctx context.Context, db executor, c *model.IssueChange) error {
	diffs, err := json.Marshal(c.Diffs)
	if err != nil {
		return fmt.Errorf("marshal diffs: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO issue_changes (kee, issue_key, user_uuid, diffs, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.Key, c.IssueKey, nullString(c.UserUUID), diffs, c.CreatedAt,
	)
	return err
}

func queryGetChanges(ctx context.Context, db executor, issueKey string) ([]*model.IssueChange, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT kee, issue_key, user_uuid, diffs, created_at
		FROM issue_changes
		WHERE issue_key = $1
		ORDER BY created_at ASC`,
		issueKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChanges(rows)
}

func queryInsertComment(ctx context.Context, db executor, c *model.Comment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO issue_comments (kee, issue_key, user_uuid, text, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.Key, c.IssueKey, nullString(c.UserUUID), c.Text, c.CreatedAt,
	)
	return err
}

func queryGetComments(ctx context.Context, db executor, issueKey string) ([]*model.Comment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT kee, issue_key, user_uuid, text, created_at
		FROM issue_comments
		WHERE issue_key = $1
		ORDER BY created_at ASC`,
		issueKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComments(rows)
}

func queryGetUserByLogin(ctx context.Context, db executor, login string) (*model.User, error) {
	var u model.User
	err := db.QueryRowContext(ctx, `
		SELECT uuid, login, name, active
		FROM users WHERE login = $1`,
		login,
	).Scan(&u.UUID, &u.Login, &u.Name, &u.Active)
	if err != nil {
		return nil, notFound(err, "user", login)
	}
	return &u, nil
}

// queryGetCaller resolves the identity and project permissions of an active
// user. An empty login resolves the anonymous caller.
func queryGetCaller(ctx context.Context, db executor, login string) (*model.Caller, error) {
	c := &model.Caller{Login: login, Permissions: make(map[string][]model.Permission)}
	groups := []string{groupAnyone}

	if login != "" {
		err := db.QueryRowContext(ctx, `
			SELECT uuid, root FROM users WHERE login = $1 AND active`,
			login,
		).Scan(&c.UUID, &c.Root)
		if err != nil {
			return nil, notFound(err, "user", login)
		}

		rows, err := db.QueryContext(ctx, `
			SELECT group_name FROM group_members WHERE user_uuid = $1 ORDER BY group_name`,
			c.UUID,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var g string
			if err := rows.Scan(&g); err != nil {
				return nil, err
			}
			c.Groups = append(c.Groups, g)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		groups = append(groups, authz.AnyoneLoggedIn)
		groups = append(groups, c.Groups...)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT project_uuid, permission FROM user_permissions WHERE user_uuid = $1
		UNION
		SELECT project_uuid, permission FROM group_permissions WHERE group_name = ANY($2)
		ORDER BY 1, 2`,
		c.UUID, pq.Array(groups),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var project, perm string
		if err := rows.Scan(&project, &perm); err != nil {
			return nil, err
		}
		c.Permissions[project] = append(c.Permissions[project], model.Permission(perm))
	}
	return c, rows.Err()
}

func queryGetActionPlan(ctx context.Context, db executor, key string) (*model.ActionPlan, error) {
	var p model.ActionPlan
	err := db.QueryRowContext(ctx, `
		SELECT kee, name, project_uuid FROM action_plans WHERE kee = $1`,
		key,
	).Scan(&p.Key, &p.Name, &p.ProjectUUID)
	if err != nil {
		return nil, notFound(err, "action plan", key)
	}
	return &p, nil
}

func queryListAuthorizations(ctx context.Context, db executor) ([]*model.AuthorizationEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT p.uuid, p.updated_at,
			ARRAY(SELECT gp.group_name FROM group_permissions gp
				WHERE gp.project_uuid = p.uuid AND gp.permission = 'user' AND gp.group_name <> 'anyone'
				ORDER BY 1),
			ARRAY(SELECT up.user_uuid FROM user_permissions up
				WHERE up.project_uuid = p.uuid AND up.permission = 'user'
				ORDER BY 1),
			EXISTS(SELECT 1 FROM group_permissions gp
				WHERE gp.project_uuid = p.uuid AND gp.permission = 'user' AND gp.group_name = 'anyone')
		FROM components p
		WHERE p.qualifier IN ('TRK', 'APP', 'VW', 'SVW')
		ORDER BY p.uuid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*model.AuthorizationEntry
	for rows.Next() {
		var e model.AuthorizationEntry
		if err := rows.Scan(&e.ProjectUUID, &e.UpdatedAt, pq.Array(&e.Groups), pq.Array(&e.Users), &e.Public); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func queryListPortfolioProjects(ctx context.Context, db executor) (map[string][]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT portfolio_uuid, project_uuid FROM portfolio_projects ORDER BY 1, 2`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var portfolio, project string
		if err := rows.Scan(&portfolio, &project); err != nil {
			return nil, err
		}
		out[portfolio] = append(out[portfolio], project)
	}
	return out, rows.Err()
}

func queryEnqueueReindex(ctx context.Context, db executor, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO index_queue (issue_key)
		SELECT unnest($1::text[])`,
		pq.Array(keys),
	)
	return err
}

func queryListReindexQueue(ctx context.Context, db executor, limit int) ([]*model.ReindexItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, issue_key, created_at FROM index_queue ORDER BY id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*model.ReindexItem
	for rows.Next() {
		var it model.ReindexItem
		if err := rows.Scan(&it.ID, &it.IssueKey, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func queryDeleteReindexItems(ctx context.Context, db executor, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.ExecContext(ctx, `DELETE FROM index_queue WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO events (topic, issue_key, actor, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.Topic, e.IssueKey, nullString(e.Actor), []byte(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}
