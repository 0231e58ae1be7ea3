// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an already opened database without migrating it.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetComponentsByKeys(ctx context.Context, keys []string) ([]*model.Component, error) {
	return queryComponentsByKeys(ctx, s.db, keys)
}

func (s *PostgresStore) GetComponentsByUUIDs(ctx context.Context, uuids []string) ([]*model.Component, error) {
	return queryComponentsByUUIDs(ctx, s.db, uuids)
}

func (s *PostgresStore) GetBranch(ctx context.Context, projectUUID, name string) (*model.Branch, error) {
	return queryGetBranch(ctx, s.db, projectUUID, name)
}

func (s *PostgresStore) GetIssue(ctx context.Context, key string) (*model.Issue, error) {
	return queryGetIssue(ctx, s.db, key)
}

func (s *PostgresStore) GetIssues(ctx context.Context, keys []string) ([]*model.Issue, error) {
	return queryGetIssues(ctx, s.db, keys)
}

func (s *PostgresStore) ListIssues(ctx context.Context, filter store.IssueFilter) ([]*model.Issue, error) {
	return queryListIssues(ctx, s.db, filter)
}

func (s *PostgresStore) UpdateIssue(ctx context.Context, issue *model.Issue) error {
	return queryUpdateIssue(ctx, s.db, issue)
}

func (s *PostgresStore) InsertChange(ctx context.Context, change *model.IssueChange) error {
	return queryInsertChange(ctx, s.db, change)
}

func (s *PostgresStore) GetChanges(ctx context.Context, issueKey string) ([]*model.IssueChange, error) {
	return queryGetChanges(ctx, s.db, issueKey)
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment *model.Comment) error {
	return queryInsertComment(ctx, s.db, comment)
}

func (s *PostgresStore) GetComments(ctx context.Context, issueKey string) ([]*model.Comment, error) {
	return queryGetComments(ctx, s.db, issueKey)
}

func (s *PostgresStore) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return queryGetUserByLogin(ctx, s.db, login)
}

func (s *PostgresStore) GetCaller(ctx context.Context, login string) (*model.Caller, error) {
	return queryGetCaller(ctx, s.db, login)
}

func (s *PostgresStore) GetActionPlan(ctx context.Context, key string) (*model.ActionPlan, error) {
	return queryGetActionPlan(ctx, s.db, key)
}

func (s *PostgresStore) ListAuthorizations(ctx context.Context) ([]*model.AuthorizationEntry, error) {
	return queryListAuthorizations(ctx, s.db)
}

func (s *PostgresStore) ListPortfolioProjects(ctx context.Context) (map[string][]string, error) {
	return queryListPortfolioProjects(ctx, s.db)
}

func (s *PostgresStore) EnqueueReindex(ctx context.Context, issueKeys []string) error {
	return queryEnqueueReindex(ctx, s.db, issueKeys)
}

func (s *PostgresStore) ListReindexQueue(ctx context.Context, limit int) ([]*model.ReindexItem, error) {
	return queryListReindexQueue(ctx, s.db, limit)
}

func (s *PostgresStore) DeleteReindexItems(ctx context.Context, ids []int64) error {
	return queryDeleteReindexItems(ctx, s.db, ids)
}

func (s *PostgresStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.db, event)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) GetComponentsByKeys(ctx context.Context, keys []string) ([]*model.Component, error) {
	return queryComponentsByKeys(ctx, s.tx, keys)
}

func (s *txStore) GetComponentsByUUIDs(ctx context.Context, uuids []string) ([]*model.Component, error) {
	return queryComponentsByUUIDs(ctx, s.tx, uuids)
}

func (s *txStore) GetBranch(ctx context.Context, projectUUID, name string) (*model.Branch, error) {
	return queryGetBranch(ctx, s.tx, projectUUID, name)
}

func (s *txStore) GetIssue(ctx context.Context, key string) (*model.Issue, error) {
	return queryGetIssue(ctx, s.tx, key)
}

func (s *txStore) GetIssues(ctx context.Context, keys []string) ([]*model.Issue, error) {
	return queryGetIssues(ctx, s.tx, keys)
}

func (s *txStore) ListIssues(ctx context.Context, filter store.IssueFilter) ([]*model.Issue, error) {
	return queryListIssues(ctx, s.tx, filter)
}

func (s *txStore) UpdateIssue(ctx context.Context, issue *model.Issue) error {
	return queryUpdateIssue(ctx, s.tx, issue)
}

func (s *txStore) InsertChange(ctx context.Context, change *model.IssueChange) error {
	return queryInsertChange(ctx, s.tx, change)
}

func (s *txStore) GetChanges(ctx context.Context, issueKey string) ([]*model.IssueChange, error) {
	return queryGetChanges(ctx, s.tx, issueKey)
}

func (s *txStore) InsertComment(ctx context.Context, comment *model.Comment) error {
	return queryInsertComment(ctx, s.tx, comment)
}

func (s *txStore) GetComments(ctx context.Context, issueKey string) ([]*model.Comment, error) {
	return queryGetComments(ctx, s.tx, issueKey)
}

func (s *txStore) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return queryGetUserByLogin(ctx, s.tx, login)
}

func (s *txStore) GetCaller(ctx context.Context, login string) (*model.Caller, error) {
	return queryGetCaller(ctx, s.tx, login)
}

func (s *txStore) GetActionPlan(ctx context.Context, key string) (*model.ActionPlan, error) {
	return queryGetActionPlan(ctx, s.tx, key)
}

func (s *txStore) ListAuthorizations(ctx context.Context) ([]*model.AuthorizationEntry, error) {
	return queryListAuthorizations(ctx, s.tx)
}

func (s *txStore) ListPortfolioProjects(ctx context.Context) (map[string][]string, error) {
	return queryListPortfolioProjects(ctx, s.tx)
}

func (s *txStore) EnqueueReindex(ctx context.Context, issueKeys []string) error {
	return queryEnqueueReindex(ctx, s.tx, issueKeys)
}

func (s *txStore) ListReindexQueue(ctx context.Context, limit int) ([]*model.ReindexItem, error) {
	return queryListReindexQueue(ctx, s.tx, limit)
}

func (s *txStore) DeleteReindexItems(ctx context.Context, ids []int64) error {
	return queryDeleteReindexItems(ctx, s.tx, ids)
}

func (s *txStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.tx, event)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
