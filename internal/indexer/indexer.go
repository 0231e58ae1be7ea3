// Package indexer keeps the search index in step with the store. Issue
// documents are rebuilt from persisted issues and replaced wholesale, so
// every operation here can be repeated safely.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/time/rate"

	"github.com/alfredjeanlab/tracker/internal/index"
	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/store"
)

// DefaultBatchSize is the number of issues loaded per store round trip.
const DefaultBatchSize = 500

// Indexer loads issues from the store into the index.
type Indexer struct {
	store   store.Store
	idx     *index.Index
	limiter *rate.Limiter
	batch   int
	logger  *slog.Logger
}

// New returns an indexer writing to idx. perSecond caps how many queued
// issues Recover re-indexes per second; zero or less means unlimited.
func New(s store.Store, idx *index.Index, perSecond int, logger *slog.Logger) *Indexer {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
	return &Indexer{
		store:   s,
		idx:     idx,
		limiter: limiter,
		batch:   DefaultBatchSize,
		logger:  logger,
	}
}

// Index refreshes the documents of the given issue keys. Keys that no
// longer exist in the store are removed from the index.
func (ix *Indexer) Index(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	issues, err := ix.store.GetIssues(ctx, keys)
	if err != nil {
		return fmt.Errorf("loading issues: %w", err)
	}
	found := make(map[string]bool, len(issues))
	docs := make([]*model.IssueDocument, 0, len(issues))
	for _, i := range issues {
		found[i.Key] = true
		docs = append(docs, model.NewIssueDocument(i))
	}
	ix.idx.Put(docs...)

	var gone []string
	for _, k := range keys {
		if !found[k] {
			gone = append(gone, k)
		}
	}
	if len(gone) > 0 {
		ix.idx.Delete(gone...)
	}
	return nil
}

// IndexProject rebuilds every document of a project and drops documents
// whose issues were deleted. It returns the number of indexed issues.
func (ix *Indexer) IndexProject(ctx context.Context, projectUUID string) (int, error) {
	seen, err := ix.scan(ctx, projectUUID)
	if err != nil {
		return 0, err
	}
	var stale []string
	for _, k := range ix.idx.ProjectKeys(projectUUID) {
		if !seen[k] {
			stale = append(stale, k)
		}
	}
	if len(stale) > 0 {
		ix.idx.Delete(stale...)
	}
	ix.logger.Info("project indexed", "project", projectUUID, "issues", len(seen), "removed", len(stale))
	return len(seen), nil
}

// IndexAll reloads authorizations and every issue of the store, and drops
// documents whose issues or projects no longer exist.
func (ix *Indexer) IndexAll(ctx context.Context) (int, error) {
	if err := ix.SyncAuthorizations(ctx); err != nil {
		return 0, err
	}
	seen, err := ix.scan(ctx, "")
	if err != nil {
		return 0, err
	}
	var stale []string
	for _, k := range ix.idx.Keys() {
		if !seen[k] {
			stale = append(stale, k)
		}
	}
	if len(stale) > 0 {
		ix.idx.Delete(stale...)
	}
	ix.logger.Info("index rebuilt", "issues", len(seen), "removed", len(stale))
	return len(seen), nil
}

func (ix *Indexer) scan(ctx context.Context, projectUUID string) (map[string]bool, error) {
	seen := make(map[string]bool)
	filter := store.IssueFilter{ProjectUUID: projectUUID, Limit: ix.batch}
	for {
		issues, err := ix.store.ListIssues(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("listing issues: %w", err)
		}
		docs := make([]*model.IssueDocument, 0, len(issues))
		for _, i := range issues {
			seen[i.Key] = true
			docs = append(docs, model.NewIssueDocument(i))
		}
		ix.idx.Put(docs...)
		if len(issues) < ix.batch {
			return seen, nil
		}
		filter.AfterKey = issues[len(issues)-1].Key
	}
}

// DeleteProject removes every document of a project from the index.
func (ix *Indexer) DeleteProject(projectUUID string) int {
	n := ix.idx.DeleteByProject(projectUUID)
	ix.idx.DeleteAuthorization(projectUUID)
	ix.logger.Info("project removed from index", "project", projectUUID, "issues", n)
	return n
}

// SyncAuthorizations replaces the authorization entries and portfolio
// memberships of the index with the ones in the store.
func (ix *Indexer) SyncAuthorizations(ctx context.Context) error {
	entries, err := ix.store.ListAuthorizations(ctx)
	if err != nil {
		return fmt.Errorf("listing authorizations: %w", err)
	}
	views, err := ix.store.ListPortfolioProjects(ctx)
	if err != nil {
		return fmt.Errorf("listing portfolios: %w", err)
	}
	ix.idx.ReplaceAuthorizations(entries)
	ix.idx.ReplaceViews(views)
	return nil
}

// Recover drains the durable re-index queue: queued issues are indexed
// and their queue items deleted, batch by batch. Items stay queued when
// indexing fails. It returns the number of distinct issues indexed.
func (ix *Indexer) Recover(ctx context.Context) (int, error) {
	total := 0
	for {
		items, err := ix.store.ListReindexQueue(ctx, ix.batch)
		if err != nil {
			return total, fmt.Errorf("listing re-index queue: %w", err)
		}
		if len(items) == 0 {
			return total, nil
		}

		ids := make([]int64, 0, len(items))
		var keys []string
		for _, it := range items {
			ids = append(ids, it.ID)
			if !slices.Contains(keys, it.IssueKey) {
				keys = append(keys, it.IssueKey)
			}
		}
		for range keys {
			if err := ix.limiter.Wait(ctx); err != nil {
				return total, err
			}
		}
		if err := ix.Index(ctx, keys); err != nil {
			return total, err
		}
		if err := ix.store.DeleteReindexItems(ctx, ids); err != nil {
			return total, fmt.Errorf("deleting re-index items: %w", err)
		}
		total += len(keys)

		if len(items) < ix.batch {
			return total, nil
		}
	}
}
