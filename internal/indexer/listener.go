package indexer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/tracker/internal/events"
)

// Listen applies index maintenance requests published by other nodes:
// re-index requests, project deletions and permission changes. It blocks
// until ctx is cancelled or a subscription closes.
func (ix *Indexer) Listen(ctx context.Context, sub events.Subscriber) error {
	reindex, cancelReindex, err := sub.Subscribe(events.TopicReindexRequested)
	if err != nil {
		return fmt.Errorf("indexer: subscribe: %w", err)
	}
	defer cancelReindex()
	deleted, cancelDeleted, err := sub.Subscribe(events.TopicProjectDeleted)
	if err != nil {
		return fmt.Errorf("indexer: subscribe: %w", err)
	}
	defer cancelDeleted()
	perms, cancelPerms, err := sub.Subscribe(events.TopicPermissionsChanged)
	if err != nil {
		return fmt.Errorf("indexer: subscribe: %w", err)
	}
	defer cancelPerms()

	ix.logger.Info("indexer: listener started")

	for {
		select {
		case <-ctx.Done():
			ix.logger.Info("indexer: listener stopping")
			return nil

		case msg, ok := <-reindex:
			if !ok {
				return nil
			}
			var req events.ReindexRequested
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				ix.logger.Warn("indexer: bad event payload", "topic", events.TopicReindexRequested, "err", err)
				continue
			}
			if req.ProjectUUID != "" {
				if _, err := ix.IndexProject(ctx, req.ProjectUUID); err != nil {
					ix.logger.Warn("indexer: project re-index failed", "project", req.ProjectUUID, "err", err)
				}
			}
			if err := ix.Index(ctx, req.IssueKeys); err != nil {
				ix.logger.Warn("indexer: re-index failed", "issues", len(req.IssueKeys), "err", err)
			}

		case msg, ok := <-deleted:
			if !ok {
				return nil
			}
			var ev events.ProjectDeleted
			if err := json.Unmarshal(msg.Data, &ev); err != nil || ev.ProjectUUID == "" {
				ix.logger.Warn("indexer: bad event payload", "topic", events.TopicProjectDeleted, "err", err)
				continue
			}
			ix.DeleteProject(ev.ProjectUUID)

		case _, ok := <-perms:
			if !ok {
				return nil
			}
			if err := ix.SyncAuthorizations(ctx); err != nil {
				ix.logger.Warn("indexer: authorization sync failed", "err", err)
			}
		}
	}
}
