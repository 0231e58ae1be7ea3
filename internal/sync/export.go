package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/store"
)

// exportBatch is the number of issues loaded per store round trip.
const exportBatch = 500

// Manifest summarizes an export. Two exports with equal manifests carry
// the same issues as far as the scheduler is concerned.
type Manifest struct {
	Issues     int       `json:"issue_count"`
	Unresolved int       `json:"unresolved_count"`
	Watermark  time.Time `json:"watermark"` // latest issue update
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version   string    `json:"version"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Manifest
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// issueRecord is an issue with its change log and comments.
type issueRecord struct {
	*model.Issue
	Changes  []*model.IssueChange `json:"changes,omitempty"`
	Comments []*model.Comment     `json:"comments,omitempty"`
}

// ExportJSONL writes every issue of the store as JSONL to w, in key order,
// each with its change log and comments. Issues are buffered so that the
// leading header can carry the manifest, which is also returned.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) (Manifest, error) {
	var (
		issues []issueRecord
		m      Manifest
	)
	filter := store.IssueFilter{Limit: exportBatch}
	for {
		page, err := s.ListIssues(ctx, filter)
		if err != nil {
			return Manifest{}, fmt.Errorf("list issues: %w", err)
		}
		for _, i := range page {
			changes, err := s.GetChanges(ctx, i.Key)
			if err != nil {
				return Manifest{}, fmt.Errorf("get changes for %s: %w", i.Key, err)
			}
			comments, err := s.GetComments(ctx, i.Key)
			if err != nil {
				return Manifest{}, fmt.Errorf("get comments for %s: %w", i.Key, err)
			}
			issues = append(issues, issueRecord{Issue: i, Changes: changes, Comments: comments})
			if i.Resolution == "" {
				m.Unresolved++
			}
			if i.UpdatedAt.After(m.Watermark) {
				m.Watermark = i.UpdatedAt
			}
		}
		if len(page) < exportBatch {
			break
		}
		filter.AfterKey = page[len(page)-1].Key
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	m.Issues = len(issues)
	m.Watermark = m.Watermark.UTC()
	if err := enc.Encode(header{
		Version:   "1",
		Type:      "header",
		Timestamp: time.Now().UTC(),
		Manifest:  m,
	}); err != nil {
		return Manifest{}, fmt.Errorf("encode header: %w", err)
	}

	for _, r := range issues {
		if err := enc.Encode(record{Type: "issue", Data: r}); err != nil {
			return Manifest{}, fmt.Errorf("encode issue %s: %w", r.Key, err)
		}
	}
	return m, nil
}
