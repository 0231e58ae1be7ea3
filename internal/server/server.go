package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/tracker/internal/action"
	"github.com/alfredjeanlab/tracker/internal/bulk"
	"github.com/alfredjeanlab/tracker/internal/events"
	"github.com/alfredjeanlab/tracker/internal/indexer"
	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/query"
	"github.com/alfredjeanlab/tracker/internal/search"
	"github.com/alfredjeanlab/tracker/internal/store"
	"github.com/alfredjeanlab/tracker/internal/workflow"
)

// TrackerServer serves issue search, bulk changes, transitions and index
// maintenance over HTTP and gRPC.
type TrackerServer struct {
	store     store.Store
	search    *search.Service
	bulk      *bulk.Orchestrator
	workflow  *workflow.Workflow
	indexer   *indexer.Indexer
	publisher events.Publisher
	sseHub    *sseHub
	logger    *slog.Logger
}

// NewTrackerServer returns a server backed by the given store, search
// service and indexer. Issue changes are published to p and streamed to
// connected SSE clients.
func NewTrackerServer(s store.Store, searchSvc *search.Service, ix *indexer.Indexer, p events.Publisher, logger *slog.Logger) *TrackerServer {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	srv := &TrackerServer{
		store:     s,
		search:    searchSvc,
		workflow:  workflow.Default,
		indexer:   ix,
		publisher: p,
		sseHub:    newSSEHub(),
		logger:    logger,
	}
	pub := &hubPublisher{Publisher: p, hub: srv.sseHub, logger: logger}
	srv.bulk = bulk.New(s, action.DefaultRegistry(s, srv.workflow), srv.workflow, ix, pub, logger)
	return srv
}

// hubPublisher publishes events and fans issue changes out to SSE clients.
type hubPublisher struct {
	events.Publisher
	hub    *sseHub
	logger *slog.Logger
}

func (p *hubPublisher) Publish(ctx context.Context, topic string, event any) error {
	if ev, ok := event.(events.IssueChanged); ok && p.hub.remember(ev.ID) {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.logger.Warn("failed to marshal event for SSE broadcast", "topic", topic, "err", err)
		} else {
			p.hub.broadcast(topic, ev.ProjectUUID, payload)
		}
	}
	return p.Publisher.Publish(ctx, topic, event)
}

// resolveCaller loads the caller identified by login. An empty login is
// the anonymous caller; an unknown or inactive login is unauthenticated.
func (s *TrackerServer) resolveCaller(ctx context.Context, login string) (*model.Caller, error) {
	c, err := s.store.GetCaller(ctx, login)
	if err != nil {
		var nf *model.NotFoundError
		if errors.As(err, &nf) {
			return nil, &model.UnauthenticatedError{}
		}
		return nil, fmt.Errorf("resolving caller: %w", err)
	}
	return c, nil
}

// ReindexRequest selects what to re-index: the listed issues, one project
// (by key), or everything.
type ReindexRequest struct {
	IssueKeys []string `json:"issues,omitempty"`
	Project   string   `json:"project,omitempty"`
	All       bool     `json:"all,omitempty"`
}

// ReindexResult reports how many issues were indexed.
type ReindexResult struct {
	Indexed int `json:"indexed"`
}

// Reindex rebuilds index documents from the store and asks the other nodes
// to do the same. Only root callers may re-index.
func (s *TrackerServer) Reindex(ctx context.Context, req *ReindexRequest, caller *model.Caller) (*ReindexResult, error) {
	if !caller.IsLoggedIn() {
		return nil, &model.UnauthenticatedError{}
	}
	if !caller.Root {
		return nil, &model.PermissionError{Permission: model.PermissionAdmin}
	}

	var (
		n   int
		err error
		ev  events.ReindexRequested
	)
	switch {
	case req.All:
		n, err = s.indexer.IndexAll(ctx)
	case req.Project != "":
		var comps []*model.Component
		comps, err = s.store.GetComponentsByKeys(ctx, []string{req.Project})
		if err == nil && len(comps) == 0 {
			err = &model.NotFoundError{Kind: "project", Key: req.Project}
		}
		if err == nil {
			ev.ProjectUUID = comps[0].ProjectUUID
			n, err = s.indexer.IndexProject(ctx, ev.ProjectUUID)
		}
	case len(req.IssueKeys) > 0:
		if len(req.IssueKeys) > bulk.MaxIssues {
			return nil, model.Invalid("issues", "number of issues is limited to %d, got %d", bulk.MaxIssues, len(req.IssueKeys))
		}
		ev.IssueKeys = req.IssueKeys
		err = s.indexer.Index(ctx, req.IssueKeys)
		n = len(req.IssueKeys)
	default:
		return nil, model.Invalid("issues", "issues, project or all must be provided")
	}
	if err != nil {
		return nil, err
	}

	if !req.All {
		if err := s.publisher.Publish(ctx, events.TopicReindexRequested, ev); err != nil {
			s.logger.Warn("failed to publish re-index request", "error", err)
		}
	}
	s.logger.Info("re-index", "user", caller.Login, "indexed", n)
	return &ReindexResult{Indexed: n}, nil
}

// The handlers below are shared by the HTTP and gRPC transports.

// TransitionsResult lists the transitions available on an issue.
type TransitionsResult struct {
	Transitions []string `json:"transitions"`
}

func (s *TrackerServer) listTransitions(ctx context.Context, key string, caller *model.Caller) (*TransitionsResult, error) {
	ts, err := s.bulk.ListTransitions(ctx, key, caller)
	if err != nil {
		return nil, err
	}
	out := &TransitionsResult{Transitions: []string{}}
	for _, e := range workflow.Events(ts) {
		out.Transitions = append(out.Transitions, string(e))
	}
	return out, nil
}

// TransitionRequest runs one workflow event on an issue.
type TransitionRequest struct {
	Issue      string `json:"issue"`
	Transition string `json:"transition"`
	Comment    string `json:"comment,omitempty"`
}

func (s *TrackerServer) doTransition(ctx context.Context, req *TransitionRequest, caller *model.Caller) (*model.Issue, error) {
	if req.Issue == "" {
		return nil, model.Invalid("issue", "missing parameter: 'issue'")
	}
	if req.Transition == "" {
		return nil, model.Invalid("transition", "missing parameter: 'transition'")
	}
	return s.bulk.DoTransition(ctx, req.Issue, workflow.Event(req.Transition), req.Comment, caller)
}

// ValuesResult is the response of tag and author searches.
type ValuesResult struct {
	Values []string `json:"values"`
}

// SecurityReportResult is the response of a security report.
type SecurityReportResult struct {
	Standard   string                     `json:"standard"`
	Categories []query.CategoryStatistics `json:"categories"`
}
