// Package client provides a transport-agnostic interface for the tracker
// service, with HTTP/JSON and gRPC implementations.
package client

import (
	"context"

	"github.com/alfredjeanlab/tracker/internal/bulk"
	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/query"
	"github.com/alfredjeanlab/tracker/internal/search"
)

// TrackerClient is the interface the tk commands use to talk to a tracker
// server. It is implemented by HTTPClient (default) and GRPCClient.
type TrackerClient interface {
	// Search
	Search(ctx context.Context, req *query.Request) (*search.Result, error)
	Tags(ctx context.Context, req *query.ValuesRequest) ([]string, error)
	Authors(ctx context.Context, req *query.ValuesRequest) ([]string, error)
	SecurityReport(ctx context.Context, req *query.ReportRequest) ([]query.CategoryStatistics, error)

	// Changes
	BulkChange(ctx context.Context, q *bulk.Query) (*bulk.Result, error)
	ListTransitions(ctx context.Context, issue string) ([]string, error)
	DoTransition(ctx context.Context, issue, transition, comment string) (*model.Issue, error)

	// Index maintenance
	Reindex(ctx context.Context, req *ReindexRequest) (int, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// Options configure a client. User is the login requests are made for;
// empty means anonymous. Token is the server's bearer token, if any.
type Options struct {
	User  string
	Token string
}

// ReindexRequest selects what the server re-indexes: the listed issues,
// one project by key, or everything.
type ReindexRequest struct {
	IssueKeys []string `json:"issues,omitempty"`
	Project   string   `json:"project,omitempty"`
	All       bool     `json:"all,omitempty"`
}

type transitionRequest struct {
	Issue      string `json:"issue,omitempty"`
	Transition string `json:"transition"`
	Comment    string `json:"comment,omitempty"`
}

type transitionsResponse struct {
	Transitions []string `json:"transitions"`
}

type valuesResponse struct {
	Values []string `json:"values"`
}

type reportResponse struct {
	Standard   string                     `json:"standard"`
	Categories []query.CategoryStatistics `json:"categories"`
}

type reindexResponse struct {
	Indexed int `json:"indexed"`
}

type healthResponse struct {
	Status string `json:"status"`
}
