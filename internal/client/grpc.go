package client

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/tracker/internal/bulk"
	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/query"
	"github.com/alfredjeanlab/tracker/internal/search"
)

const (
	serviceName  = "tracker.v1.IssuesService"
	metadataUser = "x-tracker-user"
)

// GRPCClient implements TrackerClient using the gRPC transport.
type GRPCClient struct {
	conn *grpc.ClientConn
	opts Options
}

// NewGRPCClient connects to the given gRPC address and returns a client.
func NewGRPCClient(addr string, opts Options) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return newGRPCClient(conn, opts), nil
}

func newGRPCClient(conn *grpc.ClientConn, opts Options) *GRPCClient {
	return &GRPCClient{conn: conn, opts: opts}
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// call invokes method with req encoded as a Struct and decodes the reply
// into resp.
func (c *GRPCClient) call(ctx context.Context, method string, req, resp any) error {
	in, err := encodeStruct(req)
	if err != nil {
		return err
	}
	if c.opts.Token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.opts.Token)
	}
	if c.opts.User != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, metadataUser, c.opts.User)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, in, out); err != nil {
		return err
	}
	return decodeStruct(out, resp)
}

func encodeStruct(v any) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if v == nil {
		return out, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("converting request: %w", err)
	}
	return out, nil
}

func decodeStruct(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("converting response: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *GRPCClient) Search(ctx context.Context, req *query.Request) (*search.Result, error) {
	var res search.Result
	if err := c.call(ctx, "Search", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *GRPCClient) Tags(ctx context.Context, req *query.ValuesRequest) ([]string, error) {
	var resp valuesResponse
	if err := c.call(ctx, "SearchTags", req, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *GRPCClient) Authors(ctx context.Context, req *query.ValuesRequest) ([]string, error) {
	var resp valuesResponse
	if err := c.call(ctx, "SearchAuthors", req, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *GRPCClient) SecurityReport(ctx context.Context, req *query.ReportRequest) ([]query.CategoryStatistics, error) {
	var resp reportResponse
	if err := c.call(ctx, "SecurityReport", req, &resp); err != nil {
		return nil, err
	}
	return resp.Categories, nil
}

func (c *GRPCClient) BulkChange(ctx context.Context, q *bulk.Query) (*bulk.Result, error) {
	var res bulk.Result
	if err := c.call(ctx, "BulkChange", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *GRPCClient) ListTransitions(ctx context.Context, issue string) ([]string, error) {
	var resp transitionsResponse
	if err := c.call(ctx, "ListTransitions", map[string]string{"issue": issue}, &resp); err != nil {
		return nil, err
	}
	return resp.Transitions, nil
}

func (c *GRPCClient) DoTransition(ctx context.Context, issue, transition, comment string) (*model.Issue, error) {
	var out model.Issue
	req := &transitionRequest{Issue: issue, Transition: transition, Comment: comment}
	if err := c.call(ctx, "DoTransition", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *GRPCClient) Reindex(ctx context.Context, req *ReindexRequest) (int, error) {
	var resp reindexResponse
	if err := c.call(ctx, "Reindex", req, &resp); err != nil {
		return 0, err
	}
	return resp.Indexed, nil
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	var resp healthResponse
	if err := c.call(ctx, "Health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}
