package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/tracker/internal/bulk"
	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/query"
	"github.com/alfredjeanlab/tracker/internal/search"
)

// headerUser must match the server's user header.
const headerUser = "X-Tracker-User"

// HTTPClient implements TrackerClient using the tracker HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	opts       Options
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080").
func NewHTTPClient(baseURL string, opts Options) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		opts:       opts,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) Search(ctx context.Context, req *query.Request) (*search.Result, error) {
	var res search.Result
	if err := c.doJSON(ctx, http.MethodPost, "/v1/issues/search", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func valuesQuery(req *query.ValuesRequest) string {
	q := url.Values{}
	if req.ComponentKey != "" {
		q.Set("project", req.ComponentKey)
	}
	if req.Branch != "" {
		q.Set("branch", req.Branch)
	}
	if req.Query != "" {
		q.Set("q", req.Query)
	}
	if req.Size > 0 {
		q.Set("ps", strconv.Itoa(req.Size))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *HTTPClient) Tags(ctx context.Context, req *query.ValuesRequest) ([]string, error) {
	var resp valuesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/issues/tags"+valuesQuery(req), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *HTTPClient) Authors(ctx context.Context, req *query.ValuesRequest) ([]string, error) {
	var resp valuesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/issues/authors"+valuesQuery(req), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *HTTPClient) SecurityReport(ctx context.Context, req *query.ReportRequest) ([]query.CategoryStatistics, error) {
	q := url.Values{}
	q.Set("project", req.ComponentKey)
	if req.Branch != "" {
		q.Set("branch", req.Branch)
	}
	if req.IncludeCwe {
		q.Set("includeCwe", "true")
	}
	var resp reportResponse
	path := "/v1/security_reports/" + url.PathEscape(req.Standard) + "?" + q.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Categories, nil
}

func (c *HTTPClient) BulkChange(ctx context.Context, q *bulk.Query) (*bulk.Result, error) {
	var res bulk.Result
	if err := c.doJSON(ctx, http.MethodPost, "/v1/issues/bulk_change", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) ListTransitions(ctx context.Context, issue string) ([]string, error) {
	var resp transitionsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/issues/"+url.PathEscape(issue)+"/transitions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transitions, nil
}

func (c *HTTPClient) DoTransition(ctx context.Context, issue, transition, comment string) (*model.Issue, error) {
	var out model.Issue
	body := &transitionRequest{Transition: transition, Comment: comment}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/issues/"+url.PathEscape(issue)+"/transitions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Reindex(ctx context.Context, req *ReindexRequest) (int, error) {
	var resp reindexResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/index/reindex", req, &resp); err != nil {
		return 0, err
	}
	return resp.Indexed, nil
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp healthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server. Fields lists the
// offending request fields of validation failures.
type APIError struct {
	StatusCode int
	Message    string
	Fields     []model.FieldError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	if c.opts.User != "" {
		req.Header.Set(headerUser, c.opts.User)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error  string             `json:"error"`
			Fields []model.FieldError `json:"fields"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, Fields: errResp.Fields}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
