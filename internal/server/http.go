package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/tracker/internal/bulk"
	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/query"
)

// HeaderUser carries the login of the user a request is made for. Requests
// without it run as the anonymous user.
const HeaderUser = "X-Tracker-User"

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *TrackerServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/issues/search", s.handleSearch)
	mux.HandleFunc("POST /v1/issues/bulk_change", s.handleBulkChange)
	mux.HandleFunc("GET /v1/issues/tags", s.handleTags)
	mux.HandleFunc("GET /v1/issues/authors", s.handleAuthors)
	mux.HandleFunc("GET /v1/issues/{key}/transitions", s.handleListTransitions)
	mux.HandleFunc("POST /v1/issues/{key}/transitions", s.handleDoTransition)
	mux.HandleFunc("GET /v1/security_reports/{standard}", s.handleSecurityReport)
	mux.HandleFunc("POST /v1/index/reindex", s.handleReindex)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return AuthMiddleware(authToken, RequestLogger(mux))
}

// callerFor resolves the caller of r, writing an error response on failure.
func (s *TrackerServer) callerFor(w http.ResponseWriter, r *http.Request) (*model.Caller, bool) {
	c, err := s.resolveCaller(r.Context(), r.Header.Get(HeaderUser))
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	return c, true
}

// decodeBody decodes the JSON body of r into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// handleSearch handles POST /v1/issues/search.
func (s *TrackerServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := s.callerFor(w, r)
	if !ok {
		return
	}
	res, err := s.search.Search(r.Context(), &req, caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleBulkChange handles POST /v1/issues/bulk_change.
func (s *TrackerServer) handleBulkChange(w http.ResponseWriter, r *http.Request) {
	var q bulk.Query
	if !decodeBody(w, r, &q) {
		return
	}
	caller, ok := s.callerFor(w, r)
	if !ok {
		return
	}
	res, err := s.bulk.Execute(r.Context(), q, caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListTransitions handles GET /v1/issues/{key}/transitions.
func (s *TrackerServer) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.callerFor(w, r)
	if !ok {
		return
	}
	res, err := s.listTransitions(r.Context(), r.PathValue("key"), caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDoTransition handles POST /v1/issues/{key}/transitions.
func (s *TrackerServer) handleDoTransition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Issue = r.PathValue("key")
	caller, ok := s.callerFor(w, r)
	if !ok {
		return
	}
	issue, err := s.doTransition(r.Context(), &req, caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// handleSecurityReport handles GET /v1/security_reports/{standard}.
func (s *TrackerServer) handleSecurityReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := query.ReportRequest{
		Standard:     r.PathValue("standard"),
		ComponentKey: q.Get("project"),
		Branch:       q.Get("branch"),
	}
	if v := q.Get("includeCwe"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeServiceError(w, model.Invalid("includeCwe", "must be a boolean"))
			return
		}
		req.IncludeCwe = b
	}
	caller, ok := s.callerFor(w, r)
	if !ok {
		return
	}
	cats, err := s.search.SecurityReport(r.Context(), &req, caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SecurityReportResult{Standard: req.Standard, Categories: cats})
}

// valuesRequest reads the query parameters of tag and author searches.
func valuesRequest(r *http.Request) (*query.ValuesRequest, error) {
	q := r.URL.Query()
	req := &query.ValuesRequest{
		ComponentKey: q.Get("project"),
		Branch:       q.Get("branch"),
		Query:        q.Get("q"),
	}
	if v := q.Get("ps"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, model.Invalid("ps", "must be an integer")
		}
		req.Size = n
	}
	return req, nil
}

// handleTags handles GET /v1/issues/tags.
func (s *TrackerServer) handleTags(w http.ResponseWriter, r *http.Request) {
	req, err := valuesRequest(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	caller, ok := s.callerFor(w, r)
	if !ok {
		return
	}
	vals, err := s.search.Tags(r.Context(), req, caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValuesResult{Values: nonNil(vals)})
}

// handleAuthors handles GET /v1/issues/authors.
func (s *TrackerServer) handleAuthors(w http.ResponseWriter, r *http.Request) {
	req, err := valuesRequest(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	caller, ok := s.callerFor(w, r)
	if !ok {
		return
	}
	vals, err := s.search.Authors(r.Context(), req, caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValuesResult{Values: nonNil(vals)})
}

// handleReindex handles POST /v1/index/reindex.
func (s *TrackerServer) handleReindex(w http.ResponseWriter, r *http.Request) {
	var req ReindexRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := s.callerFor(w, r)
	if !ok {
		return
	}
	res, err := s.Reindex(r.Context(), &req, caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleHealth handles GET /v1/health.
func (s *TrackerServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
