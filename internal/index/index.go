// Package index is the in-process issue search index. It stores one
// IssueDocument per issue key, replaced wholesale on every write, together
// with the project authorization entries and portfolio memberships that
// filters consult at query time.
package index

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// Index holds issue documents and answers filtered, sorted and aggregated
// searches. All methods are safe for concurrent use.
type Index struct {
	mu        sync.RWMutex
	docs      map[string]*model.IssueDocument
	byProject map[string]map[string]struct{}
	auth      map[string]*model.AuthorizationEntry
	views     map[string][]string // portfolio uuid -> project uuids
}

// New returns an empty index.
func New() *Index {
	return &Index{
		docs:      make(map[string]*model.IssueDocument),
		byProject: make(map[string]map[string]struct{}),
		auth:      make(map[string]*model.AuthorizationEntry),
		views:     make(map[string][]string),
	}
}

// Put replaces the documents with the same keys.
func (x *Index) Put(docs ...*model.IssueDocument) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, d := range docs {
		c := cloneDoc(d)
		x.removeLocked(d.Key)
		x.docs[c.Key] = c
		keys, ok := x.byProject[c.ProjectUUID]
		if !ok {
			keys = make(map[string]struct{})
			x.byProject[c.ProjectUUID] = keys
		}
		keys[c.Key] = struct{}{}
	}
}

// Delete removes documents by key. Unknown keys are ignored.
func (x *Index) Delete(keys ...string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, k := range keys {
		x.removeLocked(k)
	}
}

// DeleteByProject removes every document of a project and returns how many
// were removed.
func (x *Index) DeleteByProject(projectUUID string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	keys := x.byProject[projectUUID]
	for k := range keys {
		delete(x.docs, k)
	}
	delete(x.byProject, projectUUID)
	return len(keys)
}

func (x *Index) removeLocked(key string) {
	old, ok := x.docs[key]
	if !ok {
		return
	}
	delete(x.docs, key)
	if keys := x.byProject[old.ProjectUUID]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(x.byProject, old.ProjectUUID)
		}
	}
}

// Get returns a copy of the document with the given key.
func (x *Index) Get(key string) (*model.IssueDocument, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	d, ok := x.docs[key]
	if !ok {
		return nil, false
	}
	return cloneDoc(d), true
}

// Len returns the number of indexed documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// Keys returns the keys of every indexed document, sorted.
func (x *Index) Keys() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	keys := make([]string, 0, len(x.docs))
	for k := range x.docs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ProjectKeys returns the keys of the documents of a project, sorted.
func (x *Index) ProjectKeys(projectUUID string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	keys := make([]string, 0, len(x.byProject[projectUUID]))
	for k := range x.byProject[projectUUID] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// PutAuthorization replaces the authorization entry of a project.
func (x *Index) PutAuthorization(entries ...*model.AuthorizationEntry) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range entries {
		c := *e
		c.Groups = slices.Clone(e.Groups)
		c.Users = slices.Clone(e.Users)
		x.auth[c.ProjectUUID] = &c
	}
}

// DeleteAuthorization removes the authorization entry of a project. Its
// documents become invisible to authorized searches.
func (x *Index) DeleteAuthorization(projectUUID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.auth, projectUUID)
}

// PutView sets the projects belonging to a portfolio or application.
func (x *Index) PutView(viewUUID string, projectUUIDs []string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.views[viewUUID] = slices.Clone(projectUUIDs)
}

// DeleteView forgets a portfolio.
func (x *Index) DeleteView(viewUUID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.views, viewUUID)
}

// ReplaceAuthorizations swaps the whole authorization table for entries.
func (x *Index) ReplaceAuthorizations(entries []*model.AuthorizationEntry) {
	auth := make(map[string]*model.AuthorizationEntry, len(entries))
	for _, e := range entries {
		c := *e
		c.Groups = slices.Clone(e.Groups)
		c.Users = slices.Clone(e.Users)
		auth[c.ProjectUUID] = &c
	}
	x.mu.Lock()
	x.auth = auth
	x.mu.Unlock()
}

// ReplaceViews swaps every portfolio membership for views.
func (x *Index) ReplaceViews(views map[string][]string) {
	m := make(map[string][]string, len(views))
	for k, v := range views {
		m[k] = slices.Clone(v)
	}
	x.mu.Lock()
	x.views = m
	x.mu.Unlock()
}

// Authorization returns a copy of the authorization entry of a project.
func (x *Index) Authorization(projectUUID string) (*model.AuthorizationEntry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.auth[projectUUID]
	if !ok {
		return nil, false
	}
	c := *e
	c.Groups = slices.Clone(e.Groups)
	c.Users = slices.Clone(e.Users)
	return &c, true
}

// SortField orders search hits by one field.
type SortField struct {
	Field string
	Desc  bool
	// MissingFirst places documents without a value before the others,
	// regardless of direction.
	MissingFirst bool
}

// SearchRequest describes one search. Aggregations run over the documents
// matched by Query; hits are the documents matched by both Query and
// PostFilter. A nil Query matches everything.
type SearchRequest struct {
	Query        Filter
	PostFilter   Filter
	Aggregations map[string]Aggregation
	Sort         []SortField
	From         int
	// Size is the maximum number of hits returned. Zero returns no hits,
	// which is useful for aggregation-only requests.
	Size int
}

// SearchResponse is the result of a search.
type SearchResponse struct {
	Total        int64
	Hits         []*model.IssueDocument
	Aggregations map[string]*AggregationResult
}

// Search evaluates a request against a consistent snapshot of the index.
func (x *Index) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	query := req.Query
	if query == nil {
		query = MatchAll()
	}
	var matched []*model.IssueDocument
	for _, d := range x.docs {
		if query.match(d, x) {
			matched = append(matched, d)
		}
	}
	// Map iteration order is random; aggregations and hit ordering must not
	// depend on it.
	slices.SortFunc(matched, func(a, b *model.IssueDocument) int { return strings.Compare(a.Key, b.Key) })

	resp := &SearchResponse{Aggregations: subAggregate(req.Aggregations, matched, x)}

	hits := matched
	if req.PostFilter != nil {
		hits = nil
		for _, d := range matched {
			if req.PostFilter.match(d, x) {
				hits = append(hits, d)
			}
		}
	}
	resp.Total = int64(len(hits))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(req.Sort) > 0 {
		slices.SortStableFunc(hits, func(a, b *model.IssueDocument) int { return compareDocs(a, b, req.Sort) })
	}
	from := max(req.From, 0)
	if from >= len(hits) || req.Size <= 0 {
		return resp, nil
	}
	end := min(from+req.Size, len(hits))
	resp.Hits = make([]*model.IssueDocument, 0, end-from)
	for _, d := range hits[from:end] {
		resp.Hits = append(resp.Hits, cloneDoc(d))
	}
	return resp, nil
}

func cloneDoc(d *model.IssueDocument) *model.IssueDocument {
	c := *d
	c.Tags = slices.Clone(d.Tags)
	c.OwaspTop10 = slices.Clone(d.OwaspTop10)
	c.SansTop25 = slices.Clone(d.SansTop25)
	c.Cwe = slices.Clone(d.Cwe)
	if d.Line != nil {
		line := *d.Line
		c.Line = &line
	}
	if d.ClosedAt != nil {
		t := *d.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

func compareDocs(a, b *model.IssueDocument, fields []SortField) int {
	for _, f := range fields {
		if c := compareField(a, b, f); c != 0 {
			return c
		}
	}
	return strings.Compare(a.Key, b.Key)
}

func compareField(a, b *model.IssueDocument, f SortField) int {
	okA, okB := hasValue(a, f.Field), hasValue(b, f.Field)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		if f.MissingFirst {
			return -1
		}
		return 1
	case !okB:
		if f.MissingFirst {
			return 1
		}
		return -1
	}

	var c int
	switch kindOf(f.Field) {
	case kindNumber:
		na, _ := number(a, f.Field)
		nb, _ := number(b, f.Field)
		switch {
		case na < nb:
			c = -1
		case na > nb:
			c = 1
		}
	case kindDate:
		ta, _ := date(a, f.Field)
		tb, _ := date(b, f.Field)
		c = ta.Compare(tb)
	default:
		c = strings.Compare(keywords(a, f.Field)[0], keywords(b, f.Field)[0])
	}
	if f.Desc {
		return -c
	}
	return c
}
