package query

import (
	"context"
	"slices"

	"github.com/alfredjeanlab/tracker/internal/authz"
	"github.com/alfredjeanlab/tracker/internal/index"
	"github.com/alfredjeanlab/tracker/internal/model"
)

const defaultValuesSize = 10

// ValuesRequest searches the distinct tags or authors of visible issues.
type ValuesRequest struct {
	ComponentKey string `json:"project,omitempty"`
	Branch       string `json:"branch,omitempty"`
	Query        string `json:"q,omitempty"`
	Size         int    `json:"ps,omitempty"`
}

// CompiledValues is a tag or author search.
type CompiledValues struct {
	Request index.SearchRequest
}

const aggDistinct = "distinct"

// CompileValues validates req and compiles the search of the distinct
// values of field whose text contains req.Query.
func (f *Factory) CompileValues(ctx context.Context, field string, req *ValuesRequest, caller *model.Caller) (*CompiledValues, error) {
	size := req.Size
	switch {
	case size <= 0:
		size = defaultValuesSize
	case size > maxFacetSize:
		return nil, model.Invalid("ps", "must be at most %d", maxFacetSize)
	}
	spec := &Spec{}
	if req.ComponentKey != "" {
		if err := f.setScope(ctx, spec, &Request{ComponentKeys: []string{req.ComponentKey}, Branch: req.Branch}, caller); err != nil {
			return nil, err
		}
	}
	c, err := Compile(spec, authz.ForCaller(caller))
	if err != nil {
		return nil, err
	}
	return &CompiledValues{Request: index.SearchRequest{
		Query: index.And(c.Query, c.PostFilter),
		Aggregations: map[string]index.Aggregation{
			aggDistinct: index.TermsAgg{Field: field, Contains: req.Query, Size: size},
		},
	}}, nil
}

// Decode returns the matching values sorted alphabetically.
func (v *CompiledValues) Decode(aggs map[string]*index.AggregationResult) []string {
	out := []string{}
	if res := aggs[aggDistinct]; res != nil {
		for _, b := range res.Buckets {
			out = append(out, b.Key)
		}
	}
	slices.Sort(out)
	return out
}
