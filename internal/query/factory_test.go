package query

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/tracker/internal/model"
)

type fakeComponents struct {
	components []*model.Component
	branches   []*model.Branch
}

func (f *fakeComponents) GetComponentsByKeys(_ context.Context, keys []string) ([]*model.Component, error) {
	var out []*model.Component
	for _, c := range f.components {
		for _, k := range keys {
			if c.Key == k {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeComponents) GetComponentsByUUIDs(_ context.Context, uuids []string) ([]*model.Component, error) {
	var out []*model.Component
	for _, c := range f.components {
		for _, u := range uuids {
			if c.UUID == u {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeComponents) GetBranch(_ context.Context, projectUUID, name string) (*model.Branch, error) {
	for _, b := range f.branches {
		if b.ProjectUUID == projectUUID && b.Name == name {
			return b, nil
		}
	}
	return nil, &model.NotFoundError{Kind: "branch", Key: name}
}

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestFactory() *Factory {
	f := NewFactory(&fakeComponents{
		components: []*model.Component{
			{UUID: "p1", Key: "proj1", Qualifier: model.QualifierProject, ProjectUUID: "p1"},
			{UUID: "p2", Key: "proj2", Qualifier: model.QualifierProject, ProjectUUID: "p2"},
			{UUID: "m1", Key: "proj1:mod", Qualifier: model.QualifierModule, ProjectUUID: "p1"},
			{UUID: "d1", Key: "proj1:src", Qualifier: model.QualifierDirectory, ProjectUUID: "p1", Path: "src"},
			{UUID: "f1", Key: "proj1:src/A.java", Qualifier: model.QualifierFile, ProjectUUID: "p1", Path: "src/A.java"},
			{UUID: "v1", Key: "portfolio", Qualifier: model.QualifierPortfolio, ProjectUUID: "v1"},
		},
		branches: []*model.Branch{
			{UUID: "p1", ProjectUUID: "p1", Name: "main", Main: true},
			{UUID: "b1", ProjectUUID: "p1", Name: "feature", Main: false},
		},
	}, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.now = func() time.Time { return testNow }
	return f
}

func create(t *testing.T, req *Request, caller *model.Caller) (*Spec, error) {
	t.Helper()
	return newTestFactory().Create(context.Background(), req, caller)
}

func validationFields(t *testing.T, err error) *model.ValidationError {
	t.Helper()
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *model.ValidationError, got %T: %v", err, err)
	}
	return ve
}

func TestCreate_ValidationErrors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		req   Request
		field string
	}{
		{"BothComponentParams", Request{ComponentKeys: []string{"proj1"}, ComponentUUIDs: []string{"p1"}}, "componentKeys"},
		{"EqualBounds", Request{CreatedAfter: "2024-01-01", CreatedBefore: "2024-01-01T00:00:00+0000"}, "createdAfter"},
		{"AfterLaterThanBefore", Request{CreatedAfter: "2024-02-01", CreatedBefore: "2024-01-01"}, "createdAfter"},
		{"AfterInFuture", Request{CreatedAfter: "2030-01-01"}, "createdAfter"},
		{"CreatedAtWithAfter", Request{CreatedAt: "2024-01-01", CreatedAfter: "2023-01-01"}, "createdAt"},
		{"AfterWithInLast", Request{CreatedAfter: "2023-01-01", CreatedInLast: "1m"}, "createdInLast"},
		{"BadInLast", Request{CreatedInLast: "3x"}, "createdInLast"},
		{"BadDate", Request{CreatedBefore: "yesterday"}, "createdBefore"},
		{"UnknownSort", Request{Sort: "PRIORITY"}, "sort"},
		{"BadSeverity", Request{Severities: []string{"HUGE"}}, "severities"},
		{"BadStatus", Request{Statuses: []string{"DONE"}}, "statuses"},
		{"BadFacet", Request{Facets: []string{"colors"}}, "facets"},
		{"BadFacetMode", Request{FacetMode: "weight"}, "facetMode"},
		{"MixedQualifiers", Request{ComponentKeys: []string{"proj1", "proj1:src/A.java"}}, "componentKeys"},
		{"BranchWithoutComponent", Request{Branch: "feature"}, "branch"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := create(t, &tc.req, model.Anonymous())
			if ve := validationFields(t, err); !ve.HasField(tc.field) {
				t.Errorf("expected error on %q, got %v", tc.field, ve)
			}
		})
	}
}

func TestCreate_UnknownSortNamesKey(t *testing.T) {
	_, err := create(t, &Request{Sort: "PRIORITY"}, nil)
	if err == nil || !strings.Contains(err.Error(), "PRIORITY") {
		t.Fatalf("expected error naming the sort key, got %v", err)
	}
}

func TestCreate_Dates(t *testing.T) {
	spec, err := create(t, &Request{CreatedAfter: "2024-01-01", CreatedBefore: "2024-01-10"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !spec.CreatedAfter.Equal(want) {
		t.Errorf("CreatedAfter = %v, want %v", spec.CreatedAfter, want)
	}
	// A date-only upper bound includes the whole day.
	if want := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC); !spec.CreatedBefore.Equal(want) {
		t.Errorf("CreatedBefore = %v, want %v", spec.CreatedBefore, want)
	}

	spec, err = create(t, &Request{CreatedBefore: "2024-01-10T08:30:00+0200"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 1, 10, 6, 30, 0, 0, time.UTC); !spec.CreatedBefore.Equal(want) {
		t.Errorf("CreatedBefore = %v, want %v", spec.CreatedBefore, want)
	}

	spec, err = create(t, &Request{CreatedInLast: "1m2w"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := testNow.AddDate(0, -1, -14); !spec.CreatedAfter.Equal(want) {
		t.Errorf("createdInLast: CreatedAfter = %v, want %v", spec.CreatedAfter, want)
	}
}

func TestCreate_TimeZone(t *testing.T) {
	spec, err := create(t, &Request{TimeZone: "Not/AZone", CreatedAfter: "2024-01-01"}, nil)
	if err != nil {
		t.Fatalf("invalid time zone should fall back silently: %v", err)
	}
	if spec.Location != time.UTC {
		t.Errorf("Location = %v, want UTC fallback", spec.Location)
	}

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	spec, err = create(t, &Request{TimeZone: "Asia/Tokyo", CreatedAfter: "2024-01-01"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, tokyo); !spec.CreatedAfter.Equal(want) {
		t.Errorf("CreatedAfter = %v, want %v", spec.CreatedAfter, want)
	}
}

func TestCreate_Scopes(t *testing.T) {
	viewer := &model.Caller{UUID: "u1", Permissions: map[string][]model.Permission{"v1": {model.PermissionBrowse}}}
	for _, tc := range []struct {
		name   string
		req    Request
		caller *model.Caller
		want   Scope
	}{
		{"Project", Request{ComponentKeys: []string{"proj1", "proj2"}}, nil, ProjectScope{UUIDs: []string{"p1", "p2"}}},
		{"ProjectByUUID", Request{ComponentUUIDs: []string{"p2"}}, nil, ProjectScope{UUIDs: []string{"p2"}}},
		{"Module", Request{ComponentKeys: []string{"proj1:mod"}}, nil, ModuleScope{UUIDs: []string{"m1"}}},
		{"Directory", Request{ComponentKeys: []string{"proj1:src"}}, nil, DirectoryScope{ProjectUUIDs: []string{"p1"}, Paths: []string{"src"}}},
		{"File", Request{ComponentKeys: []string{"proj1:src/A.java"}}, nil, FileScope{UUIDs: []string{"f1"}}},
		{"Unknown", Request{ComponentKeys: []string{"nope"}}, nil, FileScope{UUIDs: []string{UnknownUUID}}},
		{"PortfolioVisible", Request{ComponentKeys: []string{"portfolio"}}, viewer, PortfolioScope{UUIDs: []string{"v1"}}},
		{"PortfolioHidden", Request{ComponentKeys: []string{"portfolio"}}, model.Anonymous(), PortfolioScope{UUIDs: []string{UnknownUUID}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			spec, err := create(t, &tc.req, tc.caller)
			if err != nil {
				t.Fatal(err)
			}
			if got, want := scopeString(spec.Scope), scopeString(tc.want); got != want {
				t.Errorf("scope = %s, want %s", got, want)
			}
		})
	}
}

func scopeString(s Scope) string {
	switch s := s.(type) {
	case ProjectScope:
		return "project:" + strings.Join(s.UUIDs, ",")
	case ModuleScope:
		return "module:" + strings.Join(s.UUIDs, ",")
	case DirectoryScope:
		return "dir:" + strings.Join(s.ProjectUUIDs, ",") + "/" + strings.Join(s.Paths, ",")
	case FileScope:
		return "file:" + strings.Join(s.UUIDs, ",")
	case PortfolioScope:
		return "portfolio:" + strings.Join(s.UUIDs, ",")
	}
	return "none"
}

func TestCreate_Branch(t *testing.T) {
	spec, err := create(t, &Request{ComponentKeys: []string{"proj1"}, Branch: "feature"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Branch == nil || spec.Branch.UUID != "b1" || spec.Branch.Main {
		t.Fatalf("Branch = %+v, want b1 non-main", spec.Branch)
	}

	spec, err = create(t, &Request{ComponentKeys: []string{"proj1"}, Branch: "gone"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Branch == nil || spec.Branch.UUID != UnknownUUID {
		t.Fatalf("unknown branch should resolve to %s, got %+v", UnknownUUID, spec.Branch)
	}

	spec, err = create(t, &Request{ComponentKeys: []string{"proj1"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Branch != nil {
		t.Fatalf("no branch requested, got %+v", spec.Branch)
	}
}

func TestCreate_Defaults(t *testing.T) {
	spec, err := create(t, &Request{Assignees: []string{AssigneeMe, "u2"}, FacetSize: 500, FacetMode: "debt"}, &model.Caller{UUID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(spec.Assignees) != 2 || spec.Assignees[0] != "u1" || spec.Assignees[1] != "u2" {
		t.Errorf("Assignees = %v", spec.Assignees)
	}
	if spec.FacetSize != maxFacetSize || spec.FacetMode != FacetModeEffort || !spec.Asc {
		t.Errorf("FacetSize=%d FacetMode=%s Asc=%v", spec.FacetSize, spec.FacetMode, spec.Asc)
	}

	spec, err = create(t, &Request{Assignees: []string{AssigneeMe}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Assignees[0] != UnknownUUID || spec.FacetSize != defaultFacetSize {
		t.Errorf("anonymous __me__ = %v, FacetSize = %d", spec.Assignees, spec.FacetSize)
	}
}

func TestSubtractPeriod(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want time.Time
	}{
		{"1y", testNow.AddDate(-1, 0, 0)},
		{"3w", testNow.AddDate(0, 0, -21)},
		{"1Y2M3W4D", testNow.AddDate(-1, -2, -25)},
	} {
		got, err := subtractPeriod("createdInLast", tc.in, testNow)
		if err != nil {
			t.Errorf("%s: %v", tc.in, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("%s: got %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := subtractPeriod("createdInLast", "", testNow); err == nil {
		t.Error("empty period should fail")
	}
}
