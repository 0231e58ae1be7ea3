package index

import (
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// Indexed field names.
const (
	FieldKey          = "key"
	FieldProject      = "project"
	FieldBranch       = "branch"
	FieldMainBranch   = "main_branch"
	FieldModule       = "module"
	FieldModulePath   = "module_path"
	FieldComponent    = "component"
	FieldDirectory    = "directory"
	FieldFilePath     = "file_path"
	FieldLine         = "line"
	FieldLanguage     = "language"
	FieldRule         = "rule"
	FieldSeverity     = "severity"
	FieldSeverityRank = "severity_rank"
	FieldStatus       = "status"
	FieldResolution   = "resolution"
	FieldType         = "type"
	FieldAssignee     = "assignee"
	FieldAuthor       = "author"
	FieldTags         = "tags"
	FieldOwaspTop10   = "owasp_top10"
	FieldSansTop25    = "sans_top25"
	FieldCwe          = "cwe"
	FieldEffort       = "effort"
	FieldCreatedAt    = "created_at"
	FieldUpdatedAt    = "updated_at"
	FieldClosedAt     = "closed_at"
)

type fieldKind int

const (
	kindKeyword fieldKind = iota
	kindNumber
	kindDate
)

func kindOf(field string) fieldKind {
	switch field {
	case FieldLine, FieldEffort, FieldSeverityRank:
		return kindNumber
	case FieldCreatedAt, FieldUpdatedAt, FieldClosedAt:
		return kindDate
	}
	return kindKeyword
}

// keywords returns the keyword values of field. Empty strings are treated
// as a missing value.
func keywords(doc *model.IssueDocument, field string) []string {
	one := func(s string) []string {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	switch field {
	case FieldKey:
		return one(doc.Key)
	case FieldProject:
		return one(doc.ProjectUUID)
	case FieldBranch:
		return one(doc.BranchUUID)
	case FieldMainBranch:
		return []string{strconv.FormatBool(doc.MainBranch)}
	case FieldModule:
		return one(doc.ModuleUUID)
	case FieldModulePath:
		return moduleTokens(doc.ModuleUUIDPath)
	case FieldComponent:
		return one(doc.ComponentUUID)
	case FieldDirectory:
		return one(doc.DirectoryPath)
	case FieldFilePath:
		return one(doc.FilePath)
	case FieldLanguage:
		return one(doc.Language)
	case FieldRule:
		return one(doc.RuleKey)
	case FieldSeverity:
		return one(string(doc.Severity))
	case FieldStatus:
		return one(string(doc.Status))
	case FieldResolution:
		return one(string(doc.Resolution))
	case FieldType:
		return one(string(doc.Type))
	case FieldAssignee:
		return one(doc.Assignee)
	case FieldAuthor:
		return one(doc.Author)
	case FieldTags:
		return doc.Tags
	case FieldOwaspTop10:
		return doc.OwaspTop10
	case FieldSansTop25:
		return doc.SansTop25
	case FieldCwe:
		return doc.Cwe
	case FieldLine, FieldEffort, FieldSeverityRank:
		if v, ok := number(doc, field); ok {
			return []string{strconv.FormatFloat(v, 'f', -1, 64)}
		}
	case FieldCreatedAt, FieldUpdatedAt, FieldClosedAt:
		if t, ok := date(doc, field); ok {
			return []string{t.UTC().Format(time.RFC3339Nano)}
		}
	}
	return nil
}

// moduleTokens splits a module uuid path such as ".m1.m2." into its uuids.
func moduleTokens(path string) []string {
	var out []string
	for _, p := range strings.Split(path, ".") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func number(doc *model.IssueDocument, field string) (float64, bool) {
	switch field {
	case FieldLine:
		if doc.Line == nil {
			return 0, false
		}
		return float64(*doc.Line), true
	case FieldEffort:
		return float64(doc.Effort), true
	case FieldSeverityRank:
		if r := doc.Severity.Rank(); r >= 0 {
			return float64(r), true
		}
	}
	return 0, false
}

func date(doc *model.IssueDocument, field string) (time.Time, bool) {
	switch field {
	case FieldCreatedAt:
		return doc.CreatedAt, !doc.CreatedAt.IsZero()
	case FieldUpdatedAt:
		return doc.UpdatedAt, !doc.UpdatedAt.IsZero()
	case FieldClosedAt:
		if doc.ClosedAt == nil {
			return time.Time{}, false
		}
		return *doc.ClosedAt, true
	}
	return time.Time{}, false
}

func hasValue(doc *model.IssueDocument, field string) bool {
	switch kindOf(field) {
	case kindNumber:
		_, ok := number(doc, field)
		return ok
	case kindDate:
		_, ok := date(doc, field)
		return ok
	}
	return len(keywords(doc, field)) > 0
}
