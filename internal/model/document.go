package model

import (
	"slices"
	"time"
)

// UnknownStandard is the security-standard category carried by issues whose
// rule explicitly maps to no category.
const UnknownStandard = "unknown"

// IssueDocument is the denormalized, read-only projection of an issue
// stored in the search index. A new version replaces the previous one
// wholesale.
type IssueDocument struct {
	Key            string     `json:"key"`
	ProjectUUID    string     `json:"project"`
	BranchUUID     string     `json:"branch"`
	MainBranch     bool       `json:"main_branch"`
	ModuleUUID     string     `json:"module,omitempty"`
	ModuleUUIDPath string     `json:"module_path,omitempty"`
	ComponentUUID  string     `json:"component"`
	DirectoryPath  string     `json:"directory,omitempty"`
	FilePath       string     `json:"file_path,omitempty"`
	Line           *int       `json:"line,omitempty"`
	Language       string     `json:"language,omitempty"`
	RuleKey        string     `json:"rule"`
	Severity       Severity   `json:"severity"`
	Status         Status     `json:"status"`
	Resolution     Resolution `json:"resolution,omitempty"`
	Type           IssueType  `json:"type"`
	Assignee       string     `json:"assignee,omitempty"`
	Author         string     `json:"author,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	OwaspTop10     []string   `json:"owasp_top10,omitempty"`
	SansTop25      []string   `json:"sans_top25,omitempty"`
	Cwe            []string   `json:"cwe,omitempty"`
	Effort         int64      `json:"effort,omitempty"`

	// Functional dates of the issue, not index time.
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// NewIssueDocument projects a persisted issue into its index document.
func NewIssueDocument(i *Issue) *IssueDocument {
	doc := &IssueDocument{
		Key:            i.Key,
		ProjectUUID:    i.ProjectUUID,
		BranchUUID:     i.BranchUUID,
		MainBranch:     i.MainBranch,
		ModuleUUID:     i.ModuleUUID,
		ModuleUUIDPath: i.ModuleUUIDPath,
		ComponentUUID:  i.ComponentUUID,
		DirectoryPath:  i.DirectoryPath,
		FilePath:       i.FilePath,
		Language:       i.Language,
		RuleKey:        i.RuleKey,
		Severity:       i.Severity,
		Status:         i.Status,
		Resolution:     i.Resolution,
		Type:           i.Type,
		Assignee:       i.Assignee,
		Author:         i.Author,
		Tags:           slices.Clone(i.Tags),
		OwaspTop10:     slices.Clone(i.OwaspTop10),
		SansTop25:      slices.Clone(i.SansTop25),
		Cwe:            slices.Clone(i.Cwe),
		Effort:         i.Effort,
		CreatedAt:      i.CreatedAt,
		UpdatedAt:      i.UpdatedAt,
	}
	if doc.BranchUUID == "" {
		doc.BranchUUID = i.ProjectUUID
		doc.MainBranch = true
	}
	if i.Line != nil {
		line := *i.Line
		doc.Line = &line
	}
	if i.ClosedAt != nil {
		t := *i.ClosedAt
		doc.ClosedAt = &t
	}
	return doc
}
