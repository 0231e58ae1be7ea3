package model

import (
	"slices"
	"time"
)

// Severity is the impact level of an issue. Severities are ordered; see Rank.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
	SeverityBlocker  Severity = "BLOCKER"
)

// Severities lists all severities from least to most severe.
var Severities = []Severity{SeverityInfo, SeverityMinor, SeverityMajor, SeverityCritical, SeverityBlocker}

func (s Severity) String() string { return string(s) }

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	return s.Rank() >= 0
}

// Rank returns the position of s in the severity ordering (INFO = 0,
// BLOCKER = 4), or -1 for an unknown severity.
func (s Severity) Rank() int {
	return slices.Index(Severities, s)
}

// Status is the workflow state of an issue.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusConfirmed Status = "CONFIRMED"
	StatusReopened  Status = "REOPENED"
	StatusResolved  Status = "RESOLVED"
	StatusClosed    Status = "CLOSED"
)

// Statuses lists all statuses in workflow order.
var Statuses = []Status{StatusOpen, StatusConfirmed, StatusReopened, StatusResolved, StatusClosed}

func (s Status) String() string { return string(s) }

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return slices.Contains(Statuses, s)
}

// Resolution records why an issue left the open states. The empty
// resolution means the issue is unresolved.
type Resolution string

const (
	ResolutionNone          Resolution = ""
	ResolutionFixed         Resolution = "FIXED"
	ResolutionFalsePositive Resolution = "FALSE-POSITIVE"
	ResolutionWontFix       Resolution = "WONTFIX"
	ResolutionRemoved       Resolution = "REMOVED"
)

// Resolutions lists all non-empty resolutions.
var Resolutions = []Resolution{ResolutionFixed, ResolutionFalsePositive, ResolutionWontFix, ResolutionRemoved}

func (r Resolution) String() string { return string(r) }

// IsValid reports whether r is a known resolution or empty.
func (r Resolution) IsValid() bool {
	return r == ResolutionNone || slices.Contains(Resolutions, r)
}

// IssueType categorizes an issue.
type IssueType string

const (
	TypeCodeSmell       IssueType = "CODE_SMELL"
	TypeBug             IssueType = "BUG"
	TypeVulnerability   IssueType = "VULNERABILITY"
	TypeSecurityHotspot IssueType = "SECURITY_HOTSPOT"
)

// IssueTypes lists all issue types.
var IssueTypes = []IssueType{TypeCodeSmell, TypeBug, TypeVulnerability, TypeSecurityHotspot}

func (t IssueType) String() string { return string(t) }

// IsValid reports whether t is a known issue type.
func (t IssueType) IsValid() bool {
	return slices.Contains(IssueTypes, t)
}

// Issue is the persisted form of an issue.
type Issue struct {
	Key            string     `json:"key"`
	RuleKey        string     `json:"rule"`
	ExternalRule   bool       `json:"external_rule,omitempty"`
	ComponentUUID  string     `json:"component"`
	ProjectUUID    string     `json:"project"`
	BranchUUID     string     `json:"branch"`
	Severity       Severity   `json:"severity"`
	ManualSeverity bool       `json:"manual_severity,omitempty"`
	Status         Status     `json:"status"`
	Resolution     Resolution `json:"resolution,omitempty"`
	Type           IssueType  `json:"type"`
	Assignee       string     `json:"assignee,omitempty"` // user uuid
	Author         string     `json:"author,omitempty"`   // scm login
	ActionPlan     string     `json:"action_plan,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Message        string     `json:"message,omitempty"`
	Line           *int       `json:"line,omitempty"`
	Effort         int64      `json:"effort,omitempty"` // minutes

	OwaspTop10 []string `json:"owasp_top10,omitempty"`
	SansTop25  []string `json:"sans_top25,omitempty"`
	Cwe        []string `json:"cwe,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`

	// Component data joined on read; not written back.
	ModuleUUID     string `json:"module_uuid,omitempty"`
	ModuleUUIDPath string `json:"module_uuid_path,omitempty"`
	DirectoryPath  string `json:"directory,omitempty"`
	FilePath       string `json:"file_path,omitempty"`
	Language       string `json:"language,omitempty"`
	MainBranch     bool   `json:"main_branch"`
}

// IsResolved reports whether the issue carries a resolution.
func (i *Issue) IsResolved() bool {
	return i.Resolution != ResolutionNone
}

// Clone returns a deep copy of the issue.
func (i *Issue) Clone() *Issue {
	c := *i
	c.Tags = slices.Clone(i.Tags)
	c.OwaspTop10 = slices.Clone(i.OwaspTop10)
	c.SansTop25 = slices.Clone(i.SansTop25)
	c.Cwe = slices.Clone(i.Cwe)
	if i.Line != nil {
		line := *i.Line
		c.Line = &line
	}
	if i.ClosedAt != nil {
		t := *i.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}
