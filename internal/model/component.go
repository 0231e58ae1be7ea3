package model

// Qualifier is the containment level of a component.
type Qualifier string

const (
	QualifierProject      Qualifier = "TRK"
	QualifierModule       Qualifier = "BRC"
	QualifierDirectory    Qualifier = "DIR"
	QualifierFile         Qualifier = "FIL"
	QualifierUnitTest     Qualifier = "UTS"
	QualifierPortfolio    Qualifier = "VW"
	QualifierSubPortfolio Qualifier = "SVW"
	QualifierApplication  Qualifier = "APP"
)

func (q Qualifier) String() string { return string(q) }

// Component is a node of the project hierarchy: a project, module,
// directory or file, or a virtual portfolio/application.
type Component struct {
	UUID           string    `json:"uuid"`
	Key            string    `json:"key"`
	Name           string    `json:"name"`
	Qualifier      Qualifier `json:"qualifier"`
	ProjectUUID    string    `json:"project_uuid"`
	ModuleUUID     string    `json:"module_uuid,omitempty"`
	ModuleUUIDPath string    `json:"module_uuid_path,omitempty"`
	Path           string    `json:"path,omitempty"`
	Language       string    `json:"language,omitempty"`
}

// Branch identifies one branch of a project. The main branch shares its
// uuid with the project.
type Branch struct {
	UUID        string `json:"uuid"`
	ProjectUUID string `json:"project_uuid"`
	Name        string `json:"name"`
	Main        bool   `json:"main"`
}

// ActionPlan groups issues of one project under a deadline.
type ActionPlan struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	ProjectUUID string `json:"project_uuid"`
}
