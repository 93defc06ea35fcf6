package structs

// Level is the granularity of a scope.
type Level int

const (
	LevelWorkspace Level = iota
	LevelProject
	LevelEnvironment
)

// Scope identifies a workspace, optionally narrowed to a project and an
// environment of that project.
type Scope struct {
	WorkspaceID   string `json:"workspace_id"`
	ProjectID     string `json:"project_id,omitempty"`
	EnvironmentID string `json:"environment_id,omitempty"`
}

func WorkspaceScope(workspaceID string) Scope {
	return Scope{WorkspaceID: workspaceID}
}

func ProjectScope(workspaceID, projectID string) Scope {
	return Scope{WorkspaceID: workspaceID, ProjectID: projectID}
}

func EnvironmentScope(workspaceID, projectID, environmentID string) Scope {
	return Scope{WorkspaceID: workspaceID, ProjectID: projectID, EnvironmentID: environmentID}
}

// Level returns the narrowest level the scope names.
func (s Scope) Level() Level {
	switch {
	case s.ProjectID != "" && s.EnvironmentID != "":
		return LevelEnvironment
	case s.ProjectID != "":
		return LevelProject
	default:
		return LevelWorkspace
	}
}

// CacheField is the field under which the resolved set is cached.
func (s Scope) CacheField() string {
	switch s.Level() {
	case LevelEnvironment:
		return "p:" + s.ProjectID + ":e:" + s.EnvironmentID
	case LevelProject:
		return "p:" + s.ProjectID
	default:
		return "ws"
	}
}
