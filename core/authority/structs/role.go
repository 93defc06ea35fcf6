package structs

import (
	"slices"
	"time"
)

// AdminRoleName is the name of the built-in admin role of every workspace.
const AdminRoleName = "Admin"

// ProjectAssignment grants a role access to a project and, optionally, to
// a subset of its environments.
type ProjectAssignment struct {
	ProjectID      string   `json:"project_id" validate:"required"`
	EnvironmentIDs []string `json:"environment_ids,omitempty"`
}

// Role belongs to exactly one workspace.
type Role struct {
	ID                string              `json:"id"`
	WorkspaceID       string              `json:"workspace_id"`
	Name              string              `json:"name"`
	Slug              string              `json:"slug"`
	Description       string              `json:"description"`
	Authorities       []Authority         `json:"authorities"`
	HasAdminAuthority bool                `json:"has_admin_authority"`
	Projects          []ProjectAssignment `json:"projects"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// Assignment returns the role's assignment for projectID.
func (r *Role) Assignment(projectID string) (ProjectAssignment, bool) {
	for _, p := range r.Projects {
		if p.ProjectID == projectID {
			return p, true
		}
	}
	return ProjectAssignment{}, false
}

// Applies reports whether the role grants its authorities at scope. A role
// without project assignments applies across the whole workspace.
func (r *Role) Applies(scope Scope) bool {
	if r.HasAdminAuthority || len(r.Projects) == 0 {
		return true
	}
	switch scope.Level() {
	case LevelWorkspace:
		return true
	case LevelProject:
		_, ok := r.Assignment(scope.ProjectID)
		return ok
	default:
		a, ok := r.Assignment(scope.ProjectID)
		return ok && slices.Contains(a.EnvironmentIDs, scope.EnvironmentID)
	}
}

type CreateRoleRequest struct {
	Name        string              `json:"name" validate:"required,min=1,max=64"`
	Description string              `json:"description" validate:"max=255"`
	Authorities []Authority         `json:"authorities"`
	Projects    []ProjectAssignment `json:"projects" validate:"dive"`
}

type UpdateRoleRequest struct {
	Name        *string             `json:"name" validate:"omitempty,min=1,max=64"`
	Description *string             `json:"description" validate:"omitempty,max=255"`
	Authorities []Authority         `json:"authorities"`
	Projects    []ProjectAssignment `json:"projects" validate:"omitempty,dive"`
}
