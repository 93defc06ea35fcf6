// Package structs defines the environment model.
package structs

import (
	"time"

	approvalStructs "github.com/ncobase/keyvault/core/approval/structs"
	authStructs "github.com/ncobase/keyvault/core/authority/structs"
)

// DefaultName is the environment every project starts with.
const DefaultName = "default"

type Environment struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	authStructs.ApprovalGate
	LastUpdatedByID string    `json:"last_updated_by_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (e *Environment) GateState() authStructs.ApprovalGate { return e.ApprovalGate }

func (e *Environment) AuthorityScope() authStructs.Scope {
	return authStructs.EnvironmentScope(e.WorkspaceID, e.ProjectID, e.ID)
}

func (e *Environment) Kind() string { return "Environment" }

func (e *Environment) Identifier() string { return e.ID }

type CreateEnvironmentRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=64"`
	Description string `json:"description" validate:"max=1024"`
	Reason      string `json:"reason" validate:"max=1024"`
}

type UpdateEnvironmentRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Reason      string  `json:"reason" validate:"max=1024"`
}

func (r *UpdateEnvironmentRequest) Change() approvalStructs.EnvironmentUpdate {
	return approvalStructs.EnvironmentUpdate{Name: r.Name, Description: r.Description}
}

type DeleteRequest struct {
	Reason string `json:"reason" form:"reason" validate:"max=1024"`
}
