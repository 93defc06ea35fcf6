// Package structs defines the workspace model.
package structs

import (
	"time"

	approvalStructs "github.com/ncobase/keyvault/core/approval/structs"
	authStructs "github.com/ncobase/keyvault/core/authority/structs"
)

type Workspace struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	Icon            string    `json:"icon"`
	IsPublic        bool      `json:"is_public"`
	ApprovalEnabled bool      `json:"approval_enabled"`
	OwnerID         string    `json:"owner_id"`
	LastUpdatedByID string    `json:"last_updated_by_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// GateState is always open: workspaces are never created under approval.
func (w *Workspace) GateState() authStructs.ApprovalGate {
	return authStructs.ApprovalGate{}
}

func (w *Workspace) AuthorityScope() authStructs.Scope {
	return authStructs.WorkspaceScope(w.ID)
}

func (w *Workspace) Kind() string { return "Workspace" }

func (w *Workspace) Identifier() string { return w.ID }

type CreateWorkspaceRequest struct {
	Name            string `json:"name" validate:"required,min=1,max=64"`
	Icon            string `json:"icon" validate:"max=255"`
	IsPublic        bool   `json:"is_public"`
	ApprovalEnabled bool   `json:"approval_enabled"`
}

type UpdateWorkspaceRequest struct {
	Name            *string `json:"name"`
	Icon            *string `json:"icon"`
	IsPublic        *bool   `json:"is_public"`
	ApprovalEnabled *bool   `json:"approval_enabled"`
	Reason          string  `json:"reason" validate:"max=1024"`
}

func (r *UpdateWorkspaceRequest) Change() approvalStructs.WorkspaceUpdate {
	return approvalStructs.WorkspaceUpdate{
		Name:            r.Name,
		Icon:            r.Icon,
		IsPublic:        r.IsPublic,
		ApprovalEnabled: r.ApprovalEnabled,
	}
}
