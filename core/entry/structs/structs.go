// Package structs defines the versioned key/value entries shared by secrets
// and variables.
package structs

import (
	"time"

	approvalStructs "github.com/ncobase/keyvault/core/approval/structs"
	authStructs "github.com/ncobase/keyvault/core/authority/structs"
	eventStructs "github.com/ncobase/keyvault/core/event/structs"
)

// Kind describes one family of entries: where they are stored, which
// authorities guard them and which events they raise.
type Kind struct {
	Name         string
	Table        string
	VersionTable string
	ItemType     approvalStructs.ItemType
	Source       eventStructs.Source

	Create authStructs.Authority
	Read   authStructs.Authority
	Update authStructs.Authority
	Delete authStructs.Authority

	Created eventStructs.Type
	Updated eventStructs.Type
	Deleted eventStructs.Type
}

type Entry struct {
	ID            string `json:"id"`
	WorkspaceID   string `json:"workspace_id"`
	ProjectID     string `json:"project_id"`
	EnvironmentID string `json:"environment_id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Note          string `json:"note"`
	authStructs.ApprovalGate
	// Value and Version describe the latest version.
	Value           string    `json:"value"`
	Version         int       `json:"version"`
	LastUpdatedByID string    `json:"last_updated_by_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Label string `json:"-"`
}

func (e *Entry) GateState() authStructs.ApprovalGate { return e.ApprovalGate }

func (e *Entry) AuthorityScope() authStructs.Scope {
	return authStructs.EnvironmentScope(e.WorkspaceID, e.ProjectID, e.EnvironmentID)
}

func (e *Entry) Kind() string { return e.Label }

func (e *Entry) Identifier() string { return e.ID }

type Version struct {
	EntryID     string    `json:"-"`
	Version     int       `json:"version"`
	Value       string    `json:"value"`
	CreatedByID string    `json:"created_by_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateEntryRequest struct {
	Name   string `json:"name" validate:"required,min=1,max=128"`
	Note   string `json:"note" validate:"max=1024"`
	Value  string `json:"value" validate:"required"`
	Reason string `json:"reason" validate:"max=1024"`
}

type UpdateEntryRequest struct {
	Name   *string `json:"name"`
	Note   *string `json:"note"`
	Value  *string `json:"value"`
	Reason string  `json:"reason" validate:"max=1024"`
}

func (r *UpdateEntryRequest) Change() approvalStructs.EntryUpdate {
	return approvalStructs.EntryUpdate{Name: r.Name, Note: r.Note, Value: r.Value}
}

type MoveRequest struct {
	EnvironmentID string `json:"environment_id" validate:"required"`
	Reason        string `json:"reason" validate:"max=1024"`
}

type RollbackRequest struct {
	Version int    `json:"version" validate:"min=1"`
	Reason  string `json:"reason" validate:"max=1024"`
}

type DeleteRequest struct {
	Reason string `json:"reason" form:"reason" validate:"max=1024"`
}

// ReadParams controls how values are returned.
type ReadParams struct {
	Decrypt bool `json:"decrypt" form:"decrypt"`
}
