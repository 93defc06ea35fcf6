// Package structs defines the project model.
package structs

import (
	"time"

	approvalStructs "github.com/ncobase/keyvault/core/approval/structs"
	authStructs "github.com/ncobase/keyvault/core/authority/structs"
	envStructs "github.com/ncobase/keyvault/core/environment/structs"
)

type AccessLevel string

const (
	AccessGlobal   AccessLevel = "GLOBAL"
	AccessInternal AccessLevel = "INTERNAL"
	AccessPrivate  AccessLevel = "PRIVATE"
)

type Project struct {
	ID              string      `json:"id"`
	WorkspaceID     string      `json:"workspace_id"`
	Name            string      `json:"name"`
	Slug            string      `json:"slug"`
	Description     string      `json:"description"`
	PublicKey       string      `json:"public_key"`
	PrivateKey      string      `json:"private_key,omitempty"`
	StorePrivateKey bool        `json:"store_private_key"`
	AccessLevel     AccessLevel `json:"access_level"`
	authStructs.ApprovalGate
	LastUpdatedByID string    `json:"last_updated_by_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (p *Project) GateState() authStructs.ApprovalGate { return p.ApprovalGate }

func (p *Project) AuthorityScope() authStructs.Scope {
	return authStructs.ProjectScope(p.WorkspaceID, p.ID)
}

func (p *Project) Kind() string { return "Project" }

func (p *Project) Identifier() string { return p.ID }

// Redacted returns a copy without the private key.
func (p *Project) Redacted() *Project {
	out := *p
	out.PrivateKey = ""
	return &out
}

type CreateProjectRequest struct {
	Name            string                                `json:"name" validate:"required,min=1,max=64"`
	Description     string                                `json:"description" validate:"max=1024"`
	StorePrivateKey bool                                  `json:"store_private_key"`
	AccessLevel     AccessLevel                           `json:"access_level" validate:"omitempty,oneof=GLOBAL INTERNAL PRIVATE"`
	Environments    []envStructs.CreateEnvironmentRequest `json:"environments" validate:"omitempty,dive"`
	Reason          string                                `json:"reason" validate:"max=1024"`
}

type UpdateProjectRequest struct {
	Name              *string      `json:"name"`
	Description       *string      `json:"description"`
	AccessLevel       *AccessLevel `json:"access_level"`
	StorePrivateKey   *bool        `json:"store_private_key"`
	RegenerateKeyPair bool         `json:"regenerate_key_pair"`
	Reason            string       `json:"reason" validate:"max=1024"`
}

func (r *UpdateProjectRequest) Change() approvalStructs.ProjectUpdate {
	var level *string
	if r.AccessLevel != nil {
		s := string(*r.AccessLevel)
		level = &s
	}
	return approvalStructs.ProjectUpdate{
		Name:              r.Name,
		Description:       r.Description,
		AccessLevel:       level,
		StorePrivateKey:   r.StorePrivateKey,
		RegenerateKeyPair: r.RegenerateKeyPair,
	}
}

type DeleteRequest struct {
	Reason string `json:"reason" form:"reason" validate:"max=1024"`
}
