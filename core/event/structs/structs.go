// Package structs defines audit events.
package structs

import (
	"time"

	"github.com/ncobase/keyvault/paging"
)

// Type is the kind of state transition an event records.
type Type string

const (
	WorkspaceCreated Type = "WORKSPACE_CREATED"
	WorkspaceUpdated Type = "WORKSPACE_UPDATED"
	WorkspaceDeleted Type = "WORKSPACE_DELETED"

	WorkspaceRoleCreated Type = "WORKSPACE_ROLE_CREATED"
	WorkspaceRoleUpdated Type = "WORKSPACE_ROLE_UPDATED"
	WorkspaceRoleDeleted Type = "WORKSPACE_ROLE_DELETED"

	InvitedToWorkspace         Type = "INVITED_TO_WORKSPACE"
	AcceptedInvitation         Type = "ACCEPTED_INVITATION"
	WorkspaceMembershipUpdated Type = "WORKSPACE_MEMBERSHIP_UPDATED"
	RemovedFromWorkspace       Type = "REMOVED_FROM_WORKSPACE"

	ProjectCreated Type = "PROJECT_CREATED"
	ProjectUpdated Type = "PROJECT_UPDATED"
	ProjectDeleted Type = "PROJECT_DELETED"

	EnvironmentCreated Type = "ENVIRONMENT_CREATED"
	EnvironmentUpdated Type = "ENVIRONMENT_UPDATED"
	EnvironmentDeleted Type = "ENVIRONMENT_DELETED"

	SecretCreated Type = "SECRET_CREATED"
	SecretUpdated Type = "SECRET_UPDATED"
	SecretDeleted Type = "SECRET_DELETED"

	VariableCreated Type = "VARIABLE_CREATED"
	VariableUpdated Type = "VARIABLE_UPDATED"
	VariableDeleted Type = "VARIABLE_DELETED"

	ApprovalCreated  Type = "APPROVAL_CREATED"
	ApprovalUpdated  Type = "APPROVAL_UPDATED"
	ApprovalApproved Type = "APPROVAL_APPROVED"
	ApprovalRejected Type = "APPROVAL_REJECTED"
	ApprovalDeleted  Type = "APPROVAL_DELETED"
)

// Source is the kind of entity an event is about.
type Source string

const (
	SourceWorkspace     Source = "WORKSPACE"
	SourceWorkspaceRole Source = "WORKSPACE_ROLE"
	SourceMembership    Source = "WORKSPACE_MEMBERSHIP"
	SourceProject       Source = "PROJECT"
	SourceEnvironment   Source = "ENVIRONMENT"
	SourceSecret        Source = "SECRET"
	SourceVariable      Source = "VARIABLE"
	SourceApproval      Source = "APPROVAL"
)

// Event is one audit record.
type Event struct {
	ID          string         `json:"id" bson:"id"`
	WorkspaceID string         `json:"workspace_id" bson:"workspace_id"`
	Type        Type           `json:"type" bson:"type"`
	Source      Source         `json:"source" bson:"source"`
	Title       string         `json:"title" bson:"title"`
	Description string         `json:"description,omitempty" bson:"description,omitempty"`
	ItemID      string         `json:"item_id,omitempty" bson:"item_id,omitempty"`
	TriggeredBy string         `json:"triggered_by,omitempty" bson:"triggered_by,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp" bson:"timestamp"`
}

// Filter narrows an event listing of one workspace.
type Filter struct {
	Sources []Source `json:"sources" form:"source"`
	Types   []Type   `json:"types" form:"type"`
	ItemID  string   `json:"item_id" form:"item_id"`
	paging.Params
}
