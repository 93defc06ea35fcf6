package structs

import "time"

// Membership binds a user to a workspace through zero or more roles. It is
// active only once the invitation is accepted.
type Membership struct {
	ID                 string    `json:"id"`
	WorkspaceID        string    `json:"workspace_id"`
	UserID             string    `json:"user_id"`
	InvitationAccepted bool      `json:"invitation_accepted"`
	RoleIDs            []string  `json:"role_ids"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Active reports whether the membership grants anything.
func (m *Membership) Active() bool {
	return m != nil && m.InvitationAccepted
}

type InviteMemberRequest struct {
	UserID  string   `json:"user_id" validate:"required"`
	RoleIDs []string `json:"role_ids"`
}

type UpdateMemberRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}
