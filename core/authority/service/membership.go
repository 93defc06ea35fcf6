package service

import (
	"context"
	"time"

	"github.com/ncobase/keyvault/core/authority/structs"
	eventStructs "github.com/ncobase/keyvault/core/event/structs"
	"github.com/ncobase/keyvault/ecode"
	"github.com/ncobase/keyvault/nanoid"
	"github.com/ncobase/keyvault/paging"
	"github.com/ncobase/keyvault/validator"
)

// Invite adds a pending membership for req.UserID.
func (s *Service) Invite(ctx context.Context, userID, workspaceID string, req *structs.InviteMemberRequest) (*structs.Membership, error) {
	if _, err := s.gate.Require(ctx, userID, structs.AddUser, structs.WorkspaceScope(workspaceID)); err != nil {
		return nil, err
	}
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.checkAssignableRoles(ctx, workspaceID, req.RoleIDs); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	membership := &structs.Membership{
		ID:          nanoid.PrimaryKey(),
		WorkspaceID: workspaceID,
		UserID:      req.UserID,
		RoleIDs:     req.RoleIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if membership.RoleIDs == nil {
		membership.RoleIDs = []string{}
	}
	if err := s.members.Create(ctx, membership); err != nil {
		s.logger.Error(ctx, "Failed to invite member", "workspace_id", workspaceID, "user_id", req.UserID, "error", err)
		return nil, err
	}

	s.recordMembership(ctx, userID, membership, eventStructs.InvitedToWorkspace, "User invited to workspace")
	s.logger.Info(ctx, "Member invited", "workspace_id", workspaceID, "user_id", req.UserID)
	return membership, nil
}

// AcceptInvitation activates the caller's membership.
func (s *Service) AcceptInvitation(ctx context.Context, userID, workspaceID string) (*structs.Membership, error) {
	membership, err := s.members.Find(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if membership.InvitationAccepted {
		return nil, ecode.Newf(ecode.InvalidState, "User %s has already accepted the invitation to workspace %s", userID, workspaceID)
	}
	if err := s.members.Accept(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	membership.InvitationAccepted = true
	s.resolver().InvalidateUser(ctx, workspaceID, userID)

	s.recordMembership(ctx, userID, membership, eventStructs.AcceptedInvitation, "Invitation accepted")
	s.logger.Info(ctx, "Invitation accepted", "workspace_id", workspaceID, "user_id", userID)
	return membership, nil
}

// UpdateMemberRoles replaces the roles of a member. The admin role can not
// be granted or taken away this way.
func (s *Service) UpdateMemberRoles(ctx context.Context, userID, workspaceID, memberID string, req *structs.UpdateMemberRolesRequest) (*structs.Membership, error) {
	if _, err := s.gate.Require(ctx, userID, structs.UpdateUserRole, structs.WorkspaceScope(workspaceID)); err != nil {
		return nil, err
	}
	membership, err := s.members.Find(ctx, workspaceID, memberID)
	if err != nil {
		return nil, err
	}
	adminRoleID, err := s.resolver().AdminRoleID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if containsAdmin(membership.RoleIDs, adminRoleID) {
		return nil, ecode.Newf(ecode.RequestErr, "Roles of workspace admin %s cannot be changed", memberID)
	}
	if err := s.checkAssignableRoles(ctx, workspaceID, req.RoleIDs); err != nil {
		return nil, err
	}

	roleIDs := req.RoleIDs
	if roleIDs == nil {
		roleIDs = []string{}
	}
	if err := s.members.SetRoles(ctx, membership.ID, roleIDs); err != nil {
		s.logger.Error(ctx, "Failed to update member roles", "workspace_id", workspaceID, "user_id", memberID, "error", err)
		return nil, err
	}
	membership.RoleIDs = roleIDs
	s.resolver().InvalidateUser(ctx, workspaceID, memberID)

	s.recordMembership(ctx, userID, membership, eventStructs.WorkspaceMembershipUpdated, "Member roles updated")
	s.logger.Info(ctx, "Member roles updated", "workspace_id", workspaceID, "user_id", memberID)
	return membership, nil
}

// RemoveMember revokes a membership. Workspace admins can not be removed.
func (s *Service) RemoveMember(ctx context.Context, userID, workspaceID, memberID string) error {
	if _, err := s.gate.Require(ctx, userID, structs.RemoveUser, structs.WorkspaceScope(workspaceID)); err != nil {
		return err
	}
	membership, err := s.members.Find(ctx, workspaceID, memberID)
	if err != nil {
		return err
	}
	adminRoleID, err := s.resolver().AdminRoleID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if containsAdmin(membership.RoleIDs, adminRoleID) {
		return ecode.Newf(ecode.RequestErr, "Workspace admin %s cannot be removed", memberID)
	}

	if err := s.members.Delete(ctx, workspaceID, memberID); err != nil {
		s.logger.Error(ctx, "Failed to remove member", "workspace_id", workspaceID, "user_id", memberID, "error", err)
		return err
	}
	s.resolver().InvalidateUser(ctx, workspaceID, memberID)

	s.recordMembership(ctx, userID, membership, eventStructs.RemovedFromWorkspace, "Member removed from workspace")
	s.logger.Info(ctx, "Member removed", "workspace_id", workspaceID, "user_id", memberID)
	return nil
}

// ListMembers lists the memberships of a workspace.
func (s *Service) ListMembers(ctx context.Context, userID, workspaceID string, params paging.Params) (*paging.Result[*structs.Membership], error) {
	if _, err := s.gate.Require(ctx, userID, structs.ReadUsers, structs.WorkspaceScope(workspaceID)); err != nil {
		return nil, err
	}
	params = paging.NormalizeParams(params, "created_at")
	return paging.Paginate(params, func(offset, limit int) ([]*structs.Membership, int, error) {
		return s.members.ListByWorkspace(ctx, workspaceID, offset, limit)
	})
}

// WorkspaceIDs returns the workspaces userID is an accepted member of.
func (s *Service) WorkspaceIDs(ctx context.Context, userID string) ([]string, error) {
	return s.members.WorkspaceIDsForUser(ctx, userID)
}

func (s *Service) checkAssignableRoles(ctx context.Context, workspaceID string, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}
	roles, err := s.roles.ListByIDs(ctx, roleIDs)
	if err != nil {
		return err
	}
	found := make(map[string]*structs.Role, len(roles))
	for _, r := range roles {
		found[r.ID] = r
	}
	for _, id := range roleIDs {
		r, ok := found[id]
		if !ok || r.WorkspaceID != workspaceID {
			return ecode.Newf(ecode.NothingFound, "Role %s not found in workspace %s", id, workspaceID)
		}
		if r.HasAdminAuthority {
			return ecode.Newf(ecode.RequestErr, "Admin role %s cannot be assigned", id)
		}
	}
	return nil
}

func (s *Service) recordMembership(ctx context.Context, userID string, m *structs.Membership, t eventStructs.Type, title string) {
	s.recorder.Record(ctx, &eventStructs.Event{
		WorkspaceID: m.WorkspaceID,
		Type:        t,
		Source:      eventStructs.SourceMembership,
		Title:       title,
		ItemID:      m.UserID,
		TriggeredBy: userID,
		Metadata: map[string]any{
			"role_ids": m.RoleIDs,
		},
	})
}
