package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ncobase/keyvault/core/authority/data/repository"
	"github.com/ncobase/keyvault/core/authority/structs"
	eventService "github.com/ncobase/keyvault/core/event/service"
	eventStructs "github.com/ncobase/keyvault/core/event/structs"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/ecode"
	"github.com/ncobase/keyvault/logging/logger"
	"github.com/ncobase/keyvault/nanoid"
	"github.com/ncobase/keyvault/paging"
	"github.com/ncobase/keyvault/util"
	"github.com/ncobase/keyvault/validator"
)

// AssignmentValidator checks that a project assignment names a project of
// the workspace and environments of that project.
type AssignmentValidator interface {
	ValidateAssignment(ctx context.Context, workspaceID string, assignment structs.ProjectAssignment) error
}

// Service administers roles and memberships.
type Service struct {
	d           *data.Data
	roles       repository.RoleRepository
	members     repository.MembershipRepository
	gate        *Gate
	recorder    *eventService.Recorder
	assignments AssignmentValidator
	logger      *logger.Logger
}

func NewService(d *data.Data, roles repository.RoleRepository, members repository.MembershipRepository, gate *Gate, recorder *eventService.Recorder, logger *logger.Logger) *Service {
	return &Service{
		d:        d,
		roles:    roles,
		members:  members,
		gate:     gate,
		recorder: recorder,
		logger:   logger,
	}
}

// SetAssignmentValidator sets the validator for role project assignments.
func (s *Service) SetAssignmentValidator(v AssignmentValidator) {
	s.assignments = v
}

func (s *Service) resolver() *Resolver {
	return s.gate.Resolver()
}

// CreateAdminRole creates the admin role of a new workspace and makes
// ownerID an accepted member holding it. Runs in the caller's transaction.
func (s *Service) CreateAdminRole(ctx context.Context, workspaceID, ownerID string) (*structs.Role, error) {
	now := time.Now().UTC()
	role := &structs.Role{
		ID:                nanoid.PrimaryKey(),
		WorkspaceID:       workspaceID,
		Name:              structs.AdminRoleName,
		Slug:              util.Slug(structs.AdminRoleName),
		Description:       "Workspace administrators",
		Authorities:       []structs.Authority{structs.WorkspaceAdmin},
		HasAdminAuthority: true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, err
	}

	membership := &structs.Membership{
		ID:                 nanoid.PrimaryKey(),
		WorkspaceID:        workspaceID,
		UserID:             ownerID,
		InvitationAccepted: true,
		RoleIDs:            []string{role.ID},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.members.Create(ctx, membership); err != nil {
		return nil, err
	}

	s.resolver().InvalidateUser(ctx, workspaceID, ownerID)
	return role, nil
}

// CreateRole creates a custom role in workspaceID.
func (s *Service) CreateRole(ctx context.Context, userID, workspaceID string, req *structs.CreateRoleRequest) (*structs.Role, error) {
	if _, err := s.gate.Require(ctx, userID, structs.CreateWorkspaceRole, structs.WorkspaceScope(workspaceID)); err != nil {
		return nil, err
	}
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.validateGrant(ctx, workspaceID, req.Authorities, req.Projects); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	role := &structs.Role{
		ID:          nanoid.PrimaryKey(),
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Slug:        util.Slug(req.Name),
		Description: req.Description,
		Authorities: req.Authorities,
		Projects:    req.Projects,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		s.logger.Error(ctx, "Failed to create role", "workspace_id", workspaceID, "error", err)
		return nil, err
	}

	s.record(ctx, userID, role, eventStructs.WorkspaceRoleCreated, "Role created")
	s.logger.Info(ctx, "Role created", "role_id", role.ID, "workspace_id", workspaceID)
	return role, nil
}

// UpdateRole edits a custom role. Every holder's cached authorities are dropped.
func (s *Service) UpdateRole(ctx context.Context, userID, roleID string, req *structs.UpdateRoleRequest) (*structs.Role, error) {
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, userID, structs.UpdateWorkspaceRole, structs.WorkspaceScope(role.WorkspaceID)); err != nil {
		return nil, err
	}
	if role.HasAdminAuthority {
		return nil, ecode.Newf(ecode.RequestErr, "Admin role %s cannot be updated", roleID)
	}
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.validateGrant(ctx, role.WorkspaceID, req.Authorities, req.Projects); err != nil {
		return nil, err
	}

	if req.Name != nil && *req.Name != role.Name {
		role.Name = *req.Name
		role.Slug = util.Slug(role.Name)
	}
	if req.Description != nil {
		role.Description = *req.Description
	}
	if req.Authorities != nil {
		role.Authorities = req.Authorities
	}
	if req.Projects != nil {
		role.Projects = req.Projects
	}
	role.UpdatedAt = time.Now().UTC()

	err = s.d.WithTx(ctx, func(ctx context.Context) error {
		if err := s.roles.Update(ctx, role); err != nil {
			return err
		}
		return s.invalidateHolders(ctx, role)
	})
	if err != nil {
		s.logger.Error(ctx, "Failed to update role", "role_id", roleID, "error", err)
		return nil, err
	}

	s.record(ctx, userID, role, eventStructs.WorkspaceRoleUpdated, "Role updated")
	s.logger.Info(ctx, "Role updated", "role_id", roleID, "workspace_id", role.WorkspaceID)
	return role, nil
}

// DeleteRole removes a custom role.
func (s *Service) DeleteRole(ctx context.Context, userID, roleID string) error {
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		return err
	}
	if _, err := s.gate.Require(ctx, userID, structs.DeleteWorkspaceRole, structs.WorkspaceScope(role.WorkspaceID)); err != nil {
		return err
	}
	if role.HasAdminAuthority {
		return ecode.Newf(ecode.RequestErr, "Admin role %s cannot be deleted", roleID)
	}

	err = s.d.WithTx(ctx, func(ctx context.Context) error {
		if err := s.invalidateHolders(ctx, role); err != nil {
			return err
		}
		return s.roles.Delete(ctx, roleID)
	})
	if err != nil {
		s.logger.Error(ctx, "Failed to delete role", "role_id", roleID, "error", err)
		return err
	}

	s.record(ctx, userID, role, eventStructs.WorkspaceRoleDeleted, "Role deleted")
	s.logger.Info(ctx, "Role deleted", "role_id", roleID, "workspace_id", role.WorkspaceID)
	return nil
}

// GetRole returns a role of a workspace the user may read roles in.
func (s *Service) GetRole(ctx context.Context, userID, roleID string) (*structs.Role, error) {
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Require(ctx, userID, structs.ReadWorkspaceRole, structs.WorkspaceScope(role.WorkspaceID)); err != nil {
		return nil, err
	}
	return role, nil
}

// ListRoles lists the roles of a workspace.
func (s *Service) ListRoles(ctx context.Context, userID, workspaceID string, params paging.Params) (*paging.Result[*structs.Role], error) {
	if _, err := s.gate.Require(ctx, userID, structs.ReadWorkspaceRole, structs.WorkspaceScope(workspaceID)); err != nil {
		return nil, err
	}
	params = paging.NormalizeParams(params, "created_at")
	return paging.Paginate(params, func(offset, limit int) ([]*structs.Role, int, error) {
		return s.roles.ListByWorkspace(ctx, workspaceID, offset, limit)
	})
}

func (s *Service) validateGrant(ctx context.Context, workspaceID string, authorities []structs.Authority, projects []structs.ProjectAssignment) error {
	for _, a := range authorities {
		if !a.Valid() {
			return ecode.Newf(ecode.ParamErr, "Unknown authority %s", a)
		}
		if a == structs.WorkspaceAdmin {
			return ecode.Newf(ecode.ParamErr, "Authority %s can not be granted to a custom role", a)
		}
	}
	if s.assignments == nil {
		return nil
	}
	for _, p := range projects {
		if err := s.assignments.ValidateAssignment(ctx, workspaceID, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) invalidateHolders(ctx context.Context, role *structs.Role) error {
	userIDs, err := s.members.UserIDsWithRole(ctx, role.ID)
	if err != nil {
		return fmt.Errorf("failed to list role holders: %w", err)
	}
	for _, id := range userIDs {
		s.resolver().InvalidateUser(ctx, role.WorkspaceID, id)
	}
	return nil
}

func (s *Service) record(ctx context.Context, userID string, role *structs.Role, t eventStructs.Type, title string) {
	s.recorder.Record(ctx, &eventStructs.Event{
		WorkspaceID: role.WorkspaceID,
		Type:        t,
		Source:      eventStructs.SourceWorkspaceRole,
		Title:       title,
		ItemID:      role.ID,
		TriggeredBy: userID,
		Metadata: map[string]any{
			"name":        role.Name,
			"authorities": role.Authorities,
		},
	})
}

func containsAdmin(roleIDs []string, adminRoleID string) bool {
	return adminRoleID != "" && slices.Contains(roleIDs, adminRoleID)
}
