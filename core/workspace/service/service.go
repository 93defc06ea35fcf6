// Package service contains workspace business logic.
package service

import (
	"context"
	"time"

	approvalService "github.com/ncobase/keyvault/core/approval/service"
	approvalStructs "github.com/ncobase/keyvault/core/approval/structs"
	authService "github.com/ncobase/keyvault/core/authority/service"
	authStructs "github.com/ncobase/keyvault/core/authority/structs"
	eventService "github.com/ncobase/keyvault/core/event/service"
	eventStructs "github.com/ncobase/keyvault/core/event/structs"
	"github.com/ncobase/keyvault/core/workspace/data/repository"
	"github.com/ncobase/keyvault/core/workspace/structs"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/ecode"
	"github.com/ncobase/keyvault/logging/logger"
	"github.com/ncobase/keyvault/nanoid"
	"github.com/ncobase/keyvault/paging"
	"github.com/ncobase/keyvault/util"
	"github.com/ncobase/keyvault/validator"
)

type Service struct {
	d         *data.Data
	repo      repository.WorkspaceRepository
	gate      *authService.Gate
	authority *authService.Service
	approvals *approvalService.Service
	recorder  *eventService.Recorder
	logger    *logger.Logger
}

func NewService(d *data.Data, repo repository.WorkspaceRepository, gate *authService.Gate, authority *authService.Service,
	approvals *approvalService.Service, recorder *eventService.Recorder, logger *logger.Logger) *Service {
	return &Service{
		d:         d,
		repo:      repo,
		gate:      gate,
		authority: authority,
		approvals: approvals,
		recorder:  recorder,
		logger:    logger,
	}
}

// Find returns a workspace without any authority check.
func (s *Service) Find(ctx context.Context, id string) (*structs.Workspace, error) {
	return s.repo.FindByID(ctx, id)
}

// Create creates a workspace together with its admin role. The owner becomes
// its first member.
func (s *Service) Create(ctx context.Context, userID string, req *structs.CreateWorkspaceRequest) (*structs.Workspace, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workspace := &structs.Workspace{
		ID:              nanoid.PrimaryKey(),
		Name:            req.Name,
		Slug:            util.Slug(req.Name),
		Icon:            req.Icon,
		IsPublic:        req.IsPublic,
		ApprovalEnabled: req.ApprovalEnabled,
		OwnerID:         userID,
		LastUpdatedByID: userID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.d.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, workspace); err != nil {
			return err
		}
		_, err := s.authority.CreateAdminRole(ctx, workspace.ID, userID)
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "Failed to create workspace", "owner_id", userID, "error", err)
		return nil, err
	}

	s.record(ctx, userID, workspace, eventStructs.WorkspaceCreated, "Workspace created", nil)
	s.logger.Info(ctx, "Workspace created", "workspace_id", workspace.ID, "owner_id", userID)
	return workspace, nil
}

// Get returns a workspace the user may read.
func (s *Service) Get(ctx context.Context, userID, id string) (*structs.Workspace, error) {
	return authService.Load(ctx, s.gate, userID, authStructs.ReadWorkspace, s.finder(id))
}

// List returns the workspaces the user is an accepted member of.
func (s *Service) List(ctx context.Context, userID string, params paging.Params) (*paging.Result[*structs.Workspace], error) {
	ids, err := s.authority.WorkspaceIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	params = paging.NormalizeParams(params, "created_at")
	return paging.Paginate(params, func(offset, limit int) ([]*structs.Workspace, int, error) {
		return s.repo.ListByIDs(ctx, ids, offset, limit)
	})
}

// Update applies the change, or defers it when the workspace requires
// approvals and the user can not manage them.
func (s *Service) Update(ctx context.Context, userID, id string, req *structs.UpdateWorkspaceRequest) (*approvalStructs.Outcome[*structs.Workspace], error) {
	workspace, err := authService.Load(ctx, s.gate, userID, authStructs.UpdateWorkspace, s.finder(id))
	if err != nil {
		return nil, err
	}
	id = workspace.ID
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	change := req.Change()
	if err := validator.Validate(&change); err != nil {
		return nil, err
	}

	deferred, err := s.approvals.ShouldDefer(ctx, workspace.ApprovalEnabled, workspace.ID, userID, workspace.GateState())
	if err != nil {
		return nil, err
	}
	if deferred {
		a, err := s.approvals.Create(ctx, &approvalService.Request{
			WorkspaceID:   workspace.ID,
			ItemType:      approvalStructs.ItemWorkspace,
			ItemID:        workspace.ID,
			Action:        approvalStructs.ActionUpdate,
			RequestedByID: userID,
			Reason:        req.Reason,
			Change:        change,
		})
		if err != nil {
			return nil, err
		}
		return approvalStructs.Deferred[*structs.Workspace](a), nil
	}

	if err := s.ApplyUpdate(ctx, id, change, userID); err != nil {
		return nil, err
	}
	updated, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return approvalStructs.Applied(updated), nil
}

// ApplyUpdate writes a workspace change.
func (s *Service) ApplyUpdate(ctx context.Context, id string, change approvalStructs.WorkspaceUpdate, actorID string) error {
	workspace, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if change.Name != nil && *change.Name != workspace.Name {
		workspace.Name = *change.Name
		workspace.Slug = util.Slug(workspace.Name)
	}
	if change.Icon != nil {
		workspace.Icon = *change.Icon
	}
	if change.IsPublic != nil {
		workspace.IsPublic = *change.IsPublic
	}
	if change.ApprovalEnabled != nil {
		workspace.ApprovalEnabled = *change.ApprovalEnabled
	}
	workspace.LastUpdatedByID = actorID
	workspace.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, workspace); err != nil {
		s.logger.Error(ctx, "Failed to update workspace", "workspace_id", id, "error", err)
		return err
	}

	s.record(ctx, actorID, workspace, eventStructs.WorkspaceUpdated, "Workspace updated", approvalStructs.EncodeChange(change))
	s.logger.Info(ctx, "Workspace updated", "workspace_id", id)
	return nil
}

// Delete removes a workspace. Only the owner or a DELETE_WORKSPACE holder
// may do so, and never through an approval.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	workspace, err := s.finder(id)(ctx)
	if err != nil {
		return err
	}
	id = workspace.ID
	if workspace.OwnerID != userID {
		if _, err := s.gate.Check(ctx, userID, authStructs.DeleteWorkspace, workspace); err != nil {
			return err
		}
	}
	return s.Remove(ctx, id, userID)
}

// Remove deletes a workspace and everything in it.
func (s *Service) Remove(ctx context.Context, id, actorID string) error {
	workspace, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error(ctx, "Failed to delete workspace", "workspace_id", id, "error", err)
		return err
	}
	s.gate.Resolver().InvalidateWorkspace(ctx, id)

	s.record(ctx, actorID, workspace, eventStructs.WorkspaceDeleted, "Workspace deleted", nil)
	s.logger.Info(ctx, "Workspace deleted", "workspace_id", id)
	return nil
}

// Item returns a workspace for display.
func (s *Service) Item(ctx context.Context, id string) (any, error) {
	return s.repo.FindByID(ctx, id)
}

// ApprovalEnabled reports whether changes in the workspace need approval.
func (s *Service) ApprovalEnabled(ctx context.Context, id string) (bool, error) {
	workspace, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	return workspace.ApprovalEnabled, nil
}

// finder resolves idOrSlug by id first, then by slug.
func (s *Service) finder(idOrSlug string) func(context.Context) (*structs.Workspace, error) {
	return func(ctx context.Context) (*structs.Workspace, error) {
		workspace, err := s.repo.FindByID(ctx, idOrSlug)
		if ecode.Is(err, ecode.NothingFound) {
			return s.repo.FindBySlug(ctx, idOrSlug)
		}
		return workspace, err
	}
}

func (s *Service) record(ctx context.Context, userID string, w *structs.Workspace, t eventStructs.Type, title string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["name"] = w.Name
	s.recorder.Record(ctx, &eventStructs.Event{
		WorkspaceID: w.ID,
		Type:        t,
		Source:      eventStructs.SourceWorkspace,
		Title:       title,
		ItemID:      w.ID,
		TriggeredBy: userID,
		Metadata:    metadata,
	})
}
