// Package service contains environment business logic.
package service

import (
	"context"
	"time"

	approvalService "github.com/ncobase/keyvault/core/approval/service"
	approvalStructs "github.com/ncobase/keyvault/core/approval/structs"
	authService "github.com/ncobase/keyvault/core/authority/service"
	authStructs "github.com/ncobase/keyvault/core/authority/structs"
	"github.com/ncobase/keyvault/core/environment/data/repository"
	"github.com/ncobase/keyvault/core/environment/structs"
	eventService "github.com/ncobase/keyvault/core/event/service"
	eventStructs "github.com/ncobase/keyvault/core/event/structs"
	projectService "github.com/ncobase/keyvault/core/project/service"
	projectStructs "github.com/ncobase/keyvault/core/project/structs"
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
	repo      repository.EnvironmentRepository
	projects  *projectService.Service
	gate      *authService.Gate
	approvals *approvalService.Service
	recorder  *eventService.Recorder
	logger    *logger.Logger
}

func NewService(d *data.Data, repo repository.EnvironmentRepository, projects *projectService.Service,
	gate *authService.Gate, approvals *approvalService.Service, recorder *eventService.Recorder, logger *logger.Logger) *Service {
	return &Service{
		d:         d,
		repo:      repo,
		projects:  projects,
		gate:      gate,
		approvals: approvals,
		recorder:  recorder,
		logger:    logger,
	}
}

// Find returns an environment without any authority check.
func (s *Service) Find(ctx context.Context, id string) (*structs.Environment, error) {
	return s.repo.FindByID(ctx, id)
}

// Create adds an environment to a project that is not itself pending.
func (s *Service) Create(ctx context.Context, userID, projectID string, req *structs.CreateEnvironmentRequest) (*approvalStructs.Outcome[*structs.Environment], error) {
	project, err := s.projects.Find(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Check(ctx, userID, authStructs.CreateEnvironment, project); err != nil {
		return nil, err
	}
	if project.Pending {
		return nil, pendingParent(project)
	}
	if err := validator.Validate(req); err != nil {
		return nil, err
	}

	enabled, err := s.projects.ApprovalEnabled(ctx, project)
	if err != nil {
		return nil, err
	}
	deferred, err := s.approvals.ShouldDefer(ctx, enabled, project.WorkspaceID, userID, authStructs.ApprovalGate{})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	env := &structs.Environment{
		ID:              nanoid.PrimaryKey(),
		WorkspaceID:     project.WorkspaceID,
		ProjectID:       project.ID,
		Name:            req.Name,
		Slug:            util.Slug(req.Name),
		Description:     req.Description,
		LastUpdatedByID: userID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if deferred {
		env.ApprovalGate = authStructs.ApprovalGate{Pending: true, RequestedBy: userID}
	}

	var approval *approvalStructs.Approval
	err = s.d.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, env); err != nil {
			return err
		}
		if !deferred {
			return nil
		}
		approval, err = s.approvals.Create(ctx, &approvalService.Request{
			WorkspaceID:   env.WorkspaceID,
			ItemType:      approvalStructs.ItemEnvironment,
			ItemID:        env.ID,
			Action:        approvalStructs.ActionCreate,
			RequestedByID: userID,
			Reason:        req.Reason,
			Change:        approvalStructs.Creation{},
		})
		return err
	})
	if err != nil {
		if !ecode.Is(err, ecode.Conflict) {
			s.logger.Error(ctx, "Failed to create environment", "project_id", projectID, "error", err)
		}
		return nil, err
	}

	if deferred {
		s.logger.Info(ctx, "Environment created pending approval", "environment_id", env.ID, "approval_id", approval.ID)
		return &approvalStructs.Outcome[*structs.Environment]{Item: env, Approval: approval}, nil
	}
	s.record(ctx, userID, env, eventStructs.EnvironmentCreated, "Environment created", nil)
	s.logger.Info(ctx, "Environment created", "environment_id", env.ID, "project_id", projectID)
	return approvalStructs.Applied(env), nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (*structs.Environment, error) {
	return authService.Load(ctx, s.gate, userID, authStructs.ReadEnvironment, s.finder(id))
}

// List returns the environments of a project the user can see.
func (s *Service) List(ctx context.Context, userID, projectID string, params paging.Params) (*paging.Result[*structs.Environment], error) {
	if _, err := s.projects.Get(ctx, userID, projectID); err != nil {
		return nil, err
	}
	envs, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	visible := make([]*structs.Environment, 0, len(envs))
	for _, e := range envs {
		ok, err := s.gate.Visible(ctx, userID, authStructs.ReadEnvironment, e)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, e)
		}
	}
	return paging.Paginate(params, func(offset, limit int) ([]*structs.Environment, int, error) {
		return paging.Window(visible, offset, limit)
	})
}

func (s *Service) Update(ctx context.Context, userID, id string, req *structs.UpdateEnvironmentRequest) (*approvalStructs.Outcome[*structs.Environment], error) {
	env, err := authService.Load(ctx, s.gate, userID, authStructs.UpdateEnvironment, s.finder(id))
	if err != nil {
		return nil, err
	}
	id = env.ID
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	change := req.Change()
	if err := validator.Validate(&change); err != nil {
		return nil, err
	}

	deferred, err := s.shouldDefer(ctx, userID, env)
	if err != nil {
		return nil, err
	}
	if deferred {
		a, err := s.approvals.Create(ctx, &approvalService.Request{
			WorkspaceID:   env.WorkspaceID,
			ItemType:      approvalStructs.ItemEnvironment,
			ItemID:        env.ID,
			Action:        approvalStructs.ActionUpdate,
			RequestedByID: userID,
			Reason:        req.Reason,
			Change:        change,
		})
		if err != nil {
			return nil, err
		}
		return approvalStructs.Deferred[*structs.Environment](a), nil
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

// ApplyUpdate writes an environment change.
func (s *Service) ApplyUpdate(ctx context.Context, id string, change approvalStructs.EnvironmentUpdate, actorID string) error {
	env, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if change.Name != nil && *change.Name != env.Name {
		env.Name = *change.Name
		env.Slug = util.Slug(env.Name)
	}
	if change.Description != nil {
		env.Description = *change.Description
	}
	env.LastUpdatedByID = actorID
	env.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, env); err != nil {
		if !ecode.Is(err, ecode.Conflict) {
			s.logger.Error(ctx, "Failed to update environment", "environment_id", id, "error", err)
		}
		return err
	}
	s.record(ctx, actorID, env, eventStructs.EnvironmentUpdated, "Environment updated", approvalStructs.EncodeChange(change))
	s.logger.Info(ctx, "Environment updated", "environment_id", id)
	return nil
}

// Delete removes the environment, or defers the deletion. The last
// environment of a project can not be deleted.
func (s *Service) Delete(ctx context.Context, userID, id string, req *structs.DeleteRequest) (*approvalStructs.Outcome[*structs.Environment], error) {
	env, err := authService.Load(ctx, s.gate, userID, authStructs.DeleteEnvironment, s.finder(id))
	if err != nil {
		return nil, err
	}
	id = env.ID
	if err := s.checkNotLast(ctx, env); err != nil {
		return nil, err
	}

	deferred, err := s.shouldDefer(ctx, userID, env)
	if err != nil {
		return nil, err
	}
	if deferred {
		a, err := s.approvals.Create(ctx, &approvalService.Request{
			WorkspaceID:   env.WorkspaceID,
			ItemType:      approvalStructs.ItemEnvironment,
			ItemID:        env.ID,
			Action:        approvalStructs.ActionDelete,
			RequestedByID: userID,
			Reason:        req.Reason,
			Change:        approvalStructs.Deletion{},
		})
		if err != nil {
			return nil, err
		}
		return approvalStructs.Deferred[*structs.Environment](a), nil
	}

	err = s.d.WithTx(ctx, func(ctx context.Context) error {
		if err := s.approvals.Discard(ctx, approvalStructs.ItemEnvironment, id); err != nil {
			return err
		}
		return s.Remove(ctx, id, userID)
	})
	if err != nil {
		return nil, err
	}
	return &approvalStructs.Outcome[*structs.Environment]{}, nil
}

// Finalize clears the pending flag of an environment.
func (s *Service) Finalize(ctx context.Context, id, actorID string) error {
	env, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !env.Pending {
		return ecode.Newf(ecode.InvalidState, "Environment %s is not pending creation", id)
	}
	env.ApprovalGate = authStructs.ApprovalGate{}
	env.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, env); err != nil {
		s.logger.Error(ctx, "Failed to finalize environment", "environment_id", id, "error", err)
		return err
	}
	s.record(ctx, actorID, env, eventStructs.EnvironmentCreated, "Environment created", nil)
	s.logger.Info(ctx, "Environment finalized", "environment_id", id)
	return nil
}

// Remove deletes an environment with its secrets and variables.
func (s *Service) Remove(ctx context.Context, id, actorID string) error {
	env, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkNotLast(ctx, env); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error(ctx, "Failed to delete environment", "environment_id", id, "error", err)
		return err
	}
	s.record(ctx, actorID, env, eventStructs.EnvironmentDeleted, "Environment deleted", nil)
	s.logger.Info(ctx, "Environment deleted", "environment_id", id)
	return nil
}

// Item returns an environment for display.
func (s *Service) Item(ctx context.Context, id string) (any, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) checkNotLast(ctx context.Context, env *structs.Environment) error {
	n, err := s.repo.CountByProject(ctx, env.ProjectID)
	if err != nil {
		return err
	}
	if n <= 1 {
		return ecode.Newf(ecode.InvalidState, "Environment %s is the only environment of project %s", env.ID, env.ProjectID)
	}
	return nil
}

func (s *Service) shouldDefer(ctx context.Context, userID string, env *structs.Environment) (bool, error) {
	project, err := s.projects.Find(ctx, env.ProjectID)
	if err != nil {
		return false, err
	}
	enabled, err := s.projects.ApprovalEnabled(ctx, project)
	if err != nil {
		return false, err
	}
	return s.approvals.ShouldDefer(ctx, enabled, env.WorkspaceID, userID, env.GateState())
}

// finder resolves idOrSlug by id first, then by slug.
func (s *Service) finder(idOrSlug string) func(context.Context) (*structs.Environment, error) {
	return func(ctx context.Context) (*structs.Environment, error) {
		env, err := s.repo.FindByID(ctx, idOrSlug)
		if ecode.Is(err, ecode.NothingFound) {
			return s.repo.FindBySlug(ctx, idOrSlug)
		}
		return env, err
	}
}

func (s *Service) record(ctx context.Context, userID string, e *structs.Environment, t eventStructs.Type, title string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["name"] = e.Name
	metadata["project_id"] = e.ProjectID
	s.recorder.Record(ctx, &eventStructs.Event{
		WorkspaceID: e.WorkspaceID,
		Type:        t,
		Source:      eventStructs.SourceEnvironment,
		Title:       title,
		ItemID:      e.ID,
		TriggeredBy: userID,
		Metadata:    metadata,
	})
}

func pendingParent(project *projectStructs.Project) error {
	return ecode.Newf(ecode.InvalidState, "Project %s is pending approval", project.ID)
}
