// Package service contains project business logic. A project owns the key
// pair its secrets are sealed with.
package service

import (
	"context"
	"time"

	approvalService "github.com/ncobase/keyvault/core/approval/service"
	approvalStructs "github.com/ncobase/keyvault/core/approval/structs"
	authService "github.com/ncobase/keyvault/core/authority/service"
	authStructs "github.com/ncobase/keyvault/core/authority/structs"
	envRepository "github.com/ncobase/keyvault/core/environment/data/repository"
	envStructs "github.com/ncobase/keyvault/core/environment/structs"
	eventService "github.com/ncobase/keyvault/core/event/service"
	eventStructs "github.com/ncobase/keyvault/core/event/structs"
	"github.com/ncobase/keyvault/core/project/data/repository"
	"github.com/ncobase/keyvault/core/project/structs"
	wsStructs "github.com/ncobase/keyvault/core/workspace/structs"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/ecode"
	"github.com/ncobase/keyvault/logging/logger"
	"github.com/ncobase/keyvault/nanoid"
	"github.com/ncobase/keyvault/paging"
	"github.com/ncobase/keyvault/security/crypto"
	"github.com/ncobase/keyvault/util"
	"github.com/ncobase/keyvault/validator"
)

// WorkspaceFinder looks up the workspace a project lives in.
type WorkspaceFinder interface {
	Find(ctx context.Context, id string) (*wsStructs.Workspace, error)
}

// SecretCounter counts the secrets sealed with a project's key.
type SecretCounter interface {
	CountByProject(ctx context.Context, projectID string) (int, error)
}

type Service struct {
	d          *data.Data
	repo       repository.ProjectRepository
	envs       envRepository.EnvironmentRepository
	workspaces WorkspaceFinder
	gate       *authService.Gate
	approvals  *approvalService.Service
	secrets    SecretCounter
	recorder   *eventService.Recorder
	logger     *logger.Logger
}

func NewService(d *data.Data, repo repository.ProjectRepository, envs envRepository.EnvironmentRepository,
	workspaces WorkspaceFinder, gate *authService.Gate, approvals *approvalService.Service,
	recorder *eventService.Recorder, logger *logger.Logger) *Service {
	return &Service{
		d:          d,
		repo:       repo,
		envs:       envs,
		workspaces: workspaces,
		gate:       gate,
		approvals:  approvals,
		recorder:   recorder,
		logger:     logger,
	}
}

// SetSecretCounter sets the counter consulted before a key pair is
// regenerated.
func (s *Service) SetSecretCounter(counter SecretCounter) {
	s.secrets = counter
}

// Find returns a project with its keys and without any authority check.
func (s *Service) Find(ctx context.Context, id string) (*structs.Project, error) {
	return s.repo.FindByID(ctx, id)
}

// Create creates a project and its initial environments. The generated
// private key is returned once even when it is not stored.
func (s *Service) Create(ctx context.Context, userID, workspaceID string, req *structs.CreateProjectRequest) (*approvalStructs.Outcome[*structs.Project], error) {
	if _, err := s.gate.Require(ctx, userID, authStructs.CreateProject, authStructs.WorkspaceScope(workspaceID)); err != nil {
		return nil, err
	}
	workspace, err := s.workspaces.Find(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if err := validator.Validate(req); err != nil {
		return nil, err
	}

	deferred, err := s.approvals.ShouldDefer(ctx, workspace.ApprovalEnabled, workspaceID, userID, authStructs.ApprovalGate{})
	if err != nil {
		return nil, err
	}

	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	project := &structs.Project{
		ID:              nanoid.PrimaryKey(),
		WorkspaceID:     workspaceID,
		Name:            req.Name,
		Slug:            util.Slug(req.Name),
		Description:     req.Description,
		PublicKey:       keys.PublicKey,
		StorePrivateKey: req.StorePrivateKey,
		AccessLevel:     req.AccessLevel,
		LastUpdatedByID: userID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if project.AccessLevel == "" {
		project.AccessLevel = structs.AccessPrivate
	}
	if req.StorePrivateKey {
		project.PrivateKey = keys.PrivateKey
	}
	if deferred {
		project.ApprovalGate = authStructs.ApprovalGate{Pending: true, RequestedBy: userID}
	}

	envReqs := req.Environments
	if len(envReqs) == 0 {
		envReqs = []envStructs.CreateEnvironmentRequest{{Name: envStructs.DefaultName}}
	}

	var approval *approvalStructs.Approval
	err = s.d.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, project); err != nil {
			return err
		}
		for _, er := range envReqs {
			env := &envStructs.Environment{
				ID:              nanoid.PrimaryKey(),
				WorkspaceID:     workspaceID,
				ProjectID:       project.ID,
				Name:            er.Name,
				Slug:            util.Slug(er.Name),
				Description:     er.Description,
				ApprovalGate:    project.ApprovalGate,
				LastUpdatedByID: userID,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := s.envs.Create(ctx, env); err != nil {
				return err
			}
		}
		if !deferred {
			return nil
		}
		approval, err = s.approvals.Create(ctx, &approvalService.Request{
			WorkspaceID:   workspaceID,
			ItemType:      approvalStructs.ItemProject,
			ItemID:        project.ID,
			Action:        approvalStructs.ActionCreate,
			RequestedByID: userID,
			Reason:        req.Reason,
			Change:        approvalStructs.Creation{},
		})
		return err
	})
	if err != nil {
		if !ecode.Is(err, ecode.Conflict) {
			s.logger.Error(ctx, "Failed to create project", "workspace_id", workspaceID, "error", err)
		}
		return nil, err
	}

	created := *project
	created.PrivateKey = keys.PrivateKey
	if deferred {
		s.logger.Info(ctx, "Project created pending approval", "project_id", project.ID, "approval_id", approval.ID)
		return &approvalStructs.Outcome[*structs.Project]{Item: &created, Approval: approval}, nil
	}

	s.record(ctx, userID, project, eventStructs.ProjectCreated, "Project created", nil)
	s.logger.Info(ctx, "Project created", "project_id", project.ID, "workspace_id", workspaceID)
	return approvalStructs.Applied(&created), nil
}

// Get returns a project the user may read. A GLOBAL project that is not
// pending is readable by anyone.
func (s *Service) Get(ctx context.Context, userID, id string) (*structs.Project, error) {
	project, err := s.finder(id)(ctx)
	if err != nil {
		return nil, err
	}
	if project.AccessLevel == structs.AccessGlobal && !project.Pending {
		return project.Redacted(), nil
	}
	if _, err := s.gate.Check(ctx, userID, authStructs.ReadProject, project); err != nil {
		return nil, err
	}
	return project.Redacted(), nil
}

// List returns the projects of a workspace the user can see.
func (s *Service) List(ctx context.Context, userID, workspaceID string, params paging.Params) (*paging.Result[*structs.Project], error) {
	if _, err := s.gate.Require(ctx, userID, authStructs.ReadWorkspace, authStructs.WorkspaceScope(workspaceID)); err != nil {
		return nil, err
	}
	projects, err := s.repo.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	visible := make([]*structs.Project, 0, len(projects))
	for _, p := range projects {
		ok := p.AccessLevel == structs.AccessGlobal && !p.Pending
		if !ok {
			if ok, err = s.gate.Visible(ctx, userID, authStructs.ReadProject, p); err != nil {
				return nil, err
			}
		}
		if ok {
			visible = append(visible, p.Redacted())
		}
	}
	return paging.Paginate(params, func(offset, limit int) ([]*structs.Project, int, error) {
		return paging.Window(visible, offset, limit)
	})
}

// Update applies the change, or defers it when the workspace requires
// approvals. A regenerated private key that is not stored is returned once.
func (s *Service) Update(ctx context.Context, userID, id string, req *structs.UpdateProjectRequest) (*approvalStructs.Outcome[*structs.Project], error) {
	project, err := authService.Load(ctx, s.gate, userID, authStructs.UpdateProject, s.finder(id))
	if err != nil {
		return nil, err
	}
	id = project.ID
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	change := req.Change()
	if err := validator.Validate(&change); err != nil {
		return nil, err
	}
	if err := s.checkUpdate(ctx, project, change); err != nil {
		return nil, err
	}

	enabled, err := s.ApprovalEnabled(ctx, project)
	if err != nil {
		return nil, err
	}
	deferred, err := s.approvals.ShouldDefer(ctx, enabled, project.WorkspaceID, userID, project.GateState())
	if err != nil {
		return nil, err
	}
	if deferred {
		if change.RegenerateKeyPair && !util.Deref(change.StorePrivateKey, project.StorePrivateKey) {
			return nil, ecode.New(ecode.ParamErr, "A key pair regenerated through an approval must be stored")
		}
		a, err := s.approvals.Create(ctx, &approvalService.Request{
			WorkspaceID:   project.WorkspaceID,
			ItemType:      approvalStructs.ItemProject,
			ItemID:        project.ID,
			Action:        approvalStructs.ActionUpdate,
			RequestedByID: userID,
			Reason:        req.Reason,
			Change:        change,
		})
		if err != nil {
			return nil, err
		}
		return approvalStructs.Deferred[*structs.Project](a), nil
	}

	updated, privateKey, err := s.apply(ctx, id, change, userID)
	if err != nil {
		return nil, err
	}
	out := updated.Redacted()
	if change.RegenerateKeyPair {
		out.PrivateKey = privateKey
	}
	return approvalStructs.Applied(out), nil
}

// ApplyUpdate writes a project change.
func (s *Service) ApplyUpdate(ctx context.Context, id string, change approvalStructs.ProjectUpdate, actorID string) error {
	_, _, err := s.apply(ctx, id, change, actorID)
	return err
}

func (s *Service) apply(ctx context.Context, id string, change approvalStructs.ProjectUpdate, actorID string) (*structs.Project, string, error) {
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if err := s.checkUpdate(ctx, project, change); err != nil {
		return nil, "", err
	}

	if change.Name != nil && *change.Name != project.Name {
		project.Name = *change.Name
		project.Slug = util.Slug(project.Name)
	}
	if change.Description != nil {
		project.Description = *change.Description
	}
	if change.AccessLevel != nil {
		project.AccessLevel = structs.AccessLevel(*change.AccessLevel)
	}

	privateKey := project.PrivateKey
	if change.RegenerateKeyPair {
		keys, err := crypto.GenerateKeyPair()
		if err != nil {
			return nil, "", err
		}
		project.PublicKey = keys.PublicKey
		privateKey = keys.PrivateKey
	}
	if change.StorePrivateKey != nil {
		project.StorePrivateKey = *change.StorePrivateKey
	}
	if project.StorePrivateKey {
		project.PrivateKey = privateKey
	} else {
		project.PrivateKey = ""
	}
	project.LastUpdatedByID = actorID
	project.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, project); err != nil {
		s.logger.Error(ctx, "Failed to update project", "project_id", id, "error", err)
		return nil, "", err
	}

	s.record(ctx, actorID, project, eventStructs.ProjectUpdated, "Project updated", approvalStructs.EncodeChange(change))
	s.logger.Info(ctx, "Project updated", "project_id", id, "regenerated_keys", change.RegenerateKeyPair)
	return project, privateKey, nil
}

// checkUpdate rejects key changes that would strand sealed values.
func (s *Service) checkUpdate(ctx context.Context, project *structs.Project, change approvalStructs.ProjectUpdate) error {
	if change.RegenerateKeyPair && s.secrets != nil {
		n, err := s.secrets.CountByProject(ctx, project.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return ecode.Newf(ecode.InvalidState, "Project %s has %d secrets sealed with its key pair", project.ID, n)
		}
	}
	if util.Deref(change.StorePrivateKey, false) && project.PrivateKey == "" && !change.RegenerateKeyPair {
		return ecode.Newf(ecode.ParamErr, "Project %s has no private key to store, regenerate the key pair", project.ID)
	}
	return nil
}

// Delete removes the project, or defers the deletion.
func (s *Service) Delete(ctx context.Context, userID, id string, req *structs.DeleteRequest) (*approvalStructs.Outcome[*structs.Project], error) {
	project, err := authService.Load(ctx, s.gate, userID, authStructs.DeleteProject, s.finder(id))
	if err != nil {
		return nil, err
	}
	id = project.ID
	enabled, err := s.ApprovalEnabled(ctx, project)
	if err != nil {
		return nil, err
	}
	deferred, err := s.approvals.ShouldDefer(ctx, enabled, project.WorkspaceID, userID, project.GateState())
	if err != nil {
		return nil, err
	}
	if deferred {
		a, err := s.approvals.Create(ctx, &approvalService.Request{
			WorkspaceID:   project.WorkspaceID,
			ItemType:      approvalStructs.ItemProject,
			ItemID:        project.ID,
			Action:        approvalStructs.ActionDelete,
			RequestedByID: userID,
			Reason:        req.Reason,
			Change:        approvalStructs.Deletion{},
		})
		if err != nil {
			return nil, err
		}
		return approvalStructs.Deferred[*structs.Project](a), nil
	}

	err = s.d.WithTx(ctx, func(ctx context.Context) error {
		if err := s.approvals.Discard(ctx, approvalStructs.ItemProject, id); err != nil {
			return err
		}
		return s.Remove(ctx, id, userID)
	})
	if err != nil {
		return nil, err
	}
	return &approvalStructs.Outcome[*structs.Project]{}, nil
}

// Finalize clears the pending flag of a project and of the environments
// created with it.
func (s *Service) Finalize(ctx context.Context, id, actorID string) error {
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !project.Pending {
		return ecode.Newf(ecode.InvalidState, "Project %s is not pending creation", id)
	}
	project.ApprovalGate = authStructs.ApprovalGate{}
	project.UpdatedAt = time.Now().UTC()

	err = s.d.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, project); err != nil {
			return err
		}
		return s.envs.ClearPendingForProject(ctx, id)
	})
	if err != nil {
		s.logger.Error(ctx, "Failed to finalize project", "project_id", id, "error", err)
		return err
	}

	s.record(ctx, actorID, project, eventStructs.ProjectCreated, "Project created", nil)
	s.logger.Info(ctx, "Project finalized", "project_id", id)
	return nil
}

// Remove deletes a project with its environments, secrets and variables.
func (s *Service) Remove(ctx context.Context, id, actorID string) error {
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error(ctx, "Failed to delete project", "project_id", id, "error", err)
		return err
	}
	s.record(ctx, actorID, project, eventStructs.ProjectDeleted, "Project deleted", nil)
	s.logger.Info(ctx, "Project deleted", "project_id", id)
	return nil
}

// Item returns a project for display.
func (s *Service) Item(ctx context.Context, id string) (any, error) {
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return project.Redacted(), nil
}

// ValidateAssignment checks that a role assignment names a project of the
// workspace and environments of that project.
func (s *Service) ValidateAssignment(ctx context.Context, workspaceID string, assignment authStructs.ProjectAssignment) error {
	project, err := s.repo.FindByID(ctx, assignment.ProjectID)
	if err != nil {
		return err
	}
	if project.WorkspaceID != workspaceID {
		return ecode.Newf(ecode.ParamErr, "Project %s does not belong to workspace %s", project.ID, workspaceID)
	}
	for _, envID := range assignment.EnvironmentIDs {
		env, err := s.envs.FindByID(ctx, envID)
		if err != nil {
			return err
		}
		if env.ProjectID != project.ID {
			return ecode.Newf(ecode.ParamErr, "Environment %s does not belong to project %s", envID, project.ID)
		}
	}
	return nil
}

// ApprovalEnabled reports whether changes in the project's workspace need
// approval.
func (s *Service) ApprovalEnabled(ctx context.Context, project *structs.Project) (bool, error) {
	workspace, err := s.workspaces.Find(ctx, project.WorkspaceID)
	if err != nil {
		return false, err
	}
	return workspace.ApprovalEnabled, nil
}

// finder resolves idOrSlug by id first, then by slug.
func (s *Service) finder(idOrSlug string) func(context.Context) (*structs.Project, error) {
	return func(ctx context.Context) (*structs.Project, error) {
		project, err := s.repo.FindByID(ctx, idOrSlug)
		if ecode.Is(err, ecode.NothingFound) {
			return s.repo.FindBySlug(ctx, idOrSlug)
		}
		return project, err
	}
}

func (s *Service) record(ctx context.Context, userID string, p *structs.Project, t eventStructs.Type, title string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["name"] = p.Name
	s.recorder.Record(ctx, &eventStructs.Event{
		WorkspaceID: p.WorkspaceID,
		Type:        t,
		Source:      eventStructs.SourceProject,
		Title:       title,
		ItemID:      p.ID,
		TriggeredBy: userID,
		Metadata:    metadata,
	})
}
