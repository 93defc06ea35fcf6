// Package service implements versioned entries. Secrets and variables are two
// Kinds of entry that differ in their tables, authorities and Codec.
package service

import (
	"context"
	"time"

	approvalService "github.com/ncobase/keyvault/core/approval/service"
	approvalStructs "github.com/ncobase/keyvault/core/approval/structs"
	authService "github.com/ncobase/keyvault/core/authority/service"
	authStructs "github.com/ncobase/keyvault/core/authority/structs"
	"github.com/ncobase/keyvault/core/entry/data/repository"
	"github.com/ncobase/keyvault/core/entry/structs"
	envService "github.com/ncobase/keyvault/core/environment/service"
	envStructs "github.com/ncobase/keyvault/core/environment/structs"
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

// Codec turns values into their stored form and back.
type Codec interface {
	Seal(project *projectStructs.Project, value string) (string, error)
	Open(project *projectStructs.Project, value string) (string, error)
}

type Service struct {
	d         *data.Data
	kind      structs.Kind
	repo      repository.Repository
	projects  *projectService.Service
	envs      *envService.Service
	gate      *authService.Gate
	approvals *approvalService.Service
	codec     Codec
	recorder  *eventService.Recorder
	logger    *logger.Logger
}

// Deps groups the collaborators shared by every Kind.
type Deps struct {
	Data         *data.Data
	Projects     *projectService.Service
	Environments *envService.Service
	Gate         *authService.Gate
	Approvals    *approvalService.Service
	Recorder     *eventService.Recorder
	Logger       *logger.Logger
}

func NewService(kind structs.Kind, repo repository.Repository, codec Codec, deps Deps) *Service {
	return &Service{
		d:         deps.Data,
		kind:      kind,
		repo:      repo,
		projects:  deps.Projects,
		envs:      deps.Environments,
		gate:      deps.Gate,
		approvals: deps.Approvals,
		codec:     codec,
		recorder:  deps.Recorder,
		logger:    deps.Logger,
	}
}

func (s *Service) Kind() structs.Kind {
	return s.kind
}

// CountByProject counts the entries of a project.
func (s *Service) CountByProject(ctx context.Context, projectID string) (int, error) {
	return s.repo.CountByProject(ctx, projectID)
}

// Create adds an entry with its first version to an environment that is not
// itself pending.
func (s *Service) Create(ctx context.Context, userID, environmentID string, req *structs.CreateEntryRequest) (*approvalStructs.Outcome[*structs.Entry], error) {
	env, err := s.envs.Find(ctx, environmentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.Check(ctx, userID, s.kind.Create, env); err != nil {
		return nil, err
	}
	project, err := s.parent(ctx, env)
	if err != nil {
		return nil, err
	}
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	value, err := s.codec.Seal(project, req.Value)
	if err != nil {
		return nil, err
	}

	enabled, err := s.projects.ApprovalEnabled(ctx, project)
	if err != nil {
		return nil, err
	}
	deferred, err := s.approvals.ShouldDefer(ctx, enabled, env.WorkspaceID, userID, authStructs.ApprovalGate{})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := &structs.Entry{
		ID:              nanoid.PrimaryKey(),
		WorkspaceID:     env.WorkspaceID,
		ProjectID:       env.ProjectID,
		EnvironmentID:   env.ID,
		Name:            req.Name,
		Slug:            util.Slug(req.Name),
		Note:            req.Note,
		Value:           value,
		Version:         1,
		LastUpdatedByID: userID,
		CreatedAt:       now,
		UpdatedAt:       now,
		Label:           s.kind.Name,
	}
	if deferred {
		entry.ApprovalGate = authStructs.ApprovalGate{Pending: true, RequestedBy: userID}
	}
	first := &structs.Version{EntryID: entry.ID, Version: 1, Value: value, CreatedByID: userID, CreatedAt: now}

	var approval *approvalStructs.Approval
	err = s.d.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, entry, first); err != nil {
			return err
		}
		if !deferred {
			return nil
		}
		approval, err = s.approvals.Create(ctx, &approvalService.Request{
			WorkspaceID:   entry.WorkspaceID,
			ItemType:      s.kind.ItemType,
			ItemID:        entry.ID,
			Action:        approvalStructs.ActionCreate,
			RequestedByID: userID,
			Reason:        req.Reason,
			Change:        approvalStructs.Creation{},
		})
		return err
	})
	if err != nil {
		if !ecode.Is(err, ecode.Conflict) {
			s.logger.Error(ctx, "Failed to create entry", "kind", s.kind.Name, "environment_id", environmentID, "error", err)
		}
		return nil, err
	}

	if deferred {
		s.logger.Info(ctx, "Entry created pending approval", "kind", s.kind.Name, "id", entry.ID, "approval_id", approval.ID)
		return &approvalStructs.Outcome[*structs.Entry]{Item: entry, Approval: approval}, nil
	}
	s.record(ctx, userID, entry, s.kind.Created, s.kind.Name+" created", nil)
	s.logger.Info(ctx, "Entry created", "kind", s.kind.Name, "id", entry.ID, "environment_id", environmentID)
	return approvalStructs.Applied(entry), nil
}

// Get returns an entry, opening its value when asked to.
func (s *Service) Get(ctx context.Context, userID, id string, params structs.ReadParams) (*structs.Entry, error) {
	entry, err := authService.Load(ctx, s.gate, userID, s.kind.Read, s.finder(id))
	if err != nil {
		return nil, err
	}
	if params.Decrypt {
		project, err := s.projects.Find(ctx, entry.ProjectID)
		if err != nil {
			return nil, err
		}
		if entry.Value, err = s.codec.Open(project, entry.Value); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// List returns the entries of an environment the user can see.
func (s *Service) List(ctx context.Context, userID, environmentID string, params paging.Params, read structs.ReadParams) (*paging.Result[*structs.Entry], error) {
	env, err := s.envs.Get(ctx, userID, environmentID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListByEnvironment(ctx, env.ID)
	if err != nil {
		return nil, err
	}

	var project *projectStructs.Project
	if read.Decrypt {
		if project, err = s.projects.Find(ctx, env.ProjectID); err != nil {
			return nil, err
		}
	}

	visible := make([]*structs.Entry, 0, len(entries))
	for _, e := range entries {
		ok, err := s.gate.Visible(ctx, userID, s.kind.Read, e)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if project != nil {
			if e.Value, err = s.codec.Open(project, e.Value); err != nil {
				return nil, err
			}
		}
		visible = append(visible, e)
	}
	return paging.Paginate(params, func(offset, limit int) ([]*structs.Entry, int, error) {
		return paging.Window(visible, offset, limit)
	})
}

// ListVersions returns the versions of an entry, newest first.
func (s *Service) ListVersions(ctx context.Context, userID, id string, params paging.Params, read structs.ReadParams) (*paging.Result[*structs.Version], error) {
	entry, err := authService.Load(ctx, s.gate, userID, s.kind.Read, s.finder(id))
	if err != nil {
		return nil, err
	}
	var project *projectStructs.Project
	if read.Decrypt {
		if project, err = s.projects.Find(ctx, entry.ProjectID); err != nil {
			return nil, err
		}
	}
	return paging.Paginate(params, func(offset, limit int) ([]*structs.Version, int, error) {
		versions, total, err := s.repo.ListVersions(ctx, entry.ID, offset, limit)
		if err != nil || project == nil {
			return versions, total, err
		}
		for _, v := range versions {
			if v.Value, err = s.codec.Open(project, v.Value); err != nil {
				return nil, 0, err
			}
		}
		return versions, total, nil
	})
}

// Update edits the name, note or value. A new value becomes the next
// version. Values are sealed before they reach an approval.
func (s *Service) Update(ctx context.Context, userID, id string, req *structs.UpdateEntryRequest) (*approvalStructs.Outcome[*structs.Entry], error) {
	entry, err := authService.Load(ctx, s.gate, userID, s.kind.Update, s.finder(id))
	if err != nil {
		return nil, err
	}
	id = entry.ID
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	change := req.Change()
	if err := validator.Validate(&change); err != nil {
		return nil, err
	}
	if change.Value != nil {
		project, err := s.projects.Find(ctx, entry.ProjectID)
		if err != nil {
			return nil, err
		}
		sealed, err := s.codec.Seal(project, *change.Value)
		if err != nil {
			return nil, err
		}
		change.Value = &sealed
	}
	return s.submit(ctx, userID, entry, approvalStructs.ActionUpdate, change, req.Reason, func(ctx context.Context) error {
		return s.ApplyUpdate(ctx, id, change, userID)
	})
}

// Move moves an entry to another environment of the same project.
func (s *Service) Move(ctx context.Context, userID, id string, req *structs.MoveRequest) (*approvalStructs.Outcome[*structs.Entry], error) {
	entry, err := authService.Load(ctx, s.gate, userID, s.kind.Update, s.finder(id))
	if err != nil {
		return nil, err
	}
	id = entry.ID
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	target, err := s.envs.Find(ctx, req.EnvironmentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkMove(entry, target); err != nil {
		return nil, err
	}
	if _, err := s.gate.Check(ctx, userID, s.kind.Create, target); err != nil {
		return nil, err
	}
	change := approvalStructs.EntryMove{EnvironmentID: target.ID}
	return s.submit(ctx, userID, entry, approvalStructs.ActionUpdate, change, req.Reason, func(ctx context.Context) error {
		return s.ApplyMove(ctx, id, target.ID, userID)
	})
}

// Rollback restores an earlier version. Newer versions are discarded.
func (s *Service) Rollback(ctx context.Context, userID, id string, req *structs.RollbackRequest) (*approvalStructs.Outcome[*structs.Entry], error) {
	entry, err := authService.Load(ctx, s.gate, userID, s.kind.Update, s.finder(id))
	if err != nil {
		return nil, err
	}
	id = entry.ID
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.checkRollback(ctx, entry, req.Version); err != nil {
		return nil, err
	}
	change := approvalStructs.EntryRollback{Version: req.Version}
	return s.submit(ctx, userID, entry, approvalStructs.ActionUpdate, change, req.Reason, func(ctx context.Context) error {
		return s.ApplyRollback(ctx, id, req.Version, userID)
	})
}

// Delete removes the entry, or defers the deletion.
func (s *Service) Delete(ctx context.Context, userID, id string, req *structs.DeleteRequest) (*approvalStructs.Outcome[*structs.Entry], error) {
	entry, err := authService.Load(ctx, s.gate, userID, s.kind.Delete, s.finder(id))
	if err != nil {
		return nil, err
	}
	id = entry.ID
	return s.submit(ctx, userID, entry, approvalStructs.ActionDelete, approvalStructs.Deletion{}, req.Reason, func(ctx context.Context) error {
		if err := s.approvals.Discard(ctx, s.kind.ItemType, id); err != nil {
			return err
		}
		return s.Remove(ctx, id, userID)
	})
}

// submit applies a change at once or turns it into an approval.
func (s *Service) submit(ctx context.Context, userID string, entry *structs.Entry, action approvalStructs.Action,
	change approvalStructs.Change, reason string, apply func(context.Context) error) (*approvalStructs.Outcome[*structs.Entry], error) {
	project, err := s.projects.Find(ctx, entry.ProjectID)
	if err != nil {
		return nil, err
	}
	enabled, err := s.projects.ApprovalEnabled(ctx, project)
	if err != nil {
		return nil, err
	}
	deferred, err := s.approvals.ShouldDefer(ctx, enabled, entry.WorkspaceID, userID, entry.GateState())
	if err != nil {
		return nil, err
	}
	if deferred {
		a, err := s.approvals.Create(ctx, &approvalService.Request{
			WorkspaceID:   entry.WorkspaceID,
			ItemType:      s.kind.ItemType,
			ItemID:        entry.ID,
			Action:        action,
			RequestedByID: userID,
			Reason:        reason,
			Change:        change,
		})
		if err != nil {
			return nil, err
		}
		return approvalStructs.Deferred[*structs.Entry](a), nil
	}

	if err := s.d.WithTx(ctx, apply); err != nil {
		return nil, err
	}
	if action == approvalStructs.ActionDelete {
		return &approvalStructs.Outcome[*structs.Entry]{}, nil
	}
	updated, err := s.repo.FindByID(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	return approvalStructs.Applied(updated), nil
}

// ApplyUpdate writes a name, note or value change. Value is already sealed.
func (s *Service) ApplyUpdate(ctx context.Context, id string, change approvalStructs.EntryUpdate, actorID string) error {
	return s.d.WithTx(ctx, func(ctx context.Context) error {
		entry, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if change.Name != nil && *change.Name != entry.Name {
			entry.Name = *change.Name
			entry.Slug = util.Slug(entry.Name)
		}
		if change.Note != nil {
			entry.Note = *change.Note
		}
		entry.LastUpdatedByID = actorID
		entry.UpdatedAt = now
		if err := s.repo.Update(ctx, entry); err != nil {
			return err
		}

		metadata := map[string]any{}
		if change.Value != nil {
			next := &structs.Version{
				EntryID:     id,
				Version:     entry.Version + 1,
				Value:       *change.Value,
				CreatedByID: actorID,
				CreatedAt:   now,
			}
			if err := s.repo.AddVersion(ctx, next); err != nil {
				return err
			}
			metadata["version"] = next.Version
		}

		s.record(ctx, actorID, entry, s.kind.Updated, s.kind.Name+" updated", metadata)
		s.logger.Info(ctx, "Entry updated", "kind", s.kind.Name, "id", id)
		return nil
	})
}

// ApplyMove moves an entry to environmentID.
func (s *Service) ApplyMove(ctx context.Context, id, environmentID, actorID string) error {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	target, err := s.envs.Find(ctx, environmentID)
	if err != nil {
		return err
	}
	if err := s.checkMove(entry, target); err != nil {
		return err
	}
	from := entry.EnvironmentID
	entry.EnvironmentID = target.ID
	entry.LastUpdatedByID = actorID
	entry.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, entry); err != nil {
		return err
	}

	s.record(ctx, actorID, entry, s.kind.Updated, s.kind.Name+" moved", map[string]any{
		"from_environment_id": from,
		"to_environment_id":   target.ID,
	})
	s.logger.Info(ctx, "Entry moved", "kind", s.kind.Name, "id", id, "from", from, "to", target.ID)
	return nil
}

// ApplyRollback drops every version above version.
func (s *Service) ApplyRollback(ctx context.Context, id string, version int, actorID string) error {
	return s.d.WithTx(ctx, func(ctx context.Context) error {
		entry, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkRollback(ctx, entry, version); err != nil {
			return err
		}
		if err := s.repo.DeleteVersionsAbove(ctx, id, version); err != nil {
			return err
		}
		entry.LastUpdatedByID = actorID
		entry.UpdatedAt = time.Now().UTC()
		if err := s.repo.Update(ctx, entry); err != nil {
			return err
		}

		s.record(ctx, actorID, entry, s.kind.Updated, s.kind.Name+" rolled back", map[string]any{
			"from_version": entry.Version,
			"to_version":   version,
		})
		s.logger.Info(ctx, "Entry rolled back", "kind", s.kind.Name, "id", id, "version", version)
		return nil
	})
}

// Finalize clears the pending flag of an entry.
func (s *Service) Finalize(ctx context.Context, id, actorID string) error {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !entry.Pending {
		return ecode.Newf(ecode.InvalidState, "%s %s is not pending creation", s.kind.Name, id)
	}
	entry.ApprovalGate = authStructs.ApprovalGate{}
	entry.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, entry); err != nil {
		return err
	}
	s.record(ctx, actorID, entry, s.kind.Created, s.kind.Name+" created", nil)
	s.logger.Info(ctx, "Entry finalized", "kind", s.kind.Name, "id", id)
	return nil
}

// Remove deletes an entry and its versions.
func (s *Service) Remove(ctx context.Context, id, actorID string) error {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error(ctx, "Failed to delete entry", "kind", s.kind.Name, "id", id, "error", err)
		return err
	}
	s.record(ctx, actorID, entry, s.kind.Deleted, s.kind.Name+" deleted", nil)
	s.logger.Info(ctx, "Entry deleted", "kind", s.kind.Name, "id", id)
	return nil
}

// Item returns an entry for display with its stored value.
func (s *Service) Item(ctx context.Context, id string) (any, error) {
	return s.repo.FindByID(ctx, id)
}

// parent returns the project of env, refusing pending parents.
func (s *Service) parent(ctx context.Context, env *envStructs.Environment) (*projectStructs.Project, error) {
	if env.Pending {
		return nil, ecode.Newf(ecode.InvalidState, "Environment %s is pending approval", env.ID)
	}
	project, err := s.projects.Find(ctx, env.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.Pending {
		return nil, ecode.Newf(ecode.InvalidState, "Project %s is pending approval", project.ID)
	}
	return project, nil
}

func (s *Service) checkMove(entry *structs.Entry, target *envStructs.Environment) error {
	switch {
	case target.ProjectID != entry.ProjectID:
		return ecode.Newf(ecode.ParamErr, "Environment %s does not belong to project %s", target.ID, entry.ProjectID)
	case target.ID == entry.EnvironmentID:
		return ecode.Newf(ecode.ParamErr, "%s %s is already in environment %s", s.kind.Name, entry.ID, target.ID)
	case target.Pending:
		return ecode.Newf(ecode.InvalidState, "Environment %s is pending approval", target.ID)
	}
	return nil
}

func (s *Service) checkRollback(ctx context.Context, entry *structs.Entry, version int) error {
	if version >= entry.Version {
		return ecode.Newf(ecode.ParamErr, "%s %s is at version %d, can not roll back to %d", s.kind.Name, entry.ID, entry.Version, version)
	}
	_, err := s.repo.FindVersion(ctx, entry.ID, version)
	return err
}

// finder resolves idOrSlug by id first, then by slug.
func (s *Service) finder(idOrSlug string) func(context.Context) (*structs.Entry, error) {
	return func(ctx context.Context) (*structs.Entry, error) {
		entry, err := s.repo.FindByID(ctx, idOrSlug)
		if ecode.Is(err, ecode.NothingFound) {
			return s.repo.FindBySlug(ctx, idOrSlug)
		}
		return entry, err
	}
}

func (s *Service) record(ctx context.Context, userID string, e *structs.Entry, t eventStructs.Type, title string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["name"] = e.Name
	metadata["environment_id"] = e.EnvironmentID
	s.recorder.Record(ctx, &eventStructs.Event{
		WorkspaceID: e.WorkspaceID,
		Type:        t,
		Source:      s.kind.Source,
		Title:       title,
		ItemID:      e.ID,
		TriggeredBy: userID,
		Metadata:    metadata,
	})
}
