package service

import (
	"context"
	"fmt"

	"github.com/ncobase/keyvault/core/approval/structs"
	"github.com/ncobase/keyvault/ecode"
)

// Target is the part of a domain service every approval needs.
type Target interface {
	// Item returns the entity for display.
	Item(ctx context.Context, id string) (any, error)
	// Remove deletes the entity without any authority check.
	Remove(ctx context.Context, id, actorID string) error
}

// Finalizer clears the pending flag of an entity created under approval.
type Finalizer interface {
	Finalize(ctx context.Context, id, actorID string) error
}

type WorkspaceTarget interface {
	Target
	ApplyUpdate(ctx context.Context, id string, change structs.WorkspaceUpdate, actorID string) error
}

type ProjectTarget interface {
	Target
	Finalizer
	ApplyUpdate(ctx context.Context, id string, change structs.ProjectUpdate, actorID string) error
}

type EnvironmentTarget interface {
	Target
	Finalizer
	ApplyUpdate(ctx context.Context, id string, change structs.EnvironmentUpdate, actorID string) error
}

// EntryTarget is implemented by the secret and variable services.
type EntryTarget interface {
	Target
	Finalizer
	ApplyUpdate(ctx context.Context, id string, change structs.EntryUpdate, actorID string) error
	Move(ctx context.Context, id, environmentID, actorID string) error
	Rollback(ctx context.Context, id string, version int, actorID string) error
}

// Dispatcher applies approved changes to their targets.
type Dispatcher struct {
	workspaces   WorkspaceTarget
	projects     ProjectTarget
	environments EnvironmentTarget
	secrets      EntryTarget
	variables    EntryTarget
}

func NewDispatcher(workspaces WorkspaceTarget, projects ProjectTarget, environments EnvironmentTarget, secrets, variables EntryTarget) *Dispatcher {
	return &Dispatcher{
		workspaces:   workspaces,
		projects:     projects,
		environments: environments,
		secrets:      secrets,
		variables:    variables,
	}
}

func (d *Dispatcher) target(itemType structs.ItemType) (Target, error) {
	var t Target
	switch itemType {
	case structs.ItemWorkspace:
		t = d.workspaces
	case structs.ItemProject:
		t = d.projects
	case structs.ItemEnvironment:
		t = d.environments
	case structs.ItemSecret:
		t = d.secrets
	case structs.ItemVariable:
		t = d.variables
	}
	if t == nil {
		return nil, fmt.Errorf("no target registered for %s", itemType)
	}
	return t, nil
}

func (d *Dispatcher) entries(itemType structs.ItemType) (EntryTarget, error) {
	var t EntryTarget
	switch itemType {
	case structs.ItemSecret:
		t = d.secrets
	case structs.ItemVariable:
		t = d.variables
	default:
		return nil, ecode.Newf(ecode.ParamErr, "%s has no entry changes", itemType)
	}
	if t == nil {
		return nil, fmt.Errorf("no target registered for %s", itemType)
	}
	return t, nil
}

// Apply performs the change of an approval. The requester is the author of
// the applied change.
func (d *Dispatcher) Apply(ctx context.Context, a *structs.Approval) error {
	actor := a.RequestedByID

	switch c := a.Change.(type) {
	case structs.Deletion:
		t, err := d.target(a.ItemType)
		if err != nil {
			return err
		}
		return t.Remove(ctx, a.ItemID, actor)
	case structs.Creation:
		t, err := d.target(a.ItemType)
		if err != nil {
			return err
		}
		f, ok := t.(Finalizer)
		if !ok {
			return ecode.Newf(ecode.ParamErr, "%s can not be created under approval", a.ItemType)
		}
		return f.Finalize(ctx, a.ItemID, actor)
	case structs.WorkspaceUpdate:
		return d.workspaces.ApplyUpdate(ctx, a.ItemID, c, actor)
	case structs.ProjectUpdate:
		return d.projects.ApplyUpdate(ctx, a.ItemID, c, actor)
	case structs.EnvironmentUpdate:
		return d.environments.ApplyUpdate(ctx, a.ItemID, c, actor)
	case structs.EntryMove:
		t, err := d.entries(a.ItemType)
		if err != nil {
			return err
		}
		return t.Move(ctx, a.ItemID, c.EnvironmentID, actor)
	case structs.EntryRollback:
		t, err := d.entries(a.ItemType)
		if err != nil {
			return err
		}
		return t.Rollback(ctx, a.ItemID, c.Version, actor)
	case structs.EntryUpdate:
		t, err := d.entries(a.ItemType)
		if err != nil {
			return err
		}
		return t.ApplyUpdate(ctx, a.ItemID, c, actor)
	default:
		return fmt.Errorf("unsupported change %T for %s %s", a.Change, a.Action, a.ItemType)
	}
}

// Remove deletes the target of an approval.
func (d *Dispatcher) Remove(ctx context.Context, a *structs.Approval, actorID string) error {
	t, err := d.target(a.ItemType)
	if err != nil {
		return err
	}
	return t.Remove(ctx, a.ItemID, actorID)
}

// Item returns the target of an approval, or nil when it no longer exists.
func (d *Dispatcher) Item(ctx context.Context, a *structs.Approval) (any, error) {
	t, err := d.target(a.ItemType)
	if err != nil {
		return nil, err
	}
	item, err := t.Item(ctx, a.ItemID)
	if ecode.Is(err, ecode.NothingFound) {
		return nil, nil
	}
	return item, err
}
