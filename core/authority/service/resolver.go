// Package service resolves collective authority sets, guards entity access
// and administers roles and memberships.
package service

import (
	"context"
	"slices"
	"sync"

	"github.com/ncobase/keyvault/core/authority/data/repository"
	"github.com/ncobase/keyvault/core/authority/structs"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/ecode"
	"github.com/ncobase/keyvault/logging/logger"
)

// Resolver computes the collective authority set of a user at a scope.
type Resolver struct {
	roles   repository.RoleRepository
	members repository.MembershipRepository
	cache   Cache
	logger  *logger.Logger

	// generations counts invalidations per workspace. A set computed across
	// an invalidation is returned but not cached.
	mu          sync.Mutex
	generations map[string]uint64
}

func NewResolver(roles repository.RoleRepository, members repository.MembershipRepository, cache Cache, logger *logger.Logger) *Resolver {
	return &Resolver{
		roles:       roles,
		members:     members,
		cache:       cache,
		logger:      logger,
		generations: make(map[string]uint64),
	}
}

func (r *Resolver) generation(workspaceID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generations[workspaceID]
}

func (r *Resolver) bump(workspaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations[workspaceID]++
}

// Resolve returns the authorities userID holds at scope. A user without an
// accepted membership holds the empty set.
func (r *Resolver) Resolve(ctx context.Context, userID string, scope structs.Scope) (structs.Set, error) {
	if r.cache != nil {
		set, ok, err := r.cache.Get(ctx, userID, scope)
		if err != nil {
			r.logger.Warn(ctx, "Authority cache read failed", "user_id", userID, "workspace_id", scope.WorkspaceID, "error", err)
		} else if ok {
			return set, nil
		}
	}

	gen := r.generation(scope.WorkspaceID)
	set, err := r.compute(ctx, userID, scope)
	if err != nil {
		return nil, err
	}

	if r.cache != nil && r.generation(scope.WorkspaceID) == gen {
		if err := r.cache.Set(ctx, userID, scope, set); err != nil {
			r.logger.Warn(ctx, "Authority cache write failed", "user_id", userID, "workspace_id", scope.WorkspaceID, "error", err)
		}
	}
	return set, nil
}

func (r *Resolver) compute(ctx context.Context, userID string, scope structs.Scope) (structs.Set, error) {
	membership, err := r.members.Find(ctx, scope.WorkspaceID, userID)
	if err != nil {
		if ecode.Is(err, ecode.NothingFound) {
			return structs.Set{}, nil
		}
		return nil, err
	}
	if !membership.Active() || len(membership.RoleIDs) == 0 {
		return structs.Set{}, nil
	}

	adminRoleID, err := r.AdminRoleID(ctx, scope.WorkspaceID)
	if err != nil && !ecode.Is(err, ecode.NothingFound) {
		return nil, err
	}
	if adminRoleID != "" && slices.Contains(membership.RoleIDs, adminRoleID) {
		return structs.NewSet(structs.WorkspaceAdmin), nil
	}

	roles, err := r.roles.ListByIDs(ctx, membership.RoleIDs)
	if err != nil {
		return nil, err
	}

	set := structs.Set{}
	for _, role := range roles {
		if role.WorkspaceID != scope.WorkspaceID || !role.Applies(scope) {
			continue
		}
		set.Add(role.Authorities...)
	}
	return set, nil
}

// AdminRoleID returns the id of the admin role of workspaceID.
func (r *Resolver) AdminRoleID(ctx context.Context, workspaceID string) (string, error) {
	if r.cache != nil {
		id, ok, err := r.cache.GetAdminRole(ctx, workspaceID)
		if err != nil {
			r.logger.Warn(ctx, "Admin role cache read failed", "workspace_id", workspaceID, "error", err)
		} else if ok {
			return id, nil
		}
	}

	role, err := r.roles.FindAdmin(ctx, workspaceID)
	if err != nil {
		return "", err
	}

	if r.cache != nil {
		if err := r.cache.SetAdminRole(ctx, workspaceID, role.ID); err != nil {
			r.logger.Warn(ctx, "Admin role cache write failed", "workspace_id", workspaceID, "error", err)
		}
	}
	return role.ID, nil
}

// InvalidateUser drops every cached set of userID in workspaceID, now and
// again once the surrounding transaction commits.
func (r *Resolver) InvalidateUser(ctx context.Context, workspaceID, userID string) {
	if r.cache == nil {
		return
	}
	invalidate := func(ctx context.Context) {
		r.bump(workspaceID)
		if err := r.cache.InvalidateUser(ctx, workspaceID, userID); err != nil {
			r.logger.Error(ctx, "Failed to invalidate authority cache", "workspace_id", workspaceID, "user_id", userID, "error", err)
		}
	}
	invalidate(ctx)
	if _, err := data.GetTx(ctx); err == nil {
		data.AfterCommit(ctx, func() { invalidate(context.WithoutCancel(ctx)) })
	}
}

// InvalidateWorkspace drops every cached entry of workspaceID.
func (r *Resolver) InvalidateWorkspace(ctx context.Context, workspaceID string) {
	if r.cache == nil {
		return
	}
	invalidate := func(ctx context.Context) {
		r.bump(workspaceID)
		if err := r.cache.InvalidateWorkspace(ctx, workspaceID); err != nil {
			r.logger.Error(ctx, "Failed to invalidate authority cache", "workspace_id", workspaceID, "error", err)
		}
	}
	invalidate(ctx)
	if _, err := data.GetTx(ctx); err == nil {
		data.AfterCommit(ctx, func() { invalidate(context.WithoutCancel(ctx)) })
	}
}
