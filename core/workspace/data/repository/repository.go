// Package repository stores workspaces.
package repository

import (
	"context"
	"errors"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/ncobase/keyvault/core/workspace/structs"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/data/cache"
	"github.com/ncobase/keyvault/ecode"
	"github.com/ncobase/keyvault/logging/logger"
)

type WorkspaceRepository interface {
	Create(ctx context.Context, workspace *structs.Workspace) error
	FindByID(ctx context.Context, id string) (*structs.Workspace, error)
	FindBySlug(ctx context.Context, slug string) (*structs.Workspace, error)
	ListByIDs(ctx context.Context, ids []string, offset, limit int) ([]*structs.Workspace, int, error)
	Update(ctx context.Context, workspace *structs.Workspace) error
	Delete(ctx context.Context, id string) error
}

const (
	table    = "workspaces"
	cacheTTL = 10 * time.Minute
)

var columns = []string{
	"id", "name", "slug", "icon", "is_public", "approval_enabled",
	"owner_id", "last_updated_by_id", "created_at", "updated_at",
}

type workspaceRepository struct {
	d      *data.Data
	logger *logger.Logger
	cache  *cache.Cache[structs.Workspace]
}

// NewWorkspaceRepository creates the repository. Rows are cached in redis
// when the data layer has a redis client.
func NewWorkspaceRepository(d *data.Data, logger *logger.Logger) (WorkspaceRepository, error) {
	if d == nil || d.DB() == nil {
		return nil, errors.New("database is nil")
	}

	repo := &workspaceRepository{d: d, logger: logger}
	if rc := d.Redis(); rc != nil {
		repo.cache = cache.NewCache[structs.Workspace](rc, "workspaces")
	}

	if err := repo.initSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *workspaceRepository) initSchema(ctx context.Context) error {
	if _, err := r.d.DB().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS workspaces (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			icon TEXT NOT NULL DEFAULT '',
			is_public BOOLEAN NOT NULL DEFAULT FALSE,
			approval_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			owner_id TEXT NOT NULL,
			last_updated_by_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (owner_id, name)
		);
	`); err != nil {
		return err
	}

	_, err := r.d.DB().ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_workspaces_owner_id ON workspaces(owner_id);
	`)
	return err
}

func (r *workspaceRepository) Create(ctx context.Context, w *structs.Workspace) error {
	query, args := r.d.Builder().Insert(table).
		Columns(columns...).
		Values(w.ID, w.Name, w.Slug, w.Icon, w.IsPublic, w.ApprovalEnabled,
			w.OwnerID, w.LastUpdatedByID, w.CreatedAt, w.UpdatedAt).
		Query()
	if _, err := r.d.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		if data.IsUniqueViolation(err) {
			return ecode.Newf(ecode.Conflict, "Workspace with name %s already exists", w.Name)
		}
		return err
	}

	r.logger.Debug(ctx, "Workspace created", "workspace_id", w.ID)
	return nil
}

func (r *workspaceRepository) FindByID(ctx context.Context, id string) (*structs.Workspace, error) {
	// rows read inside a transaction may never commit
	_, noTx := data.GetTx(ctx)
	useCache := r.cache != nil && noTx != nil

	if useCache {
		if cached, err := r.cache.Get(ctx, id); err == nil && cached != nil {
			return cached, nil
		}
	}

	query, args := r.d.Builder().Select(columns...).
		From(entsql.Table(table)).
		Where(entsql.EQ("id", id)).
		Query()
	workspaces, err := r.scan(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(workspaces) == 0 {
		return nil, ecode.Newf(ecode.NothingFound, "Workspace %s not found", id)
	}

	if useCache {
		_ = r.cache.Set(ctx, id, workspaces[0], cacheTTL)
	}
	return workspaces[0], nil
}

func (r *workspaceRepository) FindBySlug(ctx context.Context, slug string) (*structs.Workspace, error) {
	query, args := r.d.Builder().Select(columns...).
		From(entsql.Table(table)).
		Where(entsql.EQ("slug", slug)).
		Query()
	workspaces, err := r.scan(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(workspaces) == 0 {
		return nil, ecode.Newf(ecode.NothingFound, "Workspace %s not found", slug)
	}
	return workspaces[0], nil
}

func (r *workspaceRepository) ListByIDs(ctx context.Context, ids []string, offset, limit int) ([]*structs.Workspace, int, error) {
	if len(ids) == 0 {
		return nil, 0, nil
	}

	countQuery, countArgs := r.d.Builder().Select(entsql.Count("*")).
		From(entsql.Table(table)).
		Where(entsql.In("id", data.Args(ids)...)).
		Query()
	var total int
	if err := r.d.Executor(ctx).QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args := r.d.Builder().Select(columns...).
		From(entsql.Table(table)).
		Where(entsql.In("id", data.Args(ids)...)).
		OrderBy(entsql.Desc("created_at")).
		Limit(limit).
		Offset(offset).
		Query()
	workspaces, err := r.scan(ctx, query, args)
	if err != nil {
		return nil, 0, err
	}
	return workspaces, total, nil
}

func (r *workspaceRepository) Update(ctx context.Context, w *structs.Workspace) error {
	query, args := r.d.Builder().Update(table).
		Set("name", w.Name).
		Set("slug", w.Slug).
		Set("icon", w.Icon).
		Set("is_public", w.IsPublic).
		Set("approval_enabled", w.ApprovalEnabled).
		Set("last_updated_by_id", w.LastUpdatedByID).
		Set("updated_at", w.UpdatedAt).
		Where(entsql.EQ("id", w.ID)).
		Query()
	result, err := r.d.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		if data.IsUniqueViolation(err) {
			return ecode.Newf(ecode.Conflict, "Workspace with name %s already exists", w.Name)
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ecode.Newf(ecode.NothingFound, "Workspace %s not found", w.ID)
	}

	r.evict(ctx, w.ID)
	r.logger.Debug(ctx, "Workspace updated", "workspace_id", w.ID)
	return nil
}

func (r *workspaceRepository) Delete(ctx context.Context, id string) error {
	query, args := r.d.Builder().Delete(table).Where(entsql.EQ("id", id)).Query()
	result, err := r.d.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ecode.Newf(ecode.NothingFound, "Workspace %s not found", id)
	}

	r.evict(ctx, id)
	r.logger.Debug(ctx, "Workspace deleted", "workspace_id", id)
	return nil
}

// evict drops the cached row now and once the transaction commits.
func (r *workspaceRepository) evict(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, id)
	data.AfterCommit(ctx, func() {
		_ = r.cache.Delete(context.WithoutCancel(ctx), id)
	})
}

func (r *workspaceRepository) scan(ctx context.Context, query string, args []any) ([]*structs.Workspace, error) {
	rows, err := r.d.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workspaces []*structs.Workspace
	for rows.Next() {
		w := &structs.Workspace{}
		if err := rows.Scan(&w.ID, &w.Name, &w.Slug, &w.Icon, &w.IsPublic, &w.ApprovalEnabled,
			&w.OwnerID, &w.LastUpdatedByID, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		workspaces = append(workspaces, w)
	}
	return workspaces, rows.Err()
}
