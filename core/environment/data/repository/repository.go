// Package repository stores environments.
package repository

import (
	"context"
	"errors"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/ncobase/keyvault/core/environment/structs"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/ecode"
)

type EnvironmentRepository interface {
	Create(ctx context.Context, env *structs.Environment) error
	FindByID(ctx context.Context, id string) (*structs.Environment, error)
	FindBySlug(ctx context.Context, slug string) (*structs.Environment, error)
	ListByProject(ctx context.Context, projectID string) ([]*structs.Environment, error)
	CountByProject(ctx context.Context, projectID string) (int, error)
	Update(ctx context.Context, env *structs.Environment) error
	// ClearPendingForProject finalizes every environment created along
	// with a pending project.
	ClearPendingForProject(ctx context.Context, projectID string) error
	Delete(ctx context.Context, id string) error
}

const table = "environments"

var columns = []string{
	"id", "workspace_id", "project_id", "name", "slug", "description",
	"pending", "requested_by_id", "last_updated_by_id", "created_at", "updated_at",
}

type environmentRepository struct {
	d *data.Data
}

// New creates the environment repository. The projects table must exist.
func New(d *data.Data) (EnvironmentRepository, error) {
	if d == nil || d.DB() == nil {
		return nil, errors.New("database is nil")
	}
	repo := &environmentRepository{d: d}
	if err := repo.initSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *environmentRepository) initSchema(ctx context.Context) error {
	_, err := r.d.DB().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS environments (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			pending BOOLEAN NOT NULL DEFAULT FALSE,
			requested_by_id TEXT NOT NULL DEFAULT '',
			last_updated_by_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (project_id, name)
		);
	`)
	return err
}

func (r *environmentRepository) Create(ctx context.Context, e *structs.Environment) error {
	query, args := r.d.Builder().Insert(table).
		Columns(columns...).
		Values(e.ID, e.WorkspaceID, e.ProjectID, e.Name, e.Slug, e.Description,
			e.Pending, e.RequestedBy, e.LastUpdatedByID, e.CreatedAt, e.UpdatedAt).
		Query()
	if _, err := r.d.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		if data.IsUniqueViolation(err) {
			return ecode.Newf(ecode.Conflict, "Environment %s already exists in project %s", e.Name, e.ProjectID)
		}
		return err
	}
	return nil
}

func (r *environmentRepository) FindByID(ctx context.Context, id string) (*structs.Environment, error) {
	envs, err := r.query(ctx, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(envs) == 0 {
		return nil, ecode.Newf(ecode.NothingFound, "Environment %s not found", id)
	}
	return envs[0], nil
}

func (r *environmentRepository) FindBySlug(ctx context.Context, slug string) (*structs.Environment, error) {
	envs, err := r.query(ctx, entsql.EQ("slug", slug))
	if err != nil {
		return nil, err
	}
	if len(envs) == 0 {
		return nil, ecode.Newf(ecode.NothingFound, "Environment %s not found", slug)
	}
	return envs[0], nil
}

func (r *environmentRepository) ListByProject(ctx context.Context, projectID string) ([]*structs.Environment, error) {
	return r.query(ctx, entsql.EQ("project_id", projectID))
}

func (r *environmentRepository) CountByProject(ctx context.Context, projectID string) (int, error) {
	query, args := r.d.Builder().Select(entsql.Count("*")).
		From(entsql.Table(table)).
		Where(entsql.EQ("project_id", projectID)).
		Query()
	var n int
	err := r.d.Executor(ctx).QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (r *environmentRepository) Update(ctx context.Context, e *structs.Environment) error {
	query, args := r.d.Builder().Update(table).
		Set("name", e.Name).
		Set("slug", e.Slug).
		Set("description", e.Description).
		Set("pending", e.Pending).
		Set("requested_by_id", e.RequestedBy).
		Set("last_updated_by_id", e.LastUpdatedByID).
		Set("updated_at", e.UpdatedAt).
		Where(entsql.EQ("id", e.ID)).
		Query()
	result, err := r.d.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		if data.IsUniqueViolation(err) {
			return ecode.Newf(ecode.Conflict, "Environment %s already exists in project %s", e.Name, e.ProjectID)
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ecode.Newf(ecode.NothingFound, "Environment %s not found", e.ID)
	}
	return nil
}

func (r *environmentRepository) ClearPendingForProject(ctx context.Context, projectID string) error {
	query, args := r.d.Builder().Update(table).
		Set("pending", false).
		Where(entsql.And(entsql.EQ("project_id", projectID), entsql.EQ("pending", true))).
		Query()
	_, err := r.d.Executor(ctx).ExecContext(ctx, query, args...)
	return err
}

func (r *environmentRepository) Delete(ctx context.Context, id string) error {
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
		return ecode.Newf(ecode.NothingFound, "Environment %s not found", id)
	}
	return nil
}

func (r *environmentRepository) query(ctx context.Context, where *entsql.Predicate) ([]*structs.Environment, error) {
	query, args := r.d.Builder().Select(columns...).
		From(entsql.Table(table)).
		Where(where).
		OrderBy(entsql.Asc("created_at"), entsql.Asc("name")).
		Query()

	rows, err := r.d.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var envs []*structs.Environment
	for rows.Next() {
		e := &structs.Environment{}
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.ProjectID, &e.Name, &e.Slug, &e.Description,
			&e.Pending, &e.RequestedBy, &e.LastUpdatedByID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		envs = append(envs, e)
	}
	return envs, rows.Err()
}
