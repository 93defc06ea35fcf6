// Package repository stores projects.
package repository

import (
	"context"
	"errors"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/ncobase/keyvault/core/project/structs"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/ecode"
)

type ProjectRepository interface {
	Create(ctx context.Context, project *structs.Project) error
	FindByID(ctx context.Context, id string) (*structs.Project, error)
	FindBySlug(ctx context.Context, slug string) (*structs.Project, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*structs.Project, error)
	Update(ctx context.Context, project *structs.Project) error
	Delete(ctx context.Context, id string) error
}

const table = "projects"

var columns = []string{
	"id", "workspace_id", "name", "slug", "description", "public_key", "private_key",
	"store_private_key", "access_level", "pending", "requested_by_id", "last_updated_by_id",
	"created_at", "updated_at",
}

type projectRepository struct {
	d *data.Data
}

// New creates the project repository. The workspaces table must exist.
func New(d *data.Data) (ProjectRepository, error) {
	if d == nil || d.DB() == nil {
		return nil, errors.New("database is nil")
	}
	repo := &projectRepository{d: d}
	if err := repo.initSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *projectRepository) initSchema(ctx context.Context) error {
	_, err := r.d.DB().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			public_key TEXT NOT NULL,
			private_key TEXT NOT NULL DEFAULT '',
			store_private_key BOOLEAN NOT NULL DEFAULT FALSE,
			access_level TEXT NOT NULL DEFAULT 'PRIVATE',
			pending BOOLEAN NOT NULL DEFAULT FALSE,
			requested_by_id TEXT NOT NULL DEFAULT '',
			last_updated_by_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (workspace_id, name)
		);
	`)
	return err
}

func (r *projectRepository) Create(ctx context.Context, p *structs.Project) error {
	query, args := r.d.Builder().Insert(table).
		Columns(columns...).
		Values(p.ID, p.WorkspaceID, p.Name, p.Slug, p.Description, p.PublicKey, p.PrivateKey,
			p.StorePrivateKey, string(p.AccessLevel), p.Pending, p.RequestedBy, p.LastUpdatedByID,
			p.CreatedAt, p.UpdatedAt).
		Query()
	if _, err := r.d.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		if data.IsUniqueViolation(err) {
			return ecode.Newf(ecode.Conflict, "Project %s already exists in workspace %s", p.Name, p.WorkspaceID)
		}
		return err
	}
	return nil
}

func (r *projectRepository) FindByID(ctx context.Context, id string) (*structs.Project, error) {
	projects, err := r.query(ctx, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, ecode.Newf(ecode.NothingFound, "Project %s not found", id)
	}
	return projects[0], nil
}

func (r *projectRepository) FindBySlug(ctx context.Context, slug string) (*structs.Project, error) {
	projects, err := r.query(ctx, entsql.EQ("slug", slug))
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, ecode.Newf(ecode.NothingFound, "Project %s not found", slug)
	}
	return projects[0], nil
}

func (r *projectRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*structs.Project, error) {
	return r.query(ctx, entsql.EQ("workspace_id", workspaceID))
}

func (r *projectRepository) Update(ctx context.Context, p *structs.Project) error {
	query, args := r.d.Builder().Update(table).
		Set("name", p.Name).
		Set("slug", p.Slug).
		Set("description", p.Description).
		Set("public_key", p.PublicKey).
		Set("private_key", p.PrivateKey).
		Set("store_private_key", p.StorePrivateKey).
		Set("access_level", string(p.AccessLevel)).
		Set("pending", p.Pending).
		Set("requested_by_id", p.RequestedBy).
		Set("last_updated_by_id", p.LastUpdatedByID).
		Set("updated_at", p.UpdatedAt).
		Where(entsql.EQ("id", p.ID)).
		Query()
	result, err := r.d.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		if data.IsUniqueViolation(err) {
			return ecode.Newf(ecode.Conflict, "Project %s already exists in workspace %s", p.Name, p.WorkspaceID)
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ecode.Newf(ecode.NothingFound, "Project %s not found", p.ID)
	}
	return nil
}

func (r *projectRepository) Delete(ctx context.Context, id string) error {
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
		return ecode.Newf(ecode.NothingFound, "Project %s not found", id)
	}
	return nil
}

func (r *projectRepository) query(ctx context.Context, where *entsql.Predicate) ([]*structs.Project, error) {
	query, args := r.d.Builder().Select(columns...).
		From(entsql.Table(table)).
		Where(where).
		OrderBy(entsql.Desc("created_at"), entsql.Asc("name")).
		Query()

	rows, err := r.d.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*structs.Project
	for rows.Next() {
		p := &structs.Project{}
		if err := rows.Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.Slug, &p.Description, &p.PublicKey,
			&p.PrivateKey, &p.StorePrivateKey, &p.AccessLevel, &p.Pending, &p.RequestedBy,
			&p.LastUpdatedByID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
