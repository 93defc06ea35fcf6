// Package repository stores roles and memberships.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/ncobase/keyvault/core/authority/structs"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/ecode"
)

type RoleRepository interface {
	Create(ctx context.Context, role *structs.Role) error
	Update(ctx context.Context, role *structs.Role) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*structs.Role, error)
	FindAdmin(ctx context.Context, workspaceID string) (*structs.Role, error)
	ListByIDs(ctx context.Context, ids []string) ([]*structs.Role, error)
	ListByWorkspace(ctx context.Context, workspaceID string, offset, limit int) ([]*structs.Role, int, error)
}

const roleTable = "roles"

var roleColumns = []string{
	"id", "workspace_id", "name", "slug", "description", "authorities",
	"has_admin_authority", "projects", "created_at", "updated_at",
}

type roleRepository struct {
	d *data.Data
}

// NewRoleRepository creates the role repository. The workspaces table must exist.
func NewRoleRepository(d *data.Data) (RoleRepository, error) {
	if d == nil || d.DB() == nil {
		return nil, errors.New("database is nil")
	}
	repo := &roleRepository{d: d}
	if err := repo.initSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *roleRepository) initSchema(ctx context.Context) error {
	if _, err := r.d.DB().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS roles (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			authorities TEXT NOT NULL DEFAULT '[]',
			has_admin_authority BOOLEAN NOT NULL DEFAULT FALSE,
			projects TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (workspace_id, name)
		);
	`); err != nil {
		return err
	}

	_, err := r.d.DB().ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS uq_roles_workspace_admin ON roles(workspace_id) WHERE has_admin_authority;
	`)
	return err
}

func (r *roleRepository) Create(ctx context.Context, role *structs.Role) error {
	authorities, projects, err := marshalRole(role)
	if err != nil {
		return err
	}

	query, args := r.d.Builder().Insert(roleTable).
		Columns(roleColumns...).
		Values(role.ID, role.WorkspaceID, role.Name, role.Slug, role.Description, authorities,
			role.HasAdminAuthority, projects, role.CreatedAt, role.UpdatedAt).
		Query()

	if _, err := r.d.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		if data.IsUniqueViolation(err) {
			return ecode.Newf(ecode.Conflict, "Role %s already exists in workspace %s", role.Name, role.WorkspaceID)
		}
		return err
	}
	return nil
}

func (r *roleRepository) Update(ctx context.Context, role *structs.Role) error {
	authorities, projects, err := marshalRole(role)
	if err != nil {
		return err
	}

	query, args := r.d.Builder().Update(roleTable).
		Set("name", role.Name).
		Set("slug", role.Slug).
		Set("description", role.Description).
		Set("authorities", authorities).
		Set("projects", projects).
		Set("updated_at", role.UpdatedAt).
		Where(entsql.EQ("id", role.ID)).
		Query()

	result, err := r.d.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		if data.IsUniqueViolation(err) {
			return ecode.Newf(ecode.Conflict, "Role %s already exists in workspace %s", role.Name, role.WorkspaceID)
		}
		return err
	}
	return expectAffected(result, "Role", role.ID)
}

func (r *roleRepository) Delete(ctx context.Context, id string) error {
	query, args := r.d.Builder().Delete(roleTable).Where(entsql.EQ("id", id)).Query()
	result, err := r.d.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectAffected(result, "Role", id)
}

func (r *roleRepository) FindByID(ctx context.Context, id string) (*structs.Role, error) {
	roles, err := r.query(ctx, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, ecode.Newf(ecode.NothingFound, "Role %s not found", id)
	}
	return roles[0], nil
}

func (r *roleRepository) FindAdmin(ctx context.Context, workspaceID string) (*structs.Role, error) {
	roles, err := r.query(ctx, entsql.And(
		entsql.EQ("workspace_id", workspaceID),
		entsql.EQ("has_admin_authority", true),
	))
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, ecode.Newf(ecode.NothingFound, "Admin role of workspace %s not found", workspaceID)
	}
	return roles[0], nil
}

func (r *roleRepository) ListByIDs(ctx context.Context, ids []string) ([]*structs.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.query(ctx, entsql.In("id", data.Args(ids)...))
}

func (r *roleRepository) ListByWorkspace(ctx context.Context, workspaceID string, offset, limit int) ([]*structs.Role, int, error) {
	countQuery, countArgs := r.d.Builder().Select(entsql.Count("*")).
		From(entsql.Table(roleTable)).
		Where(entsql.EQ("workspace_id", workspaceID)).
		Query()
	var total int
	if err := r.d.Executor(ctx).QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	roles, err := r.query(ctx, entsql.EQ("workspace_id", workspaceID), func(s *entsql.Selector) {
		s.OrderBy(entsql.Asc("created_at")).Limit(limit).Offset(offset)
	})
	if err != nil {
		return nil, 0, err
	}
	return roles, total, nil
}

func (r *roleRepository) query(ctx context.Context, where *entsql.Predicate, mods ...func(*entsql.Selector)) ([]*structs.Role, error) {
	selector := r.d.Builder().Select(roleColumns...).From(entsql.Table(roleTable)).Where(where)
	for _, m := range mods {
		m(selector)
	}
	query, args := selector.Query()

	rows, err := r.d.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*structs.Role
	for rows.Next() {
		role := &structs.Role{}
		var authorities, projects string
		if err := rows.Scan(&role.ID, &role.WorkspaceID, &role.Name, &role.Slug, &role.Description,
			&authorities, &role.HasAdminAuthority, &projects, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(authorities), &role.Authorities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal role authorities: %w", err)
		}
		if err := json.Unmarshal([]byte(projects), &role.Projects); err != nil {
			return nil, fmt.Errorf("failed to unmarshal role projects: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func marshalRole(role *structs.Role) (string, string, error) {
	if role.Authorities == nil {
		role.Authorities = []structs.Authority{}
	}
	if role.Projects == nil {
		role.Projects = []structs.ProjectAssignment{}
	}
	authorities, err := json.Marshal(role.Authorities)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal role authorities: %w", err)
	}
	projects, err := json.Marshal(role.Projects)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal role projects: %w", err)
	}
	return string(authorities), string(projects), nil
}

func expectAffected(result sql.Result, kind, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ecode.Newf(ecode.NothingFound, "%s %s not found", kind, id)
	}
	return nil
}
