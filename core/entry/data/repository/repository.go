// Package repository stores entries and their versions. Each Kind has its
// own pair of tables.
package repository

import (
	"context"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/ncobase/keyvault/core/entry/structs"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/ecode"
)

type Repository interface {
	// Create inserts the entry together with its first version.
	Create(ctx context.Context, entry *structs.Entry, first *structs.Version) error
	FindByID(ctx context.Context, id string) (*structs.Entry, error)
	FindBySlug(ctx context.Context, slug string) (*structs.Entry, error)
	ListByEnvironment(ctx context.Context, environmentID string) ([]*structs.Entry, error)
	CountByProject(ctx context.Context, projectID string) (int, error)
	Update(ctx context.Context, entry *structs.Entry) error
	Delete(ctx context.Context, id string) error

	AddVersion(ctx context.Context, v *structs.Version) error
	FindVersion(ctx context.Context, entryID string, version int) (*structs.Version, error)
	ListVersions(ctx context.Context, entryID string, offset, limit int) ([]*structs.Version, int, error)
	// DeleteVersionsAbove drops every version newer than version.
	DeleteVersionsAbove(ctx context.Context, entryID string, version int) error
}

var columns = []string{
	"id", "workspace_id", "project_id", "environment_id", "name", "slug", "note",
	"pending", "requested_by_id", "last_updated_by_id", "created_at", "updated_at",
}

var versionColumns = []string{"entry_id", "version", "value", "created_by_id", "created_at"}

type repository struct {
	d    *data.Data
	kind structs.Kind
}

// New creates the repository for kind. The projects and environments tables
// must exist.
func New(d *data.Data, kind structs.Kind) (Repository, error) {
	if d == nil || d.DB() == nil {
		return nil, errors.New("database is nil")
	}
	repo := &repository{d: d, kind: kind}
	if err := repo.initSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *repository) initSchema(ctx context.Context) error {
	t, vt := r.kind.Table, r.kind.VersionTable
	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				environment_id TEXT NOT NULL REFERENCES environments(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				slug TEXT NOT NULL UNIQUE,
				note TEXT NOT NULL DEFAULT '',
				pending BOOLEAN NOT NULL DEFAULT FALSE,
				requested_by_id TEXT NOT NULL DEFAULT '',
				last_updated_by_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				UNIQUE (environment_id, name)
			);
		`, t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_project ON %s(project_id);`, t, t),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				entry_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
				version INTEGER NOT NULL,
				value TEXT NOT NULL,
				created_by_id TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				PRIMARY KEY (entry_id, version)
			);
		`, vt, t),
	}
	for _, stmt := range statements {
		if _, err := r.d.DB().ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) conflict(e *structs.Entry) error {
	return ecode.Newf(ecode.Conflict, "%s %s already exists in environment %s", r.kind.Name, e.Name, e.EnvironmentID)
}

func (r *repository) notFound(id string) error {
	return ecode.Newf(ecode.NothingFound, "%s %s not found", r.kind.Name, id)
}

func (r *repository) Create(ctx context.Context, e *structs.Entry, first *structs.Version) error {
	query, args := r.d.Builder().Insert(r.kind.Table).
		Columns(columns...).
		Values(e.ID, e.WorkspaceID, e.ProjectID, e.EnvironmentID, e.Name, e.Slug, e.Note,
			e.Pending, e.RequestedBy, e.LastUpdatedByID, e.CreatedAt, e.UpdatedAt).
		Query()
	if _, err := r.d.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		if data.IsUniqueViolation(err) {
			return r.conflict(e)
		}
		return err
	}
	return r.AddVersion(ctx, first)
}

func (r *repository) FindByID(ctx context.Context, id string) (*structs.Entry, error) {
	entries, err := r.query(ctx, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, r.notFound(id)
	}
	return entries[0], nil
}

func (r *repository) FindBySlug(ctx context.Context, slug string) (*structs.Entry, error) {
	entries, err := r.query(ctx, entsql.EQ("slug", slug))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, r.notFound(slug)
	}
	return entries[0], nil
}

func (r *repository) ListByEnvironment(ctx context.Context, environmentID string) ([]*structs.Entry, error) {
	return r.query(ctx, entsql.EQ("environment_id", environmentID))
}

func (r *repository) CountByProject(ctx context.Context, projectID string) (int, error) {
	query, args := r.d.Builder().Select(entsql.Count("*")).
		From(entsql.Table(r.kind.Table)).
		Where(entsql.EQ("project_id", projectID)).
		Query()
	var n int
	err := r.d.Executor(ctx).QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (r *repository) Update(ctx context.Context, e *structs.Entry) error {
	query, args := r.d.Builder().Update(r.kind.Table).
		Set("environment_id", e.EnvironmentID).
		Set("name", e.Name).
		Set("slug", e.Slug).
		Set("note", e.Note).
		Set("pending", e.Pending).
		Set("requested_by_id", e.RequestedBy).
		Set("last_updated_by_id", e.LastUpdatedByID).
		Set("updated_at", e.UpdatedAt).
		Where(entsql.EQ("id", e.ID)).
		Query()
	result, err := r.d.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		if data.IsUniqueViolation(err) {
			return r.conflict(e)
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return r.notFound(e.ID)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	query, args := r.d.Builder().Delete(r.kind.Table).Where(entsql.EQ("id", id)).Query()
	result, err := r.d.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return r.notFound(id)
	}
	return nil
}

func (r *repository) AddVersion(ctx context.Context, v *structs.Version) error {
	query, args := r.d.Builder().Insert(r.kind.VersionTable).
		Columns(versionColumns...).
		Values(v.EntryID, v.Version, v.Value, v.CreatedByID, v.CreatedAt).
		Query()
	if _, err := r.d.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		if data.IsUniqueViolation(err) {
			return ecode.Newf(ecode.Conflict, "Version %d of %s %s already exists", v.Version, r.kind.Name, v.EntryID)
		}
		return err
	}
	return nil
}

func (r *repository) FindVersion(ctx context.Context, entryID string, version int) (*structs.Version, error) {
	query, args := r.d.Builder().Select(versionColumns...).
		From(entsql.Table(r.kind.VersionTable)).
		Where(entsql.And(entsql.EQ("entry_id", entryID), entsql.EQ("version", version))).
		Query()
	versions, err := r.scanVersions(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ecode.Newf(ecode.NothingFound, "Version %d of %s %s not found", version, r.kind.Name, entryID)
	}
	return versions[0], nil
}

func (r *repository) ListVersions(ctx context.Context, entryID string, offset, limit int) ([]*structs.Version, int, error) {
	countQuery, countArgs := r.d.Builder().Select(entsql.Count("*")).
		From(entsql.Table(r.kind.VersionTable)).
		Where(entsql.EQ("entry_id", entryID)).
		Query()
	var total int
	if err := r.d.Executor(ctx).QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args := r.d.Builder().Select(versionColumns...).
		From(entsql.Table(r.kind.VersionTable)).
		Where(entsql.EQ("entry_id", entryID)).
		OrderBy(entsql.Desc("version")).
		Offset(offset).
		Limit(limit).
		Query()
	versions, err := r.scanVersions(ctx, query, args)
	if err != nil {
		return nil, 0, err
	}
	return versions, total, nil
}

func (r *repository) DeleteVersionsAbove(ctx context.Context, entryID string, version int) error {
	query, args := r.d.Builder().Delete(r.kind.VersionTable).
		Where(entsql.And(entsql.EQ("entry_id", entryID), entsql.GT("version", version))).
		Query()
	_, err := r.d.Executor(ctx).ExecContext(ctx, query, args...)
	return err
}

// query loads entries and fills in their latest version.
func (r *repository) query(ctx context.Context, where *entsql.Predicate) ([]*structs.Entry, error) {
	query, args := r.d.Builder().Select(columns...).
		From(entsql.Table(r.kind.Table)).
		Where(where).
		OrderBy(entsql.Asc("name")).
		Query()

	rows, err := r.d.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var entries []*structs.Entry
	for rows.Next() {
		e := &structs.Entry{Label: r.kind.Name}
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.ProjectID, &e.EnvironmentID, &e.Name, &e.Slug, &e.Note,
			&e.Pending, &e.RequestedBy, &e.LastUpdatedByID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, e := range entries {
		if err := r.fillLatest(ctx, e); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (r *repository) fillLatest(ctx context.Context, e *structs.Entry) error {
	query, args := r.d.Builder().Select(versionColumns...).
		From(entsql.Table(r.kind.VersionTable)).
		Where(entsql.EQ("entry_id", e.ID)).
		OrderBy(entsql.Desc("version")).
		Limit(1).
		Query()
	versions, err := r.scanVersions(ctx, query, args)
	if err != nil {
		return err
	}
	if len(versions) > 0 {
		e.Version = versions[0].Version
		e.Value = versions[0].Value
	}
	return nil
}

func (r *repository) scanVersions(ctx context.Context, query string, args []any) ([]*structs.Version, error) {
	rows, err := r.d.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*structs.Version
	for rows.Next() {
		v := &structs.Version{}
		if err := rows.Scan(&v.EntryID, &v.Version, &v.Value, &v.CreatedByID, &v.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
