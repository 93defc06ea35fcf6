package repository

import (
	"context"
	"errors"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/ncobase/keyvault/core/authority/structs"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/ecode"
)

type MembershipRepository interface {
	Create(ctx context.Context, m *structs.Membership) error
	Find(ctx context.Context, workspaceID, userID string) (*structs.Membership, error)
	Accept(ctx context.Context, workspaceID, userID string) error
	SetRoles(ctx context.Context, membershipID string, roleIDs []string) error
	Delete(ctx context.Context, workspaceID, userID string) error
	UserIDsWithRole(ctx context.Context, roleID string) ([]string, error)
	ListByWorkspace(ctx context.Context, workspaceID string, offset, limit int) ([]*structs.Membership, int, error)
	WorkspaceIDsForUser(ctx context.Context, userID string) ([]string, error)
}

const (
	membershipTable     = "memberships"
	membershipRoleTable = "membership_roles"
)

var membershipColumns = []string{"id", "workspace_id", "user_id", "invitation_accepted", "created_at", "updated_at"}

type membershipRepository struct {
	d *data.Data
}

// NewMembershipRepository creates the membership repository. The workspaces
// and roles tables must exist.
func NewMembershipRepository(d *data.Data) (MembershipRepository, error) {
	if d == nil || d.DB() == nil {
		return nil, errors.New("database is nil")
	}
	repo := &membershipRepository{d: d}
	if err := repo.initSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *membershipRepository) initSchema(ctx context.Context) error {
	if _, err := r.d.DB().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memberships (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			invitation_accepted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (workspace_id, user_id)
		);
	`); err != nil {
		return err
	}

	if _, err := r.d.DB().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS membership_roles (
			membership_id TEXT NOT NULL REFERENCES memberships(id) ON DELETE CASCADE,
			role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
			PRIMARY KEY (membership_id, role_id)
		);
	`); err != nil {
		return err
	}

	_, err := r.d.DB().ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_membership_roles_role_id ON membership_roles(role_id);
	`)
	return err
}

func (r *membershipRepository) Create(ctx context.Context, m *structs.Membership) error {
	return r.d.WithTx(ctx, func(ctx context.Context) error {
		query, args := r.d.Builder().Insert(membershipTable).
			Columns(membershipColumns...).
			Values(m.ID, m.WorkspaceID, m.UserID, m.InvitationAccepted, m.CreatedAt, m.UpdatedAt).
			Query()
		if _, err := r.d.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
			if data.IsUniqueViolation(err) {
				return ecode.Newf(ecode.Conflict, "User %s is already a member of workspace %s", m.UserID, m.WorkspaceID)
			}
			return err
		}
		return r.insertRoles(ctx, m.ID, m.RoleIDs)
	})
}

func (r *membershipRepository) insertRoles(ctx context.Context, membershipID string, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}
	insert := r.d.Builder().Insert(membershipRoleTable).Columns("membership_id", "role_id")
	for _, id := range roleIDs {
		insert.Values(membershipID, id)
	}
	query, args := insert.Query()
	_, err := r.d.Executor(ctx).ExecContext(ctx, query, args...)
	return err
}

func (r *membershipRepository) Find(ctx context.Context, workspaceID, userID string) (*structs.Membership, error) {
	query, args := r.d.Builder().Select(membershipColumns...).
		From(entsql.Table(membershipTable)).
		Where(entsql.And(entsql.EQ("workspace_id", workspaceID), entsql.EQ("user_id", userID))).
		Query()

	members, err := r.scan(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ecode.Newf(ecode.NothingFound, "User %s is not a member of workspace %s", userID, workspaceID)
	}
	if err := r.loadRoles(ctx, members); err != nil {
		return nil, err
	}
	return members[0], nil
}

func (r *membershipRepository) Accept(ctx context.Context, workspaceID, userID string) error {
	query, args := r.d.Builder().Update(membershipTable).
		Set("invitation_accepted", true).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.And(entsql.EQ("workspace_id", workspaceID), entsql.EQ("user_id", userID))).
		Query()
	result, err := r.d.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectAffected(result, "Membership of user", userID)
}

func (r *membershipRepository) SetRoles(ctx context.Context, membershipID string, roleIDs []string) error {
	return r.d.WithTx(ctx, func(ctx context.Context) error {
		query, args := r.d.Builder().Delete(membershipRoleTable).
			Where(entsql.EQ("membership_id", membershipID)).
			Query()
		if _, err := r.d.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
			return err
		}
		return r.insertRoles(ctx, membershipID, roleIDs)
	})
}

func (r *membershipRepository) Delete(ctx context.Context, workspaceID, userID string) error {
	query, args := r.d.Builder().Delete(membershipTable).
		Where(entsql.And(entsql.EQ("workspace_id", workspaceID), entsql.EQ("user_id", userID))).
		Query()
	result, err := r.d.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return expectAffected(result, "Membership of user", userID)
}

func (r *membershipRepository) UserIDsWithRole(ctx context.Context, roleID string) ([]string, error) {
	t1 := r.d.Builder().Table(membershipTable).As("m")
	t2 := r.d.Builder().Table(membershipRoleTable).As("mr")
	query, args := r.d.Builder().Select(t1.C("user_id")).
		From(t1).
		Join(t2).On(t1.C("id"), t2.C("membership_id")).
		Where(entsql.EQ(t2.C("role_id"), roleID)).
		Query()
	return r.strings(ctx, query, args)
}

func (r *membershipRepository) WorkspaceIDsForUser(ctx context.Context, userID string) ([]string, error) {
	query, args := r.d.Builder().Select("workspace_id").
		From(entsql.Table(membershipTable)).
		Where(entsql.And(entsql.EQ("user_id", userID), entsql.EQ("invitation_accepted", true))).
		Query()
	return r.strings(ctx, query, args)
}

func (r *membershipRepository) ListByWorkspace(ctx context.Context, workspaceID string, offset, limit int) ([]*structs.Membership, int, error) {
	countQuery, countArgs := r.d.Builder().Select(entsql.Count("*")).
		From(entsql.Table(membershipTable)).
		Where(entsql.EQ("workspace_id", workspaceID)).
		Query()
	var total int
	if err := r.d.Executor(ctx).QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args := r.d.Builder().Select(membershipColumns...).
		From(entsql.Table(membershipTable)).
		Where(entsql.EQ("workspace_id", workspaceID)).
		OrderBy(entsql.Asc("created_at")).
		Limit(limit).
		Offset(offset).
		Query()
	members, err := r.scan(ctx, query, args)
	if err != nil {
		return nil, 0, err
	}
	if err := r.loadRoles(ctx, members); err != nil {
		return nil, 0, err
	}
	return members, total, nil
}

func (r *membershipRepository) scan(ctx context.Context, query string, args []any) ([]*structs.Membership, error) {
	rows, err := r.d.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*structs.Membership
	for rows.Next() {
		m := &structs.Membership{}
		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.InvitationAccepted, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.RoleIDs = []string{}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *membershipRepository) loadRoles(ctx context.Context, members []*structs.Membership) error {
	if len(members) == 0 {
		return nil
	}
	byID := make(map[string]*structs.Membership, len(members))
	ids := make([]string, 0, len(members))
	for _, m := range members {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}

	query, args := r.d.Builder().Select("membership_id", "role_id").
		From(entsql.Table(membershipRoleTable)).
		Where(entsql.In("membership_id", data.Args(ids)...)).
		OrderBy("role_id").
		Query()
	rows, err := r.d.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var membershipID, roleID string
		if err := rows.Scan(&membershipID, &roleID); err != nil {
			return err
		}
		if m, ok := byID[membershipID]; ok {
			m.RoleIDs = append(m.RoleIDs, roleID)
		}
	}
	return rows.Err()
}

func (r *membershipRepository) strings(ctx context.Context, query string, args []any) ([]string, error) {
	rows, err := r.d.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
