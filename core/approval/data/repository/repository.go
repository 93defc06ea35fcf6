// Package repository stores approvals.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/ncobase/keyvault/core/approval/structs"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/ecode"
)

// ListOptions narrows List. Empty slices match everything.
type ListOptions struct {
	WorkspaceID   string
	RequestedByID string
	ItemTypes     []structs.ItemType
	Actions       []structs.Action
	Statuses      []structs.Status
	Sort          string
	Descending    bool
	Offset        int
	Limit         int
}

type Repository interface {
	Create(ctx context.Context, a *structs.Approval) error
	FindByID(ctx context.Context, id string) (*structs.Approval, error)
	UpdateReason(ctx context.Context, id, reason string) (bool, error)
	// Resolve moves a pending approval to status. It reports false when the
	// approval is no longer pending.
	Resolve(ctx context.Context, id string, status structs.Status, actorID string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	// DeletePending drops the pending approval of an item, if any.
	DeletePending(ctx context.Context, itemType structs.ItemType, itemID string) error
	List(ctx context.Context, opts ListOptions) ([]*structs.Approval, int, error)
}

const table = "approvals"

var columns = []string{
	"id", "workspace_id", "item_type", "item_id", "action", "status", "metadata", "reason",
	"requested_by_id", "approved_by_id", "approved_at", "rejected_by_id", "rejected_at",
	"created_at", "updated_at",
}

type repository struct {
	d *data.Data
}

// New creates the approval repository. The workspaces table must exist.
func New(d *data.Data) (Repository, error) {
	if d == nil || d.DB() == nil {
		return nil, errors.New("database is nil")
	}
	repo := &repository{d: d}
	if err := repo.initSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *repository) initSchema(ctx context.Context) error {
	if _, err := r.d.DB().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS approvals (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
			item_type TEXT NOT NULL,
			item_id TEXT NOT NULL,
			action TEXT NOT NULL,
			status TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			reason TEXT NOT NULL DEFAULT '',
			requested_by_id TEXT NOT NULL,
			approved_by_id TEXT NOT NULL DEFAULT '',
			approved_at TIMESTAMP NULL,
			rejected_by_id TEXT NOT NULL DEFAULT '',
			rejected_at TIMESTAMP NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
	`); err != nil {
		return err
	}

	if _, err := r.d.DB().ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS uq_approvals_pending_item ON approvals(item_type, item_id) WHERE status = 'PENDING';
	`); err != nil {
		return err
	}

	_, err := r.d.DB().ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_approvals_workspace ON approvals(workspace_id, created_at);
	`)
	return err
}

func (r *repository) Create(ctx context.Context, a *structs.Approval) error {
	metadata, err := json.Marshal(structs.EncodeChange(a.Change))
	if err != nil {
		return fmt.Errorf("failed to marshal approval metadata: %w", err)
	}

	query, args := r.d.Builder().Insert(table).
		Columns(columns...).
		Values(a.ID, a.WorkspaceID, string(a.ItemType), a.ItemID, string(a.Action), string(a.Status),
			string(metadata), a.Reason, a.RequestedByID, a.ApprovedByID, a.ApprovedAt,
			a.RejectedByID, a.RejectedAt, a.CreatedAt, a.UpdatedAt).
		Query()

	if _, err := r.d.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
		if data.IsUniqueViolation(err) {
			return ecode.Newf(ecode.Conflict, "Active approval for %s with id %s already exists", a.ItemType, a.ItemID)
		}
		return err
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id string) (*structs.Approval, error) {
	query, args := r.d.Builder().Select(columns...).
		From(entsql.Table(table)).
		Where(entsql.EQ("id", id)).
		Query()

	approvals, err := r.scan(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(approvals) == 0 {
		return nil, ecode.Newf(ecode.NothingFound, "Approval with id %s not found", id)
	}
	return approvals[0], nil
}

func (r *repository) UpdateReason(ctx context.Context, id, reason string) (bool, error) {
	query, args := r.d.Builder().Update(table).
		Set("reason", reason).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", string(structs.StatusPending)))).
		Query()
	return r.exec(ctx, query, args)
}

func (r *repository) Resolve(ctx context.Context, id string, status structs.Status, actorID string, at time.Time) (bool, error) {
	update := r.d.Builder().Update(table).
		Set("status", string(status)).
		Set("updated_at", at)
	switch status {
	case structs.StatusApproved:
		update.Set("approved_by_id", actorID).Set("approved_at", at)
	case structs.StatusRejected:
		update.Set("rejected_by_id", actorID).Set("rejected_at", at)
	default:
		return false, fmt.Errorf("approval can not move to status %s", status)
	}
	query, args := update.
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", string(structs.StatusPending)))).
		Query()
	return r.exec(ctx, query, args)
}

func (r *repository) Delete(ctx context.Context, id string) error {
	query, args := r.d.Builder().Delete(table).Where(entsql.EQ("id", id)).Query()
	ok, err := r.exec(ctx, query, args)
	if err != nil {
		return err
	}
	if !ok {
		return ecode.Newf(ecode.NothingFound, "Approval with id %s not found", id)
	}
	return nil
}

func (r *repository) DeletePending(ctx context.Context, itemType structs.ItemType, itemID string) error {
	query, args := r.d.Builder().Delete(table).
		Where(entsql.And(
			entsql.EQ("item_type", string(itemType)),
			entsql.EQ("item_id", itemID),
			entsql.EQ("status", string(structs.StatusPending)),
		)).
		Query()
	_, err := r.exec(ctx, query, args)
	return err
}

func (r *repository) List(ctx context.Context, opts ListOptions) ([]*structs.Approval, int, error) {
	countQuery, countArgs := r.d.Builder().Select(entsql.Count("*")).
		From(entsql.Table(table)).
		Where(predicate(opts)).
		Query()
	var total int
	if err := r.d.Executor(ctx).QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sort := opts.Sort
	if !slices.Contains(structs.SortColumns, sort) {
		sort = "created_at"
	}
	order := entsql.Asc(sort)
	if opts.Descending {
		order = entsql.Desc(sort)
	}

	selector := r.d.Builder().Select(columns...).
		From(entsql.Table(table)).
		Where(predicate(opts)).
		OrderBy(order, entsql.Asc("id"))
	if opts.Limit > 0 {
		selector.Limit(opts.Limit).Offset(opts.Offset)
	}
	query, args := selector.Query()

	approvals, err := r.scan(ctx, query, args)
	if err != nil {
		return nil, 0, err
	}
	return approvals, total, nil
}

func predicate(opts ListOptions) *entsql.Predicate {
	preds := []*entsql.Predicate{entsql.EQ("workspace_id", opts.WorkspaceID)}
	if opts.RequestedByID != "" {
		preds = append(preds, entsql.EQ("requested_by_id", opts.RequestedByID))
	}
	if len(opts.ItemTypes) > 0 {
		preds = append(preds, entsql.In("item_type", data.Args(opts.ItemTypes)...))
	}
	if len(opts.Actions) > 0 {
		preds = append(preds, entsql.In("action", data.Args(opts.Actions)...))
	}
	if len(opts.Statuses) > 0 {
		preds = append(preds, entsql.In("status", data.Args(opts.Statuses)...))
	}
	return entsql.And(preds...)
}

func (r *repository) exec(ctx context.Context, query string, args []any) (bool, error) {
	result, err := r.d.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *repository) scan(ctx context.Context, query string, args []any) ([]*structs.Approval, error) {
	rows, err := r.d.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []*structs.Approval
	for rows.Next() {
		a := &structs.Approval{}
		var metadata string
		var approvedAt, rejectedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.WorkspaceID, &a.ItemType, &a.ItemID, &a.Action, &a.Status,
			&metadata, &a.Reason, &a.RequestedByID, &a.ApprovedByID, &approvedAt,
			&a.RejectedByID, &rejectedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if approvedAt.Valid {
			a.ApprovedAt = &approvedAt.Time
		}
		if rejectedAt.Valid {
			a.RejectedAt = &rejectedAt.Time
		}

		raw := map[string]any{}
		if err := json.Unmarshal([]byte(metadata), &raw); err != nil {
			return nil, fmt.Errorf("failed to unmarshal approval metadata: %w", err)
		}
		change, err := structs.DecodeChange(a.ItemType, a.Action, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode approval %s: %w", a.ID, err)
		}
		a.Change = change
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}
