package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/ncobase/keyvault/core/event/structs"
	"github.com/ncobase/keyvault/data"
)

const eventTable = "events"

var eventColumns = []string{
	"id", "workspace_id", "type", "source", "title", "description",
	"item_id", "triggered_by", "metadata", "created_at",
}

// SQLStore keeps events in the relational database. It writes outside any
// request transaction so an audit record never holds a transaction open.
type SQLStore struct {
	d *data.Data
}

func NewSQLStore(d *data.Data) (*SQLStore, error) {
	if d == nil || d.DB() == nil {
		return nil, errors.New("database is nil")
	}
	s := &SQLStore{d: d}
	if err := s.initSchema(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	if _, err := s.d.DB().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			type TEXT NOT NULL,
			source TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			item_id TEXT NOT NULL DEFAULT '',
			triggered_by TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL
		);
	`); err != nil {
		return err
	}

	_, err := s.d.DB().ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_events_workspace_created_at ON events(workspace_id, created_at);
	`)
	return err
}

func (s *SQLStore) Save(ctx context.Context, e *structs.Event) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal event metadata: %w", err)
	}

	query, args := s.d.Builder().Insert(eventTable).
		Columns(eventColumns...).
		Values(e.ID, e.WorkspaceID, string(e.Type), string(e.Source), e.Title, e.Description,
			e.ItemID, e.TriggeredBy, string(meta), e.Timestamp.UTC()).
		Query()

	_, err = s.d.DB().ExecContext(ctx, query, args...)
	return err
}

func (s *SQLStore) where(workspaceID string, f structs.Filter) *entsql.Predicate {
	preds := []*entsql.Predicate{entsql.EQ("workspace_id", workspaceID)}
	if len(f.Sources) > 0 {
		preds = append(preds, entsql.In("source", data.Args(f.Sources)...))
	}
	if len(f.Types) > 0 {
		preds = append(preds, entsql.In("type", data.Args(f.Types)...))
	}
	if f.ItemID != "" {
		preds = append(preds, entsql.EQ("item_id", f.ItemID))
	}
	return entsql.And(preds...)
}

func (s *SQLStore) List(ctx context.Context, workspaceID string, f structs.Filter, offset, limit int) ([]*structs.Event, int, error) {
	countQuery, countArgs := s.d.Builder().
		Select(entsql.Count("*")).
		From(entsql.Table(eventTable)).
		Where(s.where(workspaceID, f)).
		Query()

	var total int
	if err := s.d.DB().QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := entsql.Desc("created_at")
	if f.Order == "asc" {
		order = entsql.Asc("created_at")
	}
	query, args := s.d.Builder().
		Select(eventColumns...).
		From(entsql.Table(eventTable)).
		Where(s.where(workspaceID, f)).
		OrderBy(order).
		Limit(limit).
		Offset(offset).
		Query()

	rows, err := s.d.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*structs.Event
	for rows.Next() {
		e := &structs.Event{}
		var meta string
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.Type, &e.Source, &e.Title, &e.Description,
			&e.ItemID, &e.TriggeredBy, &meta, &e.Timestamp); err != nil {
			return nil, 0, err
		}
		if meta != "" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal event metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
