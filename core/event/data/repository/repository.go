// Package repository persists audit events in SQL or MongoDB.
package repository

import (
	"context"

	"github.com/ncobase/keyvault/core/event/structs"
)

// Store persists and lists events.
type Store interface {
	Save(ctx context.Context, event *structs.Event) error
	List(ctx context.Context, workspaceID string, filter structs.Filter, offset, limit int) ([]*structs.Event, int, error)
}
