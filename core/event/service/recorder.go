package service

import (
	"context"

	"github.com/ncobase/keyvault/core/event/structs"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/logging/logger"
)

// Recorder is the fire-and-forget audit sink used by the domain services.
type Recorder struct {
	bus    *Bus
	logger *logger.Logger
}

func NewRecorder(bus *Bus, logger *logger.Logger) *Recorder {
	return &Recorder{bus: bus, logger: logger}
}

// Record publishes the event once the surrounding transaction commits.
// Failures are logged and never reach the caller.
func (r *Recorder) Record(ctx context.Context, e *structs.Event) {
	if r == nil || r.bus == nil {
		return
	}
	data.AfterCommit(ctx, func() {
		pctx := context.WithoutCancel(ctx)
		if err := r.bus.Publish(pctx, e); err != nil {
			r.logger.Error(pctx, "Failed to record event",
				"type", e.Type,
				"item_id", e.ItemID,
				"workspace_id", e.WorkspaceID,
				"error", err)
		}
	})
}
