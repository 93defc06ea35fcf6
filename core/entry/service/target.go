package service

import (
	"context"

	approvalService "github.com/ncobase/keyvault/core/approval/service"
	approvalStructs "github.com/ncobase/keyvault/core/approval/structs"
)

// target exposes the apply entry points under the names the approval
// dispatcher expects.
type target struct {
	s *Service
}

// Target returns the dispatcher view of the service.
func (s *Service) Target() approvalService.EntryTarget {
	return target{s: s}
}

func (t target) Item(ctx context.Context, id string) (any, error) {
	return t.s.Item(ctx, id)
}

func (t target) Remove(ctx context.Context, id, actorID string) error {
	return t.s.Remove(ctx, id, actorID)
}

func (t target) Finalize(ctx context.Context, id, actorID string) error {
	return t.s.Finalize(ctx, id, actorID)
}

func (t target) ApplyUpdate(ctx context.Context, id string, change approvalStructs.EntryUpdate, actorID string) error {
	return t.s.ApplyUpdate(ctx, id, change, actorID)
}

func (t target) Move(ctx context.Context, id, environmentID, actorID string) error {
	return t.s.ApplyMove(ctx, id, environmentID, actorID)
}

func (t target) Rollback(ctx context.Context, id string, version int, actorID string) error {
	return t.s.ApplyRollback(ctx, id, version, actorID)
}
