// Package service runs the approval workflow: deferring changes, deciding
// on them and replaying approved ones against their targets.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ncobase/keyvault/core/approval/data/repository"
	"github.com/ncobase/keyvault/core/approval/structs"
	authService "github.com/ncobase/keyvault/core/authority/service"
	authStructs "github.com/ncobase/keyvault/core/authority/structs"
	eventService "github.com/ncobase/keyvault/core/event/service"
	eventStructs "github.com/ncobase/keyvault/core/event/structs"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/ecode"
	"github.com/ncobase/keyvault/logging/logger"
	"github.com/ncobase/keyvault/nanoid"
	"github.com/ncobase/keyvault/paging"
	"github.com/ncobase/keyvault/validator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ncobase/keyvault/core/approval"

// Request describes a change to defer.
type Request struct {
	WorkspaceID   string
	ItemType      structs.ItemType
	ItemID        string
	Action        structs.Action
	RequestedByID string
	Reason        string
	Change        structs.Change
}

type Service struct {
	d          *data.Data
	repo       repository.Repository
	gate       *authService.Gate
	dispatcher *Dispatcher
	recorder   *eventService.Recorder
	logger     *logger.Logger
	tracer     trace.Tracer
}

func NewService(d *data.Data, repo repository.Repository, gate *authService.Gate, recorder *eventService.Recorder, logger *logger.Logger) *Service {
	return &Service{
		d:        d,
		repo:     repo,
		gate:     gate,
		recorder: recorder,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// SetDispatcher sets the dispatcher. The domain services it targets depend
// on this service, so it is wired after construction.
func (s *Service) SetDispatcher(dispatcher *Dispatcher) {
	s.dispatcher = dispatcher
}

// ShouldDefer decides whether userID's change to a workspace item becomes an
// approval. Changes to items still pending are applied in place.
func (s *Service) ShouldDefer(ctx context.Context, approvalEnabled bool, workspaceID, userID string, gate authStructs.ApprovalGate) (bool, error) {
	if !approvalEnabled || gate.Pending {
		return false, nil
	}
	set, err := s.gate.Resolver().Resolve(ctx, userID, authStructs.WorkspaceScope(workspaceID))
	if err != nil {
		return false, err
	}
	return !set.CanManageApprovals(), nil
}

// Create records a pending approval. Domain services call it inside the
// transaction that marks the target pending.
func (s *Service) Create(ctx context.Context, req *Request) (*structs.Approval, error) {
	if !req.Action.Valid() {
		return nil, ecode.Newf(ecode.ParamErr, "Unknown action %s", req.Action)
	}
	if err := structs.CheckChange(req.ItemType, req.Action, req.Change); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	a := &structs.Approval{
		ID:            nanoid.PrimaryKey(),
		WorkspaceID:   req.WorkspaceID,
		ItemType:      req.ItemType,
		ItemID:        req.ItemID,
		Action:        req.Action,
		Status:        structs.StatusPending,
		Change:        req.Change,
		Reason:        req.Reason,
		RequestedByID: req.RequestedByID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if !ecode.Is(err, ecode.Conflict) {
			s.logger.Error(ctx, "Failed to create approval", "item_type", req.ItemType, "item_id", req.ItemID, "error", err)
		}
		return nil, err
	}

	s.record(ctx, a, req.RequestedByID, eventStructs.ApprovalCreated, "Approval created")
	s.logger.Info(ctx, "Approval created",
		"approval_id", a.ID,
		"item_type", a.ItemType,
		"item_id", a.ItemID,
		"action", a.Action)
	return a, nil
}

// access loads an approval and checks that userID is a workspace admin,
// holds MANAGE_APPROVALS or requested it.
func (s *Service) access(ctx context.Context, userID, approvalID string) (*structs.Approval, error) {
	a, err := s.repo.FindByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if a.RequestedByID == userID {
		return a, nil
	}
	set, err := s.gate.Resolver().Resolve(ctx, userID, authStructs.WorkspaceScope(a.WorkspaceID))
	if err != nil {
		return nil, err
	}
	if !set.CanManageApprovals() {
		return nil, ecode.Newf(ecode.Unauthorized, "User %s is not authorized to access approval %s", userID, approvalID)
	}
	return a, nil
}

func alreadyResolved(id string) error {
	return ecode.Newf(ecode.InvalidState, "Approval with id %s is already approved/rejected", id)
}

// GetByID returns an approval with its target item.
func (s *Service) GetByID(ctx context.Context, userID, approvalID string) (*structs.Detail, error) {
	a, err := s.access(ctx, userID, approvalID)
	if err != nil {
		return nil, err
	}
	item, err := s.dispatcher.Item(ctx, a)
	if err != nil {
		return nil, err
	}
	return &structs.Detail{Approval: a, Item: item}, nil
}

// UpdateReason edits the reason of a pending approval.
func (s *Service) UpdateReason(ctx context.Context, userID, approvalID string, req *structs.UpdateReasonRequest) (*structs.Approval, error) {
	a, err := s.access(ctx, userID, approvalID)
	if err != nil {
		return nil, err
	}
	if !a.Pending() {
		return nil, alreadyResolved(approvalID)
	}
	if err := validator.Validate(req); err != nil {
		return nil, err
	}

	ok, err := s.repo.UpdateReason(ctx, approvalID, req.Reason)
	if err != nil {
		s.logger.Error(ctx, "Failed to update approval", "approval_id", approvalID, "error", err)
		return nil, err
	}
	if !ok {
		return nil, alreadyResolved(approvalID)
	}
	a.Reason = req.Reason

	s.record(ctx, a, userID, eventStructs.ApprovalUpdated, "Approval reason updated")
	s.logger.Info(ctx, "Approval updated", "approval_id", approvalID)
	return a, nil
}

// Approve applies the change and marks the approval approved in one
// transaction. A failed change leaves the approval pending.
func (s *Service) Approve(ctx context.Context, userID, approvalID string) (*structs.Approval, error) {
	ctx, span := s.tracer.Start(ctx, "approval.Approve", trace.WithAttributes(
		attribute.String("approval.id", approvalID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	a, err := s.access(ctx, userID, approvalID)
	if err != nil {
		return nil, spanError(span, err)
	}
	if !a.Pending() {
		return nil, spanError(span, alreadyResolved(approvalID))
	}
	span.SetAttributes(
		attribute.String("approval.item_type", string(a.ItemType)),
		attribute.String("approval.action", string(a.Action)),
	)

	now := time.Now().UTC()
	err = s.d.WithTx(ctx, func(ctx context.Context) error {
		if err := s.dispatch(ctx, a); err != nil {
			return err
		}
		ok, err := s.repo.Resolve(ctx, approvalID, structs.StatusApproved, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			return alreadyResolved(approvalID)
		}
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "Failed to approve approval", "approval_id", approvalID, "error", err)
		return nil, spanError(span, err)
	}

	a.Status = structs.StatusApproved
	a.ApprovedByID = userID
	a.ApprovedAt = &now
	a.UpdatedAt = now

	s.record(ctx, a, userID, eventStructs.ApprovalApproved, "Approval approved")
	s.logger.Info(ctx, "Approval approved", "approval_id", approvalID, "approved_by", userID)
	return a, nil
}

func (s *Service) dispatch(ctx context.Context, a *structs.Approval) error {
	ctx, span := s.tracer.Start(ctx, "approval.Dispatch", trace.WithAttributes(
		attribute.String("approval.id", a.ID),
		attribute.String("approval.item_id", a.ItemID),
	))
	defer span.End()

	if err := s.dispatcher.Apply(ctx, a); err != nil {
		return spanError(span, ecode.Wrap(ecode.DispatchFailed, err,
			fmt.Sprintf("Failed to apply approval %s to %s %s", a.ID, a.ItemType, a.ItemID)))
	}
	return nil
}

// Reject marks the approval rejected. The target of a CREATE is deleted.
func (s *Service) Reject(ctx context.Context, userID, approvalID string) (*structs.Approval, error) {
	ctx, span := s.tracer.Start(ctx, "approval.Reject", trace.WithAttributes(
		attribute.String("approval.id", approvalID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	a, err := s.access(ctx, userID, approvalID)
	if err != nil {
		return nil, spanError(span, err)
	}
	if !a.Pending() {
		return nil, spanError(span, alreadyResolved(approvalID))
	}

	now := time.Now().UTC()
	err = s.d.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.repo.Resolve(ctx, approvalID, structs.StatusRejected, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			return alreadyResolved(approvalID)
		}
		return s.cleanup(ctx, a, userID)
	})
	if err != nil {
		s.logger.Error(ctx, "Failed to reject approval", "approval_id", approvalID, "error", err)
		return nil, spanError(span, err)
	}

	a.Status = structs.StatusRejected
	a.RejectedByID = userID
	a.RejectedAt = &now
	a.UpdatedAt = now

	s.record(ctx, a, userID, eventStructs.ApprovalRejected, "Approval rejected")
	s.logger.Info(ctx, "Approval rejected", "approval_id", approvalID, "rejected_by", userID)
	return a, nil
}

// Delete removes an approval. A pending CREATE takes its target with it.
func (s *Service) Delete(ctx context.Context, userID, approvalID string) error {
	a, err := s.access(ctx, userID, approvalID)
	if err != nil {
		return err
	}

	err = s.d.WithTx(ctx, func(ctx context.Context) error {
		if a.Pending() {
			if err := s.cleanup(ctx, a, userID); err != nil {
				return err
			}
		}
		return s.repo.Delete(ctx, approvalID)
	})
	if err != nil {
		s.logger.Error(ctx, "Failed to delete approval", "approval_id", approvalID, "error", err)
		return err
	}

	s.record(ctx, a, userID, eventStructs.ApprovalDeleted, "Approval deleted")
	s.logger.Info(ctx, "Approval deleted", "approval_id", approvalID)
	return nil
}

// Discard drops the pending approval of an item that is being deleted
// directly.
func (s *Service) Discard(ctx context.Context, itemType structs.ItemType, itemID string) error {
	return s.repo.DeletePending(ctx, itemType, itemID)
}

// cleanup deletes the provisional target of a CREATE approval.
func (s *Service) cleanup(ctx context.Context, a *structs.Approval, userID string) error {
	if a.Action != structs.ActionCreate {
		return nil
	}
	if err := s.dispatcher.Remove(ctx, a, userID); err != nil && !ecode.Is(err, ecode.NothingFound) {
		return err
	}
	return nil
}

// ListForWorkspace lists every approval of a workspace. Needs MANAGE_APPROVALS.
func (s *Service) ListForWorkspace(ctx context.Context, userID, workspaceID string, f structs.Filter) (*paging.Result[*structs.Approval], error) {
	if _, err := s.gate.Require(ctx, userID, authStructs.ManageApprovals, authStructs.WorkspaceScope(workspaceID)); err != nil {
		return nil, err
	}
	return s.list(ctx, workspaceID, "", f)
}

// ListForUser lists the caller's own approvals. Needs READ_WORKSPACE.
func (s *Service) ListForUser(ctx context.Context, userID, workspaceID string, f structs.Filter) (*paging.Result[*structs.Approval], error) {
	if _, err := s.gate.Require(ctx, userID, authStructs.ReadWorkspace, authStructs.WorkspaceScope(workspaceID)); err != nil {
		return nil, err
	}
	return s.list(ctx, workspaceID, userID, f)
}

func (s *Service) list(ctx context.Context, workspaceID, requestedByID string, f structs.Filter) (*paging.Result[*structs.Approval], error) {
	params := paging.NormalizeParams(f.Params, structs.SortColumns...)
	return paging.Paginate(params, func(offset, limit int) ([]*structs.Approval, int, error) {
		return s.repo.List(ctx, repository.ListOptions{
			WorkspaceID:   workspaceID,
			RequestedByID: requestedByID,
			ItemTypes:     f.ItemTypes,
			Actions:       f.Actions,
			Statuses:      f.Statuses,
			Sort:          params.Sort,
			Descending:    params.Descending(),
			Offset:        offset,
			Limit:         limit,
		})
	})
}

func (s *Service) record(ctx context.Context, a *structs.Approval, userID string, t eventStructs.Type, title string) {
	s.recorder.Record(ctx, &eventStructs.Event{
		WorkspaceID: a.WorkspaceID,
		Type:        t,
		Source:      eventStructs.SourceApproval,
		Title:       title,
		ItemID:      a.ID,
		TriggeredBy: userID,
		Metadata: map[string]any{
			"item_type": a.ItemType,
			"item_id":   a.ItemID,
			"action":    a.Action,
			"status":    a.Status,
			"reason":    a.Reason,
		},
	})
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
