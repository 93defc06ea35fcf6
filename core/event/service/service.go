package service

import (
	"context"

	authstructs "github.com/ncobase/keyvault/core/authority/structs"
	"github.com/ncobase/keyvault/core/event/data/repository"
	"github.com/ncobase/keyvault/core/event/structs"
	"github.com/ncobase/keyvault/ecode"
	"github.com/ncobase/keyvault/logging/logger"
	"github.com/ncobase/keyvault/paging"
)

// AuthorityResolver computes the authorities of a user at a scope.
type AuthorityResolver interface {
	Resolve(ctx context.Context, userID string, scope authstructs.Scope) (authstructs.Set, error)
}

// Service lists recorded events.
type Service struct {
	store    repository.Store
	resolver AuthorityResolver
	logger   *logger.Logger
}

func NewService(store repository.Store, resolver AuthorityResolver, logger *logger.Logger) *Service {
	return &Service{store: store, resolver: resolver, logger: logger}
}

// List returns the events of a workspace. The caller needs READ_EVENT.
func (s *Service) List(ctx context.Context, userID, workspaceID string, f structs.Filter) (*paging.Result[*structs.Event], error) {
	set, err := s.resolver.Resolve(ctx, userID, authstructs.WorkspaceScope(workspaceID))
	if err != nil {
		return nil, err
	}
	if !set.Has(authstructs.ReadEvent) {
		return nil, ecode.Newf(ecode.Unauthorized,
			"User %s does not have the required authorities to read events of workspace %s", userID, workspaceID)
	}

	f.Params = paging.NormalizeParams(f.Params, "timestamp")
	return paging.Paginate(f.Params, func(offset, limit int) ([]*structs.Event, int, error) {
		return s.store.List(ctx, workspaceID, f, offset, limit)
	})
}
