package service

import (
	"context"

	"github.com/ncobase/keyvault/core/authority/structs"
	"github.com/ncobase/keyvault/ecode"
)

// Gate authorizes access to gated entities.
type Gate struct {
	resolver *Resolver
}

func NewGate(resolver *Resolver) *Gate {
	return &Gate{resolver: resolver}
}

// Resolver returns the resolver backing the gate.
func (g *Gate) Resolver() *Resolver {
	return g.resolver
}

// Require fails Unauthorized unless userID holds required at scope.
func (g *Gate) Require(ctx context.Context, userID string, required structs.Authority, scope structs.Scope) (structs.Set, error) {
	set, err := g.resolver.Resolve(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	if !set.Has(required) {
		return nil, ecode.Newf(ecode.Unauthorized,
			"User %s does not have the required authority %s in workspace %s", userID, required, scope.WorkspaceID)
	}
	return set, nil
}

// Check authorizes userID to act with required on target. A pending target
// is hidden unless the user may manage approvals or requested it.
func (g *Gate) Check(ctx context.Context, userID string, required structs.Authority, target structs.Gated) (structs.Set, error) {
	set, err := g.resolver.Resolve(ctx, userID, target.AuthorityScope())
	if err != nil {
		return nil, err
	}
	if !set.Has(required) {
		return nil, ecode.Newf(ecode.Unauthorized,
			"User %s does not have the required authority %s to access %s %s", userID, required, target.Kind(), target.Identifier())
	}
	if !target.GateState().Visible(userID, set) {
		return nil, ecode.Newf(ecode.PendingInaccessible,
			"%s %s is pending approval and is not accessible to user %s", target.Kind(), target.Identifier(), userID)
	}
	return set, nil
}

// Load fetches an entity and authorizes userID against it.
func Load[T structs.Gated](ctx context.Context, g *Gate, userID string, required structs.Authority, find func(context.Context) (T, error)) (T, error) {
	entity, err := find(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if _, err := g.Check(ctx, userID, required, entity); err != nil {
		var zero T
		return zero, err
	}
	return entity, nil
}

// Visible reports whether userID may see target at all. Used to filter lists.
func (g *Gate) Visible(ctx context.Context, userID string, required structs.Authority, target structs.Gated) (bool, error) {
	_, err := g.Check(ctx, userID, required, target)
	switch {
	case err == nil:
		return true, nil
	case ecode.Is(err, ecode.Unauthorized), ecode.Is(err, ecode.PendingInaccessible):
		return false, nil
	default:
		return false, err
	}
}
