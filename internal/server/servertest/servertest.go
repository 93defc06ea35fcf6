// Package servertest builds a fully wired App over an in-memory database
// for service tests.
package servertest

import (
	"context"
	"testing"
	"time"

	authService "github.com/ncobase/keyvault/core/authority/service"
	authStructs "github.com/ncobase/keyvault/core/authority/structs"
	envStructs "github.com/ncobase/keyvault/core/environment/structs"
	eventRepository "github.com/ncobase/keyvault/core/event/data/repository"
	projectStructs "github.com/ncobase/keyvault/core/project/structs"
	wsStructs "github.com/ncobase/keyvault/core/workspace/structs"
	"github.com/ncobase/keyvault/data/datatest"
	"github.com/ncobase/keyvault/internal/server"
	"github.com/ncobase/keyvault/logging/logger"
	"github.com/ncobase/keyvault/paging"
	"github.com/stretchr/testify/require"
)

// Owner creates every workspace and holds its admin role.
const Owner = "owner"

// NewApp returns an App with a memory authority cache and the SQL event
// store.
func NewApp(t testing.TB) *server.App {
	t.Helper()
	d := datatest.NewSQLite(t)
	store, err := eventRepository.NewSQLStore(d)
	require.NoError(t, err)

	app, err := server.Build(d, server.Options{
		Cache: authService.NewMemoryCache(time.Minute),
		Store: store,
	}, logger.StdLogger())
	require.NoError(t, err)
	return app
}

// Workspace creates a workspace owned by Owner.
func Workspace(t testing.TB, app *server.App, approvalEnabled bool) *wsStructs.Workspace {
	t.Helper()
	ws, err := app.Workspaces.Create(context.Background(), Owner, &wsStructs.CreateWorkspaceRequest{
		Name:            "Acme",
		ApprovalEnabled: approvalEnabled,
	})
	require.NoError(t, err)
	return ws
}

// Member makes userID an accepted member of the workspace with a role
// holding authorities everywhere in it.
func Member(t testing.TB, app *server.App, workspaceID, userID string, authorities ...authStructs.Authority) *authStructs.Role {
	t.Helper()
	ctx := context.Background()
	role, err := app.Authority.CreateRole(ctx, Owner, workspaceID, &authStructs.CreateRoleRequest{
		Name:        "Role of " + userID,
		Authorities: authorities,
	})
	require.NoError(t, err)
	_, err = app.Authority.Invite(ctx, Owner, workspaceID, &authStructs.InviteMemberRequest{
		UserID:  userID,
		RoleIDs: []string{role.ID},
	})
	require.NoError(t, err)
	_, err = app.Authority.AcceptInvitation(ctx, userID, workspaceID)
	require.NoError(t, err)
	return role
}

// Project creates a project as Owner, storing its private key.
func Project(t testing.TB, app *server.App, workspaceID, name string, environments ...string) *projectStructs.Project {
	t.Helper()
	req := &projectStructs.CreateProjectRequest{Name: name, StorePrivateKey: true}
	for _, name := range environments {
		req.Environments = append(req.Environments, envStructs.CreateEnvironmentRequest{Name: name})
	}
	outcome, err := app.Projects.Create(context.Background(), Owner, workspaceID, req)
	require.NoError(t, err)
	require.False(t, outcome.Deferred())
	return outcome.Item
}

// Environments returns the environments of a project by name.
func Environments(t testing.TB, app *server.App, projectID string) map[string]*envStructs.Environment {
	t.Helper()
	result, err := app.Environments.List(context.Background(), Owner, projectID, paging.Params{Limit: 100})
	require.NoError(t, err)
	out := make(map[string]*envStructs.Environment, len(result.Items))
	for _, env := range result.Items {
		out[env.Name] = env
	}
	return out
}
