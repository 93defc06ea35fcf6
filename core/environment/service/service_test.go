package service_test

import (
	"context"
	"testing"

	authStructs "github.com/ncobase/keyvault/core/authority/structs"
	"github.com/ncobase/keyvault/core/environment/structs"
	"github.com/ncobase/keyvault/ecode"
	"github.com/ncobase/keyvault/internal/server/servertest"
	"github.com/ncobase/keyvault/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndRename(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, false)
	project := servertest.Project(t, app, ws.ID, "Backend")

	created, err := app.Environments.Create(ctx, servertest.Owner, project.ID, &structs.CreateEnvironmentRequest{Name: "staging"})
	require.NoError(t, err)
	assert.False(t, created.Deferred())
	assert.Equal(t, ws.ID, created.Item.WorkspaceID)

	_, err = app.Environments.Create(ctx, servertest.Owner, project.ID, &structs.CreateEnvironmentRequest{Name: "staging"})
	assert.True(t, ecode.Is(err, ecode.Conflict), "got %v", err)

	renamed, err := app.Environments.Update(ctx, servertest.Owner, created.Item.ID, &structs.UpdateEnvironmentRequest{
		Name: util.ToPointer("qa"),
	})
	require.NoError(t, err)
	assert.Equal(t, "qa", renamed.Item.Name)
	assert.NotEqual(t, created.Item.Slug, renamed.Item.Slug)
}

func TestLastEnvironmentStays(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, false)
	project := servertest.Project(t, app, ws.ID, "Backend", "dev", "prod")
	envs := servertest.Environments(t, app, project.ID)

	_, err := app.Environments.Delete(ctx, servertest.Owner, envs["dev"].ID, &structs.DeleteRequest{})
	require.NoError(t, err)

	_, err = app.Environments.Delete(ctx, servertest.Owner, envs["prod"].ID, &structs.DeleteRequest{})
	assert.True(t, ecode.Is(err, ecode.InvalidState), "got %v", err)
	assert.Len(t, servertest.Environments(t, app, project.ID), 1)
}

func TestDeferredCreation(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, true)
	project := servertest.Project(t, app, ws.ID, "Backend")
	servertest.Member(t, app, ws.ID, "alice", authStructs.ReadWorkspace, authStructs.ReadProject,
		authStructs.CreateEnvironment, authStructs.ReadEnvironment)
	servertest.Member(t, app, ws.ID, "carol", authStructs.ReadWorkspace, authStructs.ReadProject, authStructs.ReadEnvironment)

	outcome, err := app.Environments.Create(ctx, "alice", project.ID, &structs.CreateEnvironmentRequest{Name: "staging"})
	require.NoError(t, err)
	require.True(t, outcome.Deferred())
	assert.True(t, outcome.Item.Pending)

	_, err = app.Environments.Get(ctx, "carol", outcome.Item.ID)
	assert.True(t, ecode.Is(err, ecode.PendingInaccessible), "got %v", err)
	_, err = app.Environments.Get(ctx, "alice", outcome.Item.ID)
	require.NoError(t, err)

	// only the owner's view lists the pending environment next to default
	assert.Len(t, servertest.Environments(t, app, project.ID), 2)

	_, err = app.Approvals.Approve(ctx, servertest.Owner, outcome.Approval.ID)
	require.NoError(t, err)
	env, err := app.Environments.Get(ctx, "carol", outcome.Item.ID)
	require.NoError(t, err)
	assert.False(t, env.Pending)
}

func TestFinalizeRequiresPending(t *testing.T) {
	app := servertest.NewApp(t)
	ws := servertest.Workspace(t, app, false)
	project := servertest.Project(t, app, ws.ID, "Backend")
	env := servertest.Environments(t, app, project.ID)[structs.DefaultName]

	err := app.Environments.Finalize(context.Background(), env.ID, servertest.Owner)
	assert.True(t, ecode.Is(err, ecode.InvalidState), "got %v", err)
}
