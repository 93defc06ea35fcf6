package service_test

import (
	"context"
	"testing"

	authStructs "github.com/ncobase/keyvault/core/authority/structs"
	"github.com/ncobase/keyvault/core/entry/structs"
	envStructs "github.com/ncobase/keyvault/core/environment/structs"
	eventStructs "github.com/ncobase/keyvault/core/event/structs"
	projectStructs "github.com/ncobase/keyvault/core/project/structs"
	"github.com/ncobase/keyvault/ecode"
	"github.com/ncobase/keyvault/internal/server"
	"github.com/ncobase/keyvault/internal/server/servertest"
	"github.com/ncobase/keyvault/paging"
	"github.com/ncobase/keyvault/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	app     *server.App
	ws      string
	project *projectStructs.Project
	envs    map[string]*envStructs.Environment
}

func setup(t *testing.T) *fixture {
	t.Helper()
	app := servertest.NewApp(t)
	ws := servertest.Workspace(t, app, false)
	project := servertest.Project(t, app, ws.ID, "Backend", "dev", "prod")
	return &fixture{app: app, ws: ws.ID, project: project, envs: servertest.Environments(t, app, project.ID)}
}

func (f *fixture) secret(t *testing.T, name, value string) *structs.Entry {
	t.Helper()
	outcome, err := f.app.Secrets.Create(context.Background(), servertest.Owner, f.envs["dev"].ID,
		&structs.CreateEntryRequest{Name: name, Value: value})
	require.NoError(t, err)
	require.False(t, outcome.Deferred())
	return outcome.Item
}

func TestSecretValuesAreSealed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	created := f.secret(t, "DB_PASSWORD", "hunter2")
	assert.Equal(t, 1, created.Version)
	assert.NotEqual(t, "hunter2", created.Value)

	stored, err := f.app.Secrets.Get(ctx, servertest.Owner, created.ID, structs.ReadParams{})
	require.NoError(t, err)
	assert.Equal(t, created.Value, stored.Value)

	opened, err := f.app.Secrets.Get(ctx, servertest.Owner, created.ID, structs.ReadParams{Decrypt: true})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", opened.Value)

	list, err := f.app.Secrets.List(ctx, servertest.Owner, f.envs["dev"].ID, paging.Params{}, structs.ReadParams{Decrypt: true})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "hunter2", list.Items[0].Value)
}

func TestVariableValuesArePlain(t *testing.T) {
	f := setup(t)
	outcome, err := f.app.Variables.Create(context.Background(), servertest.Owner, f.envs["dev"].ID,
		&structs.CreateEntryRequest{Name: "REGION", Value: "eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", outcome.Item.Value)
}

func TestDuplicateNameConflicts(t *testing.T) {
	f := setup(t)
	f.secret(t, "TOKEN", "a")
	_, err := f.app.Secrets.Create(context.Background(), servertest.Owner, f.envs["dev"].ID,
		&structs.CreateEntryRequest{Name: "TOKEN", Value: "b"})
	assert.True(t, ecode.Is(err, ecode.Conflict), "got %v", err)

	// same name in another environment is fine
	_, err = f.app.Secrets.Create(context.Background(), servertest.Owner, f.envs["prod"].ID,
		&structs.CreateEntryRequest{Name: "TOKEN", Value: "b"})
	require.NoError(t, err)
}

func TestVersionsAndRollback(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	s := f.secret(t, "TOKEN", "v1")

	for _, v := range []string{"v2", "v3"} {
		_, err := f.app.Secrets.Update(ctx, servertest.Owner, s.ID, &structs.UpdateEntryRequest{Value: util.ToPointer(v)})
		require.NoError(t, err)
	}
	renamed, err := f.app.Secrets.Update(ctx, servertest.Owner, s.ID, &structs.UpdateEntryRequest{Note: util.ToPointer("rotated")})
	require.NoError(t, err)
	assert.Equal(t, 3, renamed.Item.Version, "note changes add no version")

	versions, err := f.app.Secrets.ListVersions(ctx, servertest.Owner, s.ID, paging.Params{}, structs.ReadParams{Decrypt: true})
	require.NoError(t, err)
	require.Equal(t, 3, versions.Total)
	assert.Equal(t, 3, versions.Items[0].Version)
	assert.Equal(t, "v3", versions.Items[0].Value)

	tests := []struct {
		name    string
		version int
		code    int
	}{
		{"current version", 3, ecode.ParamErr},
		{"future version", 7, ecode.ParamErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.app.Secrets.Rollback(ctx, servertest.Owner, s.ID, &structs.RollbackRequest{Version: tt.version})
			assert.True(t, ecode.Is(err, tt.code), "got %v", err)
		})
	}

	outcome, err := f.app.Secrets.Rollback(ctx, servertest.Owner, s.ID, &structs.RollbackRequest{Version: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Item.Version)

	opened, err := f.app.Secrets.Get(ctx, servertest.Owner, s.ID, structs.ReadParams{Decrypt: true})
	require.NoError(t, err)
	assert.Equal(t, "v1", opened.Value)

	versions, err = f.app.Secrets.ListVersions(ctx, servertest.Owner, s.ID, paging.Params{}, structs.ReadParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, versions.Total)

	// the next value continues from the restored version
	updated, err := f.app.Secrets.Update(ctx, servertest.Owner, s.ID, &structs.UpdateEntryRequest{Value: util.ToPointer("v2b")})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Item.Version)
}

func TestMove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	s := f.secret(t, "TOKEN", "v1")

	_, err := f.app.Secrets.Move(ctx, servertest.Owner, s.ID, &structs.MoveRequest{EnvironmentID: f.envs["dev"].ID})
	assert.True(t, ecode.Is(err, ecode.ParamErr), "got %v", err)

	other := servertest.Project(t, f.app, f.ws, "Frontend")
	otherEnv := servertest.Environments(t, f.app, other.ID)[envStructs.DefaultName]
	_, err = f.app.Secrets.Move(ctx, servertest.Owner, s.ID, &structs.MoveRequest{EnvironmentID: otherEnv.ID})
	assert.True(t, ecode.Is(err, ecode.ParamErr), "got %v", err)

	outcome, err := f.app.Secrets.Move(ctx, servertest.Owner, s.ID, &structs.MoveRequest{EnvironmentID: f.envs["prod"].ID})
	require.NoError(t, err)
	assert.Equal(t, f.envs["prod"].ID, outcome.Item.EnvironmentID)

	dev, err := f.app.Secrets.List(ctx, servertest.Owner, f.envs["dev"].ID, paging.Params{}, structs.ReadParams{})
	require.NoError(t, err)
	assert.Empty(t, dev.Items)
}

func TestDecryptWithoutStoredKey(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	outcome, err := f.app.Projects.Create(ctx, servertest.Owner, f.ws, &projectStructs.CreateProjectRequest{Name: "Keyless"})
	require.NoError(t, err)
	env := servertest.Environments(t, f.app, outcome.Item.ID)[envStructs.DefaultName]

	created, err := f.app.Secrets.Create(ctx, servertest.Owner, env.ID, &structs.CreateEntryRequest{Name: "K", Value: "v"})
	require.NoError(t, err)

	_, err = f.app.Secrets.Get(ctx, servertest.Owner, created.Item.ID, structs.ReadParams{Decrypt: true})
	assert.True(t, ecode.Is(err, ecode.RequestErr), "got %v", err)
	_, err = f.app.Secrets.Get(ctx, servertest.Owner, created.Item.ID, structs.ReadParams{})
	require.NoError(t, err)
}

func TestEnvironmentScopedRole(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dev := f.secret(t, "DEV_TOKEN", "d")
	prod, err := f.app.Secrets.Create(ctx, servertest.Owner, f.envs["prod"].ID, &structs.CreateEntryRequest{Name: "PROD_TOKEN", Value: "p"})
	require.NoError(t, err)

	role, err := f.app.Authority.CreateRole(ctx, servertest.Owner, f.ws, &authStructs.CreateRoleRequest{
		Name:        "Dev reader",
		Authorities: []authStructs.Authority{authStructs.ReadWorkspace, authStructs.ReadProject, authStructs.ReadEnvironment, authStructs.ReadSecret},
		Projects:    []authStructs.ProjectAssignment{{ProjectID: f.project.ID, EnvironmentIDs: []string{f.envs["dev"].ID}}},
	})
	require.NoError(t, err)
	_, err = f.app.Authority.Invite(ctx, servertest.Owner, f.ws, &authStructs.InviteMemberRequest{UserID: "dave", RoleIDs: []string{role.ID}})
	require.NoError(t, err)
	_, err = f.app.Authority.AcceptInvitation(ctx, "dave", f.ws)
	require.NoError(t, err)

	_, err = f.app.Secrets.Get(ctx, "dave", dev.ID, structs.ReadParams{})
	require.NoError(t, err)
	_, err = f.app.Secrets.Get(ctx, "dave", prod.Item.ID, structs.ReadParams{})
	assert.True(t, ecode.Is(err, ecode.Unauthorized), "got %v", err)
	_, err = f.app.Secrets.Update(ctx, "dave", dev.ID, &structs.UpdateEntryRequest{Note: util.ToPointer("x")})
	assert.True(t, ecode.Is(err, ecode.Unauthorized), "got %v", err)
}

func TestDeleteRecordsEvent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	s := f.secret(t, "TOKEN", "v1")

	outcome, err := f.app.Secrets.Delete(ctx, servertest.Owner, s.ID, &structs.DeleteRequest{})
	require.NoError(t, err)
	assert.False(t, outcome.Deferred())

	_, err = f.app.Secrets.Get(ctx, servertest.Owner, s.ID, structs.ReadParams{})
	assert.True(t, ecode.Is(err, ecode.NothingFound), "got %v", err)

	events, err := f.app.Events.List(ctx, servertest.Owner, f.ws, eventStructs.Filter{ItemID: s.ID})
	require.NoError(t, err)
	types := make([]eventStructs.Type, 0, len(events.Items))
	for _, e := range events.Items {
		types = append(types, e.Type)
	}
	assert.ElementsMatch(t, []eventStructs.Type{eventStructs.SecretCreated, eventStructs.SecretDeleted}, types)
}

func TestEntriesResolveBySlug(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	created := f.secret(t, "API_KEY", "one")
	require.NotEmpty(t, created.Slug)

	outcome, err := f.app.Secrets.Update(ctx, servertest.Owner, created.Slug, &structs.UpdateEntryRequest{
		Value: util.ToPointer("two"),
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, outcome.Item.ID)
	assert.Equal(t, 2, outcome.Item.Version)

	opened, err := f.app.Secrets.Get(ctx, servertest.Owner, created.Slug, structs.ReadParams{Decrypt: true})
	require.NoError(t, err)
	assert.Equal(t, "two", opened.Value)

	env, err := f.app.Environments.Get(ctx, servertest.Owner, f.envs["prod"].Slug)
	require.NoError(t, err)
	assert.Equal(t, f.envs["prod"].ID, env.ID)
}
