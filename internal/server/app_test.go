package server_test

import (
	"context"
	"sync"
	"testing"

	approvalStructs "github.com/ncobase/keyvault/core/approval/structs"
	authStructs "github.com/ncobase/keyvault/core/authority/structs"
	entryStructs "github.com/ncobase/keyvault/core/entry/structs"
	envStructs "github.com/ncobase/keyvault/core/environment/structs"
	eventStructs "github.com/ncobase/keyvault/core/event/structs"
	projectStructs "github.com/ncobase/keyvault/core/project/structs"
	wsStructs "github.com/ncobase/keyvault/core/workspace/structs"
	"github.com/ncobase/keyvault/ecode"
	"github.com/ncobase/keyvault/internal/server/servertest"
	"github.com/ncobase/keyvault/paging"
	"github.com/ncobase/keyvault/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "alice"
	bob   = "bob"
	carol = "carol"
)

var contributor = []authStructs.Authority{
	authStructs.ReadWorkspace, authStructs.UpdateWorkspace,
	authStructs.CreateProject, authStructs.ReadProject, authStructs.UpdateProject, authStructs.DeleteProject,
	authStructs.CreateEnvironment, authStructs.ReadEnvironment, authStructs.UpdateEnvironment, authStructs.DeleteEnvironment,
	authStructs.CreateSecret, authStructs.ReadSecret, authStructs.UpdateSecret, authStructs.DeleteSecret,
	authStructs.CreateVariable, authStructs.ReadVariable, authStructs.UpdateVariable, authStructs.DeleteVariable,
}

func TestDeferredWorkspaceRename(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, true)
	servertest.Member(t, app, ws.ID, alice, contributor...)
	servertest.Member(t, app, ws.ID, bob, authStructs.ReadWorkspace, authStructs.ManageApprovals)

	outcome, err := app.Workspaces.Update(ctx, alice, ws.ID, &wsStructs.UpdateWorkspaceRequest{
		Name:   util.ToPointer("Renamed"),
		Reason: "rebrand",
	})
	require.NoError(t, err)
	require.True(t, outcome.Deferred())
	a := outcome.Approval
	assert.Equal(t, approvalStructs.StatusPending, a.Status)
	assert.Equal(t, approvalStructs.ActionUpdate, a.Action)
	assert.Equal(t, alice, a.RequestedByID)

	unchanged, err := app.Workspaces.Get(ctx, alice, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", unchanged.Name)

	_, err = app.Workspaces.Update(ctx, alice, ws.ID, &wsStructs.UpdateWorkspaceRequest{Name: util.ToPointer("Other")})
	assert.True(t, ecode.Is(err, ecode.Conflict), "got %v", err)

	approved, err := app.Approvals.Approve(ctx, bob, a.ID)
	require.NoError(t, err)
	assert.Equal(t, approvalStructs.StatusApproved, approved.Status)
	assert.Equal(t, bob, approved.ApprovedByID)
	assert.NotNil(t, approved.ApprovedAt)

	renamed, err := app.Workspaces.Get(ctx, alice, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Name)
	assert.Equal(t, alice, renamed.LastUpdatedByID)

	_, err = app.Approvals.Approve(ctx, bob, a.ID)
	assert.True(t, ecode.Is(err, ecode.InvalidState), "got %v", err)
	_, err = app.Approvals.Reject(ctx, bob, a.ID)
	assert.True(t, ecode.Is(err, ecode.InvalidState), "got %v", err)

	events, err := app.Events.List(ctx, servertest.Owner, ws.ID, eventStructs.Filter{
		Types: []eventStructs.Type{eventStructs.WorkspaceUpdated},
	})
	require.NoError(t, err)
	require.Len(t, events.Items, 1)
	assert.Equal(t, alice, events.Items[0].TriggeredBy)
}

func TestManagerChangesApplyDirectly(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, true)

	outcome, err := app.Workspaces.Update(ctx, servertest.Owner, ws.ID, &wsStructs.UpdateWorkspaceRequest{
		Name: util.ToPointer("Renamed"),
	})
	require.NoError(t, err)
	assert.False(t, outcome.Deferred())
	assert.Equal(t, "Renamed", outcome.Item.Name)
}

func TestApprovalsDisabledApplyDirectly(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, false)
	servertest.Member(t, app, ws.ID, alice, contributor...)

	outcome, err := app.Workspaces.Update(ctx, alice, ws.ID, &wsStructs.UpdateWorkspaceRequest{
		Icon: util.ToPointer("rocket"),
	})
	require.NoError(t, err)
	assert.False(t, outcome.Deferred())
	assert.Equal(t, "rocket", outcome.Item.Icon)
}

func TestPendingProjectVisibility(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, true)
	servertest.Member(t, app, ws.ID, alice, contributor...)
	servertest.Member(t, app, ws.ID, carol, contributor...)

	outcome, err := app.Projects.Create(ctx, alice, ws.ID, &projectStructs.CreateProjectRequest{Name: "Payments"})
	require.NoError(t, err)
	require.True(t, outcome.Deferred())
	project := outcome.Item
	assert.True(t, project.Pending)
	assert.NotEmpty(t, project.PrivateKey)
	assert.Equal(t, approvalStructs.ActionCreate, outcome.Approval.Action)

	_, err = app.Projects.Get(ctx, carol, project.ID)
	assert.True(t, ecode.Is(err, ecode.PendingInaccessible), "got %v", err)

	got, err := app.Projects.Get(ctx, alice, project.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PrivateKey)

	_, err = app.Projects.Get(ctx, servertest.Owner, project.ID)
	require.NoError(t, err)

	list, err := app.Projects.List(ctx, carol, ws.ID, paging.Params{})
	require.NoError(t, err)
	assert.Empty(t, list.Items)
	list, err = app.Projects.List(ctx, alice, ws.ID, paging.Params{})
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)

	_, err = app.Environments.Create(ctx, alice, project.ID, &envStructs.CreateEnvironmentRequest{Name: "staging"})
	assert.True(t, ecode.Is(err, ecode.InvalidState), "got %v", err)

	// requester edits the pending item in place
	updated, err := app.Projects.Update(ctx, alice, project.ID, &projectStructs.UpdateProjectRequest{
		Description: util.ToPointer("card processing"),
	})
	require.NoError(t, err)
	assert.False(t, updated.Deferred())
	assert.True(t, updated.Item.Pending)
}

func TestApproveProjectCreation(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, true)
	servertest.Member(t, app, ws.ID, alice, contributor...)
	servertest.Member(t, app, ws.ID, bob, authStructs.ReadWorkspace, authStructs.ManageApprovals)
	servertest.Member(t, app, ws.ID, carol, contributor...)

	outcome, err := app.Projects.Create(ctx, alice, ws.ID, &projectStructs.CreateProjectRequest{
		Name:         "Payments",
		Environments: []envStructs.CreateEnvironmentRequest{{Name: "dev"}, {Name: "prod"}},
	})
	require.NoError(t, err)
	require.True(t, outcome.Deferred())

	_, err = app.Approvals.Approve(ctx, bob, outcome.Approval.ID)
	require.NoError(t, err)

	project, err := app.Projects.Get(ctx, carol, outcome.Item.ID)
	require.NoError(t, err)
	assert.False(t, project.Pending)

	envs := servertest.Environments(t, app, project.ID)
	require.Len(t, envs, 2)
	for _, env := range envs {
		assert.False(t, env.Pending, env.Name)
	}

	events, err := app.Events.List(ctx, servertest.Owner, ws.ID, eventStructs.Filter{
		Types: []eventStructs.Type{eventStructs.ProjectCreated},
	})
	require.NoError(t, err)
	require.Len(t, events.Items, 1)
	assert.Equal(t, alice, events.Items[0].TriggeredBy)
}

func TestRejectDeletesPendingCreation(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, true)
	project := servertest.Project(t, app, ws.ID, "Backend")
	env := servertest.Environments(t, app, project.ID)[envStructs.DefaultName]
	servertest.Member(t, app, ws.ID, alice, contributor...)
	servertest.Member(t, app, ws.ID, bob, authStructs.ReadWorkspace, authStructs.ManageApprovals)

	outcome, err := app.Secrets.Create(ctx, alice, env.ID, &entryStructs.CreateEntryRequest{Name: "API_KEY", Value: "k"})
	require.NoError(t, err)
	require.True(t, outcome.Deferred())

	rejected, err := app.Approvals.Reject(ctx, bob, outcome.Approval.ID)
	require.NoError(t, err)
	assert.Equal(t, approvalStructs.StatusRejected, rejected.Status)
	assert.Equal(t, bob, rejected.RejectedByID)

	_, err = app.Secrets.Get(ctx, servertest.Owner, outcome.Item.ID, entryStructs.ReadParams{})
	assert.True(t, ecode.Is(err, ecode.NothingFound), "got %v", err)

	detail, err := app.Approvals.GetByID(ctx, bob, outcome.Approval.ID)
	require.NoError(t, err)
	assert.Equal(t, approvalStructs.StatusRejected, detail.Approval.Status)
	assert.Nil(t, detail.Item)
}

func TestDeferredRollbackAndMove(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, true)
	project := servertest.Project(t, app, ws.ID, "Backend", "dev", "prod")
	envs := servertest.Environments(t, app, project.ID)
	servertest.Member(t, app, ws.ID, alice, contributor...)
	servertest.Member(t, app, ws.ID, bob, authStructs.ReadWorkspace, authStructs.ManageApprovals)

	created, err := app.Variables.Create(ctx, servertest.Owner, envs["dev"].ID, &entryStructs.CreateEntryRequest{Name: "LOG_LEVEL", Value: "info"})
	require.NoError(t, err)
	id := created.Item.ID
	_, err = app.Variables.Update(ctx, servertest.Owner, id, &entryStructs.UpdateEntryRequest{Value: util.ToPointer("debug")})
	require.NoError(t, err)

	rollback, err := app.Variables.Rollback(ctx, alice, id, &entryStructs.RollbackRequest{Version: 1})
	require.NoError(t, err)
	require.True(t, rollback.Deferred())

	_, err = app.Variables.Move(ctx, alice, id, &entryStructs.MoveRequest{EnvironmentID: envs["prod"].ID})
	assert.True(t, ecode.Is(err, ecode.Conflict), "got %v", err)

	_, err = app.Approvals.Approve(ctx, bob, rollback.Approval.ID)
	require.NoError(t, err)

	v, err := app.Variables.Get(ctx, alice, id, entryStructs.ReadParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, v.Version)
	assert.Equal(t, "info", v.Value)
	assert.Equal(t, alice, v.LastUpdatedByID)

	move, err := app.Variables.Move(ctx, alice, id, &entryStructs.MoveRequest{EnvironmentID: envs["prod"].ID})
	require.NoError(t, err)
	require.True(t, move.Deferred())
	_, err = app.Approvals.Approve(ctx, bob, move.Approval.ID)
	require.NoError(t, err)

	v, err = app.Variables.Get(ctx, alice, id, entryStructs.ReadParams{})
	require.NoError(t, err)
	assert.Equal(t, envs["prod"].ID, v.EnvironmentID)
}

func TestDirectDeleteDiscardsPendingApproval(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, true)
	project := servertest.Project(t, app, ws.ID, "Backend", "dev", "prod")
	envs := servertest.Environments(t, app, project.ID)
	servertest.Member(t, app, ws.ID, alice, contributor...)

	outcome, err := app.Environments.Update(ctx, alice, envs["dev"].ID, &envStructs.UpdateEnvironmentRequest{
		Name: util.ToPointer("development"),
	})
	require.NoError(t, err)
	require.True(t, outcome.Deferred())

	deleted, err := app.Environments.Delete(ctx, servertest.Owner, envs["dev"].ID, &envStructs.DeleteRequest{})
	require.NoError(t, err)
	assert.False(t, deleted.Deferred())

	_, err = app.Approvals.GetByID(ctx, servertest.Owner, outcome.Approval.ID)
	assert.True(t, ecode.Is(err, ecode.NothingFound), "got %v", err)
}

func TestApprovalAccess(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, true)
	servertest.Member(t, app, ws.ID, alice, contributor...)
	servertest.Member(t, app, ws.ID, carol, contributor...)

	outcome, err := app.Workspaces.Update(ctx, alice, ws.ID, &wsStructs.UpdateWorkspaceRequest{Icon: util.ToPointer("x")})
	require.NoError(t, err)
	id := outcome.Approval.ID

	_, err = app.Approvals.GetByID(ctx, carol, id)
	assert.True(t, ecode.Is(err, ecode.Unauthorized), "got %v", err)
	_, err = app.Approvals.Approve(ctx, carol, id)
	assert.True(t, ecode.Is(err, ecode.Unauthorized), "got %v", err)

	updated, err := app.Approvals.UpdateReason(ctx, alice, id, &approvalStructs.UpdateReasonRequest{Reason: "new icon"})
	require.NoError(t, err)
	assert.Equal(t, "new icon", updated.Reason)

	mine, err := app.Approvals.ListForUser(ctx, alice, ws.ID, approvalStructs.Filter{})
	require.NoError(t, err)
	assert.Len(t, mine.Items, 1)
	theirs, err := app.Approvals.ListForUser(ctx, carol, ws.ID, approvalStructs.Filter{})
	require.NoError(t, err)
	assert.Empty(t, theirs.Items)

	_, err = app.Approvals.ListForWorkspace(ctx, carol, ws.ID, approvalStructs.Filter{})
	assert.True(t, ecode.Is(err, ecode.Unauthorized), "got %v", err)

	require.NoError(t, app.Approvals.Delete(ctx, alice, id))
	all, err := app.Approvals.ListForWorkspace(ctx, servertest.Owner, ws.ID, approvalStructs.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all.Items)
}

func TestApproveDanglingApprovalFails(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, true)
	project := servertest.Project(t, app, ws.ID, "Backend")
	env := servertest.Environments(t, app, project.ID)[envStructs.DefaultName]
	servertest.Member(t, app, ws.ID, alice, contributor...)

	created, err := app.Secrets.Create(ctx, servertest.Owner, env.ID, &entryStructs.CreateEntryRequest{Name: "TOKEN", Value: "t"})
	require.NoError(t, err)
	outcome, err := app.Secrets.Update(ctx, alice, created.Item.ID, &entryStructs.UpdateEntryRequest{Note: util.ToPointer("rotated")})
	require.NoError(t, err)
	require.True(t, outcome.Deferred())

	_, err = app.Projects.Delete(ctx, servertest.Owner, project.ID, &projectStructs.DeleteRequest{})
	require.NoError(t, err)

	_, err = app.Approvals.Approve(ctx, servertest.Owner, outcome.Approval.ID)
	assert.True(t, ecode.Is(err, ecode.DispatchFailed), "got %v", err)

	detail, err := app.Approvals.GetByID(ctx, servertest.Owner, outcome.Approval.ID)
	require.NoError(t, err)
	assert.Equal(t, approvalStructs.StatusPending, detail.Approval.Status)

	_, err = app.Approvals.Reject(ctx, servertest.Owner, outcome.Approval.ID)
	require.NoError(t, err)
}

func TestResolvedApprovalReasonIsFrozen(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, true)
	servertest.Member(t, app, ws.ID, alice, contributor...)
	servertest.Member(t, app, ws.ID, bob, authStructs.ReadWorkspace, authStructs.ManageApprovals)

	approved, err := app.Workspaces.Update(ctx, alice, ws.ID, &wsStructs.UpdateWorkspaceRequest{Icon: util.ToPointer("a")})
	require.NoError(t, err)
	_, err = app.Approvals.Approve(ctx, bob, approved.Approval.ID)
	require.NoError(t, err)
	_, err = app.Approvals.UpdateReason(ctx, alice, approved.Approval.ID, &approvalStructs.UpdateReasonRequest{Reason: "late"})
	assert.True(t, ecode.Is(err, ecode.InvalidState), "got %v", err)

	rejected, err := app.Workspaces.Update(ctx, alice, ws.ID, &wsStructs.UpdateWorkspaceRequest{Icon: util.ToPointer("b")})
	require.NoError(t, err)
	_, err = app.Approvals.Reject(ctx, bob, rejected.Approval.ID)
	require.NoError(t, err)
	_, err = app.Approvals.UpdateReason(ctx, alice, rejected.Approval.ID, &approvalStructs.UpdateReasonRequest{Reason: "late"})
	assert.True(t, ecode.Is(err, ecode.InvalidState), "got %v", err)

	detail, err := app.Approvals.GetByID(ctx, bob, rejected.Approval.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Approval.Reason)
}

func TestDeletePendingCreationRemovesTarget(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, true)
	servertest.Member(t, app, ws.ID, alice, contributor...)

	outcome, err := app.Projects.Create(ctx, alice, ws.ID, &projectStructs.CreateProjectRequest{Name: "Payments"})
	require.NoError(t, err)
	require.True(t, outcome.Deferred())

	require.NoError(t, app.Approvals.Delete(ctx, alice, outcome.Approval.ID))

	_, err = app.Projects.Get(ctx, servertest.Owner, outcome.Item.ID)
	assert.True(t, ecode.Is(err, ecode.NothingFound), "got %v", err)
	_, err = app.Approvals.GetByID(ctx, servertest.Owner, outcome.Approval.ID)
	assert.True(t, ecode.Is(err, ecode.NothingFound), "got %v", err)
}

func TestConcurrentDeferralsConflict(t *testing.T) {
	app := servertest.NewApp(t)
	ctx := context.Background()
	ws := servertest.Workspace(t, app, true)
	servertest.Member(t, app, ws.ID, alice, contributor...)
	servertest.Member(t, app, ws.ID, carol, contributor...)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, user := range []string{alice, carol} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = app.Workspaces.Update(ctx, user, ws.ID, &wsStructs.UpdateWorkspaceRequest{Name: util.ToPointer("By " + user)})
		}()
	}
	wg.Wait()

	var conflicts, deferred int
	for _, err := range errs {
		switch {
		case err == nil:
			deferred++
		case ecode.Is(err, ecode.Conflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, deferred)
	assert.Equal(t, 1, conflicts)

	all, err := app.Approvals.ListForWorkspace(ctx, servertest.Owner, ws.ID, approvalStructs.Filter{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 1)
}
