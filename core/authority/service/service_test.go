package service

import (
	"context"
	"testing"
	"time"

	"github.com/ncobase/keyvault/core/authority/data/repository"
	"github.com/ncobase/keyvault/core/authority/structs"
	"github.com/ncobase/keyvault/data"
	"github.com/ncobase/keyvault/data/datatest"
	"github.com/ncobase/keyvault/ecode"
	"github.com/ncobase/keyvault/logging/logger"
	"github.com/ncobase/keyvault/paging"
	"github.com/ncobase/keyvault/util"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	d        *data.Data
	roles    repository.RoleRepository
	members  repository.MembershipRepository
	cache    *MemoryCache
	resolver *Resolver
	gate     *Gate
	svc      *Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	d := datatest.NewSQLite(t)
	_, err := d.DB().Exec(`CREATE TABLE workspaces (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = d.DB().Exec(`INSERT INTO workspaces (id) VALUES ('w1'), ('w2')`)
	require.NoError(t, err)

	roles, err := repository.NewRoleRepository(d)
	require.NoError(t, err)
	members, err := repository.NewMembershipRepository(d)
	require.NoError(t, err)

	cache := NewMemoryCache(time.Minute)
	resolver := NewResolver(roles, members, cache, logger.StdLogger())
	gate := NewGate(resolver)
	svc := NewService(d, roles, members, gate, nil, logger.StdLogger())

	f := &fixture{d: d, roles: roles, members: members, cache: cache, resolver: resolver, gate: gate, svc: svc}
	_, err = svc.CreateAdminRole(context.Background(), "w1", "owner")
	require.NoError(t, err)
	return f
}

func (f *fixture) role(t *testing.T, name string, projects []structs.ProjectAssignment, authorities ...structs.Authority) *structs.Role {
	t.Helper()
	role, err := f.svc.CreateRole(context.Background(), "owner", "w1", &structs.CreateRoleRequest{
		Name:        name,
		Authorities: authorities,
		Projects:    projects,
	})
	require.NoError(t, err)
	return role
}

func (f *fixture) member(t *testing.T, userID string, accept bool, roleIDs ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Invite(ctx, "owner", "w1", &structs.InviteMemberRequest{UserID: userID, RoleIDs: roleIDs})
	require.NoError(t, err)
	if accept {
		_, err = f.svc.AcceptInvitation(ctx, userID, "w1")
		require.NoError(t, err)
	}
}

func TestResolveAdminFastPath(t *testing.T) {
	f := setup(t)
	set, err := f.resolver.Resolve(context.Background(), "owner", structs.EnvironmentScope("w1", "p1", "e1"))
	require.NoError(t, err)
	assert.Equal(t, []structs.Authority{structs.WorkspaceAdmin}, set.Slice())

	id, ok, _ := f.cache.GetAdminRole(context.Background(), "w1")
	assert.True(t, ok)
	assert.NotEmpty(t, id)
}

func TestResolveNonMemberIsEmpty(t *testing.T) {
	f := setup(t)
	set, err := f.resolver.Resolve(context.Background(), "stranger", structs.WorkspaceScope("w1"))
	require.NoError(t, err)
	assert.Empty(t, set)

	set, err = f.resolver.Resolve(context.Background(), "owner", structs.WorkspaceScope("w2"))
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestResolvePendingInvitationIsEmpty(t *testing.T) {
	f := setup(t)
	reader := f.role(t, "Reader", nil, structs.ReadWorkspace)
	f.member(t, "alice", false, reader.ID)

	set, err := f.resolver.Resolve(context.Background(), "alice", structs.WorkspaceScope("w1"))
	require.NoError(t, err)
	assert.Empty(t, set)

	_, err = f.svc.AcceptInvitation(context.Background(), "alice", "w1")
	require.NoError(t, err)
	set, err = f.resolver.Resolve(context.Background(), "alice", structs.WorkspaceScope("w1"))
	require.NoError(t, err)
	assert.True(t, set.Has(structs.ReadWorkspace))
}

func TestResolveScopeNarrowing(t *testing.T) {
	f := setup(t)
	ws := f.role(t, "Workspace reader", nil, structs.ReadWorkspace)
	dev := f.role(t, "Developer", []structs.ProjectAssignment{{ProjectID: "p1", EnvironmentIDs: []string{"dev"}}},
		structs.ReadProject, structs.ReadSecret)
	f.member(t, "alice", true, ws.ID, dev.ID)

	ctx := context.Background()
	tests := []struct {
		name  string
		scope structs.Scope
		has   []structs.Authority
		lacks []structs.Authority
	}{
		{"workspace", structs.WorkspaceScope("w1"), []structs.Authority{structs.ReadWorkspace, structs.ReadSecret}, nil},
		{"assigned project", structs.ProjectScope("w1", "p1"), []structs.Authority{structs.ReadProject, structs.ReadWorkspace}, nil},
		{"other project", structs.ProjectScope("w1", "p2"), []structs.Authority{structs.ReadWorkspace}, []structs.Authority{structs.ReadProject}},
		{"assigned environment", structs.EnvironmentScope("w1", "p1", "dev"), []structs.Authority{structs.ReadSecret}, nil},
		{"other environment", structs.EnvironmentScope("w1", "p1", "prod"), nil, []structs.Authority{structs.ReadSecret}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := f.resolver.Resolve(ctx, "alice", tt.scope)
			require.NoError(t, err)
			for _, a := range tt.has {
				assert.True(t, set.Has(a), "expected %s", a)
			}
			for _, a := range tt.lacks {
				assert.False(t, set.Has(a), "unexpected %s", a)
			}
			assert.False(t, set.IsAdmin())
		})
	}
}

func TestRoleUpdateInvalidatesHolders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	role := f.role(t, "Reader", nil, structs.ReadWorkspace)
	f.member(t, "alice", true, role.ID)

	set, err := f.resolver.Resolve(ctx, "alice", structs.WorkspaceScope("w1"))
	require.NoError(t, err)
	assert.False(t, set.Has(structs.ManageApprovals))

	_, err = f.svc.UpdateRole(ctx, "owner", role.ID, &structs.UpdateRoleRequest{
		Authorities: []structs.Authority{structs.ReadWorkspace, structs.ManageApprovals},
	})
	require.NoError(t, err)

	set, err = f.resolver.Resolve(ctx, "alice", structs.WorkspaceScope("w1"))
	require.NoError(t, err)
	assert.True(t, set.Has(structs.ManageApprovals))

	require.NoError(t, f.svc.DeleteRole(ctx, "owner", role.ID))
	set, err = f.resolver.Resolve(ctx, "alice", structs.WorkspaceScope("w1"))
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestRoleRules(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateRole(ctx, "owner", "w1", &structs.CreateRoleRequest{
		Name: "Sneaky", Authorities: []structs.Authority{structs.WorkspaceAdmin},
	})
	assert.True(t, ecode.Is(err, ecode.ParamErr))

	_, err = f.svc.CreateRole(ctx, "owner", "w1", &structs.CreateRoleRequest{
		Name: "Bogus", Authorities: []structs.Authority{"FLY"},
	})
	assert.True(t, ecode.Is(err, ecode.ParamErr))

	_, err = f.svc.CreateRole(ctx, "owner", "w1", &structs.CreateRoleRequest{})
	assert.True(t, ecode.Is(err, ecode.ParamErr))

	f.role(t, "Reader", nil, structs.ReadWorkspace)
	_, err = f.svc.CreateRole(ctx, "owner", "w1", &structs.CreateRoleRequest{Name: "Reader"})
	assert.True(t, ecode.Is(err, ecode.Conflict))

	_, err = f.svc.CreateRole(ctx, "stranger", "w1", &structs.CreateRoleRequest{Name: "Nope"})
	assert.True(t, ecode.Is(err, ecode.Unauthorized))

	adminID, err := f.resolver.AdminRoleID(ctx, "w1")
	require.NoError(t, err)
	_, err = f.svc.UpdateRole(ctx, "owner", adminID, &structs.UpdateRoleRequest{Name: util.ToPointer("Boss")})
	assert.True(t, ecode.Is(err, ecode.RequestErr))
	assert.True(t, ecode.Is(f.svc.DeleteRole(ctx, "owner", adminID), ecode.RequestErr))

	result, err := f.svc.ListRoles(ctx, "owner", "w1", paging.Params{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
}

func TestMembershipRules(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	reader := f.role(t, "Reader", nil, structs.ReadWorkspace)
	adminID, err := f.resolver.AdminRoleID(ctx, "w1")
	require.NoError(t, err)

	_, err = f.svc.Invite(ctx, "owner", "w1", &structs.InviteMemberRequest{UserID: "bob", RoleIDs: []string{adminID}})
	assert.True(t, ecode.Is(err, ecode.RequestErr))

	_, err = f.svc.Invite(ctx, "owner", "w1", &structs.InviteMemberRequest{UserID: "bob", RoleIDs: []string{"missing"}})
	assert.True(t, ecode.Is(err, ecode.NothingFound))

	f.member(t, "bob", true, reader.ID)
	_, err = f.svc.Invite(ctx, "owner", "w1", &structs.InviteMemberRequest{UserID: "bob"})
	assert.True(t, ecode.Is(err, ecode.Conflict))

	_, err = f.svc.AcceptInvitation(ctx, "bob", "w1")
	assert.True(t, ecode.Is(err, ecode.InvalidState))

	assert.True(t, ecode.Is(f.svc.RemoveMember(ctx, "owner", "w1", "owner"), ecode.RequestErr))

	m, err := f.svc.UpdateMemberRoles(ctx, "owner", "w1", "bob", &structs.UpdateMemberRolesRequest{})
	require.NoError(t, err)
	assert.Empty(t, m.RoleIDs)
	set, err := f.resolver.Resolve(ctx, "bob", structs.WorkspaceScope("w1"))
	require.NoError(t, err)
	assert.Empty(t, set)

	ids, err := f.svc.WorkspaceIDs(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"w1"}, ids)

	require.NoError(t, f.svc.RemoveMember(ctx, "owner", "w1", "bob"))
	_, err = f.members.Find(ctx, "w1", "bob")
	assert.True(t, ecode.Is(err, ecode.NothingFound))

	result, err := f.svc.ListMembers(ctx, "owner", "w1", paging.Params{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
}

type pendingThing struct {
	gate structs.ApprovalGate
}

func (p pendingThing) GateState() structs.ApprovalGate { return p.gate }
func (p pendingThing) AuthorityScope() structs.Scope   { return structs.ProjectScope("w1", "p1") }
func (p pendingThing) Kind() string                    { return "Project" }
func (p pendingThing) Identifier() string              { return "p1" }

func TestGateCheck(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	reader := f.role(t, "Reader", []structs.ProjectAssignment{{ProjectID: "p1"}}, structs.ReadProject)
	approver := f.role(t, "Approver", []structs.ProjectAssignment{{ProjectID: "p1"}}, structs.ReadProject, structs.ManageApprovals)
	f.member(t, "alice", true, reader.ID)
	f.member(t, "bob", true, reader.ID)
	f.member(t, "carol", true, approver.ID)

	pending := pendingThing{gate: structs.ApprovalGate{Pending: true, RequestedBy: "alice"}}

	_, err := f.gate.Check(ctx, "alice", structs.ReadProject, pending)
	assert.NoError(t, err)
	_, err = f.gate.Check(ctx, "bob", structs.ReadProject, pending)
	assert.True(t, ecode.Is(err, ecode.PendingInaccessible))
	_, err = f.gate.Check(ctx, "carol", structs.ReadProject, pending)
	assert.NoError(t, err)
	_, err = f.gate.Check(ctx, "owner", structs.DeleteProject, pending)
	assert.NoError(t, err)
	_, err = f.gate.Check(ctx, "bob", structs.UpdateProject, pendingThing{})
	assert.True(t, ecode.Is(err, ecode.Unauthorized))

	visible, err := f.gate.Visible(ctx, "bob", structs.ReadProject, pending)
	require.NoError(t, err)
	assert.False(t, visible)

	got, err := Load(ctx, f.gate, "alice", structs.ReadProject, func(context.Context) (pendingThing, error) {
		return pending, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", got.Identifier())
}

func TestMemoryCacheInvalidateWorkspace(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "u1", structs.WorkspaceScope("w1"), structs.NewSet(structs.ReadWorkspace)))
	require.NoError(t, c.Set(ctx, "u1", structs.WorkspaceScope("w10"), structs.NewSet(structs.ReadWorkspace)))
	require.NoError(t, c.SetAdminRole(ctx, "w1", "r1"))

	require.NoError(t, c.InvalidateWorkspace(ctx, "w1"))
	_, ok, _ := c.Get(ctx, "u1", structs.WorkspaceScope("w1"))
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "u1", structs.WorkspaceScope("w10"))
	assert.True(t, ok)
	_, ok, _ = c.GetAdminRole(ctx, "w1")
	assert.False(t, ok)
}

// racingMembers runs during once, after the membership read of a compute.
type racingMembers struct {
	repository.MembershipRepository
	during func()
}

func (m *racingMembers) Find(ctx context.Context, workspaceID, userID string) (*structs.Membership, error) {
	found, err := m.MembershipRepository.Find(ctx, workspaceID, userID)
	if during := m.during; during != nil {
		m.during = nil
		during()
	}
	return found, err
}

func TestResolveSkipsCacheAfterConcurrentInvalidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	reader := f.role(t, "Reader", nil, structs.ReadWorkspace)
	f.member(t, "alice", true, reader.ID)

	members := &racingMembers{MembershipRepository: f.members}
	cache := NewMemoryCache(time.Minute)
	resolver := NewResolver(f.roles, members, cache, logger.StdLogger())
	members.during = func() { resolver.InvalidateUser(ctx, "w1", "alice") }

	scope := structs.WorkspaceScope("w1")
	set, err := resolver.Resolve(ctx, "alice", scope)
	require.NoError(t, err)
	assert.True(t, set.Has(structs.ReadWorkspace))
	_, ok, _ := cache.Get(ctx, "alice", scope)
	assert.False(t, ok)

	_, err = resolver.Resolve(ctx, "alice", scope)
	require.NoError(t, err)
	_, ok, _ = cache.Get(ctx, "alice", scope)
	assert.True(t, ok)
}

// recordingHook captures redis commands without a server.
type recordingHook struct {
	names []string
}

func (h *recordingHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *recordingHook) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		h.names = append(h.names, cmd.Name())
		return nil
	}
}

func (h *recordingHook) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(_ context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			h.names = append(h.names, cmd.Name())
		}
		return nil
	}
}

func TestRedisCacheSetExpiry(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		expires int
	}{
		{"no ttl", 0, 0},
		{"ttl", time.Minute, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
			defer rc.Close()
			hook := &recordingHook{}
			rc.AddHook(hook)

			c := NewRedisCache(rc, tt.ttl)
			err := c.Set(context.Background(), "alice", structs.WorkspaceScope("w1"), structs.NewSet(structs.ReadWorkspace))
			require.NoError(t, err)
			assert.Contains(t, hook.names, "sadd")
			expires := 0
			for _, name := range hook.names {
				if name == "expire" {
					expires++
				}
			}
			assert.Equal(t, tt.expires, expires)
		})
	}
}
