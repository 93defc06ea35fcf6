// Package structs defines the authority model: permissions, roles,
// memberships, scopes and the approval gate embedded in gated entities.
package structs

import (
	"encoding/json"
	"slices"
)

// Authority names one permission.
type Authority string

const (
	CreateProject       Authority = "CREATE_PROJECT"
	ReadUsers           Authority = "READ_USERS"
	AddUser             Authority = "ADD_USER"
	RemoveUser          Authority = "REMOVE_USER"
	UpdateUserRole      Authority = "UPDATE_USER_ROLE"
	ReadWorkspace       Authority = "READ_WORKSPACE"
	UpdateWorkspace     Authority = "UPDATE_WORKSPACE"
	DeleteWorkspace     Authority = "DELETE_WORKSPACE"
	CreateWorkspaceRole Authority = "CREATE_WORKSPACE_ROLE"
	ReadWorkspaceRole   Authority = "READ_WORKSPACE_ROLE"
	UpdateWorkspaceRole Authority = "UPDATE_WORKSPACE_ROLE"
	DeleteWorkspaceRole Authority = "DELETE_WORKSPACE_ROLE"
	ReadProject         Authority = "READ_PROJECT"
	UpdateProject       Authority = "UPDATE_PROJECT"
	DeleteProject       Authority = "DELETE_PROJECT"
	CreateEnvironment   Authority = "CREATE_ENVIRONMENT"
	ReadEnvironment     Authority = "READ_ENVIRONMENT"
	UpdateEnvironment   Authority = "UPDATE_ENVIRONMENT"
	DeleteEnvironment   Authority = "DELETE_ENVIRONMENT"
	CreateSecret        Authority = "CREATE_SECRET"
	ReadSecret          Authority = "READ_SECRET"
	UpdateSecret        Authority = "UPDATE_SECRET"
	DeleteSecret        Authority = "DELETE_SECRET"
	CreateVariable      Authority = "CREATE_VARIABLE"
	ReadVariable        Authority = "READ_VARIABLE"
	UpdateVariable      Authority = "UPDATE_VARIABLE"
	DeleteVariable      Authority = "DELETE_VARIABLE"
	ReadEvent           Authority = "READ_EVENT"
	ManageApprovals     Authority = "MANAGE_APPROVALS"
	WorkspaceAdmin      Authority = "WORKSPACE_ADMIN"
)

var all = []Authority{
	CreateProject, ReadUsers, AddUser, RemoveUser, UpdateUserRole,
	ReadWorkspace, UpdateWorkspace, DeleteWorkspace,
	CreateWorkspaceRole, ReadWorkspaceRole, UpdateWorkspaceRole, DeleteWorkspaceRole,
	ReadProject, UpdateProject, DeleteProject,
	CreateEnvironment, ReadEnvironment, UpdateEnvironment, DeleteEnvironment,
	CreateSecret, ReadSecret, UpdateSecret, DeleteSecret,
	CreateVariable, ReadVariable, UpdateVariable, DeleteVariable,
	ReadEvent, ManageApprovals, WorkspaceAdmin,
}

// All returns every known authority.
func All() []Authority {
	return slices.Clone(all)
}

// Valid reports whether a is a known authority.
func (a Authority) Valid() bool {
	return slices.Contains(all, a)
}

// Set is a collective authority set. WORKSPACE_ADMIN satisfies every check.
type Set map[Authority]struct{}

// NewSet builds a set from the given authorities.
func NewSet(authorities ...Authority) Set {
	s := make(Set, len(authorities))
	s.Add(authorities...)
	return s
}

// Add adds authorities to the set.
func (s Set) Add(authorities ...Authority) {
	for _, a := range authorities {
		s[a] = struct{}{}
	}
}

// Has reports whether the set grants a.
func (s Set) Has(a Authority) bool {
	if _, ok := s[WorkspaceAdmin]; ok {
		return true
	}
	_, ok := s[a]
	return ok
}

// HasAny reports whether the set grants at least one of authorities.
func (s Set) HasAny(authorities ...Authority) bool {
	for _, a := range authorities {
		if s.Has(a) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the set holds WORKSPACE_ADMIN.
func (s Set) IsAdmin() bool {
	_, ok := s[WorkspaceAdmin]
	return ok
}

// CanManageApprovals reports whether the holder may act on any approval.
func (s Set) CanManageApprovals() bool {
	return s.Has(ManageApprovals)
}

// Slice returns the authorities sorted by name.
func (s Set) Slice() []Authority {
	out := make([]Authority, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *Set) UnmarshalJSON(b []byte) error {
	var list []Authority
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*s = NewSet(list...)
	return nil
}
