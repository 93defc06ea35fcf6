package structs

// ApprovalGate marks an entity created or changed under an outstanding
// approval. While Pending only privileged users and RequestedBy may see it.
type ApprovalGate struct {
	Pending     bool   `json:"pending"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// Visible reports whether userID holding set may see an entity behind g.
func (g ApprovalGate) Visible(userID string, set Set) bool {
	if !g.Pending {
		return true
	}
	return set.CanManageApprovals() || (g.RequestedBy != "" && g.RequestedBy == userID)
}

// Gated is implemented by every entity that can sit behind an approval.
type Gated interface {
	GateState() ApprovalGate
	AuthorityScope() Scope
	Kind() string
	Identifier() string
}
