// Package structs defines approvals and the typed changes they carry.
package structs

import (
	"encoding/json"
	"time"

	"github.com/ncobase/keyvault/paging"
)

type ItemType string

const (
	ItemWorkspace   ItemType = "WORKSPACE"
	ItemProject     ItemType = "PROJECT"
	ItemEnvironment ItemType = "ENVIRONMENT"
	ItemSecret      ItemType = "SECRET"
	ItemVariable    ItemType = "VARIABLE"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemWorkspace, ItemProject, ItemEnvironment, ItemSecret, ItemVariable:
		return true
	}
	return false
}

type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

func (a Action) Valid() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// Approval is a deferred change awaiting a decision.
type Approval struct {
	ID            string     `json:"id"`
	WorkspaceID   string     `json:"workspace_id"`
	ItemType      ItemType   `json:"item_type"`
	ItemID        string     `json:"item_id"`
	Action        Action     `json:"action"`
	Status        Status     `json:"status"`
	Change        Change     `json:"-"`
	Reason        string     `json:"reason"`
	RequestedByID string     `json:"requested_by_id"`
	ApprovedByID  string     `json:"approved_by_id,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	RejectedByID  string     `json:"rejected_by_id,omitempty"`
	RejectedAt    *time.Time `json:"rejected_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Pending reports whether the approval still awaits a decision.
func (a *Approval) Pending() bool {
	return a.Status == StatusPending
}

func (a *Approval) MarshalJSON() ([]byte, error) {
	type alias Approval
	return json.Marshal(struct {
		*alias
		Metadata map[string]any `json:"metadata"`
	}{
		alias:    (*alias)(a),
		Metadata: EncodeChange(a.Change),
	})
}

// Detail is an approval with its target item.
type Detail struct {
	Approval *Approval `json:"approval"`
	Item     any       `json:"item"`
}

// Filter narrows an approval listing.
type Filter struct {
	ItemTypes []ItemType `json:"item_types" form:"item_type"`
	Actions   []Action   `json:"actions" form:"action"`
	Statuses  []Status   `json:"statuses" form:"status"`
	paging.Params
}

// Sortable columns of an approval listing.
var SortColumns = []string{"created_at", "updated_at", "item_type", "action", "status"}

type UpdateReasonRequest struct {
	Reason string `json:"reason" validate:"max=1024"`
}

// Outcome is the result of a gated mutation: the item when the change was
// applied at once, or the approval it was deferred into.
type Outcome[T any] struct {
	Item     T         `json:"item,omitempty"`
	Approval *Approval `json:"approval,omitempty"`
}

// Deferred reports whether the change awaits approval.
func (o *Outcome[T]) Deferred() bool {
	return o.Approval != nil
}

// Applied wraps an item changed at once.
func Applied[T any](item T) *Outcome[T] {
	return &Outcome[T]{Item: item}
}

// Deferred wraps a change turned into an approval.
func Deferred[T any](a *Approval) *Outcome[T] {
	return &Outcome[T]{Approval: a}
}
