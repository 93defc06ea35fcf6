package structs

import (
	"encoding/json"
	"fmt"

	"github.com/ncobase/keyvault/ecode"
	"github.com/ncobase/keyvault/validator"
)

// Metadata keys that select the update variant of a secret or variable.
const (
	KeyEnvironmentID   = "environment_id"
	KeyRollbackVersion = "rollback_version"
)

// Change is the decoded payload of an approval. The set of variants is closed.
type Change interface {
	change()
}

// Creation finalizes a pending item.
type Creation struct{}

// Deletion removes the item.
type Deletion struct{}

type WorkspaceUpdate struct {
	Name            *string `json:"name,omitempty" validate:"omitempty,min=1,max=64"`
	Icon            *string `json:"icon,omitempty" validate:"omitempty,max=255"`
	IsPublic        *bool   `json:"is_public,omitempty"`
	ApprovalEnabled *bool   `json:"approval_enabled,omitempty"`
}

type ProjectUpdate struct {
	Name              *string `json:"name,omitempty" validate:"omitempty,min=1,max=64"`
	Description       *string `json:"description,omitempty" validate:"omitempty,max=1024"`
	AccessLevel       *string `json:"access_level,omitempty" validate:"omitempty,oneof=GLOBAL INTERNAL PRIVATE"`
	StorePrivateKey   *bool   `json:"store_private_key,omitempty"`
	RegenerateKeyPair bool    `json:"regenerate_key_pair,omitempty"`
}

type EnvironmentUpdate struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=64"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1024"`
}

// EntryUpdate edits a secret or a variable. A secret's Value is sealed.
type EntryUpdate struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1,max=128"`
	Note  *string `json:"note,omitempty" validate:"omitempty,max=1024"`
	Value *string `json:"value,omitempty"`
}

// EntryMove moves a secret or a variable to another environment.
type EntryMove struct {
	EnvironmentID string `json:"environment_id" validate:"required"`
}

// EntryRollback restores a secret or a variable to an earlier version.
type EntryRollback struct {
	Version int `json:"rollback_version" validate:"min=1"`
}

func (Creation) change()          {}
func (Deletion) change()          {}
func (WorkspaceUpdate) change()   {}
func (ProjectUpdate) change()     {}
func (EnvironmentUpdate) change() {}
func (EntryUpdate) change()       {}
func (EntryMove) change()         {}
func (EntryRollback) change()     {}

// DecodeChange turns stored metadata into the variant selected by itemType
// and action. For secret and variable updates environment_id wins over
// rollback_version, which wins over plain fields.
func DecodeChange(itemType ItemType, action Action, raw map[string]any) (Change, error) {
	if !itemType.Valid() {
		return nil, ecode.Newf(ecode.ParamErr, "Unknown item type %s", itemType)
	}

	switch action {
	case ActionDelete:
		return Deletion{}, nil
	case ActionCreate:
		if itemType == ItemWorkspace {
			return nil, ecode.Newf(ecode.ParamErr, "Action %s is not supported for %s", action, itemType)
		}
		return Creation{}, nil
	case ActionUpdate:
	default:
		return nil, ecode.Newf(ecode.ParamErr, "Unknown action %s", action)
	}

	var change Change
	var err error
	switch itemType {
	case ItemWorkspace:
		change, err = decodeInto[WorkspaceUpdate](raw)
	case ItemProject:
		change, err = decodeInto[ProjectUpdate](raw)
	case ItemEnvironment:
		change, err = decodeInto[EnvironmentUpdate](raw)
	default:
		switch {
		case present(raw, KeyEnvironmentID):
			change, err = decodeInto[EntryMove](raw)
		case present(raw, KeyRollbackVersion):
			change, err = decodeInto[EntryRollback](raw)
		default:
			change, err = decodeInto[EntryUpdate](raw)
		}
	}
	if err != nil {
		return nil, err
	}
	return change, nil
}

// EncodeChange returns the storage form of change.
func EncodeChange(change Change) map[string]any {
	switch change.(type) {
	case nil, Creation, Deletion:
		return map[string]any{}
	}
	b, err := json.Marshal(change)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// CheckChange verifies that change is the variant DecodeChange would produce
// for itemType and action, and that its fields are valid.
func CheckChange(itemType ItemType, action Action, change Change) error {
	decoded, err := DecodeChange(itemType, action, EncodeChange(change))
	if err != nil {
		return err
	}
	if fmt.Sprintf("%T", decoded) != fmt.Sprintf("%T", change) {
		return ecode.Newf(ecode.ParamErr, "Change %T does not match %s of %s", change, action, itemType)
	}
	return nil
}

func present(raw map[string]any, key string) bool {
	v, ok := raw[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return s != ""
	}
	return true
}

func decodeInto[T Change](raw map[string]any) (T, error) {
	var out T
	b, err := json.Marshal(raw)
	if err != nil {
		return out, fmt.Errorf("failed to marshal approval metadata: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, ecode.Wrap(ecode.ParamErr, err, "Invalid approval metadata")
	}
	if err := validator.Validate(&out); err != nil {
		return out, err
	}
	return out, nil
}
