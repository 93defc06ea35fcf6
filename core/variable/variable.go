// Package variable defines variables: entries stored in plain text.
package variable

import (
	approvalStructs "github.com/ncobase/keyvault/core/approval/structs"
	authStructs "github.com/ncobase/keyvault/core/authority/structs"
	"github.com/ncobase/keyvault/core/entry/data/repository"
	"github.com/ncobase/keyvault/core/entry/service"
	"github.com/ncobase/keyvault/core/entry/structs"
	eventStructs "github.com/ncobase/keyvault/core/event/structs"
	projectStructs "github.com/ncobase/keyvault/core/project/structs"
)

var Kind = structs.Kind{
	Name:         "Variable",
	Table:        "variables",
	VersionTable: "variable_versions",
	ItemType:     approvalStructs.ItemVariable,
	Source:       eventStructs.SourceVariable,
	Create:       authStructs.CreateVariable,
	Read:         authStructs.ReadVariable,
	Update:       authStructs.UpdateVariable,
	Delete:       authStructs.DeleteVariable,
	Created:      eventStructs.VariableCreated,
	Updated:      eventStructs.VariableUpdated,
	Deleted:      eventStructs.VariableDeleted,
}

// Codec stores values as they are.
type Codec struct{}

func (Codec) Seal(_ *projectStructs.Project, value string) (string, error) { return value, nil }

func (Codec) Open(_ *projectStructs.Project, value string) (string, error) { return value, nil }

// New creates the variable tables and service.
func New(deps service.Deps) (*service.Service, error) {
	repo, err := repository.New(deps.Data, Kind)
	if err != nil {
		return nil, err
	}
	return service.NewService(Kind, repo, Codec{}, deps), nil
}
