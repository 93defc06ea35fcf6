// Package secret defines secrets: entries whose values are sealed to the
// project's public key before they are stored.
package secret

import (
	approvalStructs "github.com/ncobase/keyvault/core/approval/structs"
	authStructs "github.com/ncobase/keyvault/core/authority/structs"
	"github.com/ncobase/keyvault/core/entry/data/repository"
	"github.com/ncobase/keyvault/core/entry/service"
	"github.com/ncobase/keyvault/core/entry/structs"
	eventStructs "github.com/ncobase/keyvault/core/event/structs"
	projectStructs "github.com/ncobase/keyvault/core/project/structs"
	"github.com/ncobase/keyvault/ecode"
	"github.com/ncobase/keyvault/security/crypto"
)

var Kind = structs.Kind{
	Name:         "Secret",
	Table:        "secrets",
	VersionTable: "secret_versions",
	ItemType:     approvalStructs.ItemSecret,
	Source:       eventStructs.SourceSecret,
	Create:       authStructs.CreateSecret,
	Read:         authStructs.ReadSecret,
	Update:       authStructs.UpdateSecret,
	Delete:       authStructs.DeleteSecret,
	Created:      eventStructs.SecretCreated,
	Updated:      eventStructs.SecretUpdated,
	Deleted:      eventStructs.SecretDeleted,
}

// Codec seals values with NaCl anonymous boxes.
type Codec struct{}

func (Codec) Seal(project *projectStructs.Project, value string) (string, error) {
	sealed, err := crypto.Encrypt(project.PublicKey, value)
	if err != nil {
		return "", ecode.Wrap(ecode.ServerErr, err, "Failed to encrypt secret value")
	}
	return sealed, nil
}

func (Codec) Open(project *projectStructs.Project, value string) (string, error) {
	if project.PrivateKey == "" {
		return "", ecode.Newf(ecode.RequestErr, "Project %s does not store its private key, secrets can not be decrypted", project.ID)
	}
	plain, err := crypto.Decrypt(project.PrivateKey, value)
	if err != nil {
		return "", ecode.Wrap(ecode.ServerErr, err, "Failed to decrypt secret value")
	}
	return plain, nil
}

// New creates the secret tables and service.
func New(deps service.Deps) (*service.Service, error) {
	repo, err := repository.New(deps.Data, Kind)
	if err != nil {
		return nil, err
	}
	return service.NewService(Kind, repo, Codec{}, deps), nil
}
