package vault

import (
	"errors"
	"fmt"

	"github.com/liunix61/uptane-server/internal/domain"
)

// KV v2 layout, env-scoped and namespace-scoped:
// secret/data/uptane/{env}/namespaces/{namespace_id}/keys/{record_name}
// Deletion goes through the metadata path so every version is destroyed.
const (
	dataPathFormat     = "secret/data/uptane/%s/namespaces/%s/keys/%s"
	metadataPathFormat = "secret/metadata/uptane/%s/namespaces/%s/keys/%s"
)

func dataPath(env string, ref domain.KeyRef) (string, error) {
	return kvPath(dataPathFormat, env, ref)
}

func metadataPath(env string, ref domain.KeyRef) (string, error) {
	return kvPath(metadataPathFormat, env, ref)
}

func kvPath(format, env string, ref domain.KeyRef) (string, error) {
	if env == "" {
		return "", errors.New("UPTANE_ENV is required")
	}
	if err := ref.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf(format, env, ref.NamespaceID, ref.Name()), nil
}
