package domain

import (
	"errors"
	"fmt"
	"strings"
)

type KeyType string

const (
	KeyTypeEd25519 KeyType = "ed25519"
	KeyTypeRSA     KeyType = "rsa"
	KeyTypeECDSA   KeyType = "ecdsa-sha2-nistp256"
)

func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ed25519":
		return KeyTypeEd25519, nil
	case "rsa":
		return KeyTypeRSA, nil
	case "ecdsa", "ecdsa-sha2-nistp256":
		return KeyTypeECDSA, nil
	default:
		return "", fmt.Errorf("unsupported key type %q", s)
	}
}

type KeyUse string

const (
	KeyUsePrivate KeyUse = "private"
	KeyUsePublic  KeyUse = "public"
)

var KeyUses = []KeyUse{KeyUsePrivate, KeyUsePublic}

// scopePKI is the key scope of the namespace root CA. It sits next to the
// repository kinds in record names.
const scopePKI = "pki"

// KeyRef addresses one key record. Its Name is reproducible from the
// namespace id and the enumeration it was created with, so no lookup table
// is needed to find or delete it.
type KeyRef struct {
	NamespaceID string
	Scope       string
	Role        string
	Use         KeyUse
}

func TUFKeyRef(namespaceID string, repo RepoKind, role Role, use KeyUse) KeyRef {
	return KeyRef{NamespaceID: namespaceID, Scope: string(repo), Role: string(role), Use: use}
}

func CAKeyRef(namespaceID string, use KeyUse) KeyRef {
	return KeyRef{NamespaceID: namespaceID, Scope: scopePKI, Role: "ca", Use: use}
}

// Name renders the record identifier {namespace_id}-{scope}-{role}-{use}.
func (r KeyRef) Name() string {
	return r.NamespaceID + "-" + r.Scope + "-" + r.Role + "-" + string(r.Use)
}

func (r KeyRef) Validate() error {
	if r.NamespaceID == "" || r.Scope == "" || r.Role == "" || r.Use == "" {
		return errors.New("key ref is required")
	}
	switch r.Use {
	case KeyUsePrivate, KeyUsePublic:
		return nil
	default:
		return errors.New("unsupported key use")
	}
}

// NamespaceKeyRefs enumerates every TUF key record a namespace is created
// with: 4 roles x 2 repositories x {private, public}. When withCA is set the
// two root CA records are appended.
func NamespaceKeyRefs(namespaceID string, withCA bool) []KeyRef {
	refs := make([]KeyRef, 0, len(RepoKinds)*len(Roles)*len(KeyUses)+2)
	for _, repo := range RepoKinds {
		for _, role := range Roles {
			for _, use := range KeyUses {
				refs = append(refs, TUFKeyRef(namespaceID, repo, role, use))
			}
		}
	}
	if withCA {
		for _, use := range KeyUses {
			refs = append(refs, CAKeyRef(namespaceID, use))
		}
	}
	return refs
}

// KeyRecord is the payload stored under a KeyRef: one half of a key pair,
// PEM encoded.
type KeyRecord struct {
	Ref   KeyRef
	Type  KeyType
	KeyID string
	PEM   []byte
}
