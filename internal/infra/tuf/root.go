package tuf

import (
	"crypto"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/liunix61/uptane-server/internal/domain"
	ucrypto "github.com/liunix61/uptane-server/internal/infra/crypto"
)

const (
	SpecVersion = "1.0.0"
	typeRoot    = "root"
	// expiresLayout is the TUF timestamp format: UTC, second precision.
	expiresLayout = "2006-01-02T15:04:05Z"
)

// TTLs maps each top-level role to the lifetime of its metadata.
type TTLs map[domain.Role]time.Duration

// RoleKey is the public half of the key a role is delegated to.
type RoleKey struct {
	Type   domain.KeyType
	Public crypto.PublicKey
}

type Key struct {
	KeyType string `json:"keytype"`
	Scheme  string `json:"scheme"`
	KeyVal  KeyVal `json:"keyval"`
}

type KeyVal struct {
	Public string `json:"public"`
}

type RoleKeys struct {
	KeyIDs    []string `json:"keyids"`
	Threshold int      `json:"threshold"`
}

type Root struct {
	Type               string              `json:"_type"`
	SpecVersion        string              `json:"spec_version"`
	ConsistentSnapshot bool                `json:"consistent_snapshot"`
	Version            int                 `json:"version"`
	Expires            string              `json:"expires"`
	Keys               map[string]Key      `json:"keys"`
	Roles              map[string]RoleKeys `json:"roles"`
}

type Signature struct {
	KeyID string `json:"keyid"`
	Sig   string `json:"sig"`
}

// RootDocument is an unsigned root metadata envelope.
type RootDocument struct {
	Signatures []Signature `json:"signatures"`
	Signed     Root        `json:"signed"`

	expiresAt time.Time
}

func (d *RootDocument) ExpiresAt() time.Time {
	return d.expiresAt
}

// KeyID returns the key id the given role is delegated to.
func (d *RootDocument) KeyID(role domain.Role) string {
	rk, ok := d.Signed.Roles[string(role)]
	if !ok || len(rk.KeyIDs) == 0 {
		return ""
	}
	return rk.KeyIDs[0]
}

// Document renders the document in the form it is stored and served in:
// sorted keys, no whitespace, valid JSON for every key type.
func (d *RootDocument) Document() ([]byte, error) {
	return ucrypto.Compact(d)
}

// GenerateRoot builds the root metadata of one repository. It is a pure
// function of its inputs: the same keys, version and clock reading always
// yield the same document.
func GenerateRoot(ttls TTLs, version int, keys map[domain.Role]RoleKey, now time.Time) (*RootDocument, error) {
	if version < 1 {
		return nil, fmt.Errorf("root version must be >= 1, got %d", version)
	}
	ttl, ok := ttls[domain.RoleRoot]
	if !ok || ttl <= 0 {
		return nil, errors.New("root ttl is required")
	}
	expiresAt := now.UTC().Add(ttl).Truncate(time.Second)

	root := Root{
		Type:               typeRoot,
		SpecVersion:        SpecVersion,
		ConsistentSnapshot: false,
		Version:            version,
		Expires:            expiresAt.Format(expiresLayout),
		Keys:               make(map[string]Key, len(domain.Roles)),
		Roles:              make(map[string]RoleKeys, len(domain.Roles)),
	}
	for _, role := range domain.Roles {
		rk, ok := keys[role]
		if !ok || rk.Public == nil {
			return nil, fmt.Errorf("missing %s key", role)
		}
		key, err := PublicKey(rk.Type, rk.Public)
		if err != nil {
			return nil, fmt.Errorf("%s key: %w", role, err)
		}
		id, err := KeyID(key)
		if err != nil {
			return nil, fmt.Errorf("%s key id: %w", role, err)
		}
		root.Keys[id] = key
		root.Roles[string(role)] = RoleKeys{KeyIDs: []string{id}, Threshold: 1}
	}
	return &RootDocument{Signatures: []Signature{}, Signed: root, expiresAt: expiresAt}, nil
}

// PublicKey converts a public key into its TUF key object. Ed25519 keys
// carry the raw key hex encoded, RSA and ECDSA keys carry PKIX PEM.
func PublicKey(kt domain.KeyType, pub crypto.PublicKey) (Key, error) {
	switch kt {
	case domain.KeyTypeEd25519:
		edPub, ok := pub.(ed25519.PublicKey)
		if !ok {
			return Key{}, fmt.Errorf("expected ed25519 public key, got %T", pub)
		}
		return Key{KeyType: string(kt), Scheme: "ed25519", KeyVal: KeyVal{Public: hex.EncodeToString(edPub)}}, nil
	case domain.KeyTypeRSA, domain.KeyTypeECDSA:
		pemBytes, err := ucrypto.PublicKeyPEM(pub)
		if err != nil {
			return Key{}, err
		}
		scheme := "rsassa-pss-sha256"
		if kt == domain.KeyTypeECDSA {
			scheme = string(domain.KeyTypeECDSA)
		}
		return Key{KeyType: string(kt), Scheme: scheme, KeyVal: KeyVal{Public: string(pemBytes)}}, nil
	default:
		return Key{}, fmt.Errorf("unsupported key type %q", kt)
	}
}

// KeyID is the hex SHA-256 of the canonical JSON form of key.
func KeyID(key Key) (string, error) {
	canonical, err := ucrypto.Canonicalize(key)
	if err != nil {
		return "", err
	}
	return digest.SHA256.FromBytes(canonical).Encoded(), nil
}

// ParseRoot decodes a stored root document and checks its shape: type,
// expiry, and that every role is delegated to a key present in keys.
func ParseRoot(data []byte) (*RootDocument, error) {
	var doc RootDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode root: %w", err)
	}
	if doc.Signed.Type != typeRoot {
		return nil, fmt.Errorf("unexpected _type %q", doc.Signed.Type)
	}
	expiresAt, err := time.Parse(expiresLayout, doc.Signed.Expires)
	if err != nil {
		return nil, fmt.Errorf("parse expires: %w", err)
	}
	doc.expiresAt = expiresAt
	for _, role := range domain.Roles {
		rk, ok := doc.Signed.Roles[string(role)]
		if !ok || len(rk.KeyIDs) == 0 {
			return nil, fmt.Errorf("role %s has no keys", role)
		}
		for _, id := range rk.KeyIDs {
			if _, ok := doc.Signed.Keys[id]; !ok {
				return nil, fmt.Errorf("role %s names unknown key %s", role, id)
			}
		}
	}
	return &doc, nil
}

// VerifyKeyIDs recomputes the id of every key in the document and reports
// the first one that does not match the id it is listed under.
func (d *RootDocument) VerifyKeyIDs() error {
	for id, key := range d.Signed.Keys {
		want, err := KeyID(key)
		if err != nil {
			return err
		}
		if want != id {
			return fmt.Errorf("key %s hashes to %s", id, want)
		}
	}
	return nil
}
