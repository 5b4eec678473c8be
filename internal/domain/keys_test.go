package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyRefName(t *testing.T) {
	ref := TUFKeyRef("ns-1", RepoDirector, RoleSnapshot, KeyUsePublic)
	assert.Equal(t, "ns-1-director-snapshot-public", ref.Name())
	assert.Equal(t, "ns-1-pki-ca-private", CAKeyRef("ns-1", KeyUsePrivate).Name())
}

func TestNamespaceKeyRefsIsReproducible(t *testing.T) {
	refs := NamespaceKeyRefs("ns-1", false)
	require.Len(t, refs, 16)

	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		require.NoError(t, ref.Validate())
		seen[ref.Name()] = true
	}
	assert.Len(t, seen, 16)
	assert.True(t, seen["ns-1-image-root-private"])
	assert.True(t, seen["ns-1-director-timestamp-public"])

	assert.Equal(t, refs, NamespaceKeyRefs("ns-1", false))
	assert.Len(t, NamespaceKeyRefs("ns-1", true), 18)
}

func TestParseKeyType(t *testing.T) {
	kt, err := ParseKeyType("ECDSA")
	require.NoError(t, err)
	assert.Equal(t, KeyTypeECDSA, kt)

	_, err = ParseKeyType("dsa")
	assert.Error(t, err)
}
