package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/liunix61/uptane-server/internal/domain"
	ucrypto "github.com/liunix61/uptane-server/internal/infra/crypto"
	"github.com/liunix61/uptane-server/internal/infra/pki"
	"github.com/liunix61/uptane-server/internal/infra/tuf"
)

const initialRootVersion = 1

// NamespaceLifecycleManager creates and destroys the trust and storage
// footprint of a namespace across the metadata, key and blob stores.
//
// Only the namespace row and its root documents are written atomically. The
// remaining side effects run after that commit while the namespace is
// pending_create, and the namespace turns active only once all of them have
// succeeded. A namespace left pending is repaired by the Reconciler.
type NamespaceLifecycleManager struct {
	Namespaces NamespaceRepository
	Objects    ObjectRepository
	Keys       KeyStore
	Blobs      BlobStore
	// CA is nil when CA-backed provisioning is disabled.
	CA      CertificateAuthority
	KeyType domain.KeyType
	TTLs    map[domain.RepoKind]tuf.TTLs
	Clock   Clock
}

// namespaceMaterial is everything generated for a namespace before any
// store is touched.
type namespaceMaterial struct {
	pairs map[domain.RepoKind]map[domain.Role]*ucrypto.KeyPair
	roots map[domain.RepoKind]*tuf.RootDocument
	caKey *ucrypto.KeyPair
}

func (m *namespaceMaterial) wipe() {
	for _, byRole := range m.pairs {
		for _, pair := range byRole {
			ucrypto.Wipe(pair.Private)
		}
	}
	if m.caKey != nil {
		ucrypto.Wipe(m.caKey.Private)
	}
}

func (m *NamespaceLifecycleManager) now() time.Time {
	if m.Clock == nil {
		return time.Now().UTC()
	}
	return m.Clock().UTC()
}

func (m *NamespaceLifecycleManager) Create(ctx context.Context) (domain.Namespace, error) {
	if m.Namespaces == nil || m.Keys == nil || m.Blobs == nil {
		return domain.Namespace{}, errors.New("namespace lifecycle manager is not configured")
	}
	material, err := m.generate()
	if err != nil {
		return domain.Namespace{}, err
	}
	defer material.wipe()

	docs := make([]domain.Metadata, 0, len(domain.RepoKinds))
	for _, repo := range domain.RepoKinds {
		root := material.roots[repo]
		body, err := root.Document()
		if err != nil {
			return domain.Namespace{}, fmt.Errorf("encode %s root: %w", repo, err)
		}
		docs = append(docs, domain.Metadata{
			Repo:      repo,
			Role:      domain.RoleRoot,
			Version:   initialRootVersion,
			Document:  body,
			ExpiresAt: root.ExpiresAt(),
		})
	}

	ns := domain.Namespace{Status: domain.NamespaceStatusPendingCreate, CreatedAt: m.now()}
	if err := m.Namespaces.CreateWithMetadata(ctx, &ns, docs); err != nil {
		return domain.Namespace{}, fmt.Errorf("persist namespace: %w", err)
	}
	logger := log.Ctx(ctx).With().Str("namespace_id", ns.ID).Logger()

	steps := []struct {
		name string
		run  func(context.Context, string, *namespaceMaterial) error
	}{
		{"create_container", m.createContainer},
		{"store_root_ca", m.storeRootCA},
		{"store_keys", m.storeKeys},
	}
	for _, step := range steps {
		if err := step.run(ctx, ns.ID, material); err != nil {
			logger.Error().Err(err).Str("step", step.name).Msg("namespace create left pending")
			return domain.Namespace{}, fmt.Errorf("%s: %w", step.name, err)
		}
	}

	if err := m.Namespaces.SetStatus(ctx, ns.ID, domain.NamespaceStatusActive); err != nil {
		logger.Error().Err(err).Str("step", "activate").Msg("namespace create left pending")
		return domain.Namespace{}, fmt.Errorf("activate namespace: %w", err)
	}
	created, err := m.Namespaces.Get(ctx, ns.ID)
	if err != nil {
		return domain.Namespace{}, err
	}
	logger.Info().Msg("namespace created")
	return *created, nil
}

func (m *NamespaceLifecycleManager) generate() (*namespaceMaterial, error) {
	material := &namespaceMaterial{
		pairs: make(map[domain.RepoKind]map[domain.Role]*ucrypto.KeyPair, len(domain.RepoKinds)),
		roots: make(map[domain.RepoKind]*tuf.RootDocument, len(domain.RepoKinds)),
	}
	now := m.now()
	for _, repo := range domain.RepoKinds {
		byRole := make(map[domain.Role]*ucrypto.KeyPair, len(domain.Roles))
		public := make(map[domain.Role]tuf.RoleKey, len(domain.Roles))
		for _, role := range domain.Roles {
			pair, err := ucrypto.GenerateKeyPair(m.KeyType)
			if err != nil {
				material.wipe()
				return nil, fmt.Errorf("%s %s key: %w", repo, role, err)
			}
			byRole[role] = pair
			public[role] = tuf.RoleKey{Type: pair.Type, Public: pair.Public()}
		}
		material.pairs[repo] = byRole

		root, err := tuf.GenerateRoot(m.TTLs[repo], initialRootVersion, public, now)
		if err != nil {
			material.wipe()
			return nil, fmt.Errorf("%s root: %w", repo, err)
		}
		material.roots[repo] = root
	}
	if m.CA != nil {
		caKey, err := ucrypto.GenerateKeyPair(domain.KeyTypeRSA)
		if err != nil {
			material.wipe()
			return nil, fmt.Errorf("root ca key: %w", err)
		}
		material.caKey = caKey
	}
	return material, nil
}

func (m *NamespaceLifecycleManager) createContainer(ctx context.Context, namespaceID string, _ *namespaceMaterial) error {
	containers, ok := m.Blobs.(ContainerStore)
	if !ok {
		return nil
	}
	return containers.CreateContainer(ctx, namespaceID)
}

func (m *NamespaceLifecycleManager) storeRootCA(ctx context.Context, namespaceID string, material *namespaceMaterial) error {
	if m.CA == nil || material.caKey == nil {
		return nil
	}
	cert, err := m.CA.GenerateRootCertificate(namespaceID, material.caKey.Private)
	if err != nil {
		return err
	}
	certPEM := pki.CertificatePEM(cert)
	return m.Blobs.Put(ctx, domain.RootCABlobKey(namespaceID), bytes.NewReader(certPEM), int64(len(certPEM)))
}

func (m *NamespaceLifecycleManager) storeKeys(ctx context.Context, namespaceID string, material *namespaceMaterial) error {
	for _, repo := range domain.RepoKinds {
		for _, role := range domain.Roles {
			pair := material.pairs[repo][role]
			keyID := material.roots[repo].KeyID(role)
			if err := m.putPair(ctx, pair, keyID,
				domain.TUFKeyRef(namespaceID, repo, role, domain.KeyUsePrivate),
				domain.TUFKeyRef(namespaceID, repo, role, domain.KeyUsePublic)); err != nil {
				return err
			}
		}
	}
	if material.caKey != nil {
		return m.putPair(ctx, material.caKey, "",
			domain.CAKeyRef(namespaceID, domain.KeyUsePrivate),
			domain.CAKeyRef(namespaceID, domain.KeyUsePublic))
	}
	return nil
}

func (m *NamespaceLifecycleManager) putPair(ctx context.Context, pair *ucrypto.KeyPair, keyID string, privRef, pubRef domain.KeyRef) error {
	privPEM, err := ucrypto.PrivateKeyPEM(pair.Private)
	if err != nil {
		return err
	}
	defer clear(privPEM)
	pubPEM, err := ucrypto.PublicKeyPEM(pair.Public())
	if err != nil {
		return err
	}
	if err := m.Keys.Put(ctx, domain.KeyRecord{Ref: privRef, Type: pair.Type, KeyID: keyID, PEM: privPEM}); err != nil {
		return fmt.Errorf("put %s: %w", privRef.Name(), err)
	}
	if err := m.Keys.Put(ctx, domain.KeyRecord{Ref: pubRef, Type: pair.Type, KeyID: keyID, PEM: pubPEM}); err != nil {
		return fmt.Errorf("put %s: %w", pubRef.Name(), err)
	}
	return nil
}

// List returns every namespace, newest first.
func (m *NamespaceLifecycleManager) List(ctx context.Context) ([]domain.Namespace, error) {
	return m.Namespaces.List(ctx)
}

// Delete hides the namespace from the read path, then removes its blobs,
// key records and rows. A failure part way leaves it pending_delete for
// the Reconciler to finish.
func (m *NamespaceLifecycleManager) Delete(ctx context.Context, namespaceID string) error {
	ns, err := lookupNamespace(ctx, m.Namespaces, namespaceID)
	if err != nil {
		return err
	}
	if ns.Status != domain.NamespaceStatusPendingDelete {
		if err := m.Namespaces.SetStatus(ctx, ns.ID, domain.NamespaceStatusPendingDelete); err != nil {
			return fmt.Errorf("mark pending delete: %w", err)
		}
	}
	if err := m.purge(ctx, ns.ID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("namespace_id", ns.ID).Msg("namespace delete left pending")
		return err
	}
	log.Ctx(ctx).Info().Str("namespace_id", ns.ID).Msg("namespace deleted")
	return nil
}

// purge removes every resource a namespace may own. Each step tolerates
// resources that are already gone, so it can be repeated until it succeeds.
func (m *NamespaceLifecycleManager) purge(ctx context.Context, namespaceID string) error {
	if err := m.deleteBlobs(ctx, namespaceID); err != nil {
		return fmt.Errorf("delete blobs: %w", err)
	}
	for _, ref := range domain.NamespaceKeyRefs(namespaceID, true) {
		if err := m.Keys.Delete(ctx, ref); err != nil {
			return fmt.Errorf("delete key %s: %w", ref.Name(), err)
		}
	}
	if err := m.Namespaces.Delete(ctx, namespaceID); err != nil {
		return fmt.Errorf("delete namespace rows: %w", err)
	}
	return nil
}

func (m *NamespaceLifecycleManager) deleteBlobs(ctx context.Context, namespaceID string) error {
	if containers, ok := m.Blobs.(ContainerStore); ok {
		return containers.DeleteContainer(ctx, namespaceID)
	}
	if m.Objects != nil {
		objects, err := m.Objects.ListByNamespace(ctx, namespaceID)
		if err != nil {
			return err
		}
		for _, obj := range objects {
			key, err := domain.ObjectStorageKey(namespaceID, obj.ObjectID)
			if err != nil {
				return err
			}
			if err := m.Blobs.Delete(ctx, key); err != nil {
				return err
			}
		}
	}
	return m.Blobs.Delete(ctx, domain.RootCABlobKey(namespaceID))
}

// RootMetadata returns the latest root document of one repository of an
// active namespace.
func (m *NamespaceLifecycleManager) RootMetadata(ctx context.Context, namespaceID string, repo domain.RepoKind) (*domain.Metadata, error) {
	if _, err := activeNamespace(ctx, m.Namespaces, namespaceID); err != nil {
		return nil, err
	}
	md, err := m.Namespaces.LatestMetadata(ctx, namespaceID, repo, domain.RoleRoot)
	if err != nil {
		return nil, err
	}
	return md, nil
}

// activeNamespace loads a namespace and treats anything not active as
// absent.
func activeNamespace(ctx context.Context, repo NamespaceRepository, namespaceID string) (*domain.Namespace, error) {
	ns, err := lookupNamespace(ctx, repo, namespaceID)
	if err != nil {
		return nil, err
	}
	if !ns.Active() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrNamespaceNotFound, namespaceID, ns.Status)
	}
	return ns, nil
}

// lookupNamespace loads a namespace by id. Ids are canonical UUIDs; anything
// else cannot name a row and is reported as an unknown namespace without
// reaching the store.
func lookupNamespace(ctx context.Context, repo NamespaceRepository, namespaceID string) (*domain.Namespace, error) {
	parsed, err := uuid.Parse(namespaceID)
	if err != nil || parsed.String() != namespaceID {
		return nil, fmt.Errorf("%w: %q is not a namespace id", domain.ErrNamespaceNotFound, namespaceID)
	}
	ns, err := repo.Get(ctx, namespaceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNamespaceNotFound, namespaceID)
		}
		return nil, err
	}
	return ns, nil
}
