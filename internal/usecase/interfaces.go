package usecase

import (
	"context"
	"crypto"
	"crypto/x509"
	"io"
	"time"

	"github.com/liunix61/uptane-server/internal/domain"
)

type Clock func() time.Time

// NamespaceRepository is the relational side of a namespace: its row, its
// status and its metadata documents.
type NamespaceRepository interface {
	CreateWithMetadata(ctx context.Context, ns *domain.Namespace, docs []domain.Metadata) error
	Get(ctx context.Context, id string) (*domain.Namespace, error)
	List(ctx context.Context) ([]domain.Namespace, error)
	ListStale(ctx context.Context, status domain.NamespaceStatus, cutoff time.Time) ([]domain.Namespace, error)
	SetStatus(ctx context.Context, id string, status domain.NamespaceStatus) error
	Delete(ctx context.Context, id string) error
	LatestMetadata(ctx context.Context, namespaceID string, repo domain.RepoKind, role domain.Role) (*domain.Metadata, error)
}

type ObjectRepository interface {
	Upsert(ctx context.Context, obj domain.Object) error
	SetStatus(ctx context.Context, namespaceID, objectID string, status domain.ObjectStatus) error
	Get(ctx context.Context, namespaceID, objectID string) (*domain.Object, error)
	ListByNamespace(ctx context.Context, namespaceID string) ([]domain.Object, error)
}

// KeyStore holds key records by name. Get returns domain.ErrNotFound for
// absent records; Delete of an absent record succeeds.
type KeyStore interface {
	Put(ctx context.Context, rec domain.KeyRecord) error
	Get(ctx context.Context, ref domain.KeyRef) (*domain.KeyRecord, error)
	Delete(ctx context.Context, ref domain.KeyRef) error
}

// BlobStore holds opaque payloads by key. Get returns domain.ErrNotFound
// for absent blobs; Delete of an absent blob succeeds.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, key string) error
}

// ContainerStore is implemented by blob backends that can create and drop a
// whole namespace at once.
type ContainerStore interface {
	CreateContainer(ctx context.Context, namespaceID string) error
	DeleteContainer(ctx context.Context, namespaceID string) error
}

type CertificateAuthority interface {
	GenerateRootCertificate(namespaceID string, key crypto.Signer) (*x509.Certificate, error)
	IssueLeaf(root *x509.Certificate, rootKey crypto.Signer, leafKey crypto.PublicKey) (*x509.Certificate, error)
}
