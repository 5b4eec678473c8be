package usecase

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"io"

	"github.com/liunix61/uptane-server/internal/domain"
	ucrypto "github.com/liunix61/uptane-server/internal/infra/crypto"
	"github.com/liunix61/uptane-server/internal/infra/pki"
)

// maxCertificateSize bounds how much of the stored root CA blob is read.
const maxCertificateSize = 64 << 10

var ErrProvisioningDisabled = errors.New("provisioning is disabled")

// ProvisioningService issues device credential bundles chained to a
// namespace root CA. The leaf key lives only for the duration of Issue.
type ProvisioningService struct {
	Namespaces  NamespaceRepository
	Keys        KeyStore
	Blobs       BlobStore
	CA          CertificateAuthority
	GatewayHost string
}

// GatewayURL is the device-gateway address written into a namespace's
// provisioning bundle.
func GatewayURL(host, namespaceID string) string {
	return "https://" + host + "/" + namespaceID
}

func (s *ProvisioningService) Issue(ctx context.Context, namespaceID string) ([]byte, error) {
	if s.CA == nil {
		return nil, ErrProvisioningDisabled
	}
	if _, err := activeNamespace(ctx, s.Namespaces, namespaceID); err != nil {
		return nil, err
	}

	caKey, err := s.loadCAKey(ctx, namespaceID)
	if err != nil {
		return nil, err
	}
	defer ucrypto.Wipe(caKey)

	root, err := s.loadRootCertificate(ctx, namespaceID)
	if err != nil {
		return nil, err
	}

	leafKey, err := ucrypto.GenerateKeyPair(domain.KeyTypeRSA)
	if err != nil {
		return nil, fmt.Errorf("provisioning key: %w", err)
	}
	defer ucrypto.Wipe(leafKey.Private)

	leaf, err := s.CA.IssueLeaf(root, caKey, leafKey.Public())
	if err != nil {
		return nil, err
	}
	return pki.BuildProvisioningArchive(GatewayURL(s.GatewayHost, namespaceID), leafKey.Private, leaf, root)
}

func (s *ProvisioningService) loadCAKey(ctx context.Context, namespaceID string) (crypto.Signer, error) {
	rec, err := s.Keys.Get(ctx, domain.CAKeyRef(namespaceID, domain.KeyUsePrivate))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: namespace %s has no root CA key", domain.ErrValidation, namespaceID)
		}
		return nil, fmt.Errorf("load root ca key: %w", err)
	}
	defer clear(rec.PEM)
	key, err := ucrypto.ParsePrivateKeyPEM(rec.PEM)
	if err != nil {
		return nil, fmt.Errorf("parse root ca key: %w", err)
	}
	return key, nil
}

func (s *ProvisioningService) loadRootCertificate(ctx context.Context, namespaceID string) (*x509.Certificate, error) {
	body, _, err := s.Blobs.Get(ctx, domain.RootCABlobKey(namespaceID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: namespace %s has no root CA certificate", domain.ErrValidation, namespaceID)
		}
		return nil, fmt.Errorf("load root ca certificate: %w", err)
	}
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, maxCertificateSize))
	if err != nil {
		return nil, fmt.Errorf("read root ca certificate: %w", err)
	}
	return pki.ParseCertificatePEM(data)
}
