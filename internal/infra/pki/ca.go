package pki

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const (
	pemTypeCertificate = "CERTIFICATE"
	// backdate absorbs clock skew between this service and devices.
	backdate = 5 * time.Minute
)

// Authority issues the namespace root CA and the provisioning leaves chained
// to it. Validity periods come from configuration; Now is swappable in tests.
type Authority struct {
	CAValidity   time.Duration
	LeafValidity time.Duration
	Now          func() time.Time
}

func NewAuthority(caValidity, leafValidity time.Duration) *Authority {
	return &Authority{CAValidity: caValidity, LeafValidity: leafValidity, Now: time.Now}
}

func (a *Authority) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

// GenerateRootCertificate self-signs a CA certificate for the namespace.
func (a *Authority) GenerateRootCertificate(namespaceID string, key crypto.Signer) (*x509.Certificate, error) {
	if namespaceID == "" {
		return nil, errors.New("namespace id is required")
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}
	now := a.now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: namespaceID, OrganizationalUnit: []string{"root-ca"}},
		NotBefore:             now.Add(-backdate),
		NotAfter:              now.Add(a.CAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		return nil, fmt.Errorf("self-sign root certificate: %w", err)
	}
	return x509.ParseCertificate(der)
}

// IssueLeaf signs a client certificate for leafKey with a random UUID
// common name.
func (a *Authority) IssueLeaf(root *x509.Certificate, rootKey crypto.Signer, leafKey crypto.PublicKey) (*x509.Certificate, error) {
	if root == nil || rootKey == nil || leafKey == nil {
		return nil, errors.New("root certificate, root key and leaf key are required")
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}
	now := a.now()
	notAfter := now.Add(a.LeafValidity)
	if notAfter.After(root.NotAfter) {
		notAfter = root.NotAfter
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: uuid.NewString()},
		NotBefore:    now.Add(-backdate),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, root, leafKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("sign leaf certificate: %w", err)
	}
	return x509.ParseCertificate(der)
}

func CertificatePEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeCertificate, Bytes: cert.Raw})
}

func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypeCertificate {
		return nil, errors.New("invalid certificate PEM")
	}
	return x509.ParseCertificate(block.Bytes)
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 127)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("certificate serial: %w", err)
	}
	return serial, nil
}
