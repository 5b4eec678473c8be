package pki

import (
	"archive/zip"
	"bytes"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"time"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

const (
	ArchiveURLFile         = "autoprov.url"
	ArchiveCredentialsFile = "autoprov_credentials.p12"

	maxArchiveEntry = 1 << 20
)

// BuildProvisioningArchive packs the gateway URL and a password-less PKCS#12
// bundle (leaf key, leaf certificate, root CA certificate) into a zip.
func BuildProvisioningArchive(gatewayURL string, leafKey crypto.PrivateKey, leaf, root *x509.Certificate) ([]byte, error) {
	if gatewayURL == "" {
		return nil, errors.New("gateway url is required")
	}
	p12, err := pkcs12.Passwordless.Encode(leafKey, leaf, []*x509.Certificate{root}, "")
	if err != nil {
		return nil, fmt.Errorf("encode pkcs12: %w", err)
	}
	defer clear(p12)

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	if err := writeZipEntry(zw, ArchiveURLFile, []byte(gatewayURL)); err != nil {
		return nil, err
	}
	if err := writeZipEntry(zw, ArchiveCredentialsFile, p12); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ProvisioningBundle is the decoded content of a provisioning archive.
type ProvisioningBundle struct {
	GatewayURL string
	Key        crypto.PrivateKey
	Leaf       *x509.Certificate
	Chain      []*x509.Certificate
}

// ReadProvisioningArchive decodes an archive built by
// BuildProvisioningArchive.
func ReadProvisioningArchive(data []byte) (*ProvisioningBundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		body, err := io.ReadAll(io.LimitReader(rc, maxArchiveEntry))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		files[f.Name] = body
	}
	url, ok := files[ArchiveURLFile]
	if !ok {
		return nil, fmt.Errorf("archive has no %s", ArchiveURLFile)
	}
	p12, ok := files[ArchiveCredentialsFile]
	if !ok {
		return nil, fmt.Errorf("archive has no %s", ArchiveCredentialsFile)
	}
	defer clear(p12)
	key, leaf, chain, err := pkcs12.DecodeChain(p12, "")
	if err != nil {
		return nil, fmt.Errorf("decode pkcs12: %w", err)
	}
	return &ProvisioningBundle{GatewayURL: string(url), Key: key, Leaf: leaf, Chain: chain}, nil
}

// Verify checks that the leaf chains to the bundled root for client auth.
func (b *ProvisioningBundle) Verify(now time.Time) error {
	if len(b.Chain) == 0 {
		return errors.New("bundle carries no root certificate")
	}
	roots := x509.NewCertPool()
	for _, cert := range b.Chain {
		roots.AddCert(cert)
	}
	_, err := b.Leaf.Verify(x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: now,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	return err
}
