package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/liunix61/uptane-server/internal/domain"
)

const (
	// RSABits is the modulus size of every RSA key this service generates,
	// TUF role keys and CA keys alike.
	RSABits = 2048

	pemTypePrivate = "PRIVATE KEY"
	pemTypePublic  = "PUBLIC KEY"
)

// KeyPair is a generated asymmetric key of one of the supported TUF types.
type KeyPair struct {
	Type    domain.KeyType
	Private crypto.Signer
}

func (k *KeyPair) Public() crypto.PublicKey {
	return k.Private.Public()
}

func GenerateKeyPair(kt domain.KeyType) (*KeyPair, error) {
	var (
		signer crypto.Signer
		err    error
	)
	switch kt {
	case domain.KeyTypeEd25519:
		_, signer, err = ed25519.GenerateKey(rand.Reader)
	case domain.KeyTypeRSA:
		signer, err = rsa.GenerateKey(rand.Reader, RSABits)
	case domain.KeyTypeECDSA:
		signer, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	default:
		return nil, fmt.Errorf("unsupported key type %q", kt)
	}
	if err != nil {
		return nil, fmt.Errorf("generate %s key: %w", kt, err)
	}
	return &KeyPair{Type: kt, Private: signer}, nil
}

func PrivateKeyPEM(key crypto.Signer) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePrivate, Bytes: der}), nil
}

func PublicKeyPEM(key crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePublic, Bytes: der}), nil
}

func ParsePrivateKeyPEM(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePrivate {
		return nil, errors.New("invalid private key PEM")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported private key %T", key)
	}
	return signer, nil
}

func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePublic {
		return nil, errors.New("invalid public key PEM")
	}
	return x509.ParsePKIXPublicKey(block.Bytes)
}

// Wipe zeroes the secret components of key where the runtime representation
// allows it.
func Wipe(key crypto.Signer) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		if k.D != nil {
			k.D.SetInt64(0)
		}
		for _, p := range k.Primes {
			p.SetInt64(0)
		}
		if k.Precomputed.Dp != nil {
			k.Precomputed.Dp.SetInt64(0)
		}
		if k.Precomputed.Dq != nil {
			k.Precomputed.Dq.SetInt64(0)
		}
		if k.Precomputed.Qinv != nil {
			k.Precomputed.Qinv.SetInt64(0)
		}
	case ed25519.PrivateKey:
		clear(k)
	}
}
