// Package keys holds the wire form shared by the secret-backed key stores.
package keys

import (
	"encoding/json"
	"errors"

	"github.com/liunix61/uptane-server/internal/domain"
)

// Payload is the JSON body written under a key record's name.
type Payload struct {
	KeyType string `json:"key_type"`
	KeyID   string `json:"key_id,omitempty"`
	PEM     string `json:"pem"`
}

func NewPayload(rec domain.KeyRecord) (Payload, error) {
	if err := rec.Ref.Validate(); err != nil {
		return Payload{}, err
	}
	if len(rec.PEM) == 0 {
		return Payload{}, errors.New("key material is required")
	}
	return Payload{KeyType: string(rec.Type), KeyID: rec.KeyID, PEM: string(rec.PEM)}, nil
}

func (p Payload) Record(ref domain.KeyRef) (*domain.KeyRecord, error) {
	if p.PEM == "" {
		return nil, errors.New("stored key record has no key material")
	}
	return &domain.KeyRecord{
		Ref:   ref,
		Type:  domain.KeyType(p.KeyType),
		KeyID: p.KeyID,
		PEM:   []byte(p.PEM),
	}, nil
}

func Marshal(rec domain.KeyRecord) ([]byte, error) {
	p, err := NewPayload(rec)
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

func Unmarshal(ref domain.KeyRef, data []byte) (*domain.KeyRecord, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p.Record(ref)
}
