// Package soft keeps key records in process memory. It is meant for
// development and tests; records do not survive a restart.
package soft

import (
	"context"
	"sync"

	"github.com/liunix61/uptane-server/internal/domain"
	"github.com/liunix61/uptane-server/internal/infra/keys"
)

type Store struct {
	mu      sync.RWMutex
	records map[string]keys.Payload
}

func NewStore() *Store {
	return &Store{records: make(map[string]keys.Payload)}
}

func (s *Store) Put(_ context.Context, rec domain.KeyRecord) error {
	p, err := keys.NewPayload(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Ref.Name()] = p
	return nil
}

func (s *Store) Get(_ context.Context, ref domain.KeyRef) (*domain.KeyRecord, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	p, ok := s.records[ref.Name()]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Record(ref)
}

func (s *Store) Delete(_ context.Context, ref domain.KeyRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, ref.Name())
	return nil
}

// Len reports how many records are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
