package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/liunix61/uptane-server/internal/config"
	"github.com/liunix61/uptane-server/internal/domain"
	"github.com/liunix61/uptane-server/internal/infra/keys"
	"github.com/liunix61/uptane-server/internal/infra/vaultclient"
)

type kvClient interface {
	ReadKV(ctx context.Context, path string, out any) error
	WriteKV(ctx context.Context, path string, payload any) error
	DeleteKV(ctx context.Context, path string) error
}

type Store struct {
	client kvClient
	env    string
}

func NewStore(client kvClient, env string) (*Store, error) {
	if env == "" {
		return nil, errors.New("UPTANE_ENV is required")
	}
	if client == nil {
		return nil, errors.New("vault client is required")
	}
	return &Store{client: client, env: env}, nil
}

func NewStoreFromConfig(cfg config.Config) (*Store, error) {
	if cfg.VaultAddr == "" || cfg.VaultToken == "" {
		return nil, errors.New("VAULT_ADDR and VAULT_TOKEN are required")
	}
	return NewStore(vaultclient.New(cfg.VaultAddr, cfg.VaultToken), cfg.UptaneEnv)
}

func (s *Store) Put(ctx context.Context, rec domain.KeyRecord) error {
	payload, err := keys.NewPayload(rec)
	if err != nil {
		return err
	}
	path, err := dataPath(s.env, rec.Ref)
	if err != nil {
		return err
	}
	if err := s.client.WriteKV(ctx, path, payload); err != nil {
		return fmt.Errorf("vault put %s: %w", rec.Ref.Name(), err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ref domain.KeyRef) (*domain.KeyRecord, error) {
	path, err := dataPath(s.env, ref)
	if err != nil {
		return nil, err
	}
	var payload keys.Payload
	if err := s.client.ReadKV(ctx, path, &payload); err != nil {
		if errors.Is(err, vaultclient.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("vault get %s: %w", ref.Name(), err)
	}
	return payload.Record(ref)
}

func (s *Store) Delete(ctx context.Context, ref domain.KeyRef) error {
	path, err := metadataPath(s.env, ref)
	if err != nil {
		return err
	}
	if err := s.client.DeleteKV(ctx, path); err != nil {
		return fmt.Errorf("vault delete %s: %w", ref.Name(), err)
	}
	return nil
}
