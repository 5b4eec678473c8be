// Package gcpsm stores key records as GCP Secret Manager secrets with id
// uptane-{env}-{record_name}.
package gcpsm

import (
	"context"
	"errors"
	"fmt"

	"github.com/liunix61/uptane-server/internal/config"
	"github.com/liunix61/uptane-server/internal/domain"
	"github.com/liunix61/uptane-server/internal/infra/gcpclient"
	"github.com/liunix61/uptane-server/internal/infra/keys"
)

type secretsClient interface {
	CreateSecret(ctx context.Context, secretID string) error
	AddSecretVersion(ctx context.Context, secretID string, payload []byte) error
	AccessSecret(ctx context.Context, secretID string) ([]byte, error)
	DeleteSecret(ctx context.Context, secretID string) error
}

type Store struct {
	client secretsClient
	env    string
}

func NewStore(client secretsClient, env string) (*Store, error) {
	if env == "" {
		return nil, errors.New("UPTANE_ENV is required")
	}
	return &Store{client: client, env: env}, nil
}

func NewStoreFromConfig(cfg config.Config) (*Store, error) {
	client, err := gcpclient.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(client, cfg.UptaneEnv)
}

func (s *Store) secretID(ref domain.KeyRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	return "uptane-" + s.env + "-" + ref.Name(), nil
}

func (s *Store) Put(ctx context.Context, rec domain.KeyRecord) error {
	data, err := keys.Marshal(rec)
	if err != nil {
		return err
	}
	id, err := s.secretID(rec.Ref)
	if err != nil {
		return err
	}
	if err := s.client.CreateSecret(ctx, id); err != nil && !errors.Is(err, gcpclient.ErrAlreadyExists) {
		return fmt.Errorf("gcp create %s: %w", rec.Ref.Name(), err)
	}
	if err := s.client.AddSecretVersion(ctx, id, data); err != nil {
		return fmt.Errorf("gcp put %s: %w", rec.Ref.Name(), err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ref domain.KeyRef) (*domain.KeyRecord, error) {
	id, err := s.secretID(ref)
	if err != nil {
		return nil, err
	}
	data, err := s.client.AccessSecret(ctx, id)
	if err != nil {
		if errors.Is(err, gcpclient.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("gcp get %s: %w", ref.Name(), err)
	}
	return keys.Unmarshal(ref, data)
}

func (s *Store) Delete(ctx context.Context, ref domain.KeyRef) error {
	id, err := s.secretID(ref)
	if err != nil {
		return err
	}
	if err := s.client.DeleteSecret(ctx, id); err != nil && !errors.Is(err, gcpclient.ErrNotFound) {
		return fmt.Errorf("gcp delete %s: %w", ref.Name(), err)
	}
	return nil
}
