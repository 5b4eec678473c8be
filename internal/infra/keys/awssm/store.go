// Package awssm stores key records as AWS Secrets Manager secrets named
// uptane/{env}/{record_name}.
package awssm

import (
	"context"
	"errors"
	"fmt"

	"github.com/liunix61/uptane-server/internal/config"
	"github.com/liunix61/uptane-server/internal/domain"
	"github.com/liunix61/uptane-server/internal/infra/awsclient"
	"github.com/liunix61/uptane-server/internal/infra/keys"
)

type secretsClient interface {
	GetSecret(ctx context.Context, secretID string) ([]byte, error)
	CreateSecret(ctx context.Context, secretID string, secret []byte) error
	PutSecretValue(ctx context.Context, secretID string, secret []byte) error
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
	client, err := awsclient.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(client, cfg.UptaneEnv)
}

func (s *Store) secretID(ref domain.KeyRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	return "uptane/" + s.env + "/" + ref.Name(), nil
}

// Put creates the secret, or writes a new version when it already exists so
// that a retried create converges.
func (s *Store) Put(ctx context.Context, rec domain.KeyRecord) error {
	data, err := keys.Marshal(rec)
	if err != nil {
		return err
	}
	id, err := s.secretID(rec.Ref)
	if err != nil {
		return err
	}
	err = s.client.CreateSecret(ctx, id, data)
	if errors.Is(err, awsclient.ErrAlreadyExists) {
		err = s.client.PutSecretValue(ctx, id, data)
	}
	if err != nil {
		return fmt.Errorf("aws put %s: %w", rec.Ref.Name(), err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ref domain.KeyRef) (*domain.KeyRecord, error) {
	id, err := s.secretID(ref)
	if err != nil {
		return nil, err
	}
	data, err := s.client.GetSecret(ctx, id)
	if err != nil {
		if errors.Is(err, awsclient.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("aws get %s: %w", ref.Name(), err)
	}
	return keys.Unmarshal(ref, data)
}

func (s *Store) Delete(ctx context.Context, ref domain.KeyRef) error {
	id, err := s.secretID(ref)
	if err != nil {
		return err
	}
	if err := s.client.DeleteSecret(ctx, id); err != nil && !errors.Is(err, awsclient.ErrNotFound) {
		return fmt.Errorf("aws delete %s: %w", ref.Name(), err)
	}
	return nil
}
