package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/liunix61/uptane-server/internal/config"
	"github.com/liunix61/uptane-server/internal/domain"
	"github.com/liunix61/uptane-server/internal/infra/blob/fs"
	"github.com/liunix61/uptane-server/internal/infra/blob/s3blob"
	"github.com/liunix61/uptane-server/internal/infra/db"
	httpinfra "github.com/liunix61/uptane-server/internal/infra/http"
	"github.com/liunix61/uptane-server/internal/infra/keys/awssm"
	"github.com/liunix61/uptane-server/internal/infra/keys/gcpsm"
	"github.com/liunix61/uptane-server/internal/infra/keys/soft"
	"github.com/liunix61/uptane-server/internal/infra/keys/vault"
	"github.com/liunix61/uptane-server/internal/infra/pki"
	"github.com/liunix61/uptane-server/internal/infra/ratelimit"
	"github.com/liunix61/uptane-server/internal/infra/tuf"
	"github.com/liunix61/uptane-server/internal/jobs"
	"github.com/liunix61/uptane-server/internal/logging"
	"github.com/liunix61/uptane-server/internal/usecase"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	keyType, err := domain.ParseKeyType(cfg.TUFKeyType)
	if err != nil {
		return err
	}

	store, err := db.NewStore(cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	keys, err := newKeyStore(cfg)
	if err != nil {
		return fmt.Errorf("init key store: %w", err)
	}
	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}
	limiter, err := newRateLimiter(cfg)
	if err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}
	if closer, ok := limiter.(io.Closer); ok {
		defer closer.Close()
	}

	namespaces := db.NewNamespaceRepository(store.DB)
	objects := db.NewObjectRepository(store.DB)

	var ca usecase.CertificateAuthority
	if cfg.ProvisioningEnabled {
		ca = pki.NewAuthority(cfg.CACertTTL, cfg.ProvisioningCertTTL)
	}
	lifecycle := &usecase.NamespaceLifecycleManager{
		Namespaces: namespaces,
		Objects:    objects,
		Keys:       keys,
		Blobs:      blobs,
		CA:         ca,
		KeyType:    keyType,
		TTLs: map[domain.RepoKind]tuf.TTLs{
			domain.RepoImage:    cfg.ImageTTL.ByRole(),
			domain.RepoDirector: cfg.DirectorTTL.ByRole(),
		},
	}
	deps := httpinfra.ServerDeps{
		Namespaces:  lifecycle,
		Objects:     &usecase.ObjectSyncCoordinator{Namespaces: namespaces, Objects: objects, Blobs: blobs},
		Store:       store,
		StoreMode:   store.Mode,
		RateLimiter: limiter,
		Logger:      logger,
	}
	if ca != nil {
		deps.Provisioning = &usecase.ProvisioningService{
			Namespaces:  namespaces,
			Keys:        keys,
			Blobs:       blobs,
			CA:          ca,
			GatewayHost: cfg.DeviceGatewayHost,
		}
	}

	reconciler := &usecase.Reconciler{Namespaces: namespaces, Lifecycle: lifecycle, Grace: cfg.ReconcileGrace}
	scheduler, err := jobs.ScheduleReconcile(ctx, cfg.ReconcileSchedule, reconciler, logger)
	if err != nil {
		return err
	}
	defer scheduler.Stop()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpinfra.NewServer(cfg, deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.HTTPAddr).
			Str("store", store.Mode).
			Str("keys", cfg.KeyBackend).
			Str("blobs", cfg.BlobBackend).
			Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newKeyStore(cfg config.Config) (usecase.KeyStore, error) {
	switch cfg.KeyBackend {
	case "", "soft":
		return soft.NewStore(), nil
	case "vault":
		return vault.NewStoreFromConfig(cfg)
	case "aws":
		return awssm.NewStoreFromConfig(cfg)
	case "gcp":
		return gcpsm.NewStoreFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unsupported KEY_BACKEND %q", cfg.KeyBackend)
	}
}

func newBlobStore(ctx context.Context, cfg config.Config) (usecase.BlobStore, error) {
	switch cfg.BlobBackend {
	case "", "fs":
		return fs.NewStore(cfg.BlobFSRoot)
	case "s3":
		return s3blob.NewStoreFromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

func newRateLimiter(cfg config.Config) (domain.RateLimiter, error) {
	if cfg.RateLimitRequests <= 0 {
		return nil, nil
	}
	if cfg.RedisAddr != "" {
		return ratelimit.NewRedisLimiter(ratelimit.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	return ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{MaxKeys: cfg.RateLimitMaxKeys}), nil
}
