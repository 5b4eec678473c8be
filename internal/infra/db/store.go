package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/liunix61/uptane-server/internal/config"
)

const (
	ModePostgres = "postgres"
	ModeSQLite   = "sqlite"
)

type Store struct {
	DB   *gorm.DB
	Mode string
}

// NewStore connects to Postgres when POSTGRES_DSN is set and otherwise
// falls back to a local SQLite file, which is only meant for development.
func NewStore(cfg config.Config) (*Store, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	if cfg.PostgresDSN == "" {
		log.Warn().Str("path", cfg.SQLitePath).Msg("POSTGRES_DSN not set; using sqlite metadata store")
		gdb, err := gorm.Open(sqlite.Open(cfg.SQLitePath+"?_foreign_keys=on"), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &Store{DB: gdb, Mode: ModeSQLite}, nil
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{DB: gdb, Mode: ModePostgres}, nil
}

// Migrate creates or updates the namespace, metadata and object tables.
func (s *Store) Migrate() error {
	if s.DB == nil {
		return errDBUnavailable
	}
	return s.DB.AutoMigrate(&NamespaceModel{}, &MetadataModel{}, &ObjectModel{})
}

func (s *Store) Ping(ctx context.Context) error {
	if s.DB == nil {
		return errDBUnavailable
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
