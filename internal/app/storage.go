// Package app wires configuration into the storage backends shared by the binaries.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/remind-keeper/internal/config"
	"github.com/and161185/remind-keeper/internal/migrate"
	"github.com/and161185/remind-keeper/internal/repository"
	"github.com/and161185/remind-keeper/internal/repository/postgres"
	"github.com/and161185/remind-keeper/internal/repository/sqlite"
)

// Storage holds the repositories of the configured backend. One connection
// pool serves the reminder store and the delivery queue.
type Storage struct {
	Owners    repository.OwnerRepository
	Reminders repository.ReminderRepository
	Jobs      repository.JobRepository

	close func()
}

// Close releases the connection pool.
func (s *Storage) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStorage connects to the backend named by cfg.Driver, applying migrations when asked.
func OpenStorage(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*Storage, error) {
	switch cfg.Driver {
	case "postgres":
		if cfg.Migrate {
			if err := migrate.Up(ctx, cfg.DSN); err != nil {
				return nil, fmt.Errorf("migrate up: %w", err)
			}
		}
		db, err := postgres.New(ctx, cfg.DSN, cfg.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		log.Info("storage ready", zap.String("driver", cfg.Driver), zap.Int32("max_conns", cfg.MaxConns))
		return &Storage{
			Owners:    postgres.NewOwnerRepo(db),
			Reminders: postgres.NewReminderRepo(db),
			Jobs:      postgres.NewJobRepo(db),
			close:     db.Close,
		}, nil

	case "sqlite":
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Info("storage ready", zap.String("driver", cfg.Driver), zap.String("dsn", cfg.DSN))
		return &Storage{
			Owners:    sqlite.NewOwnerRepo(db),
			Reminders: sqlite.NewReminderRepo(db),
			Jobs:      sqlite.NewJobRepo(db),
			close: func() {
				if sqlDB, err := db.DB(); err == nil {
					_ = sqlDB.Close()
				}
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
