package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Requirements names the settings a particular binary cannot start without.
type Requirements struct {
	Telegram bool
	JWT      bool
}

// Validate checks the structural validity of a Config for a binary with the given requirements.
func Validate(cfg *Config, req Requirements) error {
	var errs []error

	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("config: database.driver %q (supported: postgres, sqlite)", cfg.Database.Driver))
	}
	if cfg.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("config: database.dsn is required (or set %s)", EnvDatabaseDSN))
	}
	if req.Telegram && cfg.Telegram.Token == "" {
		errs = append(errs, fmt.Errorf("config: telegram.token is required (or set %s)", EnvTelegramToken))
	}
	if req.JWT && cfg.HTTP.JWTKey == "" {
		errs = append(errs, fmt.Errorf("config: http.jwt_key is required (or set %s)", EnvJWTKey))
	}

	switch strings.ToLower(cfg.Delivery.Policy) {
	case "", "stale", "reschedule":
	default:
		errs = append(errs, fmt.Errorf("config: delivery.policy %q (supported: stale, reschedule)", cfg.Delivery.Policy))
	}
	if cfg.Sweeper.Interval < time.Second {
		errs = append(errs, errors.New("config: sweeper.interval must be at least 1s"))
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("config: timezone: %w", err))
	}
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("config: log.level: %w", err))
	}

	return errors.Join(errs...)
}

// Location returns the configured time zone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Logger builds the zap logger described by LogConfig.
func (l LogConfig) Logger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if l.Dev {
		zc = zap.NewDevelopmentConfig()
	}
	if l.Level != "" {
		lvl, err := zap.ParseAtomicLevel(l.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = lvl
	}
	if len(l.Outputs) > 0 {
		zc.OutputPaths = l.Outputs
	}
	return zc.Build()
}
