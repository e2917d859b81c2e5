package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Environment variables that override the file.
const (
	EnvDatabaseDSN   = "DATABASE_DSN"
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvJWTKey        = "JWT_KEY"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info", Outputs: []string{"stdout"}},
		Database: DatabaseConfig{Driver: "postgres", MaxConns: 10, Migrate: true},
		Telegram: TelegramConfig{Timeout: 60},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Worker: WorkerConfig{
			HealthAddr:   ":9090",
			MetricsAddr:  ":9091",
			PollInterval: time.Second,
			Lease:        time.Minute,
			BatchSize:    20,
			MaxAttempts:  5,
			BaseBackoff:  5 * time.Second,
			MaxBackoff:   10 * time.Minute,
		},
		Sweeper:  SweeperConfig{Interval: time.Minute},
		Delivery: DeliveryConfig{Policy: "stale"},
		Timezone: "Local",
	}
}

// Load reads .env files (missing ones are ignored), then the YAML file at path
// on top of Default, expanding environment variables, then applies env overrides.
// An empty path yields defaults plus overrides.
func Load(path string, envFiles ...string) (*Config, error) {
	loadDotenv(envFiles...)

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		expanded, err := expandEnv(raw)
		if err != nil {
			return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
		}
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func loadDotenv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		// godotenv never overrides variables already set in the process
		_ = godotenv.Load(f)
	}
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvDatabaseDSN); ok && v != "" {
		cfg.Database.DSN = v
	}
	if v, ok := os.LookupEnv(EnvTelegramToken); ok && v != "" {
		cfg.Telegram.Token = v
	}
	if v, ok := os.LookupEnv(EnvJWTKey); ok && v != "" {
		cfg.HTTP.JWTKey = v
	}
}

// expandEnv replaces ${VAR} and ${VAR:-default} patterns in raw YAML bytes.
// Returns an error listing all unresolved variables.
func expandEnv(raw []byte) ([]byte, error) {
	var errs []error

	result := envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		subs := envPattern.FindSubmatch(match)
		name := string(subs[1])
		hasDefault := len(subs) > 2 && subs[2] != nil

		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		if hasDefault {
			return subs[2]
		}
		errs = append(errs, fmt.Errorf("unresolved variable: %s", name))
		return match
	})

	return result, errors.Join(errs...)
}
