// Package config loads the YAML configuration shared by the remind-keeper binaries.
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Telegram TelegramConfig `yaml:"telegram"`
	HTTP     HTTPConfig     `yaml:"http"`
	Worker   WorkerConfig   `yaml:"worker"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Delivery DeliveryConfig `yaml:"delivery"`

	// Timezone is used to interpret dates without an explicit zone, e.g. "Europe/Moscow".
	Timezone string `yaml:"timezone"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level   string   `yaml:"level"`
	Outputs []string `yaml:"outputs"`
	Dev     bool     `yaml:"dev"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
	// Migrate runs goose migrations on start-up (postgres only).
	Migrate bool `yaml:"migrate"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
	Debug bool   `yaml:"debug"`
	// Timeout is the long-polling timeout in seconds.
	Timeout int `yaml:"timeout"`
}

type HTTPConfig struct {
	Addr   string `yaml:"addr"`
	JWTKey string `yaml:"jwt_key"`
}

// WorkerConfig tunes the delivery worker process.
type WorkerConfig struct {
	HealthAddr   string        `yaml:"health_addr"`
	MetricsAddr  string        `yaml:"metrics_addr"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Lease        time.Duration `yaml:"lease"`
	BatchSize    int           `yaml:"batch_size"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BaseBackoff  time.Duration `yaml:"base_backoff"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
}

type SweeperConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// DeliveryConfig holds the edit/delete policy for already scheduled deliveries.
type DeliveryConfig struct {
	Policy string `yaml:"policy"`
}
