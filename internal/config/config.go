// Package config loads the serve-mode configuration from PAYWATCH_* env vars
// and the watched-sources TOML file.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	Store       string `env:"PAYWATCH_STORE" envDefault:"sqlite"` // sqlite | postgres
	SQLitePath  string `env:"PAYWATCH_SQLITE_PATH" envDefault:"paywatch.db"`
	DatabaseURL string `env:"PAYWATCH_DATABASE_URL"` // required for postgres

	GRPCAddr  string `env:"PAYWATCH_GRPC_ADDR" envDefault:":9090"`
	HTTPAddr  string `env:"PAYWATCH_HTTP_ADDR" envDefault:":8080"`
	AuthToken string `env:"PAYWATCH_AUTH_TOKEN"` // empty = auth disabled

	NATSURL      string `env:"PAYWATCH_NATS_URL"` // empty = no cross-process events
	NATSIngest   bool   `env:"PAYWATCH_NATS_INGEST" envDefault:"true"`
	PublishQueue int    `env:"PAYWATCH_PUBLISH_QUEUE" envDefault:"256"`

	SourcesFile   string `env:"PAYWATCH_SOURCES_FILE"`
	PrimarySource string `env:"PAYWATCH_PRIMARY_SOURCE"` // overrides the file
	Authorized    bool   `env:"PAYWATCH_AUTHORIZED"`     // initial authorization flag

	ActiveTTL    time.Duration `env:"PAYWATCH_ACTIVE_TTL" envDefault:"24h"` // 0 = never expire
	ReapInterval time.Duration `env:"PAYWATCH_REAP_INTERVAL" envDefault:"1m"`

	// Sync settings
	SyncInterval   time.Duration `env:"PAYWATCH_SYNC_INTERVAL" envDefault:"3m"` // 0 = disabled
	SyncS3Bucket   string        `env:"PAYWATCH_SYNC_S3_BUCKET"`                // enables S3 when set
	SyncS3Endpoint string        `env:"PAYWATCH_SYNC_S3_ENDPOINT"`              // custom endpoint for MinIO
	SyncS3Region   string        `env:"PAYWATCH_SYNC_S3_REGION" envDefault:"us-east-1"`
	SyncS3Key      string        `env:"PAYWATCH_SYNC_S3_KEY" envDefault:"paywatch/states.jsonl"`
	SyncFile       string        `env:"PAYWATCH_SYNC_FILE"` // local backup path, enables file sync when set

	OTLPEndpoint string `env:"PAYWATCH_OTLP_ENDPOINT"` // empty = tracing off
	ServiceName  string `env:"PAYWATCH_SERVICE_NAME" envDefault:"paywatch"`

	LogLevel  string `env:"PAYWATCH_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"PAYWATCH_LOG_FORMAT" envDefault:"text"` // text | json
}

func Load() (*Config, error) {
	c := &Config{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("PAYWATCH_SQLITE_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("PAYWATCH_DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("PAYWATCH_STORE: unknown store %q (want %s or %s)", c.Store, StoreSQLite, StorePostgres)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("PAYWATCH_LOG_FORMAT: unknown format %q", c.LogFormat)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.ActiveTTL < 0 || c.SyncInterval < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("PAYWATCH_LOG_LEVEL: %w", err)
	}
	return l, nil
}
