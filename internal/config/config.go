package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the server settings, read from DYAD_* environment variables.
type Config struct {
	Addr          string `env:"ADDR" envDefault:":8080"`
	StoreDriver   string `env:"STORE" envDefault:"sqlite"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"./data/dyad.db"`
	PostgresURL   string `env:"POSTGRES_URL"`
	MigrationsDir string `env:"MIGRATIONS_DIR"`
	StaticDir     string `env:"STATIC_DIR"`

	JWTSecret         string        `env:"JWT_SECRET"`
	AdminPasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	AdminTokenTTL     time.Duration `env:"ADMIN_TOKEN_TTL" envDefault:"12h"`

	CreateRateLimit float64 `env:"CREATE_RATE_LIMIT" envDefault:"1"`
	CreateRateBurst int     `env:"CREATE_RATE_BURST" envDefault:"10"`
	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is used
	// to identify rate-limited clients.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
	// CORSOrigins lists frontend origins allowed to call the API.
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	RedisURL     string `env:"REDIS_URL"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`

	Commit    string `env:"COMMIT" envDefault:"dev"`
	BuildTime string `env:"BUILD_TIME"`
}

const envPrefix = "DYAD_"

// Load reads an optional .env file from the working directory and parses the
// environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse(env.Options{})
}

// Parse builds a Config from opts. Tests pass Environment to avoid touching
// the process environment.
func Parse(opts env.Options) (*Config, error) {
	opts.Prefix = envPrefix
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case "sqlite":
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("DYAD_SQLITE_PATH is required for the sqlite store")
		}
	case "postgres":
		if strings.TrimSpace(c.PostgresURL) == "" {
			return errors.New("DYAD_POSTGRES_URL is required for the postgres store")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.CreateRateLimit < 0 || c.CreateRateBurst < 0 {
		return errors.New("rate limit settings must not be negative")
	}
	return nil
}

// AdminEnabled reports whether admin login can succeed.
func (c *Config) AdminEnabled() bool {
	return c.JWTSecret != "" && c.AdminPasswordHash != ""
}
