package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"site-registry/pkg/database"
)

// DefaultEnvFiles are loaded, when present, before environment variables are parsed
var DefaultEnvFiles = []string{".env", ".env.local"}

// Config is the application configuration, populated from environment variables
type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`

	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Import   ImportConfig
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"120s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DatabaseConfig configures the PostgreSQL connection pool
type DatabaseConfig struct {
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            int           `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD" envDefault:"postgres"`
	Database        string        `env:"DB_NAME" envDefault:"site_registry"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// ImportConfig configures the spreadsheet importer
type ImportConfig struct {
	MaxUploadBytes int64 `env:"IMPORT_MAX_UPLOAD_BYTES" envDefault:"20971520"`
	// StrictFlags rejects rows whose camouflage value is not a recognized yes/no token
	// instead of defaulting to false.
	StrictFlags bool     `env:"IMPORT_STRICT_FLAGS" envDefault:"false"`
	DateLayouts []string `env:"IMPORT_DATE_LAYOUTS" envSeparator:"|" envDefault:"2006-1-2|2/1/2006|1/2/2006"`
	Sheet       string   `env:"IMPORT_SHEET"`
}

// LoadConfig loads the default .env files and parses the environment
func LoadConfig() (*Config, error) {
	return Load(DefaultEnvFiles...)
}

// Load reads the given env files (missing ones are skipped; variables already set win)
// and parses the environment into a Config.
func Load(envFiles ...string) (*Config, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}

	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("failed to load env files: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the services cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.Database.Database == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.Database.MaxOpenConns <= 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must be positive: %d", c.Database.MaxOpenConns))
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, fmt.Errorf("DB_MAX_IDLE_CONNS (%d) exceeds DB_MAX_OPEN_CONNS (%d)", c.Database.MaxIdleConns, c.Database.MaxOpenConns))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error: %q", c.Logging.Level))
	}

	if c.Import.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("IMPORT_MAX_UPLOAD_BYTES must be positive: %d", c.Import.MaxUploadBytes))
	}
	if len(c.Import.DateLayouts) == 0 {
		errs = append(errs, errors.New("IMPORT_DATE_LAYOUTS must list at least one layout"))
	}
	for _, layout := range c.Import.DateLayouts {
		if strings.TrimSpace(layout) == "" {
			errs = append(errs, errors.New("IMPORT_DATE_LAYOUTS contains an empty layout"))
		}
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Options converts the settings for pkg/database
func (d DatabaseConfig) Options() *database.Config {
	return &database.Config{
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Database,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
	}
}
