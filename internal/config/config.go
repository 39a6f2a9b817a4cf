// Package config provides centralized configuration management for csvbind.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"

	"github.com/JonMunkholm/csvbind/internal/core"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Engine   EngineConfig
	Upload   UploadConfig
	Schema   SchemaConfig
	Database DatabaseConfig
	Sink     SinkConfig
	Import   ImportConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// EngineConfig holds the binding engine defaults.
type EngineConfig struct {
	// ValidationEnabled runs validators and mandatory checks (default: true)
	ValidationEnabled bool `env:"ENGINE_VALIDATION" default:"true"`

	// MaxErrors is how many invalid rows are tolerated before a parse aborts.
	// 0 stops at the first invalid row; negative never stops (default: 0)
	MaxErrors int `env:"ENGINE_MAX_ERRORS" default:"0"`

	// AddQuotes wraps written fields in double quotes (default: true)
	AddQuotes bool `env:"ENGINE_ADD_QUOTES" default:"true"`

	// Backend is the line tokenizer: builtin or stdlib (default: builtin)
	Backend string `env:"ENGINE_BACKEND" default:"builtin"`

	// Charset is the default input encoding (default: utf-8)
	Charset string `env:"ENGINE_CHARSET" default:"utf-8"`

	// BatchSize is the number of records per sink batch (default: 1000)
	BatchSize int `env:"ENGINE_BATCH_SIZE" default:"1000"`
}

// UploadConfig holds HTTP upload limits.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed request body in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel parses (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a parse slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
}

// SchemaConfig locates the YAML schema declarations.
type SchemaConfig struct {
	Dir string `env:"SCHEMA_DIR" default:"schemas"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required by the postgres sink.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Sink drivers.
const (
	SinkNone     = "none"
	SinkPostgres = "postgres"
	SinkSQLite   = "sqlite"
)

// SinkConfig selects where imported records are stored.
type SinkConfig struct {
	// Driver is none, postgres or sqlite (default: none)
	Driver string `env:"SINK_DRIVER" default:"none"`

	// SQLitePath is the database file of the sqlite sink (default: csvbind.db)
	SQLitePath string `env:"SINK_SQLITE_PATH" default:"csvbind.db"`
}

// ImportConfig holds the directory importer settings.
// The importer is disabled while Dir is empty.
type ImportConfig struct {
	Dir string `env:"IMPORT_DIR"`

	// Schema is the schema applied to every file in Dir
	Schema string `env:"IMPORT_SCHEMA"`

	// Schedule is a cron expression; empty runs the import once at startup
	Schedule string `env:"IMPORT_SCHEDULE"`

	// Watch re-runs the import when CSV files appear in Dir
	Watch bool `env:"IMPORT_WATCH" default:"false"`

	// Settle is how long Dir must stay quiet before a watched import starts
	Settle time.Duration `env:"IMPORT_SETTLE" default:"2s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// EngineOptions converts the engine section into core options.
// Backend is assumed valid; Validate checks it.
func (c *Config) EngineOptions() core.Options {
	backend, _ := core.ParseBackend(c.Engine.Backend)
	return core.Options{
		ValidationEnabled: c.Engine.ValidationEnabled,
		MaxErrors:         c.Engine.MaxErrors,
		AddQuotes:         c.Engine.AddQuotes,
		Backend:           backend,
		Charset:           c.Engine.Charset,
		BatchSize:         c.Engine.BatchSize,
	}
}
