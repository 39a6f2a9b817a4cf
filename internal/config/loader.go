package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/csvbind/internal/core"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/encoding/htmlindex"
)

// Load reads configuration from environment variables, applies defaults and
// validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envField is one tagged leaf field of a config struct.
type envField struct {
	value    reflect.Value
	name     string
	alt      string
	def      string
	required bool
}

// lookup returns the configured text, the alternate variable, or the default.
func (f envField) lookup() (string, bool) {
	if v := os.Getenv(f.name); v != "" {
		return v, true
	}
	if f.alt != "" {
		if v := os.Getenv(f.alt); v != "" {
			return v, true
		}
	}
	return f.def, false
}

// collectFields walks v depth-first and returns every settable field with
// an env tag.
func collectFields(v reflect.Value, out []envField) []envField {
	t := v.Type()
	for i := range t.NumField() {
		sf, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			out = collectFields(fv, out)
			continue
		}
		name := sf.Tag.Get("env")
		if name == "" {
			continue
		}
		out = append(out, envField{
			value:    fv,
			name:     name,
			alt:      sf.Tag.Get("envAlt"),
			def:      sf.Tag.Get("default"),
			required: sf.Tag.Get("required") == "true",
		})
	}
	return out
}

// loadStruct fills v from the environment. Every missing required
// variable is reported, not just the first.
func loadStruct(v reflect.Value) error {
	var missing []string
	for _, f := range collectFields(v, nil) {
		text, set := f.lookup()
		if !set && f.required {
			missing = append(missing, f.name)
			continue
		}
		if text == "" {
			continue
		}
		if err := setField(f.value, text); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", f.name, text, err)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setField parses text into field according to the field's type.
func setField(field reflect.Value, text string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(text)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(text)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(text, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// problems collects validation failures.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// check records the message when ok is false.
func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		p.addf(format, args...)
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var p problems

	p.check(c.Server.Port > 0 && c.Server.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	p.check(c.Server.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	p.check(c.Server.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")

	if _, err := core.ParseBackend(c.Engine.Backend); err != nil {
		p.addf("ENGINE_BACKEND: %v", err)
	}
	if _, err := htmlindex.Get(c.Engine.Charset); err != nil {
		p.addf("ENGINE_CHARSET (%q) is not a known encoding", c.Engine.Charset)
	}
	p.check(c.Engine.BatchSize > 0, "ENGINE_BATCH_SIZE must be positive")

	p.check(c.Upload.MaxFileSize > 0, "UPLOAD_MAX_FILE_SIZE must be positive")
	p.check(c.Upload.MaxConcurrent > 0, "UPLOAD_MAX_CONCURRENT must be positive")
	p.check(c.Upload.MaxWaitTime > 0, "UPLOAD_MAX_WAIT_TIME must be positive")

	switch strings.ToLower(c.Sink.Driver) {
	case SinkNone:
	case SinkPostgres:
		db := c.Database
		p.check(db.URL != "", "DATABASE_URL is required when SINK_DRIVER=postgres")
		p.check(db.MaxConns > 0, "DB_MAX_CONNS must be positive")
		p.check(db.MinConns >= 0, "DB_MIN_CONNS must be non-negative")
		p.check(db.MaxConns >= db.MinConns, "DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", db.MaxConns, db.MinConns)
	case SinkSQLite:
		p.check(c.Sink.SQLitePath != "", "SINK_SQLITE_PATH is required when SINK_DRIVER=sqlite")
	default:
		p.addf("SINK_DRIVER (%q) must be one of: none, postgres, sqlite", c.Sink.Driver)
	}

	p.check(c.Import.Dir == "" || c.Import.Schema != "", "IMPORT_SCHEMA is required when IMPORT_DIR is set")
	p.check(!c.Import.Watch || c.Import.Settle > 0, "IMPORT_SETTLE must be positive when IMPORT_WATCH is set")
	if c.Import.Schedule != "" {
		if _, err := cron.ParseStandard(c.Import.Schedule); err != nil {
			p.addf("IMPORT_SCHEDULE (%q): %v", c.Import.Schedule, err)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		p.addf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		p.addf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	if len(p) > 0 {
		return errors.New("validation failed:\n  - " + strings.Join(p, "\n  - "))
	}
	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	dbURL := ""
	if c.Database.URL != "" {
		dbURL = "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Engine: {Validation: %v, MaxErrors: %d, Backend: %q, Charset: %q, BatchSize: %d}, ",
		c.Engine.ValidationEnabled, c.Engine.MaxErrors, c.Engine.Backend, c.Engine.Charset, c.Engine.BatchSize)
	fmt.Fprintf(&b, "Schema: {Dir: %q}, ", c.Schema.Dir)
	fmt.Fprintf(&b, "Sink: {Driver: %q}, Database: {URL: %s, MaxConns: %d}, ",
		c.Sink.Driver, dbURL, c.Database.MaxConns)
	fmt.Fprintf(&b, "Import: {Dir: %q, Schema: %q, Schedule: %q, Watch: %t}, ",
		c.Import.Dir, c.Import.Schema, c.Import.Schedule, c.Import.Watch)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
