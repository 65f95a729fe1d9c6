package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrInvalidStorageDriver  = errors.New("invalid storage driver")
	ErrInvalidConfigValue    = errors.New("invalid config value")
)

// CurrentVersion is the expected version of config.toml.
const CurrentVersion = 1

// EnvPrefix is the prefix of environment variables overriding config keys.
// A double underscore separates nested keys: REACTOR_RATE_LIMIT__LIMIT.
const EnvPrefix = "REACTOR_"

// Storage drivers for the reaction event log.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
)

// DefaultEmojis is the palette used when none is configured.
var DefaultEmojis = []string{"👍", "❤️", "🚀", "🎉", "🙏", "😂"} //nolint:gochecknoglobals // -

// listKeys are split on commas when read from the environment.
var listKeys = map[string]struct{}{ //nolint:gochecknoglobals // -
	"reaction.emojis":          {},
	"server.cors_origins":      {},
	"server.trusted_proxies":   {},
	"server.client_ip_headers": {},
}

// legacyEnvKeys maps environment names used by earlier deployments to config keys.
var legacyEnvKeys = map[string]string{ //nolint:gochecknoglobals // -
	"REACTION_EMOJIS":            "reaction.emojis",
	"REACTION_SNAPSHOT_DAYS":     "reconcile.lookback_days",
	"REACTION_ANOMALY_THRESHOLD": "reconcile.anomaly_threshold",
	"ACCESS_TOKEN_SECRET":        "reaction.fingerprint_secret",
}

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	Server     Server     `koanf:"server"`
	Storage    Storage    `koanf:"storage"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	SQLite     SQLite     `koanf:"sqlite"`
	Redis      Redis      `koanf:"redis"`
	Reaction   Reaction   `koanf:"reaction"`
	RateLimit  RateLimit  `koanf:"rate_limit"`
	Reconcile  Reconcile  `koanf:"reconcile"`
	Telemetry  Telemetry  `koanf:"telemetry"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
	// Mirror logs to stderr.
	Console bool `koanf:"console"`
}

// Server contains HTTP server configuration.
type Server struct {
	// Listen host.
	Host string `koanf:"host"`
	// Listen port.
	Port int `koanf:"port"`
	// Read timeout in seconds.
	ReadTimeout int `koanf:"read_timeout"`
	// Write timeout in seconds.
	WriteTimeout int `koanf:"write_timeout"`
	// Graceful shutdown timeout in seconds.
	ShutdownTimeout int `koanf:"shutdown_timeout"`
	// Allowed CORS origins. Empty allows every origin.
	CORSOrigins []string `koanf:"cors_origins"`
	// Proxies whose client IP headers are trusted (IPs or CIDRs).
	TrustedProxies []string `koanf:"trusted_proxies"`
	// Headers carrying the client IP, checked in order.
	ClientIPHeaders []string `koanf:"client_ip_headers"`
	// Bearer token for the operator routes. Empty disables them.
	AdminToken string `koanf:"admin_token"`
}

// Storage selects the event store backend.
type Storage struct {
	// Driver is either "postgres" or "sqlite".
	Driver string `koanf:"driver"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Use TLS for the connection.
	SSL bool `koanf:"ssl"`
	// Dial timeout in seconds.
	DialTimeout int `koanf:"dial_timeout"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
	// Queries slower than this many milliseconds are logged as warnings.
	SlowQueryMS int `koanf:"slow_query_ms"`
}

// SQLite contains embedded event store configuration.
type SQLite struct {
	// Database file path.
	Path string `koanf:"path"`
	// Number of pooled connections.
	PoolSize int `koanf:"pool_size"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Reaction contains toggle engine configuration.
type Reaction struct {
	// Allowed emoji palette, in display order.
	Emojis []string `koanf:"emojis"`
	// Server secret mixed into caller fingerprints.
	FingerprintSecret string `koanf:"fingerprint_secret"`
	// Timeout for each store call in milliseconds.
	StoreTimeoutMS int `koanf:"store_timeout_ms"`
}

// StoreTimeout returns the bound applied to each store call.
func (r *Reaction) StoreTimeout() time.Duration {
	return time.Duration(r.StoreTimeoutMS) * time.Millisecond
}

// RateLimit contains write admission configuration.
type RateLimit struct {
	// Requests admitted per window.
	Limit int `koanf:"limit"`
	// Window length in seconds.
	WindowSeconds int `koanf:"window_seconds"`
	// Timeout for each limiter call in milliseconds.
	TimeoutMS int `koanf:"timeout_ms"`
}

// Window returns the window length.
func (r *RateLimit) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Timeout returns the bound applied to each limiter call.
func (r *RateLimit) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// Reconcile contains reconciliation job configuration.
type Reconcile struct {
	// Days of events re-derived on each run.
	LookbackDays int `koanf:"lookback_days"`
	// Absolute per-emoji swing that is flagged. Zero disables detection.
	AnomalyThreshold int `koanf:"anomaly_threshold"`
	// Maximum anomaly entries persisted per run.
	AnomalyMaxEntries int `koanf:"anomaly_max_entries"`
	// Hours the anomaly record is retained.
	AnomalyTTLHours int `koanf:"anomaly_ttl_hours"`
	// Minutes between scheduled runs.
	IntervalMinutes int `koanf:"interval_minutes"`
	// Run the scheduler inside the API process.
	Embedded bool `koanf:"embedded"`
	// Trigger one run as soon as the scheduler starts.
	RunOnStart bool `koanf:"run_on_start"`
	// Concurrent snapshot reads and writes.
	Concurrency int `koanf:"concurrency"`
}

// Lookback returns the reconciliation window.
func (r *Reconcile) Lookback() time.Duration {
	return time.Duration(r.LookbackDays) * 24 * time.Hour
}

// AnomalyTTL returns the anomaly record retention.
func (r *Reconcile) AnomalyTTL() time.Duration {
	return time.Duration(r.AnomalyTTLHours) * time.Hour
}

// Interval returns the scheduler cadence.
func (r *Reconcile) Interval() time.Duration {
	return time.Duration(r.IntervalMinutes) * time.Minute
}

// Telemetry contains tracing configuration.
type Telemetry struct {
	// Uptrace DSN. Empty disables exporting.
	UptraceDSN string `koanf:"uptrace_dsn"`
	// Service name reported to the tracing backend.
	ServiceName string `koanf:"service_name"`
	// Deployment environment reported to the tracing backend.
	Environment string `koanf:"environment"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]any {
	return map[string]any{
		"debug.log_level":        "info",
		"debug.max_logs_to_keep": 10,
		"debug.max_log_lines":    100000,
		"debug.console":          true,

		"server.host":              "0.0.0.0",
		"server.port":              8080,
		"server.read_timeout":      5,
		"server.write_timeout":     10,
		"server.shutdown_timeout":  30,
		"server.cors_origins":      []string{},
		"server.trusted_proxies":   []string{"127.0.0.1", "::1"},
		"server.client_ip_headers": []string{"CF-Connecting-IP", "X-Forwarded-For"},
		"server.admin_token":      "",

		"storage.driver": StorageDriverPostgres,

		"postgresql.host":           "localhost",
		"postgresql.port":           5432,
		"postgresql.user":           "postgres",
		"postgresql.db_name":        "reactor",
		"postgresql.dial_timeout":   5,
		"postgresql.max_open_conns": 20,
		"postgresql.max_idle_conns": 10,
		"postgresql.max_lifetime":   30,
		"postgresql.max_idle_time":  5,
		"postgresql.slow_query_ms":  250,

		"sqlite.path":      "reactor.db",
		"sqlite.pool_size": 4,

		"redis.host": "localhost",
		"redis.port": 6379,

		"reaction.emojis":           DefaultEmojis,
		"reaction.store_timeout_ms": 3000,

		"rate_limit.limit":          10,
		"rate_limit.window_seconds": 60,
		"rate_limit.timeout_ms":     500,

		"reconcile.lookback_days":       30,
		"reconcile.anomaly_threshold":   20,
		"reconcile.anomaly_max_entries": 20,
		"reconcile.anomaly_ttl_hours":   7 * 24,
		"reconcile.interval_minutes":    24 * 60,
		"reconcile.concurrency":         16,

		"telemetry.service_name": "reactor",
		"telemetry.environment":  "development",
	}
}

// SearchPaths returns the directories searched for config.toml.
func SearchPaths() []string {
	paths := []string{".reactor"}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, homeDir+"/.reactor/config")
	}

	return append(paths, "/etc/reactor/config", "/app/config", "config", ".")
}

// LoadConfig loads the configuration from defaults, the first config.toml in
// the search paths and the environment. Returns the config along with the
// used config directory, which is empty when no file was found.
func LoadConfig() (*Config, string, error) {
	return Load(SearchPaths())
}

// Load is LoadConfig with explicit search paths.
func Load(searchPaths []string) (*Config, string, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load config defaults: %w", err)
	}

	// The config file is optional; environment variables alone are enough
	var usedConfigPath string

	for _, path := range searchPaths {
		configPath := path + "/config.toml"
		if _, err := os.Stat(configPath); err != nil {
			continue
		}

		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, "", fmt.Errorf("failed to parse %s: %w", configPath, err)
		}

		usedConfigPath = path

		break
	}

	if usedConfigPath != "" {
		if err := checkConfigVersion(k.Int("version")); err != nil {
			return nil, "", err
		}
	}

	// Legacy names first so the prefixed form wins when both are set
	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		key = legacyEnvKeys[key]
		return key, envValue(key, value)
	}), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load legacy environment: %w", err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__", ".")
		return key, envValue(key, value)
	}), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// validate rejects values that would make a component misbehave silently.
func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStorageDriver, c.Storage.Driver)
	}

	checks := []struct {
		name  string
		value int
		min   int
	}{
		{"rate_limit.limit", c.RateLimit.Limit, 1},
		{"rate_limit.window_seconds", c.RateLimit.WindowSeconds, 1},
		{"rate_limit.timeout_ms", c.RateLimit.TimeoutMS, 1},
		{"reconcile.lookback_days", c.Reconcile.LookbackDays, 1},
		{"reconcile.anomaly_threshold", c.Reconcile.AnomalyThreshold, 0},
		{"reconcile.anomaly_max_entries", c.Reconcile.AnomalyMaxEntries, 1},
		{"reconcile.interval_minutes", c.Reconcile.IntervalMinutes, 1},
		{"reaction.store_timeout_ms", c.Reaction.StoreTimeoutMS, 1},
	}
	for _, check := range checks {
		if check.value < check.min {
			return fmt.Errorf("%w: %s must be at least %d (got %d)",
				ErrInvalidConfigValue, check.name, check.min, check.value)
		}
	}

	// Fingerprints are only pseudonymous when salted
	if strings.TrimSpace(c.Reaction.FingerprintSecret) == "" {
		return fmt.Errorf("%w: reaction.fingerprint_secret is required (or ACCESS_TOKEN_SECRET)",
			ErrInvalidConfigValue)
	}

	return nil
}

// envValue converts a raw environment value for the given config key.
func envValue(key, value string) any {
	if _, ok := listKeys[key]; !ok {
		return value
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))

	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}

	return items
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(current int) error {
	if current == 0 {
		return fmt.Errorf("%w: config.toml", ErrConfigVersionMissing)
	}

	if current != CurrentVersion {
		return fmt.Errorf("%w: config.toml (got: %d, expected: %d)",
			ErrConfigVersionMismatch, current, CurrentVersion)
	}

	return nil
}
