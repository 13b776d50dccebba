package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Google    GoogleConfig    `mapstructure:"google"`
	Throttler ThrottlerConfig `mapstructure:"throttler"`
	Stores    StoresConfig    `mapstructure:"stores"`
	Geocoding GeocodingConfig `mapstructure:"geocoding"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	ReadTimeout    int `mapstructure:"read_timeout"`
	WriteTimeout   int `mapstructure:"write_timeout"`
	RequestTimeout int `mapstructure:"request_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Instance string `mapstructure:"instance"`
}

type ValkeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Prefix  string `mapstructure:"prefix"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// BackendConfig points at the storefront REST backend.
type BackendConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	APIKey      string `mapstructure:"api_key"`
	TimeoutMs   int    `mapstructure:"timeout_ms"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	BackoffMs   int    `mapstructure:"backoff_ms"`
}

func (b BackendConfig) Timeout() time.Duration { return time.Duration(b.TimeoutMs) * time.Millisecond }
func (b BackendConfig) Backoff() time.Duration { return time.Duration(b.BackoffMs) * time.Millisecond }

type GoogleConfig struct {
	APIKey   string  `mapstructure:"api_key"`
	BaseURL  string  `mapstructure:"base_url"`
	QPS      float64 `mapstructure:"qps"`
	Region   string  `mapstructure:"region"`
	Language string  `mapstructure:"language"`
}

type ThrottlerConfig struct {
	MinIntervalMs int `mapstructure:"min_interval_ms"`
}

func (t ThrottlerConfig) MinInterval() time.Duration {
	return time.Duration(t.MinIntervalMs) * time.Millisecond
}

type StoresConfig struct {
	WideRadiusKm float64 `mapstructure:"wide_radius_km"`
}

type GeocodingConfig struct {
	Providers []string `mapstructure:"providers"`
}

type SessionsConfig struct {
	IdleTTLMinutes       int `mapstructure:"idle_ttl_minutes"`
	EvictIntervalSeconds int `mapstructure:"evict_interval_seconds"`
}

func (s SessionsConfig) IdleTTL() time.Duration {
	return time.Duration(s.IdleTTLMinutes) * time.Minute
}

func (s SessionsConfig) EvictInterval() time.Duration {
	return time.Duration(s.EvictIntervalSeconds) * time.Second
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	SyncCron  string `mapstructure:"sync_cron"`
}

var knownProviders = []string{"backend", "google"}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.request_timeout", 45)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pourzone")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "pourzone")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.instance", "")
	v.SetDefault("valkey.enabled", true)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.prefix", "pourzone:")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("backend.base_url", "http://localhost:3000/api")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout_ms", 10000)
	v.SetDefault("backend.max_attempts", 3)
	v.SetDefault("backend.backoff_ms", 200)
	v.SetDefault("google.api_key", "")
	v.SetDefault("google.base_url", "")
	v.SetDefault("google.qps", 10)
	v.SetDefault("google.region", "")
	v.SetDefault("google.language", "")
	v.SetDefault("throttler.min_interval_ms", 2000)
	v.SetDefault("stores.wide_radius_km", 2000)
	v.SetDefault("geocoding.providers", []string{"backend", "google"})
	v.SetDefault("sessions.idle_ttl_minutes", 60)
	v.SetDefault("sessions.evict_interval_seconds", 300)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "pourzone-zone-sync")
	v.SetDefault("temporal.sync_cron", "*/15 * * * *")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: POURZONE_BACKEND_BASE_URL → backend.base_url
	v.SetEnvPrefix("POURZONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// A comma separated env value arrives as a single element.
	if len(cfg.Geocoding.Providers) == 1 && strings.Contains(cfg.Geocoding.Providers[0], ",") {
		cfg.Geocoding.Providers = strings.Split(cfg.Geocoding.Providers[0], ",")
	}
	for i, p := range cfg.Geocoding.Providers {
		cfg.Geocoding.Providers[i] = strings.ToLower(strings.TrimSpace(p))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "server.request_timeout must be positive")
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url is required")
	}
	if c.Backend.TimeoutMs <= 0 {
		errs = append(errs, "backend.timeout_ms must be positive")
	}
	if c.Throttler.MinIntervalMs < 0 {
		errs = append(errs, "throttler.min_interval_ms must not be negative")
	}
	if c.Stores.WideRadiusKm <= 0 {
		errs = append(errs, "stores.wide_radius_km must be positive")
	}
	if len(c.Geocoding.Providers) == 0 {
		errs = append(errs, "geocoding.providers must name at least one provider")
	}
	for _, p := range c.Geocoding.Providers {
		if !slices.Contains(knownProviders, p) {
			errs = append(errs, fmt.Sprintf("geocoding.providers: unknown provider %q", p))
		}
	}
	if c.Sessions.IdleTTLMinutes <= 0 {
		errs = append(errs, "sessions.idle_ttl_minutes must be positive")
	}
	if c.Sessions.EvictIntervalSeconds <= 0 {
		errs = append(errs, "sessions.evict_interval_seconds must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
