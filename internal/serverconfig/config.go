// Package serverconfig loads the estateauth-server configuration: built-in
// defaults, then an optional YAML file, then ESTATEAUTH_* environment
// variables.
package serverconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/estateauth"
	"github.com/MrEthical07/estateauth/internal/logging"
	"github.com/MrEthical07/estateauth/userstore"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ESTATEAUTH_"

// Config is the server configuration.
type Config struct {
	Environment string         `yaml:"environment" env:"ENV"`
	HTTP        HTTPConfig     `yaml:"http" envPrefix:"HTTP_"`
	Redis       RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	Database    DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Auth        AuthConfig     `yaml:"auth" envPrefix:"AUTH_"`
	Logging     logging.Config `yaml:"logging" envPrefix:"LOG_"`
	Metrics     MetricsConfig  `yaml:"metrics" envPrefix:"METRICS_"`
}

// HTTPConfig controls the listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// TrustForwardedFor takes the client IP from X-Forwarded-For. Enable
	// only behind a proxy that sets it.
	TrustForwardedFor bool `yaml:"trust_forwarded_for" env:"TRUST_FORWARDED_FOR"`
	SecureCookies     bool `yaml:"secure_cookies" env:"SECURE_COOKIES"`
}

// RedisConfig points at the shared state store.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// DatabaseConfig points at the user store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "pgx".
	Driver      string `yaml:"driver" env:"DRIVER"`
	DSN         string `yaml:"dsn" env:"DSN"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// Dialect returns the userstore dialect for Driver.
func (d DatabaseConfig) Dialect() (userstore.Dialect, error) {
	switch d.Driver {
	case "sqlite":
		return userstore.DialectSQLite, nil
	case "pgx":
		return userstore.DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", d.Driver)
	}
}

// AuthConfig is the subset of estateauth.Config an operator sets.
type AuthConfig struct {
	JWTSecret           string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	AccessTTL           time.Duration `yaml:"access_ttl" env:"ACCESS_TTL"`
	RefreshTTL          time.Duration `yaml:"refresh_ttl" env:"REFRESH_TTL"`
	Issuer              string        `yaml:"issuer" env:"ISSUER"`
	Audience            string        `yaml:"audience" env:"AUDIENCE"`
	RedisPrefix         string        `yaml:"redis_prefix" env:"REDIS_PREFIX"`
	RequireVerified     bool          `yaml:"require_verified" env:"REQUIRE_VERIFIED"`
	ImmediateRevocation bool          `yaml:"immediate_revocation" env:"IMMEDIATE_REVOCATION"`
	CheckEveryRequest   bool          `yaml:"check_revocation_every_request" env:"CHECK_REVOCATION_EVERY_REQUEST"`
	RateLimitFailOpen   bool          `yaml:"rate_limit_fail_open" env:"RATE_LIMIT_FAIL_OPEN"`
	MaxLoginAttempts    int           `yaml:"max_login_attempts" env:"MAX_LOGIN_ATTEMPTS"`
	LoginCooldown       time.Duration `yaml:"login_cooldown" env:"LOGIN_COOLDOWN"`
	UserLookupTimeout   time.Duration `yaml:"user_lookup_timeout" env:"USER_LOOKUP_TIMEOUT"`
	AuditEnabled        bool          `yaml:"audit_enabled" env:"AUDIT_ENABLED"`
}

// MetricsConfig controls the /metrics endpoint and the OpenTelemetry
// pipeline.
type MetricsConfig struct {
	Enabled bool       `yaml:"enabled" env:"ENABLED"`
	Path    string     `yaml:"path" env:"PATH"`
	OTel    OTelConfig `yaml:"otel" envPrefix:"OTEL_"`
}

// OTelConfig enables a periodic OpenTelemetry export of the engine
// metrics to stderr.
type OTelConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// Default returns the development defaults.
func Default() Config {
	eng := estateauth.DefaultConfig()
	return Config{
		Environment: "development",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Database: DatabaseConfig{
			Driver:      "sqlite",
			DSN:         "file:estateauth.db?_pragma=busy_timeout(5000)",
			AutoMigrate: true,
		},
		Auth: AuthConfig{
			AccessTTL:           eng.JWT.AccessTTL,
			RefreshTTL:          eng.JWT.RefreshTTL,
			Issuer:              eng.JWT.Issuer,
			RedisPrefix:         eng.Session.RedisPrefix,
			RequireVerified:     eng.Account.RequireVerified,
			ImmediateRevocation: eng.Session.ImmediateRevocationOnLogout,
			CheckEveryRequest:   eng.Session.CheckRevocationOnEveryRequest,
			RateLimitFailOpen:   eng.RateLimit.FailOpen,
			MaxLoginAttempts:    eng.RateLimit.MaxLoginAttempts,
			LoginCooldown:       eng.RateLimit.LoginCooldownDuration,
			UserLookupTimeout:   eng.Account.UserLookupTimeout,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			OTel: OTelConfig{
				Interval: time.Minute,
			},
		},
	}
}

// Load reads defaults, then path when it is not empty, then the process
// environment.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, nil)
}

// LoadWithEnv is Load with an explicit environment. A nil environ reads the
// process environment.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// ErrMissingSecret is returned in production when no signing secret is set.
var ErrMissingSecret = errors.New("auth.jwt_secret is required in production")

// Production reports whether Environment is "production".
func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate checks the settings the server itself depends on. Engine
// settings are validated again by the Engine builder.
func (c Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr must not be empty")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr must not be empty")
	}
	if _, err := c.Database.Dialect(); err != nil {
		return err
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn must not be empty")
	}
	if c.Production() {
		if c.Auth.JWTSecret == "" {
			return ErrMissingSecret
		}
		if len(c.Auth.JWTSecret) < 32 {
			return errors.New("auth.jwt_secret must be at least 32 bytes")
		}
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if c.Metrics.OTel.Enabled && c.Metrics.OTel.Interval <= 0 {
		return errors.New("metrics.otel.interval must be > 0")
	}
	return nil
}

// EngineConfig maps the operator settings onto estateauth.DefaultConfig.
// secret is the signing key actually in use.
func (c Config) EngineConfig(secret []byte) estateauth.Config {
	cfg := estateauth.DefaultConfig()
	cfg.JWT.PrivateKey = secret
	cfg.JWT.AccessTTL = c.Auth.AccessTTL
	cfg.JWT.RefreshTTL = c.Auth.RefreshTTL
	cfg.JWT.Issuer = c.Auth.Issuer
	cfg.JWT.Audience = c.Auth.Audience
	cfg.Session.RedisPrefix = c.Auth.RedisPrefix
	cfg.Session.ImmediateRevocationOnLogout = c.Auth.ImmediateRevocation
	cfg.Session.CheckRevocationOnEveryRequest = c.Auth.CheckEveryRequest
	cfg.RateLimit.RedisPrefix = c.Auth.RedisPrefix
	cfg.RateLimit.FailOpen = c.Auth.RateLimitFailOpen
	cfg.RateLimit.MaxLoginAttempts = c.Auth.MaxLoginAttempts
	cfg.RateLimit.LoginCooldownDuration = c.Auth.LoginCooldown
	cfg.Account.RequireVerified = c.Auth.RequireVerified
	cfg.Account.UserLookupTimeout = c.Auth.UserLookupTimeout
	cfg.Audit.Enabled = c.Auth.AuditEnabled
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Enabled
	return cfg
}
