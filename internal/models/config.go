// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every service component.
//
// Configuration layout:
// - Hierarchical configuration grouped by component (server, storage, rate limiting, ...)
// - Defaults that work out of the box for local development
// - Validation that rejects misconfigurations before the server starts
package models

import (
	"errors"
	"fmt"
	"time"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Rate limiter backend constants
const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// MinJWTSecretLength is the shortest HS256 secret accepted when auth is enabled.
const MinJWTSecretLength = 32

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Storage: Database configuration
// - Security: Authentication and token settings
// - RateLimit: Fixed-window request limiting
// - Logging: Structured logging and output configuration
// - Email: Outbound email delivery for subscription confirmations
// - Metrics: Prometheus endpoint
// - Observability: Tracing
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Email         EmailConfig         `yaml:"email" json:"email"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	BaseURL      string        `yaml:"base_url" json:"base_url"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Database DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate" json:"auto_migrate"`
}

type SecurityConfig struct {
	EnableAuth bool          `yaml:"enable_auth" json:"enable_auth"`
	JWTSecret  string        `yaml:"jwt_secret" json:"-"`
	JWTIssuer  string        `yaml:"jwt_issuer" json:"jwt_issuer"`
	TokenTTL   time.Duration `yaml:"token_ttl" json:"token_ttl"`
}

// RateLimitConfig configures the fixed-window limiter. MaxRequests requests are
// admitted per Window for each client key.
type RateLimitConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Backend string `yaml:"backend" json:"backend"`

	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `yaml:"window" json:"window"`

	// AuthenticatedMaxRequests applies to requests carrying a valid token.
	// Zero means the same limit as anonymous clients.
	AuthenticatedMaxRequests int `yaml:"authenticated_max_requests" json:"authenticated_max_requests"`

	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
	MaxKeys       int           `yaml:"max_keys" json:"max_keys"`

	// TrustedHops is the number of reverse proxies in front of the service.
	// X-Forwarded-For is ignored when zero.
	TrustedHops int `yaml:"trusted_hops" json:"trusted_hops"`

	FailOpen bool        `yaml:"fail_open" json:"fail_open"`
	Redis    RedisConfig `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"-"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	Output     string `yaml:"output" json:"output"`
	FilePath   string `yaml:"file_path" json:"file_path"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// EmailConfig configures the outbound email API. An empty BaseURL logs
// messages instead of sending them.
type EmailConfig struct {
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	Sender            string        `yaml:"sender" json:"sender"`
	AuthToken         string        `yaml:"auth_token" json:"-"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with development-friendly defaults.
//
// Default values:
// - Port 8080 on all interfaces
// - In-memory storage, so the service starts without a database
// - Rate limiting enabled at 100 requests per minute per client
// - JSON logs on stdout
// - Prometheus metrics on port 9090
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			BaseURL:      "http://localhost:8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:3000", "http://localhost:8080"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"},
				MaxAge:         3600,
			},
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
				AutoMigrate:     true,
			},
		},
		Security: SecurityConfig{
			EnableAuth: false,
			JWTIssuer:  "subscriber-api",
			TokenTTL:   24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			Backend:       RateLimitBackendMemory,
			MaxRequests:   100,
			Window:        time.Minute,
			SweepInterval: time.Minute,
			MaxKeys:       100000,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				PoolSize:  10,
				KeyPrefix: "subscriber:ratelimit:",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
		Email: EmailConfig{
			Sender:            "newsletter@example.com",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "subscriber",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Email.Validate(); err != nil {
		return fmt.Errorf("invalid email config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
		return nil
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
		if stc.Database.MaxOpenConns < 0 {
			return errors.New("max open connections cannot be negative")
		}
		return nil
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}
}

func (sec *SecurityConfig) Validate() error {
	if !sec.EnableAuth {
		return nil
	}
	if len(sec.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT secret must be at least %d bytes when auth is enabled", MinJWTSecretLength)
	}
	if sec.TokenTTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	return nil
}

func (rl *RateLimitConfig) Validate() error {
	if !rl.Enabled {
		return nil
	}

	if rl.MaxRequests <= 0 {
		return errors.New("max requests must be positive")
	}
	if rl.Window <= 0 {
		return errors.New("window must be positive")
	}
	if rl.AuthenticatedMaxRequests < 0 {
		return errors.New("authenticated max requests cannot be negative")
	}
	if rl.SweepInterval < 0 {
		return errors.New("sweep interval cannot be negative")
	}
	if rl.MaxKeys < 0 {
		return errors.New("max keys cannot be negative")
	}
	if rl.TrustedHops < 0 {
		return errors.New("trusted hops cannot be negative")
	}

	switch rl.Backend {
	case RateLimitBackendMemory:
	case RateLimitBackendRedis:
		if rl.Redis.Addr == "" {
			return errors.New("Redis address is required when backend is redis")
		}
	default:
		return fmt.Errorf("invalid rate limit backend: %s", rl.Backend)
	}

	return nil
}

// LimitFor returns the per-window limit for anonymous or authenticated callers.
func (rl *RateLimitConfig) LimitFor(authenticated bool) int {
	if authenticated && rl.AuthenticatedMaxRequests > 0 {
		return rl.AuthenticatedMaxRequests
	}
	return rl.MaxRequests
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	found := false
	for _, vl := range validLevels {
		if lc.Level == vl {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	found = false
	for _, vf := range validFormats {
		if lc.Format == vf {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	found = false
	for _, vo := range validOutputs {
		if lc.Output == vo {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (ec *EmailConfig) Validate() error {
	if ec.BaseURL != "" && ec.Sender == "" {
		return errors.New("sender is required when an email API is configured")
	}
	if ec.Timeout < 0 {
		return errors.New("email timeout cannot be negative")
	}
	if ec.RequestsPerSecond < 0 {
		return errors.New("email requests per second cannot be negative")
	}
	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if !oc.Tracing.Enabled {
		return nil
	}
	if oc.ServiceName == "" {
		return errors.New("service name is required when tracing is enabled")
	}
	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("unsupported trace exporter: %s", oc.Tracing.Exporter)
	}
	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}
	return nil
}
