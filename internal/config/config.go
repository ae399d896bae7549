// Package config provides centralized configuration management for the pipeline.
// It loads configuration from environment variables (optionally layered over a
// YAML file) with sensible defaults and validates all settings on startup to
// fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Watch     WatchConfig     `yaml:"watch"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Reference ReferenceConfig `yaml:"reference"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds settings for the curator HTTP API.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `yaml:"host" env:"SERVER_HOST" env-default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `yaml:"port" env:"SERVER_PORT" env-default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`

	// ShutdownTimeout bounds graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 30s)
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" env-default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	URL string `yaml:"-" env:"DATABASE_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `yaml:"min_conns" env:"DB_MIN_CONNS" env-default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" env-default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// WatchConfig holds readiness detector settings.
type WatchConfig struct {
	// Dir is the directory watched for inbound files (default: ./input)
	Dir string `yaml:"dir" env:"WATCH_DIR" env-default:"./input"`

	// PollInterval is how often candidates are re-examined (default: 5s)
	PollInterval time.Duration `yaml:"poll_interval" env:"WATCH_POLL_INTERVAL" env-default:"5s"`

	// Stabilization is how long size and mtime must stay still (default: 10s)
	Stabilization time.Duration `yaml:"stabilization" env:"WATCH_STABILIZATION" env-default:"10s"`

	// Abandonment drops a candidate that never becomes ready (default: 30m)
	Abandonment time.Duration `yaml:"abandonment" env:"WATCH_ABANDONMENT" env-default:"30m"`

	// DataKind is recorded on every file detected in Dir (default: FIELD)
	DataKind string `yaml:"data_kind" env:"WATCH_DATA_KIND" env-default:"FIELD"`
}

// PipelineConfig holds lifecycle controller settings.
type PipelineConfig struct {
	// PollInterval is how often the controller looks for pending files (default: 10s)
	PollInterval time.Duration `yaml:"poll_interval" env:"PIPELINE_POLL_INTERVAL" env-default:"10s"`

	// IgnoreBronzeWarning lets WARNING rows into silver; false also drops them (default: true)
	IgnoreBronzeWarning bool `yaml:"ignore_bronze_warning" env:"PIPELINE_IGNORE_BRONZE_WARNING" env-default:"true"`

	// BronzeTable is the registered bronze table for field files
	BronzeTable string `yaml:"bronze_table" env:"PIPELINE_BRONZE_TABLE" env-default:"field_bronze_data"`

	// SilverTable is the registered silver table for field files
	SilverTable string `yaml:"silver_table" env:"PIPELINE_SILVER_TABLE" env-default:"field_silver_data"`

	// RegistryFile seeds sql_script_store on startup when set
	RegistryFile string `yaml:"registry_file" env:"REGISTRY_FILE" env-default:"config/schema.yaml"`
}

// ReferenceConfig holds reference-data service settings.
type ReferenceConfig struct {
	// BaseURL of the reference-data service (required)
	BaseURL string `yaml:"base_url" env:"REFERENCE_BASE_URL"`

	// PartitionID is sent as the data-partition-id header
	PartitionID string `yaml:"partition_id" env:"REFERENCE_PARTITION_ID" env-default:"opendes"`

	// Token is sent as a bearer token when set
	Token string `yaml:"-" env:"REFERENCE_TOKEN"`

	// Timeout bounds each request (default: 30s)
	Timeout time.Duration `yaml:"timeout" env:"REFERENCE_TIMEOUT" env-default:"30s"`

	// CRSKind is the kind searched for coordinate reference systems
	CRSKind string `yaml:"crs_kind" env:"REFERENCE_CRS_KIND" env-default:"osdu:wks:reference-data--CoordinateReferenceSystem:1.1.0"`

	// FieldKind is the kind searched for existing and parent fields
	FieldKind string `yaml:"field_kind" env:"REFERENCE_FIELD_KIND" env-default:"osdu:wks:master-data--Field:1.*.*"`

	// TargetCRS is the persistable reference of the canonical system; empty means WGS84
	TargetCRS string `yaml:"target_crs" env:"REFERENCE_TARGET_CRS"`
}

// ArtifactsConfig holds CSV artifact output settings.
type ArtifactsConfig struct {
	// Backend is "local" or "s3" (default: local)
	Backend string `yaml:"backend" env:"ARTIFACTS_BACKEND" env-default:"local"`

	// OutputDir is the local output directory (default: ./output)
	OutputDir string `yaml:"output_dir" env:"ARTIFACTS_OUTPUT_DIR" env-default:"./output"`

	// Bucket is the S3 bucket for the s3 backend
	Bucket string `yaml:"bucket" env:"ARTIFACTS_S3_BUCKET"`

	// Prefix is prepended to every S3 key
	Prefix string `yaml:"prefix" env:"ARTIFACTS_S3_PREFIX" env-default:"fieldpipe/"`

	// Region of the S3 bucket (default: us-east-1)
	Region string `yaml:"region" env:"ARTIFACTS_S3_REGION" env-default:"us-east-1"`

	// Endpoint overrides the S3 endpoint for S3-compatible stores
	Endpoint string `yaml:"endpoint" env:"ARTIFACTS_S3_ENDPOINT"`

	// AccessKey and SecretKey are optional static credentials
	AccessKey string `yaml:"-" env:"ARTIFACTS_S3_ACCESS_KEY"`
	SecretKey string `yaml:"-" env:"ARTIFACTS_S3_SECRET_KEY"`
}

// SecurityConfig holds curator API access settings.
type SecurityConfig struct {
	// RequireAPIKey enforces X-API-Key on /api routes (default: false)
	RequireAPIKey bool `yaml:"require_api_key" env:"REQUIRE_API_KEY" env-default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `yaml:"-" env:"API_KEYS" env-separator:","`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" env-separator:","`

	// RateLimit is the number of /api requests allowed per client IP per
	// minute; 0 disables limiting (default: 100)
	RateLimit int `yaml:"rate_limit" env:"API_RATE_LIMIT" env-default:"100"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint (default: true)
	Enabled bool `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`

	// Path of the metrics endpoint (default: /metrics)
	Path string `yaml:"path" env:"METRICS_PATH" env-default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
