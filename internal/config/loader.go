package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// ConfigFileEnv names an optional YAML file read before the environment.
const ConfigFileEnv = "CONFIG_FILE"

// Load reads configuration from the environment, layered over the YAML file
// named by CONFIG_FILE when set. Defaults apply to unset values and the
// result is validated. Environment variables always win over the file.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("config load %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Watch validation
	if c.Watch.Dir == "" {
		errs = append(errs, "WATCH_DIR is required")
	}
	if c.Watch.PollInterval <= 0 {
		errs = append(errs, "WATCH_POLL_INTERVAL must be positive")
	}
	if c.Watch.Stabilization < 0 {
		errs = append(errs, "WATCH_STABILIZATION must be non-negative")
	}
	if c.Watch.Abandonment <= c.Watch.Stabilization {
		errs = append(errs, "WATCH_ABANDONMENT must be greater than WATCH_STABILIZATION")
	}
	if c.Watch.DataKind == "" {
		errs = append(errs, "WATCH_DATA_KIND is required")
	}

	// Pipeline validation
	if c.Pipeline.PollInterval <= 0 {
		errs = append(errs, "PIPELINE_POLL_INTERVAL must be positive")
	}
	if c.Pipeline.BronzeTable == "" || c.Pipeline.SilverTable == "" {
		errs = append(errs, "PIPELINE_BRONZE_TABLE and PIPELINE_SILVER_TABLE are required")
	}

	// Reference validation
	if c.Reference.BaseURL == "" {
		errs = append(errs, "REFERENCE_BASE_URL is required")
	} else if u, err := url.Parse(c.Reference.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("REFERENCE_BASE_URL (%q) must be an absolute URL", c.Reference.BaseURL))
	}
	if c.Reference.Timeout <= 0 {
		errs = append(errs, "REFERENCE_TIMEOUT must be positive")
	}

	// Artifacts validation
	switch strings.ToLower(c.Artifacts.Backend) {
	case "local":
		if c.Artifacts.OutputDir == "" {
			errs = append(errs, "ARTIFACTS_OUTPUT_DIR is required for the local backend")
		}
	case "s3":
		if c.Artifacts.Bucket == "" {
			errs = append(errs, "ARTIFACTS_S3_BUCKET is required for the s3 backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("ARTIFACTS_BACKEND (%q) must be one of: local, s3", c.Artifacts.Backend))
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}
	if c.Security.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("API_RATE_LIMIT (%d) must be >= 0", c.Security.RateLimit))
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "METRICS_PATH must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and tokens are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Watch: {Dir: %q, Poll: %s, Stabilization: %s, Abandonment: %s}, ",
		c.Watch.Dir, c.Watch.PollInterval, c.Watch.Stabilization, c.Watch.Abandonment))
	b.WriteString(fmt.Sprintf("Pipeline: {Poll: %s, IgnoreBronzeWarning: %v}, ",
		c.Pipeline.PollInterval, c.Pipeline.IgnoreBronzeWarning))
	b.WriteString(fmt.Sprintf("Reference: {BaseURL: %q, Token: %s}, ",
		c.Reference.BaseURL, mask(c.Reference.Token)))
	b.WriteString(fmt.Sprintf("Artifacts: {Backend: %q, AccessKey: %s}, ",
		c.Artifacts.Backend, mask(c.Artifacts.AccessKey)))
	b.WriteString(fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: %d configured}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func mask(secret string) string {
	if secret == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
