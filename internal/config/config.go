package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mastodon-to-sqlite/internal/credentials"
)

// Config holds all application configuration
type Config struct {
	// Storage
	DatabasePath    string `yaml:"database_path"`
	AuthPath        string `yaml:"auth_path"`
	CredentialStore string `yaml:"credential_store"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Mastodon API client
	HTTPConnectTimeout time.Duration `yaml:"http_connect_timeout"`
	HTTPReadTimeout    time.Duration `yaml:"http_read_timeout"`
	RateLimitLowWater  int           `yaml:"rate_limit_low_water"`
	RequestsPerSecond  float64       `yaml:"requests_per_second"`

	// Metrics
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	MetricsHost     string `yaml:"metrics_host"`
	MetricsPort     int    `yaml:"metrics_port"`
	MetricsTextfile string `yaml:"metrics_textfile"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		DatabasePath:       "mastodon.db",
		AuthPath:           "auth.json",
		CredentialStore:    credentials.KindFile,
		LogLevel:           "info",
		LogFormat:          "text",
		HTTPConnectTimeout: 10 * time.Second,
		HTTPReadTimeout:    30 * time.Second,
		RateLimitLowWater:  1,
		RequestsPerSecond:  0,
		MetricsEnabled:     false,
		MetricsHost:        "localhost",
		MetricsPort:        9464,
	}
}

// Load builds the configuration from defaults, then the optional YAML file,
// then the optional dotenv file, then environment variables. Variables that
// are already set in the environment win over the dotenv file.
func Load(configFile, envFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	setString(&c.DatabasePath, "DATABASE_PATH")
	setString(&c.AuthPath, "AUTH_PATH")
	setString(&c.CredentialStore, "CREDENTIAL_STORE")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.MetricsHost, "METRICS_HOST")
	setString(&c.MetricsTextfile, "METRICS_TEXTFILE")

	errs = append(errs,
		setDuration(&c.HTTPConnectTimeout, "HTTP_CONNECT_TIMEOUT"),
		setDuration(&c.HTTPReadTimeout, "HTTP_READ_TIMEOUT"),
		setInt(&c.RateLimitLowWater, "RATE_LIMIT_LOW_WATER"),
		setFloat(&c.RequestsPerSecond, "REQUESTS_PER_SECOND"),
		setBool(&c.MetricsEnabled, "METRICS_ENABLED"),
		setInt(&c.MetricsPort, "METRICS_PORT"),
	)

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database path must not be empty"))
	}

	switch c.CredentialStore {
	case credentials.KindFile:
		if c.AuthPath == "" {
			errs = append(errs, errors.New("auth path must not be empty"))
		}
	case credentials.KindKeyring:
	default:
		errs = append(errs, fmt.Errorf("credential store must be %q or %q, got %q", credentials.KindFile, credentials.KindKeyring, c.CredentialStore))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.LogFormat))
	}

	if c.HTTPConnectTimeout <= 0 {
		errs = append(errs, errors.New("HTTP connect timeout must be positive"))
	}
	if c.HTTPReadTimeout <= 0 {
		errs = append(errs, errors.New("HTTP read timeout must be positive"))
	}
	if c.RateLimitLowWater < 0 {
		errs = append(errs, errors.New("rate limit low-water mark must not be negative"))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests per second must not be negative"))
	}
	if c.MetricsEnabled && (c.MetricsPort <= 0 || c.MetricsPort > 65535) {
		errs = append(errs, fmt.Errorf("metrics port %d out of range", c.MetricsPort))
	}

	return errors.Join(errs...)
}

// MetricsAddr returns the listen address of the metrics endpoint
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

// setDuration accepts Go durations ("45s") and bare seconds ("45")
func setDuration(dst *time.Duration, key string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		*dst = time.Duration(seconds * float64(time.Second))
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
