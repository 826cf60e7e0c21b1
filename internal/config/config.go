// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrConverterURLRequired is returned when CONVERTER_URL is not set.
	ErrConverterURLRequired = errors.New("config: CONVERTER_URL is required")
	// ErrCronSecretRequired is returned when CRON_SECRET is not set.
	ErrCronSecretRequired = errors.New("config: CRON_SECRET is required")
	// ErrInvalid is returned when a value fails validation.
	ErrInvalid = errors.New("config: invalid value")
)

// DefaultMaxStorageBytes is the default asset store quota (18 GiB).
const DefaultMaxStorageBytes int64 = 18 * 1024 * 1024 * 1024

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int   `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`
	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES, default=209715200" json:"max_upload_bytes" validate:"gt=0"`

	// Converter settings
	ConverterURL    string        `env:"CONVERTER_URL, required" json:"converter_url" validate:"required,url"`
	ConvertTimeout  time.Duration `env:"CONVERT_TIMEOUT, default=5m" json:"convert_timeout" validate:"gt=0"`
	DownloadTimeout time.Duration `env:"DOWNLOAD_TIMEOUT, default=30s" json:"download_timeout" validate:"gt=0"`

	// Storage settings
	UploadsDir      string        `env:"UPLOADS_DIR, default=./public/uploads" json:"uploads_dir" validate:"required"`
	MaxStorageBytes int64         `env:"MAX_STORAGE_BYTES, default=19327352832" json:"max_storage_bytes" validate:"gt=0"`
	IdleThreshold   time.Duration `env:"IDLE_THRESHOLD, default=30m" json:"idle_threshold" validate:"gt=0"`
	CleanupSchedule string        `env:"CLEANUP_SCHEDULE, default=@every 5m" json:"cleanup_schedule" validate:"required"`
	CronSecret      string        `env:"CRON_SECRET, required" json:"-" validate:"required"` // Masked in JSON

	// Processing settings
	MaxConcurrentSlides int `env:"MAX_CONCURRENT_SLIDES, default=4" json:"max_concurrent_slides" validate:"min=1,max=64"`

	// Optional S3 mirror settings
	S3Bucket           string        `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string        `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string        `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	AWSAccessKeyID     string        `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string        `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON
	S3Timeout          time.Duration `env:"S3_TIMEOUT, default=30s" json:"s3_timeout" validate:"gt=0"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=text json"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"` // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// A .env file in the working directory is applied first when present;
// variables already set in the environment take precedence.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "CONVERTER_URL") {
			return nil, ErrConverterURLRequired
		}
		if strings.Contains(err.Error(), "CRON_SECRET") {
			return nil, ErrCronSecretRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and in range.
func (c *Config) Validate() error {
	if c.ConverterURL == "" {
		return ErrConverterURLRequired
	}
	if c.CronSecret == "" {
		return ErrCronSecretRequired
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, err.Error())
	}
	return nil
}

// StorageConfig is the subset of Config needed by offline maintenance tools.
type StorageConfig struct {
	UploadsDir      string        `env:"UPLOADS_DIR, default=./public/uploads" validate:"required"`
	MaxStorageBytes int64         `env:"MAX_STORAGE_BYTES, default=19327352832" validate:"gt=0"`
	IdleThreshold   time.Duration `env:"IDLE_THRESHOLD, default=30m" validate:"gt=0"`
}

// LoadStorage reads only the asset store settings. Unlike Load it does not
// require the converter or the cron secret.
func LoadStorage() (*StorageConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &StorageConfig{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, err.Error())
	}
	return cfg, nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
// The returned LevelVar controls the logger's level at runtime.
func (c *Config) NewLogger() (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(parseLogLevel(c.LogLevel))

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler), level
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, ConverterURL: %s, UploadsDir: %s, MaxStorageBytes: %d, IdleThreshold: %s, CleanupSchedule: %s, MaxConcurrentSlides: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.ConverterURL,
		c.UploadsDir,
		c.MaxStorageBytes,
		c.IdleThreshold,
		c.CleanupSchedule,
		c.MaxConcurrentSlides,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// ParseLevel converts a level name to slog.Level.
// It reports false for names it does not recognise.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// LevelName returns the lower-case name used by LOG_LEVEL for a level.
func LevelName(level slog.Level) string {
	switch {
	case level <= slog.LevelDebug:
		return "debug"
	case level <= slog.LevelInfo:
		return "info"
	case level <= slog.LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

// parseLogLevel converts a string log level to slog.Level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	l, _ := ParseLevel(level)
	return l
}
