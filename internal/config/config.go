// Package config provides centralized configuration for the notevault
// service. It loads configuration from CLI flags and environment
// variables, validates required fields, and provides sensible defaults.
//
// The --no-s3 flag swaps the remote backend for an in-process fake, so
// the full online path runs without cloud credentials. Environment
// variables provide secrets and service configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kuitang/notevault/internal/ratelimit"
	"github.com/kuitang/notevault/internal/s3client"
)

const (
	// DefaultLocalFile is used when the LOCAL env var is unset.
	DefaultLocalFile = "local_notes.json"
	// DefaultObjectKey names the document object inside the bucket.
	DefaultObjectKey = "notes.json"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr string

	// APIKey protects the setup and note endpoints (X-API-Key header).
	APIKey string

	// LocalFile is the fallback document path (env LOCAL).
	LocalFile string

	// ObjectKey is the document object's key inside the bucket.
	ObjectKey string

	// NoS3 swaps in an in-process fake S3 (--no-s3).
	NoS3 bool

	// Rate limiting
	RateLimitConfig ratelimit.Config

	// S3 endpoint and credentials (bucket name arrives via POST /setup).
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
}

// ValidationError represents a configuration validation error with
// multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// LoadConfig loads configuration from environment variables and CLI flag
// values. The noS3 flag controls whether the remote backend is mocked;
// addr overrides the LISTEN_ADDR env var if non-empty.
func LoadConfig(noS3 bool, addr string) (*Config, error) {
	cfg := &Config{}

	cfg.NoS3 = noS3

	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", ":8080")
	if addr != "" {
		cfg.ListenAddr = addr
	}

	cfg.APIKey = strings.TrimSpace(os.Getenv("NOTES_API_KEY"))
	cfg.LocalFile = getEnvOrDefault("LOCAL", DefaultLocalFile)
	cfg.ObjectKey = getEnvOrDefault("S3_OBJECT_KEY", DefaultObjectKey)

	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", "auto")
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))

	cfg.RateLimitConfig = ratelimit.DefaultConfig

	var issues []string
	if cfg.APIKey == "" {
		issues = append(issues, "NOTES_API_KEY is required")
	}
	if cfg.LocalFile == "" {
		issues = append(issues, "LOCAL must not be an empty path")
	}
	if cfg.ObjectKey == "" {
		issues = append(issues, "S3_OBJECT_KEY must not be empty")
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Errors: issues}
	}

	return cfg, nil
}

// S3Config returns the base S3 client configuration. The bucket name is
// filled in at setup time.
func (c *Config) S3Config() s3client.Config {
	return s3client.Config{
		Endpoint:        c.AWSEndpointS3,
		Region:          c.AWSRegion,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
		UsePathStyle:    c.NoS3,
	}
}

func getEnvOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
