// Package config loads the depot server configuration from a YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendS3     = "s3"
)

// Config defines configuration for the depot server.
type Config struct {
	Listen             string   `yaml:"listen"`
	Backend            string   `yaml:"backend"`
	DataDir            string   `yaml:"data_dir"`
	MultipartThreshold int64    `yaml:"multipart_threshold"`
	S3                 S3Config `yaml:"s3"`
}

// S3Config defines the connection settings for the s3 backend.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// Default returns a Config with sensible defaults: an in-memory store on
// port 8080 with the standard 100 MiB multipart threshold.
func Default() Config {
	return Config{
		Listen:             ":8080",
		Backend:            BackendMemory,
		DataDir:            "./data",
		MultipartThreshold: 100 << 20,
	}
}

// LoadFromFile loads configuration from a YAML file, layered over the
// defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv overlays configuration from environment variables.
// Environment variables use the DEPOT_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("DEPOT_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("DEPOT_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("DEPOT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DEPOT_MULTIPART_THRESHOLD"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse DEPOT_MULTIPART_THRESHOLD: %w", err)
		}
		c.MultipartThreshold = n
	}
	if v := os.Getenv("DEPOT_S3_ENDPOINT"); v != "" {
		c.S3.Endpoint = v
	}
	if v := os.Getenv("DEPOT_S3_ACCESS_KEY"); v != "" {
		c.S3.AccessKey = v
	}
	if v := os.Getenv("DEPOT_S3_SECRET_KEY"); v != "" {
		c.S3.SecretKey = v
	}
	if v := os.Getenv("DEPOT_S3_BUCKET"); v != "" {
		c.S3.Bucket = v
	}
	return nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address must not be empty")
	}
	if c.MultipartThreshold <= 0 {
		return errors.New("multipart_threshold must be positive")
	}

	switch c.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.DataDir == "" {
			return errors.New("data_dir must not be empty for the local backend")
		}
	case BackendS3:
		if c.S3.Endpoint == "" {
			return errors.New("s3.endpoint must not be empty for the s3 backend")
		}
		if c.S3.Bucket == "" {
			return errors.New("s3.bucket must not be empty for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}
