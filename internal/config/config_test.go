package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "depot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, BackendMemory, cfg.Backend)
	require.EqualValues(t, 100<<20, cfg.MultipartThreshold)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
backend: s3
multipart_threshold: 5242880
s3:
  endpoint: localhost:9000
  access_key: minioadmin
  secret_key: minioadmin
  bucket: depot
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, ":9090", cfg.Listen)
	require.Equal(t, BackendS3, cfg.Backend)
	require.EqualValues(t, 5*1024*1024, cfg.MultipartThreshold)
	require.Equal(t, "localhost:9000", cfg.S3.Endpoint)
	require.Equal(t, "depot", cfg.S3.Bucket)
}

func TestLoadFromFilePreservesDefaults(t *testing.T) {
	path := writeConfig(t, `backend: local`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Listen, "unset fields keep defaults")
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, BackendLocal, cfg.Backend)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "missing file")

	path := writeConfig(t, "listen: [not, a, string")
	_, err = LoadFromFile(path)
	require.Error(t, err, "malformed yaml")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DEPOT_LISTEN", ":7070")
	t.Setenv("DEPOT_BACKEND", "s3")
	t.Setenv("DEPOT_MULTIPART_THRESHOLD", "1048576")
	t.Setenv("DEPOT_S3_ENDPOINT", "minio:9000")
	t.Setenv("DEPOT_S3_BUCKET", "uploads")

	cfg := Default()
	require.NoError(t, cfg.LoadFromEnv())

	require.Equal(t, ":7070", cfg.Listen)
	require.Equal(t, BackendS3, cfg.Backend)
	require.EqualValues(t, 1<<20, cfg.MultipartThreshold)
	require.Equal(t, "minio:9000", cfg.S3.Endpoint)
	require.Equal(t, "uploads", cfg.S3.Bucket)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvInvalidThreshold(t *testing.T) {
	t.Setenv("DEPOT_MULTIPART_THRESHOLD", "lots")

	cfg := Default()
	require.Error(t, cfg.LoadFromEnv())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}, wantErr: false},
		{name: "empty listen", mutate: func(c *Config) { c.Listen = "" }, wantErr: true},
		{name: "zero threshold", mutate: func(c *Config) { c.MultipartThreshold = 0 }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Backend = "tape" }, wantErr: true},
		{name: "local without data dir", mutate: func(c *Config) { c.Backend = BackendLocal; c.DataDir = "" }, wantErr: true},
		{name: "s3 without endpoint", mutate: func(c *Config) { c.Backend = BackendS3; c.S3.Bucket = "b" }, wantErr: true},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Backend = BackendS3; c.S3.Endpoint = "e" }, wantErr: true},
		{name: "s3 complete", mutate: func(c *Config) {
			c.Backend = BackendS3
			c.S3.Endpoint = "localhost:9000"
			c.S3.Bucket = "depot"
		}, wantErr: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
