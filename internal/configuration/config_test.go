package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(100<<20), cfg.Upload.MaxSizeBytes)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "sync", cfg.Thumbnail.Mode)
	assert.Equal(t, 200, cfg.Thumbnail.Box)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Zero(t, cfg.Retention.Period)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("UPLOAD_MAX_SIZE_BYTES", "1024")
	t.Setenv("UPLOAD_ALLOWED_MIME_TYPES", "image/png, application/pdf")
	t.Setenv("RETENTION_PERIOD", "720h")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("STORAGE_BACKEND", "minio")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(1024), cfg.Upload.MaxSizeBytes)
	assert.Equal(t, []string{"image/png", "application/pdf"}, cfg.Upload.AllowedMimeTypes)
	assert.Equal(t, 720*time.Hour, cfg.Retention.Period)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, "minio", cfg.Storage.Backend)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("THUMBNAIL_BOX", "big")
	t.Setenv("RATE_LIMIT_WINDOW", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Thumbnail.Box)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
upload:
  max_size_bytes: 2048
  allowed_mime_types: [image/png]
retention:
  period: 48h
thumbnail:
  mode: pool
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(2048), cfg.Upload.MaxSizeBytes)
	assert.Equal(t, []string{"image/png"}, cfg.Upload.AllowedMimeTypes)
	assert.Equal(t, 48*time.Hour, cfg.Retention.Period)
	assert.Equal(t, "pool", cfg.Thumbnail.Mode)
	// untouched by the file
	assert.Equal(t, "9090", cfg.Server.Port)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_BACKEND", "tape")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate_NATSModeNeedsURL(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("THUMBNAIL_MODE", "nats")
	t.Setenv("NATS_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestConnectionString(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "assets", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/assets?sslmode=disable", c.ConnectionString())
}
