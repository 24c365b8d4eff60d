package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/thumbnails")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	// Keep Load off any .env file the working directory might carry.
	t.Setenv("CONFIG_ENV_PATH", "testdata/does-not-exist.env")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, "https://generativelanguage.googleapis.com", cfg.GeminiBaseURL)
	assert.Equal(t, "gemini-2.5-flash-image-preview", cfg.ImageModel)
	assert.Equal(t, "gemini-2.0-flash", cfg.TextModel)
	assert.True(t, cfg.EnhancePrompt)
	assert.Equal(t, 2, cfg.FreeQuotaDefault)
	assert.Equal(t, 10, cfg.PurchaseCredits)
	assert.Equal(t, 1280, cfg.ThumbnailWidth)
	assert.Equal(t, 720, cfg.ThumbnailHeight)
	assert.Equal(t, 5, cfg.MaxUploadFiles)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadFileBytes)
	assert.False(t, cfg.S3Enabled())
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("CONFIG_ENV_PATH", "testdata/does-not-exist.env")
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MYSQL_DSN")
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
	assert.Contains(t, err.Error(), "AUTH_JWT_SECRET")
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("LISTEN_ADDR", ":8080")
	t.Setenv("ENHANCE_PROMPT", "false")
	t.Setenv("FREE_QUOTA_DEFAULT", "5")
	t.Setenv("MAX_UPLOAD_FILE_MB", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.False(t, cfg.EnhancePrompt)
	assert.Equal(t, 5, cfg.FreeQuotaDefault)
	assert.Equal(t, int64(2*1024*1024), cfg.MaxUploadFileBytes)
}

func TestLoadS3RequiresCompanionVars(t *testing.T) {
	setRequired(t)
	t.Setenv("S3_BUCKET", "thumbnails")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_REGION")
	assert.Contains(t, err.Error(), "S3_PUBLIC_BASE_URL")
}

func TestLoadS3Enabled(t *testing.T) {
	setRequired(t)
	t.Setenv("S3_BUCKET", "thumbnails")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("S3_ACCESS_KEY", "ak")
	t.Setenv("S3_SECRET_KEY", "sk")
	t.Setenv("S3_PUBLIC_BASE_URL", "https://cdn.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "thumbnails", cfg.S3Prefix)
}

func TestLoadRejectsBadDimensions(t *testing.T) {
	setRequired(t)
	t.Setenv("THUMBNAIL_WIDTH", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestNormalizeBaseURL(t *testing.T) {
	const fallback = "https://generativelanguage.googleapis.com"

	assert.Equal(t, fallback, normalizeBaseURL("", fallback))
	assert.Equal(t, fallback, normalizeBaseURL(fallback+"/", fallback))
	assert.Equal(t, "https://proxy.internal", normalizeBaseURL("proxy.internal", fallback))
	assert.Equal(t, "http://localhost:8787", normalizeBaseURL("http://localhost:8787/", fallback))
}
