package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	for _, key := range []string{"PORT", "PROVIDER_ORDER", "ANTHROPIC_MODEL", "MONGO_URI", "PDF_DPI", "SCANNER_CONFIG"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"anthropic", "bedrock"}, cfg.Providers())
	assert.Equal(t, "claude-3-5-sonnet-20240620", cfg.AnthropicModel)
	assert.Equal(t, "anthropic.claude-3-sonnet-20240229-v1:0", cfg.BedrockModel)
	assert.Equal(t, 2000, cfg.MaxImageDimension)
	assert.Equal(t, 1.0, cfg.ImageScale)
	assert.Equal(t, 200, cfg.PDFDPI)
	assert.Equal(t, 4096, cfg.MaxOutputTokens)
	assert.Equal(t, 120*time.Second, cfg.ProviderTimeout())
	assert.Equal(t, 5*time.Minute, cfg.ResultCacheTTL())
	assert.Empty(t, cfg.MongoURI)
	assert.Positive(t, cfg.ImageWorkers)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PROVIDER_ORDER", " Bedrock , gemini,bedrock ")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("PDF_DPI", "300")
	t.Setenv("IMAGE_SCALE", "0.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"bedrock", "gemini"}, cfg.Providers())
	assert.Equal(t, "sk-test", cfg.AnthropicAPIKey)
	assert.Equal(t, 300, cfg.PDFDPI)
	assert.Equal(t, 0.5, cfg.ImageScale)
}

func TestLoadYAMLFile(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "scanner.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_image_dimension: 1600\ngemini_model: gemini-test\n"), 0o644))
	t.Setenv("SCANNER_CONFIG", path)
	t.Setenv("GEMINI_MODEL", "")
	os.Unsetenv("GEMINI_MODEL")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1600, cfg.MaxImageDimension)
	assert.Equal(t, "gemini-test", cfg.GeminiModel)
}

func TestLoadRejectsInvalid(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PROVIDER_ORDER", " , ")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("PROVIDER_ORDER", "anthropic")
	t.Setenv("JPEG_QUALITY", "0")
	_, err = Load()
	assert.Error(t, err)
}

func TestOrigins(t *testing.T) {
	cfg := &Config{AllowedOrigins: "https://a.example, https://b.example,"}
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())
}
