package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"openai", "gemini"}, cfg.VisionProviderOrder)
	assert.Equal(t, []string{"groq", "openai"}, cfg.AudioProviderOrder)
	assert.Equal(t, 45*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, []string{"jpg", "jpeg", "png"}, cfg.AllowedExtensions)
	assert.Equal(t, 1024, cfg.MaxImageDimension)
	assert.Equal(t, 85, cfg.JPEGQuality)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("VISION_PROVIDER_ORDER", "Gemini, openai , stub")
	t.Setenv("PROVIDER_TIMEOUT", "10s")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("RATE_LIMIT", "not-a-number")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"gemini", "openai", "stub"}, cfg.VisionProviderOrder)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 5, cfg.MaxRetries)
	// Unparseable values fall back to the default.
	assert.Equal(t, 30, cfg.RateLimit)
}
