package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "localhost", cfg.API.Host)
	assert.Equal(t, 5000, cfg.API.Port)
	assert.False(t, cfg.API.UseHTTPS)
	assert.Empty(t, cfg.API.Key)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 5*time.Second, cfg.API.StatusTimeout)
	assert.Equal(t, uint32(5), cfg.API.BreakerFailures)
	assert.Equal(t, "@every 1m", cfg.StatusPoll)
	assert.Equal(t, "uploads", cfg.UploadDir)
	assert.Equal(t, int64(65<<20), cfg.MaxUploadBytes)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "http://localhost:5000", cfg.API.BaseURL())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("WA_API_HOST", "wa.internal")
	t.Setenv("WA_API_PORT", "8443")
	t.Setenv("WA_API_USE_HTTPS", "true")
	t.Setenv("WA_API_KEY", " secret ")
	t.Setenv("WA_API_TIMEOUT", "12")
	t.Setenv("WA_STATUS_POLL", "off")
	t.Setenv("WA_DEFAULT_COUNTRY_CODE", "+62")
	t.Setenv("WA_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("WA_BREAKER_FAILURES", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "https://wa.internal:8443", cfg.API.BaseURL())
	assert.Equal(t, "secret", cfg.API.Key)
	assert.Equal(t, 12*time.Second, cfg.API.Timeout)
	assert.Empty(t, cfg.StatusPoll)
	assert.Equal(t, "62", cfg.DefaultCountryCode)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Zero(t, cfg.API.BreakerFailures)
}

func TestLoadEnvironmentOverridesEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("WA_API_HOST=from-file\nWA_API_PORT=7001\n"), 0o600))

	t.Setenv("WA_API_HOST", "from-env")
	// WA_API_PORT is only set by the file; make sure it does not leak into other tests.
	t.Cleanup(func() { os.Unsetenv("WA_API_PORT") })

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.API.Host)
	assert.Equal(t, 7001, cfg.API.Port)
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero timeout", "WA_API_TIMEOUT", "0"},
		{"bad port", "WA_API_PORT", "70000"},
		{"bad cron", "WA_STATUS_POLL", "every minute please"},
		{"bad log level", "WA_LOG_LEVEL", "loud"},
		{"bad log format", "WA_LOG_FORMAT", "xml"},
		{"bad country code", "WA_DEFAULT_COUNTRY_CODE", "6a"},
		{"negative rate", "WA_RATE_LIMIT_RPM", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}
