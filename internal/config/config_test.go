package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "PAYMENT_API_URL", "MUTATION_TIMEOUT", "REDIS_URL", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "http://localhost:8000", cfg.PaymentAPIURL)
	assert.Equal(t, 30*time.Second, cfg.MutationTimeout)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("INITIAL_BACKOFF", "not-a-duration")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://admin.example.com, https://staging.example.com,")

	cfg := Load()
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, []string{"https://admin.example.com", "https://staging.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadDotEnv_EnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PAYMENT_API_TOKEN=from-file\nPAYOUT_TIMEZONE=\"UTC\"\n"), 0o600))

	t.Setenv("PAYMENT_API_TOKEN", "from-env")
	t.Setenv("PAYOUT_TIMEZONE", "")
	require.NoError(t, os.Unsetenv("PAYOUT_TIMEZONE"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-env", os.Getenv("PAYMENT_API_TOKEN"))
	assert.Equal(t, "UTC", os.Getenv("PAYOUT_TIMEZONE"))
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestLocation(t *testing.T) {
	cfg := &Config{PayoutTimezone: "Nowhere/Atlantis"}
	assert.Equal(t, time.UTC, cfg.Location())

	cfg.PayoutTimezone = "UTC"
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestValidateServer(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	cfg := Load()
	require.Error(t, cfg.ValidateServer(), "no built-in signing secret")

	cfg.JWTSecret = "short"
	assert.ErrorContains(t, cfg.ValidateServer(), "at least 32 bytes")

	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.ValidateServer())
}
