package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{}})
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, 12*time.Hour, cfg.AdminTokenTTL)
	assert.Equal(t, 10, cfg.CreateRateBurst)
	assert.False(t, cfg.AdminEnabled())
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{
		"DYAD_ADDR":                ":9000",
		"DYAD_STORE":               "Postgres",
		"DYAD_POSTGRES_URL":        "postgres://localhost/dyad",
		"DYAD_ADMIN_TOKEN_TTL":     "30m",
		"DYAD_JWT_SECRET":          "s3cret",
		"DYAD_ADMIN_PASSWORD_HASH": "$2a$10$abc",
	}})
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 30*time.Minute, cfg.AdminTokenTTL)
	assert.True(t, cfg.AdminEnabled())
}

func TestParseTrustedProxies(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{}})
	require.NoError(t, err)
	assert.Empty(t, cfg.TrustedProxies)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)

	cfg, err = Parse(env.Options{Environment: map[string]string{"DYAD_TRUSTED_PROXIES": "10.0.0.0/8,192.0.2.1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.TrustedProxies)
}

func TestParseRejectsBadStore(t *testing.T) {
	_, err := Parse(env.Options{Environment: map[string]string{"DYAD_STORE": "mongo"}})
	require.Error(t, err)

	_, err = Parse(env.Options{Environment: map[string]string{"DYAD_STORE": "postgres"}})
	require.Error(t, err)
}

func TestParseRejectsBadDuration(t *testing.T) {
	_, err := Parse(env.Options{Environment: map[string]string{"DYAD_READ_TIMEOUT": "soon"}})
	require.Error(t, err)
}
