package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("ANCHORED_JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "", cfg.DatabaseDSN)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.Environment)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ANCHORED_JWT_SECRET", "s3cret")
	t.Setenv("ANCHORED_ADDR", ":9090")
	t.Setenv("ANCHORED_DATABASE_DSN", "postgres://localhost/anchored")
	t.Setenv("ANCHORED_LOG_LEVEL", "debug")
	t.Setenv("ANCHORED_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "postgres://localhost/anchored", cfg.DatabaseDSN)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("ANCHORED_JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)
}
