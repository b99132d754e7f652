package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDefaults_PostgresRequiresDSN(t *testing.T) {
	cfg := &Config{DBDriver: "postgres", RegistryTimeoutSeconds: 30}
	err := cfg.ResolveDefaults()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}

func TestResolveDefaults_SqliteRequiresPath(t *testing.T) {
	cfg := &Config{DBDriver: "sqlite", RegistryTimeoutSeconds: 30}
	require.Error(t, cfg.ResolveDefaults())

	cfg.SQLitePath = "/tmp/timeline.db"
	require.NoError(t, cfg.ResolveDefaults())
}

func TestResolveDefaults_RejectsUnknownDriver(t *testing.T) {
	cfg := &Config{DBDriver: "oracle", RegistryTimeoutSeconds: 30}
	err := cfg.ResolveDefaults()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported DB_DRIVER")
}

func TestNewForTesting(t *testing.T) {
	cfg := NewForTesting()
	require.NoError(t, cfg.ResolveDefaults())
	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
}
