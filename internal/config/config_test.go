package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, 24, cfg.Trust.WindowHours)
	assert.Equal(t, 2, cfg.Trust.Quorum)
	assert.Equal(t, float64(10), cfg.Ingest.MinPrice)
	assert.Equal(t, 30, cfg.Cache.LowestTTLMinutes)
	assert.Equal(t, 60, cfg.Cache.SnapshotTTLMinutes)
	assert.Equal(t, 1000, cfg.Client.FlushIntervalMS)
	assert.Equal(t, 100, cfg.Client.MaxBatch)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("COMMUNITYLOW_SERVER_PORT", "9000")
	t.Setenv("COMMUNITYLOW_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	require.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
}
