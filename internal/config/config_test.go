package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 0.5, cfg.Match.FuzzyZipThreshold)
	assert.Equal(t, 0.4, cfg.Match.FuzzyCityThreshold)
	assert.Equal(t, 0.3, cfg.Match.FuzzyZipLooseThreshold)
	assert.Equal(t, 500, cfg.Match.BatchSize)
	assert.Equal(t, 10, cfg.Match.UnmatchedSample)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENTITYLINK_STORE_DRIVER", "sqlite")
	t.Setenv("ENTITYLINK_STORE_DATABASE_URL", "entitylink.db")
	t.Setenv("ENTITYLINK_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "entitylink.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLogger_JSON(t *testing.T) {
	assert.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
}

func TestInitLogger_Console(t *testing.T) {
	assert.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouty", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
