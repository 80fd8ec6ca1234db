package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stagehand.cue")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
database: {
	engine:      "postgres"
	target:      "postgres://stagehand@localhost/stagehand"
	mode:        "nonblocking"
	poolSize:    8
	maxOverflow: 4
}
session: timeoutMinutes: 45
server: addr: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Engine)
	assert.Equal(t, "nonblocking", cfg.Database.Mode)
	assert.Equal(t, 8, cfg.Database.PoolSize)
	assert.Equal(t, 45*time.Minute, cfg.IdleTimeout())
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `database: target: "custom.db"`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom.db", cfg.Database.Target)
	assert.Equal(t, "sqlite", cfg.Database.Engine)
	assert.Equal(t, 30*time.Minute, cfg.IdleTimeout())
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
}

func TestLoad_InvalidCUE(t *testing.T) {
	path := writeConfig(t, `database: { engine: }`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsNonPositiveTimeout(t *testing.T) {
	path := writeConfig(t, `session: timeoutMinutes: 0`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeoutMinutes")
}

func TestDefault_DBConversion(t *testing.T) {
	cfg := Default()
	dbCfg := cfg.DB()
	assert.Equal(t, "sqlite", string(dbCfg.Engine))
	assert.Equal(t, "blocking", string(dbCfg.Mode))
}
