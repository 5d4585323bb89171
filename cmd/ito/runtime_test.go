package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/ito/internal/config"
	"github.com/lox/ito/internal/randutil"
	"github.com/lox/ito/internal/store/memory"
	"github.com/lox/ito/internal/store/sqlstore"
)

func discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	st, err := openStore(ctx, config.StorageConfig{Driver: config.DriverMemory}, discard())
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, st)

	path := filepath.Join(t.TempDir(), "ito.db")
	st, err = openStore(ctx, config.StorageConfig{Driver: config.DriverSQLite, DSN: path}, discard())
	require.NoError(t, err)
	assert.IsType(t, &sqlstore.Store{}, st)
	require.NoError(t, st.Close())

	_, err = openStore(ctx, config.StorageConfig{Driver: "redis"}, discard())
	require.Error(t, err)
}

func TestLoadTopics(t *testing.T) {
	catalog, err := loadTopics(config.TopicsConfig{}, randutil.New(1))
	require.NoError(t, err)
	assert.NotEmpty(t, catalog.List())

	path := filepath.Join(t.TempDir(), "topics.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
topic "spice" {
  title       = "Spicy foods"
  description = "mild - blistering"
  category    = "food"
}
`), 0o644))
	catalog, err = loadTopics(config.TopicsConfig{File: path}, randutil.New(1))
	require.NoError(t, err)
	require.Len(t, catalog.List(), 1)
	assert.Equal(t, "spice", catalog.List()[0].ID)

	_, err = loadTopics(config.TopicsConfig{File: filepath.Join(t.TempDir(), "missing.hcl")}, randutil.New(1))
	require.Error(t, err)
}

func TestServeFlagsOverrideConfig(t *testing.T) {
	cfg := config.Default()
	cmd := ServeCmd{Addr: ":9000", Storage: "sqlite", DSN: "/tmp/ito.db", LogFormat: "json"}
	cmd.apply(cfg)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, config.DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/tmp/ito.db", cfg.Storage.DSN)
	assert.Equal(t, "json", cfg.Server.LogFormat)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	require.NoError(t, cfg.Validate())
}
