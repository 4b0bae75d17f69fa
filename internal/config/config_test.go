package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "memory", cfg.Cache.Backend)
	require.True(t, cfg.Yahoo.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
cache:
  backend: sqlite
  sqlite_path: /tmp/test.db
alphavantage:
  api_key: from-file
warm:
  symbols: [AAPL, MSFT]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Cache.Backend)
	require.Equal(t, "/tmp/test.db", cfg.Cache.SQLitePath)
	require.Equal(t, "from-file", cfg.AlphaVantage.APIKey)
	require.Equal(t, []string{"AAPL", "MSFT"}, cfg.Warm.Symbols)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("alphavantage:\n  api_key: from-file\n"), 0o600))

	t.Setenv("ALPHAVANTAGE_API_KEY", "from-env")
	t.Setenv("WARM_SYMBOLS", "AAPL, TSLA ,")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.AlphaVantage.APIKey)
	require.Equal(t, []string{"AAPL", "TSLA"}, cfg.Warm.Symbols)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}
