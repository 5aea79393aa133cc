package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "localhost:9999", cfg.Server)
	assert.Equal(t, "table", cfg.Output)
	require.NoError(t, cfg.Validate())
}

func TestDefaultPath(t *testing.T) {
	assert.True(t, filepath.IsAbs(DefaultPath()) || filepath.Dir(DefaultPath()) == ".sightingdb")
	assert.Equal(t, "cli.yaml", filepath.Base(DefaultPath()))
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cli.yaml")
	cfg := Default()
	require.NoError(t, cfg.Set("server", "https://db.example.com:9999"))
	require.NoError(t, cfg.Set("api_key", "sdbk_secret"))
	require.NoError(t, cfg.Set("timeout", "5s"))
	require.NoError(t, cfg.Set("insecure", "true"))
	require.NoError(t, cfg.Set("ca_cert", "/etc/sightingdb/ca.pem"))
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	d, err := loaded.RequestTimeout()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: from-file:1\noutput: yaml\n"), 0o600))
	t.Setenv("SIGHTINGDB_CLI_SERVER", "from-env:2")
	t.Setenv("SIGHTINGDB_CLI_API_KEY", "env-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env:2", cfg.Server)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "yaml", cfg.Output)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output: xml\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSet(t *testing.T) {
	tests := []struct {
		key, value string
		wantErr    bool
	}{
		{"server", "h:1", false},
		{"server", "", true},
		{"output", "json", false},
		{"output", "csv", true},
		{"timeout", "1m", false},
		{"timeout", "soon", true},
		{"timeout", "-1s", true},
		{"insecure", "maybe", true},
		{"color", "on", true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			err := Default().Set(tt.key, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "sdbk_0123456789"
	assert.Equal(t, "sdbk****", cfg.Redacted().APIKey)
	assert.Equal(t, "sdbk_0123456789", cfg.APIKey)

	cfg.APIKey = "short"
	assert.Equal(t, "****", cfg.Redacted().APIKey)
}

func TestReadFile_IgnoresEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: from-file:1\n"), 0o600))
	t.Setenv("SIGHTINGDB_CLI_SERVER", "from-env:2")

	cfg, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file:1", cfg.Server)
	assert.Equal(t, "table", cfg.Output)
}
