package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Server struct {
		HTTP struct {
			Address string `koanf:"address"`
			Enabled bool   `koanf:"enabled"`
		} `koanf:"http"`
		AllowList []string `koanf:"allow_list"`
	} `koanf:"server"`
	Storage struct {
		DataDir          string        `koanf:"data_dir"`
		SnapshotInterval time.Duration `koanf:"snapshot_interval"`
	} `koanf:"storage"`
	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
	Labels map[string]string `koanf:"labels"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  http:
    address: "0.0.0.0:9999"
    enabled: true
storage:
  data_dir: /var/lib/sightingdb
  snapshot_interval: 90s
`)

	var cfg testConfig
	require.NoError(t, NewLoader(WithConfigFile(path), WithEnvPrefix("SDBYAMLTEST_")).Load(&cfg))

	assert.Equal(t, "0.0.0.0:9999", cfg.Server.HTTP.Address)
	assert.True(t, cfg.Server.HTTP.Enabled)
	assert.Equal(t, "/var/lib/sightingdb", cfg.Storage.DataDir)
	assert.Equal(t, 90*time.Second, cfg.Storage.SnapshotInterval)
}

func TestLoader_TOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
[server.http]
address = "127.0.0.1:9999"
enabled = true

[storage]
data_dir = "/data"
snapshot_interval = "5m"
`)

	var cfg testConfig
	require.NoError(t, NewLoader(WithConfigFile(path), WithEnvPrefix("SDBTOMLTEST_")).Load(&cfg))

	assert.Equal(t, "127.0.0.1:9999", cfg.Server.HTTP.Address)
	assert.Equal(t, "/data", cfg.Storage.DataDir)
	assert.Equal(t, 5*time.Minute, cfg.Storage.SnapshotInterval)
}

func TestLoader_FileErrors(t *testing.T) {
	l := NewLoader()
	assert.NoError(t, l.LoadFile(""))
	assert.ErrorContains(t, l.LoadFile("/nonexistent/config.yaml"), "/nonexistent/config.yaml")
	assert.ErrorContains(t, l.LoadFile(writeFile(t, "config.ini", "a=b")), "unsupported format")
	assert.Error(t, l.LoadFile(writeFile(t, "broken.yaml", "log: [unclosed")))
}

func TestLoader_Env(t *testing.T) {
	t.Setenv("SIGHTINGDB_STORAGE__DATA_DIR", "/env/data")
	t.Setenv("SIGHTINGDB_LOG__LEVEL", "debug")

	l := NewLoader()
	require.NoError(t, l.LoadEnv())
	assert.Equal(t, "/env/data", l.Get("storage.data_dir"))
	assert.Equal(t, "debug", l.Get("log.level"))
	assert.Nil(t, l.Get("server.http.address"))
}

func TestLoader_Priority(t *testing.T) {
	path := writeFile(t, "config.yaml", `
log:
  level: info
storage:
  data_dir: /file/data
`)
	t.Setenv("SDBPRIO_LOG__LEVEL", "error")

	var cfg testConfig
	cfg.Server.HTTP.Address = ":9999"

	l := NewLoader(WithConfigFile(path), WithEnvPrefix("SDBPRIO_"))
	require.NoError(t, l.Load(&cfg))
	assert.Equal(t, "error", cfg.Log.Level, "env overrides file")
	assert.Equal(t, "/file/data", cfg.Storage.DataDir)
	assert.Equal(t, ":9999", cfg.Server.HTTP.Address, "defaults survive")

	require.NoError(t, l.LoadMap(map[string]any{"log.level": "debug"}))
	require.NoError(t, l.Unmarshal(&cfg))
	assert.Equal(t, "debug", cfg.Log.Level, "overrides win over env")
}

func TestLoader_Unknown(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  http:
    adress: ":1"
  allow_list: [10.0.0.0/8]
storage:
  data_dir: /data
  snapshot_interval: 1m
labels:
  team: intel
  site: eu
logging:
  level: debug
`)

	var cfg testConfig
	l := NewLoader(WithConfigFile(path), WithEnvPrefix("SDBUNKNOWNTEST_"))
	require.NoError(t, l.Load(&cfg))

	assert.Equal(t, []string{"logging.level", "server.http.adress"}, l.Unknown(&cfg))
	assert.Equal(t, "intel", cfg.Labels["team"])
}

func TestTOMLParser_RoundTrip(t *testing.T) {
	p := TOMLParser()
	m, err := p.Unmarshal([]byte("[log]\nlevel = \"info\"\n"))
	require.NoError(t, err)

	out, err := p.Marshal(m)
	require.NoError(t, err)

	again, err := p.Unmarshal(out)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"log": map[string]any{"level": "info"}}, again)
}

func TestMapProvider(t *testing.T) {
	_, err := mapProvider{"a": 1}.ReadBytes()
	assert.ErrorIs(t, err, ErrReadBytesNotSupported)

	m, err := mapProvider{"a.b": 1, "c": 2}.Read()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1}, "c": 2}, m)
}
