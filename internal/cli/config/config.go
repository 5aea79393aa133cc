package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yndnr/sightingdb-go/internal/cli/output"
	"github.com/yndnr/sightingdb-go/internal/infra/confloader"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "SIGHTINGDB_CLI_"

// CLIConfig is the configuration for sightingdb-cli.
type CLIConfig struct {
	Server   string `koanf:"server" yaml:"server" json:"server"`
	APIKey   string `koanf:"api_key" yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Output   string `koanf:"output" yaml:"output" json:"output"`
	Timeout  string `koanf:"timeout" yaml:"timeout" json:"timeout"`
	Insecure bool   `koanf:"insecure" yaml:"insecure,omitempty" json:"insecure"`
	// CACert is a PEM file or directory trusted in addition to the system
	// roots.
	CACert string `koanf:"ca_cert" yaml:"ca_cert,omitempty" json:"ca_cert,omitempty"`
}

// Default returns the built-in settings.
func Default() *CLIConfig {
	return &CLIConfig{
		Server:  "localhost:9999",
		Output:  string(output.FormatTable),
		Timeout: "30s",
	}
}

// DefaultPath returns ~/.sightingdb/cli.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".sightingdb", "cli.yaml")
	}
	return filepath.Join(home, ".sightingdb", "cli.yaml")
}

// Load reads path over the defaults, then the environment. A missing file
// is not an error.
func Load(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultPath()
	}

	opts := []confloader.Option{confloader.WithEnvPrefix(EnvPrefix)}
	if _, err := os.Stat(path); err == nil {
		opts = append(opts, confloader.WithConfigFile(path))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	cfg := Default()
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ReadFile reads path over the defaults without consulting the
// environment. Editing commands use it so env overrides are not persisted.
func ReadFile(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	l := confloader.NewLoader()
	if err := l.LoadFile(path); err != nil {
		return nil, err
	}
	if err := l.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks field values.
func (c *CLIConfig) Validate() error {
	if c.Server == "" {
		return errors.New("server must not be empty")
	}
	if _, err := output.ParseFormat(c.Output); err != nil {
		return err
	}
	if _, err := c.RequestTimeout(); err != nil {
		return err
	}
	return nil
}

// RequestTimeout parses Timeout. Empty means zero, the client default.
func (c *CLIConfig) RequestTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid timeout %q", c.Timeout)
	}
	return d, nil
}

// Set assigns one field by its file key.
func (c *CLIConfig) Set(key, value string) error {
	switch key {
	case "server":
		c.Server = value
	case "api_key":
		c.APIKey = value
	case "output":
		c.Output = value
	case "timeout":
		c.Timeout = value
	case "ca_cert":
		c.CACert = value
	case "insecure":
		switch value {
		case "true", "1", "yes":
			c.Insecure = true
		case "false", "0", "no", "":
			c.Insecure = false
		default:
			return fmt.Errorf("insecure: want true or false, got %q", value)
		}
	default:
		return fmt.Errorf("unknown key %q (want server, api_key, output, timeout, ca_cert or insecure)", key)
	}
	return c.Validate()
}

// Redacted returns a copy safe to print.
func (c *CLIConfig) Redacted() CLIConfig {
	out := *c
	if len(out.APIKey) > 8 {
		out.APIKey = out.APIKey[:4] + "****"
	} else if out.APIKey != "" {
		out.APIKey = "****"
	}
	return out
}
