package confloader

import (
	"fmt"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "SIGHTINGDB_"

// EnvLevelSeparator separates nesting levels in environment variable names:
// SIGHTINGDB_STORAGE__DATA_DIR maps to storage.data_dir.
const EnvLevelSeparator = "__"

// Loader merges configuration sources into one koanf tree. Later loads
// override earlier ones key by key.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile sets the file Load reads.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// NewLoader creates an empty loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{k: koanf.New("."), envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the configured file and the environment, then unmarshals into
// target. Fields no source mentions keep their current values, so target
// should already hold the defaults.
func (l *Loader) Load(target any) error {
	if err := l.LoadFile(l.filePath); err != nil {
		return err
	}
	if err := l.LoadEnv(); err != nil {
		return err
	}
	return l.Unmarshal(target)
}

// LoadFile merges a YAML, JSON or TOML file, chosen by extension. An empty
// path is a no-op.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json", "":
		parser = yaml.Parser()
	case ".toml":
		parser = TOMLParser()
	default:
		return fmt.Errorf("config file %s: unsupported format %q", path, ext)
	}
	if err := l.k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv merges the environment variables carrying the prefix.
func (l *Loader) LoadEnv() error {
	sep := strings.ToLower(EnvLevelSeparator)
	keyOf := func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
		return strings.ReplaceAll(s, sep, ".")
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", keyOf), nil); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	return nil
}

// LoadMap merges flat dotted keys, typically from command-line flags.
func (l *Loader) LoadMap(data map[string]any) error {
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return fmt.Errorf("config overrides: %w", err)
	}
	return nil
}

// Unmarshal decodes the merged tree into target using koanf tags.
func (l *Loader) Unmarshal(target any) error {
	if err := l.k.Unmarshal("", target); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Get returns the merged value at a dotted key, or nil.
func (l *Loader) Get(key string) any {
	return l.k.Get(key)
}

// Unknown returns the loaded keys that no koanf tag of target's struct
// type accounts for, sorted. They usually are typos that would otherwise
// be ignored silently.
func (l *Loader) Unknown(target any) []string {
	known := make(map[string]bool)
	leaves := make(map[string]bool)
	collectKeys(reflect.TypeOf(target), "", known, leaves)

	var out []string
	for _, key := range l.k.Keys() {
		if known[key] || underLeaf(key, leaves) {
			continue
		}
		out = append(out, key)
	}
	slices.Sort(out)
	return out
}

// collectKeys records every tagged path of t. Paths of non-struct fields
// are also leaves: maps and slices may carry arbitrary sub keys.
func collectKeys(t reflect.Type, prefix string, known, leaves map[string]bool) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if tag == "-" || !f.IsExported() {
			continue
		}
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}
		known[path] = true

		ft := f.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft.PkgPath() != "time" {
			collectKeys(ft, path, known, leaves)
		} else {
			leaves[path] = true
		}
	}
}

func underLeaf(key string, leaves map[string]bool) bool {
	for i := strings.LastIndexByte(key, '.'); i > 0; i = strings.LastIndexByte(key[:i], '.') {
		if leaves[key[:i]] {
			return true
		}
	}
	return false
}
