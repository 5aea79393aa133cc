package config

import "time"

// ServerConfig is the root configuration for sightingdb-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server"`
	Auth      AuthSection      `koanf:"auth"`
	Storage   StorageSection   `koanf:"storage"`
	Decay     DecaySection     `koanf:"decay"`
	Security  SecuritySection  `koanf:"security"`
	Log       LogSection       `koanf:"log"`
	Telemetry TelemetrySection `koanf:"telemetry"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Address string    `koanf:"address"`
	TLS     TLSConfig `koanf:"tls"`

	// PostLimit caps request bodies of bulk endpoints, in bytes.
	PostLimit int64 `koanf:"post_limit"`

	// RateLimit is the per-client request rate in requests per second.
	// Zero disables rate limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	// AdminAllowList restricts /c and the metrics endpoint to these IPs
	// or CIDRs. Empty means no restriction.
	AdminAllowList []string `koanf:"admin_allow_list"`

	// CORSAllowedOrigins enables CORS for the listed origins.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// Audit logs one line per completed request.
	Audit bool `koanf:"audit"`

	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// TLSConfig configures HTTPS.
type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

// AuthSection configures API key checks.
type AuthSection struct {
	// Authenticate enables ACL checks. Disabling it allows every request.
	Authenticate bool `koanf:"authenticate"`

	// BootstrapKey is installed at startup with full access, replacing
	// the placeholder key.
	BootstrapKey string `koanf:"bootstrap_key"`
}

// StorageSection configures the storage engine.
type StorageSection struct {
	DataDir           string        `koanf:"data_dir"`
	WAL               WALConfig     `koanf:"wal"`
	SnapshotInterval  time.Duration `koanf:"snapshot_interval"`
	SnapshotRetention int           `koanf:"snapshot_retention"`
	MaxWALFailures    int           `koanf:"max_wal_failures"`
}

// WALConfig configures the write-ahead log.
type WALConfig struct {
	// SyncMode is "sync" (fsync per append) or "batch".
	SyncMode         string        `koanf:"sync_mode"`
	SyncInterval     time.Duration `koanf:"sync_interval"`
	MaxSegmentSize   int64         `koanf:"max_segment_size"`
	MaxEntryCount    int           `koanf:"max_entry_count"`
	CompactThreshold int64         `koanf:"compact_threshold"`
}

// DecaySection configures shadow rotation.
type DecaySection struct {
	// Period is the counting period. Zero disables rotation.
	Period time.Duration `koanf:"period"`

	// SweepInterval runs a time-driven rotation pass. Zero leaves
	// rotation to writes.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// SecuritySection configures encryption at rest.
type SecuritySection struct {
	// EncryptionKey is a hex encoded 16, 24 or 32 byte key.
	EncryptionKey string `koanf:"encryption_key"`

	// Passphrase derives the key with Argon2id instead.
	Passphrase string `koanf:"passphrase"`

	// Algorithm is "aes-gcm" or "chacha20-poly1305".
	Algorithm string `koanf:"algorithm"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetrySection configures metrics exposure.
type TelemetrySection struct {
	Metrics MetricsConfig `koanf:"metrics"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}
