package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = ":9999"
	DefaultPostLimit       = 1 << 20
	DefaultRateBurst       = 100
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	DefaultDataDir           = "./data"
	DefaultWALSyncMode       = "batch"
	DefaultWALSyncInterval   = 100 * time.Millisecond
	DefaultWALMaxSegmentSize = 64 << 20
	DefaultWALMaxEntryCount  = 1000000
	DefaultSnapshotInterval  = 10 * time.Minute
	DefaultSnapshotRetention = 3
	DefaultMaxWALFailures    = 3

	DefaultLogLevel    = "info"
	DefaultLogFormat   = "json"
	DefaultMetricsPath = "/metrics"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Address:         DefaultHTTPAddr,
				PostLimit:       DefaultPostLimit,
				RateBurst:       DefaultRateBurst,
				ReadTimeout:     DefaultReadTimeout,
				WriteTimeout:    DefaultWriteTimeout,
				IdleTimeout:     DefaultIdleTimeout,
				ShutdownTimeout: DefaultShutdownTimeout,
				Audit:           true,
			},
		},
		Auth: AuthSection{
			Authenticate: true,
		},
		Storage: StorageSection{
			DataDir: DefaultDataDir,
			WAL: WALConfig{
				SyncMode:       DefaultWALSyncMode,
				SyncInterval:   DefaultWALSyncInterval,
				MaxSegmentSize: DefaultWALMaxSegmentSize,
				MaxEntryCount:  DefaultWALMaxEntryCount,
			},
			SnapshotInterval:  DefaultSnapshotInterval,
			SnapshotRetention: DefaultSnapshotRetention,
			MaxWALFailures:    DefaultMaxWALFailures,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Telemetry: TelemetrySection{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    DefaultMetricsPath,
			},
		},
	}
}
