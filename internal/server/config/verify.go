package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/sightingdb-go/internal/telemetry/logger"
	"github.com/yndnr/sightingdb-go/pkg/crypto/adaptive"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyDecay(&cfg.Decay); err != nil {
		return err
	}
	if err := verifySecurity(&cfg.Security); err != nil {
		return err
	}
	if err := verifyLog(&cfg.Log); err != nil {
		return err
	}
	if cfg.Telemetry.Metrics.Enabled && !strings.HasPrefix(cfg.Telemetry.Metrics.Path, "/") {
		return errors.New("telemetry.metrics.path must start with '/'")
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	h := &cfg.HTTP
	if h.Address == "" {
		return errors.New("server.http.address is required")
	}
	if h.TLS.Enabled {
		if h.TLS.CertFile == "" || h.TLS.KeyFile == "" {
			return errors.New("server.http.tls requires cert_file and key_file")
		}
		for _, f := range []string{h.TLS.CertFile, h.TLS.KeyFile} {
			if _, err := os.Stat(f); err != nil {
				return fmt.Errorf("server.http.tls: %w", err)
			}
		}
	}
	if h.PostLimit <= 0 {
		return errors.New("server.http.post_limit must be positive")
	}
	if h.RateLimit < 0 {
		return errors.New("server.http.rate_limit must not be negative")
	}
	if h.RateLimit > 0 && h.RateBurst < 1 {
		return errors.New("server.http.rate_burst must be at least 1 when rate limiting")
	}
	for _, entry := range h.AdminAllowList {
		if net.ParseIP(entry) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(entry); err != nil {
			return fmt.Errorf("server.http.admin_allow_list: invalid entry %q", entry)
		}
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}

	switch cfg.WAL.SyncMode {
	case "sync", "batch":
	default:
		return fmt.Errorf("storage.wal.sync_mode must be sync or batch, got %q", cfg.WAL.SyncMode)
	}
	if cfg.WAL.SyncMode == "batch" && cfg.WAL.SyncInterval <= 0 {
		return errors.New("storage.wal.sync_interval must be positive in batch mode")
	}
	if cfg.WAL.MaxSegmentSize < 0 || cfg.WAL.MaxEntryCount < 0 || cfg.WAL.CompactThreshold < 0 {
		return errors.New("storage.wal limits must not be negative")
	}
	if cfg.SnapshotInterval < 0 {
		return errors.New("storage.snapshot_interval must not be negative")
	}
	if cfg.SnapshotRetention < 1 {
		return errors.New("storage.snapshot_retention must be at least 1")
	}
	if cfg.MaxWALFailures < 0 {
		return errors.New("storage.max_wal_failures must not be negative")
	}
	return nil
}

func verifyDecay(cfg *DecaySection) error {
	if cfg.Period < 0 || cfg.SweepInterval < 0 {
		return errors.New("decay durations must not be negative")
	}
	if cfg.Period > 0 && cfg.Period.Seconds() < 1 {
		return errors.New("decay.period must be at least 1s")
	}
	if cfg.SweepInterval > 0 && cfg.Period == 0 {
		return errors.New("decay.sweep_interval requires decay.period")
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	if cfg.EncryptionKey != "" && cfg.Passphrase != "" {
		return errors.New("security.encryption_key and security.passphrase are mutually exclusive")
	}
	if cfg.EncryptionKey != "" {
		key, err := hex.DecodeString(cfg.EncryptionKey)
		if err != nil {
			return errors.New("security.encryption_key must be hex encoded")
		}
		switch len(key) {
		case 16, 24, 32:
		default:
			return fmt.Errorf("security.encryption_key must be 16, 24 or 32 bytes, got %d", len(key))
		}
	}
	if _, err := adaptive.ParseCipherType(cfg.Algorithm); err != nil {
		return fmt.Errorf("security.algorithm %q is not supported", cfg.Algorithm)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Format)
	}
	return nil
}
