package config

import (
	"encoding/hex"
	"fmt"

	"github.com/yndnr/sightingdb-go/internal/storage"
	"github.com/yndnr/sightingdb-go/internal/storage/wal"
	"github.com/yndnr/sightingdb-go/pkg/crypto/adaptive"
)

// EngineConfig translates the storage, decay and security sections into
// a storage engine configuration. Logger and hooks are left to the caller.
func (c *ServerConfig) EngineConfig() (storage.Config, error) {
	s := c.Storage
	cfg := storage.DefaultConfig(s.DataDir)

	cfg.WAL.SyncMode = wal.SyncMode(s.WAL.SyncMode)
	cfg.WAL.SyncInterval = s.WAL.SyncInterval
	cfg.WAL.MaxFileSize = s.WAL.MaxSegmentSize
	cfg.WAL.MaxEntryCount = s.WAL.MaxEntryCount
	cfg.WALCompactThreshold = s.WAL.CompactThreshold
	cfg.Snapshot.RetentionCount = s.SnapshotRetention
	cfg.SnapshotInterval = s.SnapshotInterval
	cfg.MaxWALFailures = s.MaxWALFailures

	cfg.DecayPeriod = c.Decay.Period
	cfg.SweepInterval = c.Decay.SweepInterval

	sec := c.Security
	if sec.Algorithm != "" {
		algo, err := adaptive.ParseCipherType(sec.Algorithm)
		if err != nil {
			return storage.Config{}, fmt.Errorf("security.algorithm: %w", err)
		}
		cfg.Encryption.Algorithm = algo
	}
	if sec.EncryptionKey != "" {
		key, err := hex.DecodeString(sec.EncryptionKey)
		if err != nil {
			return storage.Config{}, fmt.Errorf("decode security.encryption_key: %w", err)
		}
		cfg.Encryption.Key = key
	}
	if sec.Passphrase != "" {
		cfg.Encryption.Passphrase = []byte(sec.Passphrase)
	}
	return cfg, nil
}
