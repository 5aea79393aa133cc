package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"github.com/yndnr/sightingdb-go/pkg/crypto/adaptive"
)

// Encryption errors.
var (
	ErrKeyTooShort       = errors.New("storage: encryption key too short (minimum 16 bytes)")
	ErrPassphraseTooWeak = errors.New("storage: passphrase too weak (minimum 8 characters)")
)

const (
	// MinKeyLength is the minimum master key length.
	MinKeyLength = 16

	// MinPassphraseLength is the minimum passphrase length.
	MinPassphraseLength = 8

	// SaltLength is the length of the persisted passphrase salt.
	SaltLength = 16

	// SaltFileName is the salt file kept next to the data it protects.
	SaltFileName = "encryption.salt"

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	subkeyLength  = 32

	walKeyInfo      = "sightingdb wal v1"
	snapshotKeyInfo = "sightingdb snapshot v1"
)

// EncryptionConfig configures encryption at rest. Either Key or
// Passphrase enables it; Passphrase wins when both are set.
type EncryptionConfig struct {
	Key        []byte
	Passphrase []byte

	// SaltPath stores the Argon2id salt for Passphrase. The salt is
	// created on first use and must survive restarts.
	SaltPath string

	// Algorithm is "aes-gcm" (default) or "chacha20-poly1305".
	Algorithm adaptive.CipherType
}

// Enabled reports whether any key material is configured.
func (c EncryptionConfig) Enabled() bool {
	return len(c.Key) > 0 || len(c.Passphrase) > 0
}

// Validate checks key material and algorithm.
func (c EncryptionConfig) Validate() error {
	switch c.Algorithm {
	case "", adaptive.CipherAESGCM, adaptive.CipherChaCha20:
	default:
		return fmt.Errorf("storage: unsupported cipher %q", c.Algorithm)
	}
	if len(c.Passphrase) > 0 {
		if len(c.Passphrase) < MinPassphraseLength {
			return ErrPassphraseTooWeak
		}
		if c.SaltPath == "" {
			return fmt.Errorf("storage: passphrase encryption requires a salt path")
		}
		return nil
	}
	if len(c.Key) > 0 && len(c.Key) < MinKeyLength {
		return ErrKeyTooShort
	}
	return nil
}

// Ciphers holds the independent ciphers for the WAL and for snapshots.
// Both are nil when encryption is disabled.
type Ciphers struct {
	WAL      adaptive.Cipher
	Snapshot adaptive.Cipher
}

// NewCiphers derives a WAL cipher and a snapshot cipher from the
// configured master key via HKDF.
func NewCiphers(cfg EncryptionConfig) (Ciphers, error) {
	if err := cfg.Validate(); err != nil {
		return Ciphers{}, err
	}
	if !cfg.Enabled() {
		return Ciphers{}, nil
	}

	master := cfg.Key
	if len(cfg.Passphrase) > 0 {
		salt, err := loadOrCreateSalt(cfg.SaltPath)
		if err != nil {
			return Ciphers{}, err
		}
		master = deriveKeyFromPassphrase(cfg.Passphrase, salt)
		defer zeroKey(master)
	}

	algo := cfg.Algorithm
	if algo == "" {
		algo = adaptive.CipherAESGCM
	}

	walKey, err := DeriveSubkey(master, walKeyInfo, subkeyLength)
	if err != nil {
		return Ciphers{}, err
	}
	defer zeroKey(walKey)
	snapKey, err := DeriveSubkey(master, snapshotKeyInfo, subkeyLength)
	if err != nil {
		return Ciphers{}, err
	}
	defer zeroKey(snapKey)

	walCipher, err := adaptive.NewWithType(walKey, algo)
	if err != nil {
		return Ciphers{}, fmt.Errorf("storage: wal cipher: %w", err)
	}
	snapCipher, err := adaptive.NewWithType(snapKey, algo)
	if err != nil {
		return Ciphers{}, fmt.Errorf("storage: snapshot cipher: %w", err)
	}
	return Ciphers{WAL: walCipher, Snapshot: snapCipher}, nil
}

// DeriveSubkey derives a purpose-bound key from a master key using HKDF.
func DeriveSubkey(masterKey []byte, info string, length int) ([]byte, error) {
	if len(masterKey) < MinKeyLength {
		return nil, ErrKeyTooShort
	}

	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("storage: derive subkey: %w", err)
	}
	return key, nil
}

func deriveKeyFromPassphrase(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, subkeyLength)
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) != SaltLength {
			return nil, fmt.Errorf("storage: salt file %s has %d bytes, want %d", path, len(salt), SaltLength)
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("storage: read salt: %w", err)
	}

	salt = make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("storage: generate salt: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("storage: create salt dir: %w", err)
	}
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, fmt.Errorf("storage: write salt: %w", err)
	}
	return salt, nil
}

func zeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
