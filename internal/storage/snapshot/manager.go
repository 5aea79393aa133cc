package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/sightingdb-go/internal/core/domain"
	"github.com/yndnr/sightingdb-go/pkg/crypto/adaptive"
)

const (
	filePrefix    = "snapshot-"
	fileExtension = ".snap"

	DefaultRetentionCount = 3
)

var (
	ErrNoSnapshots     = errors.New("snapshot: no snapshots available")
	ErrCipherRequired  = errors.New("snapshot: encrypted snapshot requires a cipher")
	ErrUnexpectedPlain = errors.New("snapshot: expected encrypted snapshot")
)

// Record is one value of a namespace together with its counters.
type Record struct {
	Value    []byte          `json:"val"`
	Sighting domain.Sighting `json:"rec"`
}

// Namespace is the exported content of one namespace, in insertion order.
type Namespace struct {
	Name    string   `json:"ns"`
	Records []Record `json:"records"`
}

// Config configures a Manager.
type Config struct {
	Dir string

	// RetentionCount is how many snapshots Prune keeps.
	RetentionCount int

	// Cipher seals the body. The header stays readable.
	Cipher adaptive.Cipher
}

// DefaultConfig returns the default snapshot configuration.
func DefaultConfig(dir string) Config {
	return Config{Dir: dir, RetentionCount: DefaultRetentionCount}
}

// Manager creates, loads and prunes the snapshots of one directory.
type Manager struct {
	cfg Config
	now func() time.Time
}

// NewManager creates the directory when it is missing.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, errors.New("snapshot: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	if cfg.RetentionCount <= 0 {
		cfg.RetentionCount = DefaultRetentionCount
	}
	return &Manager{cfg: cfg, now: time.Now}, nil
}

// Info describes a snapshot file. List fills only ID, Path and Size.
type Info struct {
	ID         string `json:"id"`
	SnapshotID string `json:"snapshot_id,omitempty"`

	// WALLastOffset is the WAL offset the snapshot covers, in the
	// segmentID<<32 | byte offset form the WAL writer hands out.
	WALLastOffset uint64 `json:"wal_last_offset"`

	NamespaceCount int64  `json:"namespace_count"`
	RecordCount    int64  `json:"record_count"`
	CreatedAt      int64  `json:"created_at"`
	Size           int64  `json:"size"`
	Path           string `json:"path"`
	Checksum       string `json:"checksum,omitempty"`
}

// Create writes a snapshot of namespaces that covers the WAL up to
// walLastOffset.
func (m *Manager) Create(namespaces []Namespace, walLastOffset uint64) (*Info, error) {
	now := m.now()
	hdr := &header{
		Version:        formatVersion,
		SnapshotID:     ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		CreatedAt:      now.UnixMilli(),
		NamespaceCount: uint64(len(namespaces)),
		WALLastOffset:  walLastOffset,
		Encrypted:      m.cfg.Cipher != nil,
	}
	for _, ns := range namespaces {
		hdr.RecordCount += uint64(len(ns.Records))
	}

	if namespaces == nil {
		namespaces = []Namespace{}
	}
	body, err := json.Marshal(namespaces)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal namespaces: %w", err)
	}
	if hdr.Encrypted {
		if body, err = m.cfg.Cipher.Encrypt(body, []byte(hdr.SnapshotID)); err != nil {
			return nil, fmt.Errorf("snapshot: encrypt: %w", err)
		}
	}
	raw, err := encode(hdr, body)
	if err != nil {
		return nil, err
	}

	id := m.nextID(now)
	path := filepath.Join(m.cfg.Dir, id+fileExtension)
	if err := writeFileAtomic(path, raw); err != nil {
		return nil, err
	}
	return hdr.info(id, path, int64(len(raw)), raw[len(raw)-checksumSize:]), nil
}

// writeFileAtomic writes data under a temporary name, syncs it and renames
// it to path.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}

// Load returns the newest snapshot that verifies. Damaged files are
// skipped for older ones; a cipher mismatch is an error, since falling
// back would silently lose the newer data.
func (m *Manager) Load() ([]Namespace, *Info, error) {
	infos, err := m.List()
	if err != nil {
		return nil, nil, err
	}
	for i := len(infos) - 1; i >= 0; i-- {
		namespaces, info, err := m.load(infos[i])
		switch {
		case err == nil:
			return namespaces, info, nil
		case errors.Is(err, ErrChecksumMismatch), errors.Is(err, ErrInvalidMagic):
			continue
		default:
			return nil, nil, err
		}
	}
	return nil, nil, ErrNoSnapshots
}

func (m *Manager) load(file *Info) ([]Namespace, *Info, error) {
	raw, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, nil, err
	}
	hdr, body, sum, err := decode(raw)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case hdr.Encrypted && m.cfg.Cipher == nil:
		return nil, nil, ErrCipherRequired
	case hdr.Encrypted:
		if body, err = m.cfg.Cipher.Decrypt(body, []byte(hdr.SnapshotID)); err != nil {
			return nil, nil, fmt.Errorf("snapshot: decrypt: %w", err)
		}
	case m.cfg.Cipher != nil:
		return nil, nil, ErrUnexpectedPlain
	}

	var namespaces []Namespace
	if err := json.Unmarshal(body, &namespaces); err != nil {
		return nil, nil, fmt.Errorf("snapshot: unmarshal namespaces: %w", err)
	}
	return namespaces, hdr.info(file.ID, file.Path, int64(len(raw)), sum), nil
}

// List returns the snapshot files oldest first. Only ID, Path and Size are
// set; the contents are not read.
func (m *Manager) List() ([]*Info, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// ReadDir sorts by name and names sort by creation time.
	var infos []*Info
	for _, e := range entries {
		id, ok := snapshotID(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, &Info{ID: id, Path: filepath.Join(m.cfg.Dir, e.Name()), Size: fi.Size()})
	}
	return infos, nil
}

func snapshotID(name string) (string, bool) {
	if !strings.HasPrefix(name, filePrefix) {
		return "", false
	}
	return strings.CutSuffix(name, fileExtension)
}

// Prune removes all but the newest RetentionCount snapshots and returns
// how many it removed.
func (m *Manager) Prune() (int, error) {
	infos, err := m.List()
	if err != nil {
		return 0, err
	}
	excess := len(infos) - m.cfg.RetentionCount
	if excess <= 0 {
		return 0, nil
	}

	var errs []error
	removed := 0
	for _, info := range infos[:excess] {
		if err := os.Remove(info.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// nextID returns snapshot-<UTC seconds>-<seq>. seq orders snapshots taken
// within the same second.
func (m *Manager) nextID(t time.Time) string {
	stamp := filePrefix + t.UTC().Format("20060102150405") + "-"
	seq := 0
	infos, _ := m.List()
	for _, info := range infos {
		s, ok := strings.CutPrefix(info.ID, stamp)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(s); err == nil {
			seq = max(seq, n)
		}
	}
	return fmt.Sprintf("%s%04d", stamp, seq+1)
}
