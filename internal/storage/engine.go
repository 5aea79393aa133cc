package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/sightingdb-go/internal/core/decay"
	"github.com/yndnr/sightingdb-go/internal/core/domain"
	"github.com/yndnr/sightingdb-go/internal/storage/memory"
	"github.com/yndnr/sightingdb-go/internal/storage/snapshot"
	"github.com/yndnr/sightingdb-go/internal/storage/wal"
	"github.com/yndnr/sightingdb-go/internal/telemetry/logger"
)

// Default configuration values.
const (
	DefaultSnapshotInterval = 10 * time.Minute
	DefaultMaxWALFailures   = 3
	WALDirName              = "wal"
	SnapshotDirName         = "snapshots"

	compactCheckInterval = time.Minute
)

var (
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("storage: engine is closed")
	// ErrNotRecovered is returned by mutations and snapshots until Recover
	// has succeeded. Until then the index may hold only part of the stored
	// data, and a snapshot of it would make the rest unreachable.
	ErrNotRecovered = errors.New("storage: engine is not recovered")
)

// Config configures the storage engine.
type Config struct {
	// DataDir is the base directory for all storage files.
	DataDir string

	// WAL configuration. Dir defaults to DataDir/wal.
	WAL wal.Config

	// Snapshot configuration. Dir defaults to DataDir/snapshots.
	Snapshot snapshot.Config

	// SnapshotInterval is the interval between automatic snapshots.
	// Zero disables them.
	SnapshotInterval time.Duration

	// SnapshotOnClose takes a final snapshot in Close.
	SnapshotOnClose bool

	// WALCompactThreshold triggers an early snapshot once the WAL grows
	// past this many bytes. Zero disables the check.
	WALCompactThreshold int64

	// MaxWALFailures is the number of consecutive failed appends after
	// which the engine refuses writes. Zero never switches.
	MaxWALFailures int

	// DecayPeriod is the shadow rotation period. Zero disables decay.
	DecayPeriod time.Duration

	// SweepInterval runs a time-driven decay sweep. Zero leaves rotation
	// purely write-driven.
	SweepInterval time.Duration

	// Encryption configures encryption at rest.
	Encryption EncryptionConfig

	// OnWALFailure is called for every failed append and every failed
	// batch fsync.
	OnWALFailure func(err error)

	// OnSnapshot is called after every snapshot attempt.
	OnSnapshot func(info *snapshot.Info, err error)

	Logger logger.Logger

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:          dataDir,
		WAL:              wal.DefaultConfig(filepath.Join(dataDir, WALDirName)),
		Snapshot:         snapshot.DefaultConfig(filepath.Join(dataDir, SnapshotDirName)),
		SnapshotInterval: DefaultSnapshotInterval,
		SnapshotOnClose:  true,
		MaxWALFailures:   DefaultMaxWALFailures,
	}
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Namespaces          int   `json:"namespaces"`
	Records             int   `json:"records"`
	ReadOnly            bool  `json:"read_only"`
	WALFailures         int64 `json:"wal_failures"`
	ConsecutiveFailures int   `json:"consecutive_wal_failures"`
	LastSnapshot        int64 `json:"last_snapshot"`
	DecayPeriodSeconds  int64 `json:"decay_period_seconds"`
}

// Engine is the storage engine that combines the index, WAL and snapshots.
type Engine struct {
	cfg    Config
	logger logger.Logger
	now    func() time.Time
	policy decay.Policy

	// mu guards every field below and is held for the whole of each
	// operation.
	mu          sync.Mutex
	index       *memory.Index
	wal         *wal.Writer
	walFailures int
	readOnly    bool
	recovered   bool
	closed      bool

	snapshot  *snapshot.Manager
	compactor *wal.Compactor

	// snapMu serializes snapshots without blocking writers during I/O.
	snapMu sync.Mutex

	totalWALFailures atomic.Int64
	lastSnapshot     atomic.Int64

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// New creates a storage engine and starts its background loop.
//
// New does not load existing data; call Recover before serving traffic.
func New(cfg Config) (*Engine, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("storage: data_dir is required")
	}
	if cfg.WAL.Dir == "" {
		cfg.WAL.Dir = filepath.Join(cfg.DataDir, WALDirName)
	}
	if cfg.Snapshot.Dir == "" {
		cfg.Snapshot.Dir = filepath.Join(cfg.DataDir, SnapshotDirName)
	}
	if cfg.Encryption.SaltPath == "" {
		cfg.Encryption.SaltPath = filepath.Join(cfg.DataDir, SaltFileName)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	ciphers, err := NewCiphers(cfg.Encryption)
	if err != nil {
		return nil, err
	}
	cfg.WAL.Cipher = ciphers.WAL
	cfg.Snapshot.Cipher = ciphers.Snapshot

	e := &Engine{
		logger:    cfg.Logger.With("component", "storage"),
		now:       cfg.Clock,
		policy:    decay.New(cfg.DecayPeriod),
		index:     memory.NewIndex(),
		compactor: wal.NewCompactor(cfg.WAL.Dir),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	cfg.WAL.OnSyncError = e.walSyncFailed
	e.cfg = cfg

	walWriter, err := wal.NewWriter(cfg.WAL)
	if err != nil {
		return nil, fmt.Errorf("storage: create wal writer: %w", err)
	}
	e.wal = walWriter

	e.snapshot, err = snapshot.NewManager(cfg.Snapshot)
	if err != nil {
		walWriter.Close()
		return nil, fmt.Errorf("storage: create snapshot manager: %w", err)
	}

	if n := walWriter.TruncatedBytes(); n > 0 {
		e.logger.Warn("discarded torn wal tail", "bytes", n)
	}
	if ciphers.WAL != nil {
		e.logger.Info("encryption at rest enabled", "cipher", string(ciphers.WAL.Type()))
	}

	go e.backgroundLoop()

	return e, nil
}

// Recover rebuilds the index from the latest snapshot and the WAL
// entries written after it.
func (e *Engine) Recover(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	startTime := time.Now()
	e.logger.Info("storage recovery started")
	e.recovered = false
	e.index.Reset()

	namespaces, snapInfo, err := e.snapshot.Load()
	if err != nil && !errors.Is(err, snapshot.ErrNoSnapshots) {
		return fmt.Errorf("load snapshot: %w", err)
	}

	var walOffset uint64
	if snapInfo != nil {
		for _, ns := range namespaces {
			for _, rec := range ns.Records {
				e.index.Put(ns.Name, rec.Value, rec.Sighting)
			}
		}
		walOffset = snapInfo.WALLastOffset
		e.lastSnapshot.Store(snapInfo.CreatedAt / 1000)
		e.logger.Info("snapshot loaded",
			"id", snapInfo.ID,
			"namespaces", snapInfo.NamespaceCount,
			"records", snapInfo.RecordCount,
			"wal_last_offset", walOffset)
	} else {
		e.logger.Info("no snapshot found, starting with empty index")
	}

	applied, torn, err := e.replayLocked(ctx, walOffset)
	if err != nil {
		return fmt.Errorf("replay wal: %w", err)
	}
	if torn > 0 {
		e.logger.Warn("wal replay skipped unreadable segment tails", "segments", torn)
	}

	e.recovered = true
	e.logger.Info("recovery completed",
		"entries_applied", applied,
		"namespaces", e.index.NamespaceCount(),
		"records", e.index.Len(),
		"elapsed", time.Since(startTime))
	return nil
}

func (e *Engine) replayLocked(ctx context.Context, fromOffset uint64) (applied, torn int, err error) {
	reader, err := wal.NewReader(e.cfg.WAL.Dir, e.cfg.WAL.Cipher)
	if err != nil {
		return 0, 0, err
	}

	for entry, err := range reader.Entries(fromOffset) {
		if err != nil {
			return applied, reader.TornSegments(), err
		}
		if err := ctx.Err(); err != nil {
			return applied, reader.TornSegments(), err
		}
		e.applyLocked(entry)
		applied++
	}
	return applied, reader.TornSegments(), nil
}

// applyLocked applies a logged entry to the index. Write entries carry the
// resulting record, so replay does not re-run the decay policy.
func (e *Engine) applyLocked(entry *wal.Entry) {
	switch entry.OpType {
	case wal.OpTypeWrite:
		e.index.Put(entry.Namespace, entry.Value, *entry.Record)
	case wal.OpTypeDelete:
		e.index.Delete(entry.Namespace)
	case wal.OpTypeDeletePrefix:
		e.index.DeletePrefix(entry.Namespace)
	case wal.OpTypeSweep:
		e.index.Update(func(rec domain.Sighting) (domain.Sighting, bool) {
			return decay.SweepWithPeriod(rec, entry.Timestamp, entry.Period)
		})
	}
}

// appendLocked writes entry to the WAL and tracks consecutive failures.
func (e *Engine) appendLocked(entry *wal.Entry) error {
	err := e.wal.Append(entry)
	if err == nil {
		e.walFailures = 0
		return nil
	}

	e.walFailures++
	e.totalWALFailures.Add(1)
	if e.cfg.OnWALFailure != nil {
		e.cfg.OnWALFailure(err)
	}
	e.logger.Error("wal append failed",
		"op", entry.OpType.String(),
		"namespace", entry.Namespace,
		"consecutive_failures", e.walFailures,
		"error", err)

	if e.cfg.MaxWALFailures > 0 && e.walFailures >= e.cfg.MaxWALFailures && !e.readOnly {
		e.readOnly = true
		e.logger.Error("storage switched to read-only after repeated wal failures",
			"failures", e.walFailures)
	}
	return domain.ErrDurability.WithCause(err)
}

// walSyncFailed runs on the WAL sync goroutine. It must not take e.mu:
// Close holds it while waiting for that goroutine. The writer refuses
// appends from here on, so the following writes fail and count toward
// MaxWALFailures.
func (e *Engine) walSyncFailed(err error) {
	e.totalWALFailures.Add(1)
	if e.cfg.OnWALFailure != nil {
		e.cfg.OnWALFailure(err)
	}
	e.logger.Error("wal fsync failed, writes are no longer durable", "error", err)
}

func (e *Engine) writableLocked() error {
	if e.closed {
		return ErrClosed
	}
	if !e.recovered {
		return ErrNotRecovered
	}
	if e.readOnly {
		return domain.ErrReadOnly
	}
	return nil
}

// Write records one sighting of value in ns. A zero ts means now.
func (e *Engine) Write(ctx context.Context, ns string, value []byte, ts int64) error {
	return e.write(ns, value, ts, 1, false)
}

// WriteAdmin records value in ns without counting it and without
// rotating its decay period. The ACL uses it for bindings and grants.
func (e *Engine) WriteAdmin(ctx context.Context, ns string, value []byte, ts int64) error {
	return e.write(ns, value, ts, 0, true)
}

func (e *Engine) write(ns string, value []byte, ts int64, incr uint64, suppress bool) error {
	ns = domain.NormalizeNamespace(ns)
	if err := domain.ValidateNamespace(ns); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.writableLocked(); err != nil {
		return err
	}
	if ts == 0 {
		ts = e.now().Unix()
	}

	var prev *domain.Sighting
	if rec, ok := e.index.Get(ns, value); ok {
		prev = &rec
	}
	next := e.policy.Apply(prev, ts, incr, suppress)

	if err := e.appendLocked(wal.NewWriteEntry(ts, ns, value, incr, suppress, next)); err != nil {
		return err
	}
	e.index.Put(ns, value, next)
	return nil
}

// Read returns the statistics of value in ns, or domain.ErrNotFound.
func (e *Engine) Read(ctx context.Context, ns string, value []byte, opts domain.ReadOptions) (*domain.Stats, error) {
	ns = domain.NormalizeNamespace(ns)
	if err := domain.ValidateNamespace(ns); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	rec, ok := e.index.Get(ns, value)
	if !ok {
		return nil, domain.ErrNotFound
	}
	st := rec.Stats(nil, opts)
	return &st, nil
}

// ReadNamespace lists every value of ns in insertion order. The result is
// empty when ns does not exist.
func (e *Engine) ReadNamespace(ctx context.Context, ns string, opts domain.ReadOptions) ([]domain.Stats, error) {
	ns = domain.NormalizeNamespace(ns)
	if err := domain.ValidateNamespace(ns); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	entries := e.index.Namespace(ns)
	out := make([]domain.Stats, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Sighting.Stats(entry.Value, opts))
	}
	return out, nil
}

// ListNamespaces returns the namespaces at or below prefix in creation
// order. An empty prefix lists everything.
func (e *Engine) ListNamespaces(ctx context.Context, prefix string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	var out []string
	for _, ns := range e.index.Namespaces() {
		if domain.HasPathPrefix(ns, prefix) {
			out = append(out, ns)
		}
	}
	return out, nil
}

// Delete removes the namespace ns and every value in it. It reports false,
// without logging anything, when ns does not exist.
func (e *Engine) Delete(ctx context.Context, ns string) (bool, error) {
	ns = domain.NormalizeNamespace(ns)
	if err := domain.ValidateNamespace(ns); err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.writableLocked(); err != nil {
		return false, err
	}
	if !e.index.Has(ns) {
		return false, nil
	}
	if err := e.appendLocked(wal.NewDeleteEntry(e.now().Unix(), ns)); err != nil {
		return false, err
	}
	return e.index.Delete(ns), nil
}

// DeletePrefix removes every namespace at or below prefix and returns how
// many were removed. The empty prefix is rejected.
func (e *Engine) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	prefix = domain.NormalizeNamespace(prefix)
	if err := domain.ValidateNamespace(prefix); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.writableLocked(); err != nil {
		return 0, err
	}
	if !e.index.HasPrefix(prefix) {
		return 0, nil
	}
	if err := e.appendLocked(wal.NewDeletePrefixEntry(e.now().Unix(), prefix)); err != nil {
		return 0, err
	}
	return e.index.DeletePrefix(prefix), nil
}

// Sweep rotates every record whose decay period has ended, leaving its
// current count at zero. It returns the number of rotated records.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	if !e.policy.Enabled() {
		return 0, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.writableLocked(); err != nil {
		return 0, err
	}

	ts := e.now().Unix()
	due := 0
	e.index.Each(func(_ string, _ []byte, rec domain.Sighting) bool {
		if e.policy.Due(rec, ts) {
			due++
		}
		return true
	})
	if due == 0 {
		return 0, nil
	}

	if err := e.appendLocked(wal.NewSweepEntry(ts, e.policy.Seconds())); err != nil {
		return 0, err
	}
	rotated := e.index.Update(func(rec domain.Sighting) (domain.Sighting, bool) {
		return e.policy.Sweep(rec, ts)
	})
	e.logger.Info("decay sweep rotated records", "records", rotated)
	return rotated, nil
}

// TriggerSnapshot writes a snapshot, prunes old ones and compacts the WAL.
//
// The WAL is rotated and the index exported under the lock; file I/O
// happens after the lock is released.
func (e *Engine) TriggerSnapshot(ctx context.Context) (*snapshot.Info, error) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()

	info, err := e.snapshotLocked()
	if e.cfg.OnSnapshot != nil {
		e.cfg.OnSnapshot(info, err)
	}
	return info, err
}

func (e *Engine) snapshotLocked() (*snapshot.Info, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	if !e.recovered {
		e.mu.Unlock()
		return nil, ErrNotRecovered
	}
	offset, err := e.wal.Rotate()
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("rotate wal: %w", err)
	}
	namespaces := e.exportLocked()
	e.mu.Unlock()

	info, err := e.snapshot.Create(namespaces, offset)
	if err != nil {
		e.logger.Error("snapshot failed", "error", err)
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	e.lastSnapshot.Store(info.CreatedAt / 1000)

	e.logger.Info("snapshot created",
		"id", info.ID,
		"namespaces", info.NamespaceCount,
		"records", info.RecordCount,
		"wal_last_offset", info.WALLastOffset,
		"size_bytes", info.Size)

	if _, err := e.snapshot.Prune(); err != nil {
		e.logger.Warn("snapshot cleanup failed", "error", err)
	}
	if removed, err := e.compactor.Compact(info.WALLastOffset); err != nil {
		e.logger.Warn("wal compaction failed", "error", err)
	} else if removed > 0 {
		e.logger.Debug("wal compacted", "segments_removed", removed)
	}
	return info, nil
}

func (e *Engine) exportLocked() []snapshot.Namespace {
	names := e.index.Namespaces()
	out := make([]snapshot.Namespace, 0, len(names))
	for _, name := range names {
		entries := e.index.Namespace(name)
		records := make([]snapshot.Record, 0, len(entries))
		for _, entry := range entries {
			records = append(records, snapshot.Record{Value: entry.Value, Sighting: entry.Sighting})
		}
		out = append(out, snapshot.Namespace{Name: name, Records: records})
	}
	return out
}

// Stats returns engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Namespaces:          e.index.NamespaceCount(),
		Records:             e.index.Len(),
		ReadOnly:            e.readOnly,
		WALFailures:         e.totalWALFailures.Load(),
		ConsecutiveFailures: e.walFailures,
		LastSnapshot:        e.lastSnapshot.Load(),
		DecayPeriodSeconds:  e.policy.Seconds(),
	}
}

// WALUsage returns the on-disk size and segment count of the WAL.
func (e *Engine) WALUsage() (int64, int) {
	u, _ := e.compactor.Usage()
	return u.Bytes, u.Segments
}

// backgroundLoop runs periodic snapshots, decay sweeps and WAL size checks.
func (e *Engine) backgroundLoop() {
	defer close(e.doneCh)

	var snapC, sweepC, compactC <-chan time.Time
	if e.cfg.SnapshotInterval > 0 {
		t := time.NewTicker(e.cfg.SnapshotInterval)
		defer t.Stop()
		snapC = t.C
	}
	if e.cfg.SweepInterval > 0 && e.policy.Enabled() {
		t := time.NewTicker(e.cfg.SweepInterval)
		defer t.Stop()
		sweepC = t.C
	}
	if e.cfg.WALCompactThreshold > 0 {
		t := time.NewTicker(compactCheckInterval)
		defer t.Stop()
		compactC = t.C
	}

	for {
		select {
		case <-snapC:
			e.autoSnapshot("interval")
		case <-compactC:
			if e.compactor.Exceeds(e.cfg.WALCompactThreshold) {
				e.autoSnapshot("wal_size")
			}
		case <-sweepC:
			if !e.ready() {
				continue
			}
			if _, err := e.Sweep(context.Background()); err != nil {
				e.logger.Error("decay sweep failed", "error", err)
			}
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) autoSnapshot(reason string) {
	if !e.ready() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := e.TriggerSnapshot(ctx); err != nil {
		e.logger.Error("auto snapshot failed", "reason", reason, "error", err)
	}
}

// ready reports whether background snapshots and sweeps may run: the
// index is fully recovered and writes are still accepted.
func (e *Engine) ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recovered && !e.readOnly
}

// Close stops the background loop, takes a final snapshot if configured
// and closes the WAL. It is safe to call more than once.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.logger.Info("shutting down storage engine")

		close(e.stopCh)
		<-e.doneCh

		switch {
		case !e.cfg.SnapshotOnClose:
		case !e.ready():
			e.logger.Warn("skipping final snapshot of an unrecovered or read-only engine")
		default:
			if _, serr := e.TriggerSnapshot(context.Background()); serr != nil {
				e.logger.Error("final snapshot failed", "error", serr)
			}
		}

		e.mu.Lock()
		e.closed = true
		err = e.wal.Close()
		e.mu.Unlock()

		if err != nil {
			e.logger.Error("close wal failed", "error", err)
			return
		}
		e.logger.Info("storage engine shutdown complete")
	})
	return err
}
