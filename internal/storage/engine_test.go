package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/sightingdb-go/internal/core/domain"
	"github.com/yndnr/sightingdb-go/internal/storage/snapshot"
	"github.com/yndnr/sightingdb-go/internal/storage/wal"
	"github.com/yndnr/sightingdb-go/internal/telemetry/logger"
)

func newTestEngine(t *testing.T, dir string, mutate ...func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig(dir)
	cfg.SnapshotInterval = 0
	cfg.WAL.SyncMode = wal.SyncModeSync
	cfg.Logger = logger.NewNop()
	for _, fn := range mutate {
		fn(&cfg)
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := e.Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	return e
}

func mustWrite(t *testing.T, e *Engine, ns, value string, ts int64) {
	t.Helper()
	if err := e.Write(context.Background(), ns, []byte(value), ts); err != nil {
		t.Fatalf("Write(%s, %s) failed: %v", ns, value, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/tmp/test-data")

	if cfg.DataDir != "/tmp/test-data" {
		t.Errorf("DataDir = %s, want /tmp/test-data", cfg.DataDir)
	}
	if cfg.SnapshotInterval != DefaultSnapshotInterval {
		t.Errorf("SnapshotInterval = %v, want %v", cfg.SnapshotInterval, DefaultSnapshotInterval)
	}
	if cfg.WAL.Dir != filepath.Join("/tmp/test-data", WALDirName) {
		t.Errorf("WAL.Dir = %s", cfg.WAL.Dir)
	}
	if cfg.MaxWALFailures != DefaultMaxWALFailures {
		t.Errorf("MaxWALFailures = %d, want %d", cfg.MaxWALFailures, DefaultMaxWALFailures)
	}
}

func TestEngine_New(t *testing.T) {
	t.Run("missing data_dir", func(t *testing.T) {
		if _, err := New(Config{}); err == nil {
			t.Error("expected error for missing data_dir")
		}
	})

	t.Run("valid config", func(t *testing.T) {
		e := newTestEngine(t, t.TempDir())
		defer e.Close()

		if st := e.Stats(); st.Records != 0 || st.Namespaces != 0 {
			t.Errorf("fresh engine stats = %+v", st)
		}
	})
}

func TestEngine_WriteRead(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()
	ctx := context.Background()

	mustWrite(t, e, "/ip/", "10.0.0.1", 100)
	mustWrite(t, e, "ip", "10.0.0.1", 200)
	mustWrite(t, e, "ip", "10.0.0.2", 150)

	st, err := e.Read(ctx, "ip", []byte("10.0.0.1"), domain.ReadOptions{WithStats: true})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if st.Count != 2 {
		t.Errorf("Count = %d, want 2", st.Count)
	}
	if st.FirstSeen == nil || *st.FirstSeen != 100 {
		t.Errorf("FirstSeen = %v, want 100", st.FirstSeen)
	}
	if st.LastSeen == nil || *st.LastSeen != 200 {
		t.Errorf("LastSeen = %v, want 200", st.LastSeen)
	}

	_, err = e.Read(ctx, "ip", []byte("10.0.0.9"), domain.ReadOptions{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Read(missing) error = %v, want ErrNotFound", err)
	}

	all, err := e.ReadNamespace(ctx, "ip", domain.ReadOptions{})
	if err != nil {
		t.Fatalf("ReadNamespace failed: %v", err)
	}
	if len(all) != 2 || string(all[0].Value) != "10.0.0.1" || string(all[1].Value) != "10.0.0.2" {
		t.Errorf("ReadNamespace = %+v, want insertion order", all)
	}

	empty, err := e.ReadNamespace(ctx, "nothing", domain.ReadOptions{})
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("ReadNamespace(missing) = %v, %v; want empty", empty, err)
	}
}

func TestEngine_WriteDefaultsTimestamp(t *testing.T) {
	fixed := time.Unix(5000, 0)
	e := newTestEngine(t, t.TempDir(), func(c *Config) {
		c.Clock = func() time.Time { return fixed }
	})
	defer e.Close()

	mustWrite(t, e, "a", "v", 0)
	st, err := e.Read(context.Background(), "a", []byte("v"), domain.ReadOptions{WithStats: true})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if *st.FirstSeen != 5000 {
		t.Errorf("FirstSeen = %d, want 5000", *st.FirstSeen)
	}
}

func TestEngine_InvalidNamespace(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()

	err := e.Write(context.Background(), "", []byte("v"), 1)
	if !errors.Is(err, domain.ErrInvalidNamespace) {
		t.Errorf("Write(empty ns) error = %v, want ErrInvalidNamespace", err)
	}
	_, err = e.DeletePrefix(context.Background(), "/")
	if !errors.Is(err, domain.ErrInvalidNamespace) {
		t.Errorf("DeletePrefix(root) error = %v, want ErrInvalidNamespace", err)
	}
}

func TestEngine_Decay(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), func(c *Config) {
		c.DecayPeriod = 100 * time.Second
	})
	defer e.Close()
	ctx := context.Background()
	opts := domain.ReadOptions{WithShadow: true}

	mustWrite(t, e, "d", "v", 1000)
	mustWrite(t, e, "d", "v", 1050)
	mustWrite(t, e, "d", "v", 1100)

	st, _ := e.Read(ctx, "d", []byte("v"), opts)
	if st.Count != 1 || st.ShadowCount == nil || *st.ShadowCount != 2 {
		t.Fatalf("after first boundary count=%d shadow=%v, want 1/2", st.Count, st.ShadowCount)
	}

	// Only one rotation per boundary.
	mustWrite(t, e, "d", "v", 1150)
	st, _ = e.Read(ctx, "d", []byte("v"), opts)
	if st.Count != 2 || *st.ShadowCount != 2 {
		t.Errorf("within period count=%d shadow=%d, want 2/2", st.Count, *st.ShadowCount)
	}

	// Admin writes neither count nor rotate.
	if err := e.WriteAdmin(ctx, "d", []byte("v"), 5000); err != nil {
		t.Fatalf("WriteAdmin failed: %v", err)
	}
	st, _ = e.Read(ctx, "d", []byte("v"), opts)
	if st.Count != 2 || *st.ShadowCount != 2 {
		t.Errorf("after admin write count=%d shadow=%d, want 2/2", st.Count, *st.ShadowCount)
	}
}

func TestEngine_Sweep(t *testing.T) {
	now := time.Unix(1000, 0)
	dir := t.TempDir()
	e := newTestEngine(t, dir, func(c *Config) {
		c.DecayPeriod = 100 * time.Second
		c.SnapshotOnClose = false
		c.Clock = func() time.Time { return now }
	})
	ctx := context.Background()

	mustWrite(t, e, "s", "v", 1000)
	mustWrite(t, e, "s", "v", 1010)

	if n, err := e.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("Sweep before boundary = %d, %v; want 0", n, err)
	}

	now = time.Unix(1200, 0)
	n, err := e.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v; want 1", n, err)
	}
	st, _ := e.Read(ctx, "s", []byte("v"), domain.ReadOptions{WithShadow: true})
	if st.Count != 0 || *st.ShadowCount != 2 {
		t.Errorf("after sweep count=%d shadow=%d, want 0/2", st.Count, *st.ShadowCount)
	}
	e.Close()

	// The sweep is replayed from the WAL.
	e2 := newTestEngine(t, dir)
	defer e2.Close()
	st, err = e2.Read(ctx, "s", []byte("v"), domain.ReadOptions{WithShadow: true})
	if err != nil {
		t.Fatalf("Read after recovery failed: %v", err)
	}
	if st.Count != 0 || *st.ShadowCount != 2 {
		t.Errorf("recovered count=%d shadow=%d, want 0/2", st.Count, *st.ShadowCount)
	}
}

func TestEngine_Delete(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	defer e.Close()
	ctx := context.Background()

	mustWrite(t, e, "a/b", "1", 1)
	mustWrite(t, e, "a/b/c", "2", 1)
	mustWrite(t, e, "a/bc", "3", 1)
	mustWrite(t, e, "x", "4", 1)

	ok, err := e.Delete(ctx, "x")
	if err != nil || !ok {
		t.Fatalf("Delete(x) = %v, %v; want true", ok, err)
	}
	ok, err = e.Delete(ctx, "x")
	if err != nil || ok {
		t.Errorf("Delete(absent) = %v, %v; want false", ok, err)
	}

	n, err := e.DeletePrefix(ctx, "a/b")
	if err != nil || n != 2 {
		t.Fatalf("DeletePrefix = %d, %v; want 2", n, err)
	}
	names, _ := e.ListNamespaces(ctx, "")
	if len(names) != 1 || names[0] != "a/bc" {
		t.Errorf("remaining namespaces = %v, want [a/bc]", names)
	}

	n, err = e.DeletePrefix(ctx, "nope")
	if err != nil || n != 0 {
		t.Errorf("DeletePrefix(absent) = %d, %v; want 0", n, err)
	}
}

func TestEngine_RecoveryFromWAL(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e := newTestEngine(t, dir, func(c *Config) { c.SnapshotOnClose = false })
	mustWrite(t, e, "ns", "a", 10)
	mustWrite(t, e, "ns", "a", 20)
	mustWrite(t, e, "ns", "b", 30)
	mustWrite(t, e, "gone", "z", 40)
	if _, err := e.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	e2 := newTestEngine(t, dir)
	defer e2.Close()

	st, err := e2.Read(ctx, "ns", []byte("a"), domain.ReadOptions{WithStats: true})
	if err != nil {
		t.Fatalf("Read after recovery failed: %v", err)
	}
	if st.Count != 2 || *st.FirstSeen != 10 || *st.LastSeen != 20 {
		t.Errorf("recovered a = %d [%d,%d], want 2 [10,20]", st.Count, *st.FirstSeen, *st.LastSeen)
	}
	if _, err := e2.Read(ctx, "gone", []byte("z"), domain.ReadOptions{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("deleted namespace came back: %v", err)
	}
	if st := e2.Stats(); st.Records != 2 {
		t.Errorf("Records = %d, want 2", st.Records)
	}
}

func TestEngine_RecoveryFromSnapshotAndWAL(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e := newTestEngine(t, dir, func(c *Config) { c.SnapshotOnClose = false })
	mustWrite(t, e, "ns", "a", 1)
	mustWrite(t, e, "ns", "b", 2)

	info, err := e.TriggerSnapshot(ctx)
	if err != nil {
		t.Fatalf("TriggerSnapshot failed: %v", err)
	}
	if info.RecordCount != 2 {
		t.Errorf("snapshot RecordCount = %d, want 2", info.RecordCount)
	}

	mustWrite(t, e, "ns", "a", 3)
	mustWrite(t, e, "other", "c", 4)
	e.Close()

	e2 := newTestEngine(t, dir)
	defer e2.Close()

	st, err := e2.Read(ctx, "ns", []byte("a"), domain.ReadOptions{})
	if err != nil || st.Count != 2 {
		t.Errorf("Read(a) = %+v, %v; want count 2", st, err)
	}
	names, _ := e2.ListNamespaces(ctx, "")
	if len(names) != 2 || names[0] != "ns" || names[1] != "other" {
		t.Errorf("namespaces = %v, want [ns other]", names)
	}
	if e2.Stats().LastSnapshot == 0 {
		t.Error("LastSnapshot not restored")
	}
}

func TestEngine_RecoveryTornTail(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e := newTestEngine(t, dir, func(c *Config) { c.SnapshotOnClose = false })
	mustWrite(t, e, "ns", "a", 1)
	mustWrite(t, e, "ns", "b", 2)

	// Simulate a crash mid-append: leave the segment open and add garbage.
	e.closeOnce.Do(func() {
		close(e.stopCh)
		<-e.doneCh
	})
	segs, err := filepath.Glob(filepath.Join(dir, WALDirName, wal.FilePrefix+"*"+wal.FileExtension))
	if err != nil || len(segs) == 0 {
		t.Fatalf("no wal segments: %v", err)
	}
	f, err := os.OpenFile(segs[len(segs)-1], os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	f.Write([]byte{0x00, 0x00, 0x01, 0x00, 0xde, 0xad})
	f.Close()

	e2 := newTestEngine(t, dir)
	defer e2.Close()

	all, err := e2.ReadNamespace(ctx, "ns", domain.ReadOptions{})
	if err != nil || len(all) != 2 {
		t.Errorf("ReadNamespace after torn tail = %v, %v; want 2 values", all, err)
	}
	mustWrite(t, e2, "ns", "c", 3)
}

func TestEngine_ReadOnlyAfterWALFailures(t *testing.T) {
	var failures int
	e := newTestEngine(t, t.TempDir(), func(c *Config) {
		c.MaxWALFailures = 2
		c.OnWALFailure = func(error) { failures++ }
	})
	defer e.Close()
	ctx := context.Background()

	mustWrite(t, e, "ns", "a", 1)
	e.wal.Close()

	for i := 0; i < 2; i++ {
		err := e.Write(ctx, "ns", []byte("b"), 2)
		if !errors.Is(err, domain.ErrDurability) {
			t.Fatalf("Write %d error = %v, want ErrDurability", i, err)
		}
	}
	if _, err := e.Read(ctx, "ns", []byte("b"), domain.ReadOptions{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("failed write reached the index: %v", err)
	}

	err := e.Write(ctx, "ns", []byte("c"), 3)
	if !errors.Is(err, domain.ErrReadOnly) {
		t.Errorf("Write in read-only mode error = %v, want ErrReadOnly", err)
	}
	if _, err := e.Delete(ctx, "ns"); !errors.Is(err, domain.ErrReadOnly) {
		t.Errorf("Delete in read-only mode error = %v, want ErrReadOnly", err)
	}

	st, err := e.Read(ctx, "ns", []byte("a"), domain.ReadOptions{})
	if err != nil || st.Count != 1 {
		t.Errorf("reads must keep working: %+v, %v", st, err)
	}

	stats := e.Stats()
	if !stats.ReadOnly || stats.WALFailures != 2 || failures != 2 {
		t.Errorf("stats = %+v, hook failures = %d", stats, failures)
	}
}

func TestEngine_Encrypted(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	enc := func(pass string) func(*Config) {
		return func(c *Config) {
			c.Encryption.Passphrase = []byte(pass)
		}
	}

	e := newTestEngine(t, dir, enc("correct horse battery staple"))
	mustWrite(t, e, "secret", "v", 1)
	if _, err := e.TriggerSnapshot(ctx); err != nil {
		t.Fatalf("TriggerSnapshot failed: %v", err)
	}
	mustWrite(t, e, "secret", "w", 2)
	e.Close()

	e2 := newTestEngine(t, dir, enc("correct horse battery staple"))
	all, err := e2.ReadNamespace(ctx, "secret", domain.ReadOptions{})
	if err != nil || len(all) != 2 {
		t.Errorf("encrypted recovery = %v, %v; want 2 values", all, err)
	}
	e2.Close()

	cfg := DefaultConfig(dir)
	cfg.SnapshotInterval = 0
	cfg.Logger = logger.NewNop()
	e3, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer e3.Close()
	if err := e3.Recover(ctx); !errors.Is(err, snapshot.ErrCipherRequired) {
		t.Errorf("Recover without key error = %v, want ErrCipherRequired", err)
	}
}

func TestEngine_FailedRecoverKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e := newTestEngine(t, dir)
	mustWrite(t, e, "ns", "v1", 1)
	mustWrite(t, e, "ns", "v2", 2)
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A start with a key the data was not written with fails to recover.
	cfg := DefaultConfig(dir)
	cfg.SnapshotInterval = 0
	cfg.Logger = logger.NewNop()
	cfg.Encryption.Key = make([]byte, 32)
	bad, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := bad.Recover(ctx); !errors.Is(err, snapshot.ErrUnexpectedPlain) {
		t.Fatalf("Recover with key error = %v, want ErrUnexpectedPlain", err)
	}
	if err := bad.Write(ctx, "ns", []byte("v3"), 3); !errors.Is(err, ErrNotRecovered) {
		t.Errorf("Write before recovery error = %v, want ErrNotRecovered", err)
	}
	if _, err := bad.TriggerSnapshot(ctx); !errors.Is(err, ErrNotRecovered) {
		t.Errorf("TriggerSnapshot before recovery error = %v, want ErrNotRecovered", err)
	}
	if err := bad.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	e2 := newTestEngine(t, dir)
	defer e2.Close()
	all, err := e2.ReadNamespace(ctx, "ns", domain.ReadOptions{})
	if err != nil || len(all) != 2 {
		t.Fatalf("records after failed start = %v, %v; want 2", all, err)
	}
}

func TestEngine_WALSyncFailure(t *testing.T) {
	var hooked []error
	e := newTestEngine(t, t.TempDir(), func(c *Config) {
		c.OnWALFailure = func(err error) { hooked = append(hooked, err) }
	})
	defer e.Close()

	e.walSyncFailed(errors.New("wal: sync: input/output error"))
	if len(hooked) != 1 {
		t.Fatalf("OnWALFailure calls = %d, want 1", len(hooked))
	}
	if st := e.Stats(); st.WALFailures != 1 {
		t.Errorf("WALFailures = %d, want 1", st.WALFailures)
	}
}

func TestEngine_ClosedOperations(t *testing.T) {
	e := newTestEngine(t, t.TempDir())
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close error = %v", err)
	}

	if err := e.Write(context.Background(), "ns", []byte("v"), 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close error = %v, want ErrClosed", err)
	}
	if _, err := e.TriggerSnapshot(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("TriggerSnapshot after Close error = %v, want ErrClosed", err)
	}
}
