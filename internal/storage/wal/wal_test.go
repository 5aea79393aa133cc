package wal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/sightingdb-go/internal/core/domain"
	"github.com/yndnr/sightingdb-go/pkg/crypto/adaptive"
)

func syncConfig(dir string) Config {
	cfg := DefaultConfig(dir)
	cfg.SyncMode = SyncModeSync
	return cfg
}

func writeEntry(ts int64, ns, value string) *Entry {
	rec := domain.Sighting{Count: 1, FirstSeen: ts, LastSeen: ts}
	return NewWriteEntry(ts, ns, []byte(value), 1, false, rec)
}

func mustWriter(t *testing.T, cfg Config) *Writer {
	t.Helper()
	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	return w
}

func mustAppend(t *testing.T, w *Writer, entries ...*Entry) {
	t.Helper()
	for i, e := range entries {
		if err := w.Append(e); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
}

func readAll(t *testing.T, dir string, cipher adaptive.Cipher) ([]*Entry, *Reader) {
	t.Helper()
	r, err := NewReader(dir, cipher)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return got, r
}

func collect(t *testing.T, r *Reader, offset uint64) []*Entry {
	t.Helper()
	var out []*Entry
	for e, err := range r.Entries(offset) {
		if err != nil {
			t.Fatalf("Entries: %v", err)
		}
		out = append(out, e)
	}
	return out
}

// crashSegment strips the checksum trailer of a finalized segment so it
// looks like the process died while it was open.
func crashSegment(t *testing.T, path string) {
	t.Helper()
	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if err := os.Truncate(path, stat.Size()-ChecksumSize); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
}

func appendBytes(t *testing.T, path string, p []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()
	if _, err := f.Write(p); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("x")
	if cfg.Dir != "x" {
		t.Fatalf("Dir = %q, want %q", cfg.Dir, "x")
	}
	if cfg.SyncMode != SyncModeBatch {
		t.Fatalf("SyncMode = %q, want %q", cfg.SyncMode, SyncModeBatch)
	}
	if cfg.SyncInterval != DefaultSyncInterval {
		t.Fatalf("SyncInterval = %v, want %v", cfg.SyncInterval, DefaultSyncInterval)
	}
	if cfg.MaxFileSize != DefaultMaxFileSize {
		t.Fatalf("MaxFileSize = %d, want %d", cfg.MaxFileSize, DefaultMaxFileSize)
	}
	if cfg.MaxEntryCount != DefaultMaxEntryCount {
		t.Fatalf("MaxEntryCount = %d, want %d", cfg.MaxEntryCount, DefaultMaxEntryCount)
	}
}

func TestOpType_String(t *testing.T) {
	tests := map[OpType]string{
		OpTypeUnspecified:  "unspecified",
		OpTypeWrite:        "write",
		OpTypeDelete:       "delete",
		OpTypeDeletePrefix: "delete_prefix",
		OpTypeSweep:        "sweep",
	}
	for op, want := range tests {
		if got := op.String(); got != want {
			t.Errorf("OpType(%d).String() = %q, want %q", op, got, want)
		}
	}
}

func TestWriterReader_RoundTripAllOps(t *testing.T) {
	dir := t.TempDir()
	w := mustWriter(t, syncConfig(dir))

	mustAppend(t, w,
		writeEntry(100, "a/b", "v1"),
		NewWriteEntry(101, "_config/acl/apikeys/k", nil, 0, true, domain.Sighting{FirstSeen: 101, LastSeen: 101}),
		NewDeleteEntry(102, "a/b"),
		NewDeletePrefixEntry(103, "_config/acl/apikeys/changeme"),
		NewSweepEntry(104, 3600),
	)
	offsetAtEnd := w.CurrentOffset()

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := VerifyTrailerChecksum(filepath.Join(dir, "wal-00000001.log")); err != nil {
		t.Fatalf("VerifyTrailerChecksum: %v", err)
	}

	got, r := readAll(t, dir, nil)
	if len(got) != 5 {
		t.Fatalf("read %d entries, want 5", len(got))
	}
	if r.TornSegments() != 0 {
		t.Fatalf("TornSegments = %d, want 0", r.TornSegments())
	}

	if got[0].OpType != OpTypeWrite || got[0].Namespace != "a/b" || string(got[0].Value) != "v1" {
		t.Fatalf("entry 0 = %+v", got[0])
	}
	if got[0].Record == nil || got[0].Record.Count != 1 || got[0].Increment != 1 {
		t.Fatalf("entry 0 record = %+v", got[0].Record)
	}
	if !got[1].Suppress || got[1].Increment != 0 || len(got[1].Value) != 0 {
		t.Fatalf("entry 1 = %+v", got[1])
	}
	if got[2].OpType != OpTypeDelete || got[2].Namespace != "a/b" {
		t.Fatalf("entry 2 = %+v", got[2])
	}
	if got[3].OpType != OpTypeDeletePrefix || got[3].Namespace != "_config/acl/apikeys/changeme" {
		t.Fatalf("entry 3 = %+v", got[3])
	}
	if got[4].OpType != OpTypeSweep || got[4].Period != 3600 || got[4].Timestamp != 104 {
		t.Fatalf("entry 4 = %+v", got[4])
	}

	// Nothing follows the end offset.
	for e, err := range r.Entries(offsetAtEnd) {
		t.Fatalf("entry after end offset: %+v, %v", e, err)
	}
}

func TestWriterReader_RoundTripEncrypted(t *testing.T) {
	dir := t.TempDir()
	cipher, err := adaptive.New(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("adaptive.New: %v", err)
	}

	cfg := syncConfig(dir)
	cfg.Cipher = cipher
	w := mustWriter(t, cfg)
	mustAppend(t, w, writeEntry(1, "secret/ns", "needle"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "wal-00000001.log"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if bytes.Contains(raw, []byte("secret/ns")) {
		t.Fatal("namespace stored in plaintext")
	}

	got, _ := readAll(t, dir, cipher)
	if len(got) != 1 || got[0].Namespace != "secret/ns" || string(got[0].Value) != "needle" {
		t.Fatalf("decrypted entries = %+v", got)
	}

	r, err := NewReader(dir, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := r.ReadAll(); err == nil {
		t.Fatal("ReadAll without cipher succeeded, want decode error")
	}
}

func TestWriter_RejectsInvalidEntries(t *testing.T) {
	w := mustWriter(t, syncConfig(t.TempDir()))
	defer w.Close()

	tests := []struct {
		name  string
		entry *Entry
	}{
		{"nil", nil},
		{"unspecified", &Entry{}},
		{"write without record", &Entry{OpType: OpTypeWrite, Namespace: "a"}},
		{"write without namespace", NewWriteEntry(1, "", []byte("v"), 1, false, domain.Sighting{})},
		{"delete without namespace", NewDeleteEntry(1, "")},
		{"sweep without period", NewSweepEntry(1, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := w.Append(tt.entry); err == nil {
				t.Fatal("Append succeeded, want error")
			}
		})
	}
	if w.CurrentOffset() != 1<<32|MagicBytesSize {
		t.Fatalf("rejected entries reached the segment: offset %x", w.CurrentOffset())
	}
}

func TestWriter_AppendAfterClose(t *testing.T) {
	w := mustWriter(t, syncConfig(t.TempDir()))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := w.Append(writeEntry(1, "a", "v")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Append after Close = %v, want ErrClosed", err)
	}
	if _, err := w.Rotate(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Rotate after Close = %v, want ErrClosed", err)
	}
}

func TestWriter_RotationByEntryCount(t *testing.T) {
	dir := t.TempDir()
	cfg := syncConfig(dir)
	cfg.MaxEntryCount = 2
	w := mustWriter(t, cfg)

	for i := 0; i < 5; i++ {
		mustAppend(t, w, writeEntry(int64(i), "ns", string(rune('a'+i))))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, name := range []string{"wal-00000001.log", "wal-00000002.log", "wal-00000003.log"} {
		if err := VerifyTrailerChecksum(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}

	got, _ := readAll(t, dir, nil)
	if len(got) != 5 {
		t.Fatalf("read %d entries, want 5", len(got))
	}
	for i, e := range got {
		if e.Timestamp != int64(i) {
			t.Fatalf("entry %d has ts %d, order lost", i, e.Timestamp)
		}
	}
}

func TestWriter_RotateAndResume(t *testing.T) {
	dir := t.TempDir()
	w := mustWriter(t, syncConfig(dir))

	empty, err := w.Rotate()
	if err != nil {
		t.Fatalf("Rotate on empty segment: %v", err)
	}
	if empty>>32 != 1 {
		t.Fatalf("empty segment was rotated: offset %x", empty)
	}

	mustAppend(t, w, writeEntry(1, "ns", "before"))
	offset, err := w.Rotate()
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if offset != 2<<32|MagicBytesSize {
		t.Fatalf("Rotate offset = %x, want %x", offset, uint64(2<<32|MagicBytesSize))
	}
	mustAppend(t, w, writeEntry(2, "ns", "after"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewReader(dir, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got := collect(t, r, offset)
	if len(got) != 1 || string(got[0].Value) != "after" {
		t.Fatalf("entries after offset = %+v", got)
	}
}

func TestReader_OffsetInCompactedSegment(t *testing.T) {
	dir := t.TempDir()
	cfg := syncConfig(dir)
	cfg.MaxEntryCount = 1
	w := mustWriter(t, cfg)
	mustAppend(t, w, writeEntry(1, "ns", "a"), writeEntry(2, "ns", "b"), writeEntry(3, "ns", "c"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "wal-00000002.log")); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	r, err := NewReader(dir, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	// The offset points into a segment that no longer exists; reading
	// resumes from the start of the next one.
	got := collect(t, r, 2<<32|200)
	if len(got) != 1 || string(got[0].Value) != "c" {
		t.Fatalf("entries = %+v", got)
	}
}

func TestReader_TornTail(t *testing.T) {
	dir := t.TempDir()
	w := mustWriter(t, syncConfig(dir))
	mustAppend(t, w, writeEntry(1, "ns", "a"), writeEntry(2, "ns", "b"), writeEntry(3, "ns", "c"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "wal-00000001.log")
	crashSegment(t, path)

	// Half of a frame: a length prefix promising more than is there.
	var torn [4]byte
	binary.BigEndian.PutUint32(torn[:], 120)
	appendBytes(t, path, append(torn[:], []byte("{\"ts\":4,")...))

	got, r := readAll(t, dir, nil)
	if len(got) != 3 {
		t.Fatalf("read %d entries, want 3", len(got))
	}
	if r.TornSegments() != 1 {
		t.Fatalf("TornSegments = %d, want 1", r.TornSegments())
	}

	// Reopening the writer cuts the torn bytes and continues the segment.
	w2 := mustWriter(t, syncConfig(dir))
	if w2.TruncatedBytes() != 12 {
		t.Fatalf("TruncatedBytes = %d, want 12", w2.TruncatedBytes())
	}
	mustAppend(t, w2, writeEntry(4, "ns", "d"))
	if err := w2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, r = readAll(t, dir, nil)
	if len(got) != 4 || string(got[3].Value) != "d" {
		t.Fatalf("entries after resume = %d", len(got))
	}
	if r.TornSegments() != 0 {
		t.Fatalf("TornSegments after resume = %d, want 0", r.TornSegments())
	}
	if _, err := os.Stat(filepath.Join(dir, "wal-00000002.log")); !os.IsNotExist(err) {
		t.Fatal("resume opened a new segment instead of continuing the open one")
	}
}

func TestReader_CorruptFrameEndsSegment(t *testing.T) {
	dir := t.TempDir()
	cfg := syncConfig(dir)
	cfg.MaxEntryCount = 3
	w := mustWriter(t, cfg)
	mustAppend(t, w,
		writeEntry(1, "ns", "a"), writeEntry(2, "ns", "b"), writeEntry(3, "ns", "c"),
		writeEntry(4, "ns", "d"),
	)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "wal-00000001.log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	first := binary.BigEndian.Uint32(data[MagicBytesSize : MagicBytesSize+4])
	second := MagicBytesSize + 4 + int(first)
	data[second+12] ^= 0xff
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, r := readAll(t, dir, nil)
	var values []string
	for _, e := range got {
		values = append(values, string(e.Value))
	}
	if len(values) != 2 || values[0] != "a" || values[1] != "d" {
		t.Fatalf("values = %v, want [a d]", values)
	}
	if r.TornSegments() != 1 {
		t.Fatalf("TornSegments = %d, want 1", r.TornSegments())
	}
}

func TestNewWriter_ShortHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, segmentName(1))
	if err := os.WriteFile(path, []byte("SDB"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w := mustWriter(t, syncConfig(dir))
	mustAppend(t, w, writeEntry(1, "ns", "a"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, _ := readAll(t, dir, nil)
	if len(got) != 1 {
		t.Fatalf("read %d entries, want 1", len(got))
	}
}

func TestWriter_BatchModeSyncLoop(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.SyncInterval = 5 * time.Millisecond
	w := mustWriter(t, cfg)
	mustAppend(t, w, writeEntry(1, "ns", "a"))

	time.Sleep(30 * time.Millisecond)
	w.mu.Lock()
	dirty := w.tail.dirty
	w.mu.Unlock()
	if dirty {
		t.Fatal("sync loop did not flush the appended entry")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, _ := readAll(t, dir, nil)
	if len(got) != 1 {
		t.Fatalf("read %d entries, want 1", len(got))
	}
}

func TestWriter_BatchSyncFailureBreaksWriter(t *testing.T) {
	dir := t.TempDir()
	syncErrs := make(chan error, 1)
	cfg := DefaultConfig(dir)
	cfg.SyncInterval = 5 * time.Millisecond
	cfg.OnSyncError = func(err error) { syncErrs <- err }
	w := mustWriter(t, cfg)
	defer w.Close()

	mustAppend(t, w, writeEntry(1, "ns", "a"))
	// Pull the file out from under the writer so the next fsync fails.
	w.mu.Lock()
	w.tail.f.Close()
	w.tail.dirty = true
	w.mu.Unlock()

	var syncErr error
	select {
	case syncErr = <-syncErrs:
	case <-time.After(2 * time.Second):
		t.Fatal("sync failure was not reported")
	}
	if !strings.Contains(syncErr.Error(), "wal: sync") {
		t.Fatalf("reported error = %v", syncErr)
	}

	err := w.Append(writeEntry(2, "ns", "b"))
	if err == nil || !strings.Contains(err.Error(), "wal: sync") {
		t.Fatalf("Append after failed sync = %v, want the sync error", err)
	}
	if _, err := w.Rotate(); err == nil {
		t.Fatal("Rotate after failed sync succeeded")
	}
	if err := w.Sync(); err == nil {
		t.Fatal("Sync after failed sync succeeded")
	}
}

func TestReader_EmptyAndMissingDir(t *testing.T) {
	for _, dir := range []string{t.TempDir(), filepath.Join(t.TempDir(), "missing")} {
		r, err := NewReader(dir, nil)
		if err != nil {
			t.Fatalf("NewReader(%s): %v", dir, err)
		}
		if got := collect(t, r, 0); len(got) != 0 {
			t.Fatalf("entries = %+v, want none", got)
		}
	}
}

func TestCompactor_Compact(t *testing.T) {
	dir := t.TempDir()
	cfg := syncConfig(dir)
	cfg.MaxEntryCount = 1
	w := mustWriter(t, cfg)
	for i := 0; i < 5; i++ {
		mustAppend(t, w, writeEntry(int64(i), "ns", "v"))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c := NewCompactor(dir, WithRetainCount(1))
	u, err := c.Usage()
	if err != nil || u.Segments != 5 {
		t.Fatalf("Usage = %+v, %v; want 5 segments", u, err)
	}

	removed, err := c.Compact(4 << 32)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
	for _, name := range []string{"wal-00000004.log", "wal-00000005.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s removed: %v", name, err)
		}
	}
}

func TestCompactor_RetainCount(t *testing.T) {
	dir := t.TempDir()
	cfg := syncConfig(dir)
	cfg.MaxEntryCount = 1
	w := mustWriter(t, cfg)
	for i := 0; i < 3; i++ {
		mustAppend(t, w, writeEntry(int64(i), "ns", "v"))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c := NewCompactor(dir, WithRetainCount(3))
	removed, err := c.Compact(10 << 32)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0 with retain count 3", removed)
	}
}

func TestCompactor_UsageAndThreshold(t *testing.T) {
	dir := t.TempDir()
	w := mustWriter(t, syncConfig(dir))
	mustAppend(t, w, writeEntry(1, "ns", "v"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c := NewCompactor(dir)
	u, err := c.Usage()
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if u.Segments != 1 || u.Bytes <= MagicBytesSize+ChecksumSize {
		t.Fatalf("Usage = %+v", u)
	}
	if !c.Exceeds(u.Bytes - 1) {
		t.Fatal("Exceeds(size-1) = false")
	}
	if c.Exceeds(u.Bytes) || c.Exceeds(0) {
		t.Fatal("Exceeds true at or without threshold")
	}

	missing := NewCompactor(filepath.Join(dir, "missing"))
	if u, err := missing.Usage(); err != nil || u != (Usage{}) {
		t.Fatalf("Usage on missing dir = %+v, %v", u, err)
	}
}

func TestParseSegmentName(t *testing.T) {
	tests := []struct {
		name string
		id   uint64
		ok   bool
	}{
		{segmentName(7), 7, true},
		{"wal-123456789.log", 123456789, true},
		{"wal-.log", 0, false},
		{"wal-00000001.log.tmp", 0, false},
		{"wal-0000000x.log", 0, false},
		{"snapshot-00000001.snap", 0, false},
	}
	for _, tt := range tests {
		id, ok := parseSegmentName(tt.name)
		if id != tt.id || ok != tt.ok {
			t.Errorf("parseSegmentName(%q) = %d, %v; want %d, %v", tt.name, id, ok, tt.id, tt.ok)
		}
	}
}

func TestReader_StopEarly(t *testing.T) {
	dir := t.TempDir()
	w := mustWriter(t, syncConfig(dir))
	mustAppend(t, w, writeEntry(1, "ns", "a"), writeEntry(2, "ns", "b"), writeEntry(3, "ns", "c"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewReader(dir, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var seen []string
	for e, err := range r.Entries(0) {
		if err != nil {
			t.Fatalf("Entries: %v", err)
		}
		seen = append(seen, string(e.Value))
		if len(seen) == 2 {
			break
		}
	}
	if len(seen) != 2 || seen[1] != "b" {
		t.Fatalf("seen = %v", seen)
	}
}
