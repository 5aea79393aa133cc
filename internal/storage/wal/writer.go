package wal

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yndnr/sightingdb-go/pkg/crypto/adaptive"
)

// Segment file layout: MagicBytes, frames, and once sealed a SHA-256 of
// everything before it.
const (
	FilePrefix      = "wal-"
	FileExtension   = ".log"
	MagicBytes      = "SDBWAL\x00\x01"
	MagicBytesSize  = 8
	ChecksumSize    = sha256.Size
	DefaultFilePerm = 0o600
	DefaultDirPerm  = 0o750
)

const (
	DefaultSyncInterval        = 100 * time.Millisecond
	DefaultMaxFileSize   int64 = 64 << 20
	DefaultMaxEntryCount       = 1_000_000
)

// SyncMode selects when appends reach stable storage.
type SyncMode string

const (
	// SyncModeSync fsyncs inside every Append.
	SyncModeSync SyncMode = "sync"
	// SyncModeBatch fsyncs every SyncInterval.
	SyncModeBatch SyncMode = "batch"
)

// Config configures a Writer. Zero fields take the defaults.
type Config struct {
	Dir string

	SyncMode     SyncMode
	SyncInterval time.Duration

	// A segment is rotated before an append would take it past either
	// limit. A single oversized entry still gets a segment of its own.
	MaxFileSize   int64
	MaxEntryCount int

	Cipher adaptive.Cipher

	// OnSyncError is called from the batch sync loop when an fsync fails.
	// The writer refuses appends from then on.
	OnSyncError func(err error)
}

// DefaultConfig returns the batch-mode defaults for dir.
func DefaultConfig(dir string) Config {
	cfg := Config{Dir: dir}
	cfg.fill()
	return cfg
}

func (c *Config) fill() {
	if c.SyncMode == "" {
		c.SyncMode = SyncModeBatch
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.MaxEntryCount <= 0 {
		c.MaxEntryCount = DefaultMaxEntryCount
	}
}

// tail is the segment accepting appends. sum covers every byte in the file
// and becomes the trailer when the segment is sealed.
type tail struct {
	id      uint64
	path    string
	f       *os.File
	size    int64
	entries int
	sum     hash.Hash
	dirty   bool
}

// createTail starts segment id, replacing any file of that name.
func createTail(dir string, id uint64) (*tail, error) {
	path := filepath.Join(dir, segmentName(id))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, DefaultFilePerm)
	if err != nil {
		return nil, fmt.Errorf("wal: create segment: %w", err)
	}
	t := &tail{id: id, path: path, f: f, sum: sha256.New()}
	if err := t.write([]byte(MagicBytes)); err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: write header: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: sync header: %w", err)
	}
	return t, nil
}

// reopenTail continues an unsealed segment. Bytes after the last valid
// frame are cut off and their count returned. A file too short to hold
// the header is started over.
func reopenTail(seg segment) (*tail, int64, error) {
	f, err := os.OpenFile(seg.path, os.O_RDWR, DefaultFilePerm)
	if err != nil {
		return nil, 0, fmt.Errorf("wal: open segment: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("wal: stat segment: %w", err)
	}
	size := stat.Size()
	if size < MagicBytesSize {
		f.Close()
		t, err := createTail(filepath.Dir(seg.path), seg.id)
		return t, size, err
	}

	sc := newFrameScanner(f, MagicBytesSize, size)
	entries := 0
	for sc.Next() {
		entries++
	}
	t := &tail{id: seg.id, path: seg.path, f: f, size: sc.Offset(), entries: entries}
	if err := t.truncate(t.size); err != nil {
		f.Close()
		return nil, 0, err
	}
	if cut := size - t.size; cut > 0 {
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("wal: sync: %w", err)
		}
		return t, cut, nil
	}
	return t, 0, nil
}

func (t *tail) write(p []byte) error {
	n, err := t.f.Write(p)
	t.sum.Write(p[:n])
	t.size += int64(n)
	return err
}

// truncate cuts the file to size, positions the cursor there and rebuilds
// the running checksum.
func (t *tail) truncate(size int64) error {
	if err := t.f.Truncate(size); err != nil {
		return fmt.Errorf("wal: truncate segment: %w", err)
	}
	if _, err := t.f.Seek(size, io.SeekStart); err != nil {
		return fmt.Errorf("wal: seek segment: %w", err)
	}
	t.size = size
	t.sum = sha256.New()
	if _, err := io.Copy(t.sum, io.NewSectionReader(t.f, 0, size)); err != nil {
		return fmt.Errorf("wal: hash segment: %w", err)
	}
	return nil
}

func (t *tail) sync() error {
	if !t.dirty || t.f == nil {
		return nil
	}
	if err := t.f.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	t.dirty = false
	return nil
}

// seal appends the checksum trailer and closes the file.
func (t *tail) seal() error {
	if t.f == nil {
		return nil
	}
	if _, err := t.f.Write(t.sum.Sum(nil)); err != nil {
		return fmt.Errorf("wal: write checksum: %w", err)
	}
	if err := t.f.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	err := t.f.Close()
	t.f = nil
	t.dirty = false
	if err != nil {
		return fmt.Errorf("wal: close: %w", err)
	}
	return nil
}

// offset packs the segment id and the write position; readers resume
// from it.
func (t *tail) offset() uint64 {
	return t.id<<32 | uint64(uint32(t.size))
}

// Writer appends entries to the log. It is safe for concurrent use.
type Writer struct {
	cfg Config

	mu        sync.Mutex
	tail      *tail
	truncated int64
	closed    bool
	// broken holds the error that left the tail in an unknown state.
	// Appends are refused from then on.
	broken error

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewWriter opens the log in cfg.Dir. When the newest segment is unsealed
// the writer continues it after cutting any torn tail; otherwise it starts
// the next segment.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Dir == "" {
		return nil, errors.New("wal: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}
	cfg.fill()

	w := &Writer{cfg: cfg, stop: make(chan struct{})}
	if err := w.openTail(); err != nil {
		return nil, err
	}
	if cfg.SyncMode == SyncModeBatch {
		w.wg.Add(1)
		go w.syncLoop()
	}
	return w, nil
}

func (w *Writer) openTail() error {
	segs, err := listSegments(w.cfg.Dir)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		w.tail, err = createTail(w.cfg.Dir, 1)
		return err
	}

	last := segs[len(segs)-1]
	st, err := inspectFile(last.path)
	if err != nil {
		return fmt.Errorf("wal: inspect %s: %w", filepath.Base(last.path), err)
	}
	if st.sealed {
		w.tail, err = createTail(w.cfg.Dir, last.id+1)
		return err
	}
	w.tail, w.truncated, err = reopenTail(last)
	return err
}

func (w *Writer) syncLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.Sync(); err != nil {
				if w.cfg.OnSyncError != nil {
					w.cfg.OnSyncError(err)
				}
				return
			}
		case <-w.stop:
			return
		}
	}
}

// CurrentOffset returns the position the next entry will be written at,
// as segmentID<<32 | byte offset within the segment.
func (w *Writer) CurrentOffset() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tail.offset()
}

// TruncatedBytes is how many torn bytes NewWriter cut from the segment it
// resumed.
func (w *Writer) TruncatedBytes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.truncated
}

func (w *Writer) usable() error {
	if w.closed {
		return ErrClosed
	}
	return w.broken
}

// Append writes one entry. In sync mode it is durable on return. A failed
// append leaves nothing of the entry behind.
func (w *Writer) Append(entry *Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.usable(); err != nil {
		return err
	}

	frame, err := encodeEntryFrame(entry, w.cfg.Cipher)
	if err != nil {
		return err
	}
	t := w.tail
	full := t.size+int64(len(frame)) > w.cfg.MaxFileSize || t.entries >= w.cfg.MaxEntryCount
	if full && t.entries > 0 {
		if err := w.rotateLocked(); err != nil {
			return err
		}
		t = w.tail
	}

	before := t.size
	if err := t.write(frame); err != nil {
		w.undo(before)
		return fmt.Errorf("wal: write entry: %w", err)
	}
	if w.cfg.SyncMode == SyncModeSync {
		if err := t.f.Sync(); err != nil {
			w.undo(before)
			return fmt.Errorf("wal: sync: %w", err)
		}
	} else {
		t.dirty = true
	}
	t.entries++
	return nil
}

func (w *Writer) undo(size int64) {
	if err := w.tail.truncate(size); err != nil {
		w.broken = fmt.Errorf("wal: segment tail unrecoverable: %w", err)
	}
}

// Sync flushes batched appends. A failed fsync leaves the durability of
// earlier appends unknown, so the writer is broken afterwards.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken != nil {
		return w.broken
	}
	if err := w.tail.sync(); err != nil {
		w.broken = err
		return err
	}
	return nil
}

// Rotate seals the current segment and starts the next one, returning the
// offset of the first entry the new segment will hold. A segment without
// entries is kept.
func (w *Writer) Rotate() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.usable(); err != nil {
		return 0, err
	}
	if w.tail.entries > 0 {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}
	return w.tail.offset(), nil
}

func (w *Writer) rotateLocked() error {
	if err := w.tail.seal(); err != nil {
		w.broken = err
		return err
	}
	next, err := createTail(w.cfg.Dir, w.tail.id+1)
	if err != nil {
		w.broken = err
		return err
	}
	w.tail = next
	return nil
}

// Close stops the sync loop and seals the current segment.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.stop)
	w.mu.Unlock()

	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken != nil {
		if w.tail.f == nil {
			return nil
		}
		err := w.tail.f.Close()
		w.tail.f = nil
		return err
	}
	return w.tail.seal()
}
