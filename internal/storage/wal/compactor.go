package wal

import (
	"errors"
	"fmt"
	"os"
)

// DefaultRetainCount is how many segments compaction always leaves behind.
const DefaultRetainCount = 2

// Compactor deletes segments that a snapshot already covers.
type Compactor struct {
	dir    string
	retain int
}

// CompactorOption configures a Compactor.
type CompactorOption func(*Compactor)

// WithRetainCount sets how many segments are kept. Non-positive counts are
// ignored.
func WithRetainCount(n int) CompactorOption {
	return func(c *Compactor) {
		if n > 0 {
			c.retain = n
		}
	}
}

// NewCompactor creates a compactor for the segments in dir.
func NewCompactor(dir string, opts ...CompactorOption) *Compactor {
	c := &Compactor{dir: dir, retain: DefaultRetainCount}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compact deletes the segments older than the one snapshotOffset points
// into, oldest first, while keeping the retain count. It returns how many
// were deleted.
func (c *Compactor) Compact(snapshotOffset uint64) (int, error) {
	segs, err := listSegments(c.dir)
	if err != nil {
		return 0, err
	}

	covered := 0
	for covered < len(segs) && segs[covered].id < snapshotOffset>>32 {
		covered++
	}
	drop := min(covered, max(0, len(segs)-c.retain))

	var errs []error
	for _, seg := range segs[:drop] {
		if err := os.Remove(seg.path); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return drop - len(errs), fmt.Errorf("wal: compact: %w", errors.Join(errs...))
	}
	return drop, nil
}

// Usage is the on-disk footprint of the log.
type Usage struct {
	Bytes    int64
	Segments int
}

// Usage sums the size of every segment. Segments that vanish while being
// counted are skipped.
func (c *Compactor) Usage() (Usage, error) {
	segs, err := listSegments(c.dir)
	if err != nil {
		return Usage{}, err
	}
	u := Usage{Segments: len(segs)}
	for _, seg := range segs {
		if fi, err := os.Stat(seg.path); err == nil {
			u.Bytes += fi.Size()
		}
	}
	return u, nil
}

// Exceeds reports whether the log is larger than threshold bytes. A
// non-positive threshold never triggers.
func (c *Compactor) Exceeds(threshold int64) bool {
	if threshold <= 0 {
		return false
	}
	u, err := c.Usage()
	return err == nil && u.Bytes > threshold
}
