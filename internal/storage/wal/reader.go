package wal

import (
	"errors"
	"fmt"
	"iter"
	"os"

	"github.com/yndnr/sightingdb-go/pkg/crypto/adaptive"
)

// Reader replays the entries of a WAL directory in order.
//
// A frame that is cut short or fails its CRC ends the segment it belongs
// to: replay moves on to the next segment and counts the event in
// TornSegments. A frame that passes its CRC but cannot be decoded stops
// replay with an error, since that points at a wrong cipher rather than a
// crash.
type Reader struct {
	dir    string
	cipher adaptive.Cipher
	torn   int
}

// NewReader creates a reader for dir. cipher may be nil for a plaintext
// log.
func NewReader(dir string, cipher adaptive.Cipher) (*Reader, error) {
	if _, err := os.Stat(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("wal: %w", err)
	}
	return &Reader{dir: dir, cipher: cipher}, nil
}

// TornSegments returns how many segments the last replay cut short.
func (r *Reader) TornSegments() int {
	return r.torn
}

// Entries yields the entries at or after offset, an offset returned by
// Writer.CurrentOffset or Writer.Rotate. An offset inside a segment that
// has been compacted away resumes at the start of the next segment.
func (r *Reader) Entries(offset uint64) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		r.torn = 0
		segs, err := listSegments(r.dir)
		if err != nil {
			yield(nil, err)
			return
		}

		fromID, fromOff := offset>>32, int64(uint32(offset))
		for _, seg := range segs {
			if seg.id < fromID {
				continue
			}
			start := int64(0)
			if seg.id == fromID {
				start = fromOff
			}
			if !r.replaySegment(seg, start, yield) {
				return
			}
		}
	}
}

// replaySegment yields the entries of seg from start. It returns false
// once the caller stopped or an error was yielded.
func (r *Reader) replaySegment(seg segment, start int64, yield func(*Entry, error) bool) bool {
	f, err := os.Open(seg.path)
	if err != nil {
		yield(nil, err)
		return false
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		yield(nil, err)
		return false
	}
	if stat.Size() < MagicBytesSize {
		r.torn++
		return true
	}
	st, err := inspect(f, stat.Size())
	if errors.Is(err, errInvalidMagic) {
		r.torn++
		return true
	}
	if err != nil {
		yield(nil, err)
		return false
	}

	start = min(max(start, MagicBytesSize), st.dataEnd)
	sc := newFrameScanner(f, start, st.dataEnd)
	for sc.Next() {
		e, err := decodeEntryFrame(sc.Frame(), r.cipher)
		if err != nil {
			yield(nil, fmt.Errorf("%s: %w", seg.path, err))
			return false
		}
		if !yield(e, nil) {
			return false
		}
	}
	if sc.Err() != nil {
		r.torn++
	}
	return true
}

// ReadAll collects every entry of the log.
func (r *Reader) ReadAll() ([]*Entry, error) {
	var out []*Entry
	for e, err := range r.Entries(0) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
