package wal

import (
	"bufio"
	"bytes"
	"cmp"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

var (
	errInvalidMagic    = errors.New("wal: invalid magic bytes")
	errChecksumInvalid = errors.New("wal: checksum mismatch")
)

// segment is one wal-NNNNNNNN.log file. Offsets handed out by the writer
// pack the segment id into the upper 32 bits.
type segment struct {
	id   uint64
	path string
}

func segmentName(id uint64) string {
	return fmt.Sprintf("%s%08d%s", FilePrefix, id, FileExtension)
}

func parseSegmentName(name string) (uint64, bool) {
	digits, ok := strings.CutPrefix(name, FilePrefix)
	if !ok {
		return 0, false
	}
	digits, ok = strings.CutSuffix(digits, FileExtension)
	if !ok || digits == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(digits, 10, 64)
	return id, err == nil
}

// listSegments returns the segments in dir ordered by id. A missing dir
// holds no segments.
func listSegments(dir string) ([]segment, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wal: read dir: %w", err)
	}

	var segs []segment
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := parseSegmentName(e.Name()); ok {
			segs = append(segs, segment{id: id, path: filepath.Join(dir, e.Name())})
		}
	}
	slices.SortFunc(segs, func(a, b segment) int { return cmp.Compare(a.id, b.id) })
	return segs, nil
}

// segmentState is what inspect learns from a segment file.
type segmentState struct {
	// sealed is set when the file ends in a matching SHA-256 trailer.
	sealed bool
	// dataEnd is where the frames end: before the trailer when sealed,
	// the file size otherwise.
	dataEnd int64
}

// inspect checks the header and trailer of a segment. A file shorter than
// the header is reported unsealed with dataEnd at its size; a wrong header
// is errInvalidMagic.
func inspect(f io.ReaderAt, size int64) (segmentState, error) {
	st := segmentState{dataEnd: size}
	if size < MagicBytesSize {
		return st, nil
	}

	var magic [MagicBytesSize]byte
	if _, err := f.ReadAt(magic[:], 0); err != nil {
		return st, fmt.Errorf("wal: read magic: %w", err)
	}
	if string(magic[:]) != MagicBytes {
		return st, errInvalidMagic
	}
	if size < MagicBytesSize+ChecksumSize {
		return st, nil
	}

	var trailer [ChecksumSize]byte
	if _, err := f.ReadAt(trailer[:], size-ChecksumSize); err != nil {
		return st, fmt.Errorf("wal: read checksum trailer: %w", err)
	}
	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, size-ChecksumSize)); err != nil {
		return st, fmt.Errorf("wal: hash: %w", err)
	}
	if bytes.Equal(h.Sum(nil), trailer[:]) {
		st.sealed = true
		st.dataEnd = size - ChecksumSize
	}
	return st, nil
}

// inspectFile opens path and inspects it.
func inspectFile(path string) (segmentState, error) {
	f, err := os.Open(path)
	if err != nil {
		return segmentState{}, err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return segmentState{}, err
	}
	return inspect(f, stat.Size())
}

// VerifyTrailerChecksum reports whether the segment at path was finalized
// with a matching checksum trailer.
func VerifyTrailerChecksum(path string) error {
	st, err := inspectFile(path)
	if err != nil {
		return err
	}
	if !st.sealed {
		return errChecksumInvalid
	}
	return nil
}

// frameScanner walks the length-prefixed frames of a byte range. It stops
// at the first frame that is short, oversized or fails its CRC; Err then
// tells a clean end from a torn one.
type frameScanner struct {
	r     *bufio.Reader
	off   int64
	frame []byte
	err   error
}

func newFrameScanner(f io.ReaderAt, start, end int64) *frameScanner {
	return &frameScanner{
		r:   bufio.NewReader(io.NewSectionReader(f, start, end-start)),
		off: start,
	}
}

// Next advances to the next valid frame.
func (s *frameScanner) Next() bool {
	if s.err != nil {
		return false
	}

	var lenBuf [4]byte
	n, err := io.ReadFull(s.r, lenBuf[:])
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		s.err = io.EOF
		return false
	case err != nil:
		s.err = io.ErrUnexpectedEOF
		return false
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 5 || length > maxFrameSize {
		s.err = ErrCorruptedEntry
		return false
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(s.r, frame); err != nil {
		s.err = io.ErrUnexpectedEOF
		return false
	}
	if err := checkFrame(frame); err != nil {
		s.err = err
		return false
	}

	s.frame = frame
	s.off += 4 + int64(length)
	return true
}

// Frame returns the current frame without its length prefix.
func (s *frameScanner) Frame() []byte { return s.frame }

// Offset is the end of the last valid frame.
func (s *frameScanner) Offset() int64 { return s.off }

// Err returns nil when the range ended on a frame boundary and the reason
// otherwise.
func (s *frameScanner) Err() error {
	if errors.Is(s.err, io.EOF) {
		return nil
	}
	return s.err
}
