package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var magic = []byte("SDBSNAP\x01")

const (
	formatVersion = 1
	checksumSize  = sha256.Size
	// maxSectionSize bounds the length fields read from disk.
	maxSectionSize = 1 << 31
)

var (
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
)

// header is the JSON section in front of the body.
type header struct {
	Version        int    `json:"version"`
	SnapshotID     string `json:"snapshot_id"`
	CreatedAt      int64  `json:"created_at"`
	NamespaceCount uint64 `json:"namespace_count"`
	RecordCount    uint64 `json:"record_count"`
	WALLastOffset  uint64 `json:"wal_last_offset"`
	Encrypted      bool   `json:"encrypted"`
}

func (h *header) info(id, path string, size int64, sum []byte) *Info {
	return &Info{
		ID:             id,
		SnapshotID:     h.SnapshotID,
		WALLastOffset:  h.WALLastOffset,
		NamespaceCount: int64(h.NamespaceCount),
		RecordCount:    int64(h.RecordCount),
		CreatedAt:      h.CreatedAt,
		Size:           size,
		Path:           path,
		Checksum:       hex.EncodeToString(sum),
	}
}

// encode lays out a complete snapshot file.
func encode(hdr *header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal header: %w", err)
	}
	buf := make([]byte, 0, len(magic)+8+len(hdrJSON)+len(body)+checksumSize)
	buf = append(buf, magic...)
	buf = appendSection(buf, hdrJSON)
	buf = appendSection(buf, body)
	sum := sha256.Sum256(buf)
	return append(buf, sum[:]...), nil
}

func appendSection(buf, sec []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(sec)))
	return append(buf, sec...)
}

// decode verifies raw and splits it into header, body and checksum.
// Truncated or altered files report ErrChecksumMismatch.
func decode(raw []byte) (*header, []byte, []byte, error) {
	if len(raw) < len(magic)+checksumSize {
		return nil, nil, nil, ErrChecksumMismatch
	}
	payload, trailer := raw[:len(raw)-checksumSize], raw[len(raw)-checksumSize:]
	if sum := sha256.Sum256(payload); !bytes.Equal(sum[:], trailer) {
		return nil, nil, nil, ErrChecksumMismatch
	}
	rest, ok := bytes.CutPrefix(payload, magic)
	if !ok {
		return nil, nil, nil, ErrInvalidMagic
	}

	hdrJSON, rest, err := cutSection(rest)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("snapshot: read header: %w", err)
	}
	body, rest, err := cutSection(rest)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("snapshot: read data: %w", err)
	}
	if len(rest) != 0 {
		return nil, nil, nil, fmt.Errorf("snapshot: %d trailing bytes after data", len(rest))
	}

	var hdr header
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, nil, nil, fmt.Errorf("snapshot: unmarshal header: %w", err)
	}
	if hdr.Version != formatVersion {
		return nil, nil, nil, fmt.Errorf("snapshot: unsupported version %d", hdr.Version)
	}
	return &hdr, body, trailer, nil
}

func cutSection(b []byte) (sec, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, io.ErrUnexpectedEOF
	}
	n := uint64(binary.BigEndian.Uint32(b))
	b = b[4:]
	if n == 0 || n > maxSectionSize || n > uint64(len(b)) {
		return nil, nil, fmt.Errorf("invalid section length %d", n)
	}
	return b[:n], b[n:], nil
}
