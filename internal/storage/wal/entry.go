package wal

import (
	"errors"

	"github.com/yndnr/sightingdb-go/internal/core/domain"
)

const (
	// headerSize is the size of entry header: length (4) + crc (4) = 8 bytes.
	headerSize = 8

	// maxFrameSize bounds a single frame so a corrupted length cannot
	// trigger a huge allocation.
	maxFrameSize = 64 << 20
)

// Errors for WAL operations.
var (
	ErrCorruptedEntry   = errors.New("wal: corrupted entry")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrInvalidEntryType = errors.New("wal: invalid entry type")
	ErrClosed           = errors.New("wal: writer is closed")
)

// OpType represents the type of operation in the WAL.
type OpType uint8

const (
	OpTypeUnspecified OpType = iota
	OpTypeWrite
	OpTypeDelete
	OpTypeDeletePrefix
	OpTypeSweep
)

func (o OpType) String() string {
	switch o {
	case OpTypeWrite:
		return "write"
	case OpTypeDelete:
		return "delete"
	case OpTypeDeletePrefix:
		return "delete_prefix"
	case OpTypeSweep:
		return "sweep"
	default:
		return "unspecified"
	}
}

func (o OpType) valid() bool {
	return o >= OpTypeWrite && o <= OpTypeSweep
}

// Entry represents one durable operation written to the WAL.
//
// Timestamp is in unix seconds, taken from the engine clock. Write entries
// carry the resulting record so replay does not depend on the decay
// configuration in effect at restart.
type Entry struct {
	OpType    OpType
	Timestamp int64

	Namespace string
	Value     []byte
	Increment uint64
	Suppress  bool

	// Period is the decay period in seconds a sweep was taken under.
	Period int64

	Record *domain.Sighting
}

// NewWriteEntry creates a WRITE entry.
func NewWriteEntry(ts int64, ns string, value []byte, incr uint64, suppress bool, rec domain.Sighting) *Entry {
	return &Entry{
		OpType:    OpTypeWrite,
		Timestamp: ts,
		Namespace: ns,
		Value:     value,
		Increment: incr,
		Suppress:  suppress,
		Record:    &rec,
	}
}

// NewDeleteEntry creates a DELETE entry.
func NewDeleteEntry(ts int64, ns string) *Entry {
	return &Entry{OpType: OpTypeDelete, Timestamp: ts, Namespace: ns}
}

// NewDeletePrefixEntry creates a DELETE_PREFIX entry.
func NewDeletePrefixEntry(ts int64, prefix string) *Entry {
	return &Entry{OpType: OpTypeDeletePrefix, Timestamp: ts, Namespace: prefix}
}

// NewSweepEntry creates a SWEEP entry.
func NewSweepEntry(ts, period int64) *Entry {
	return &Entry{OpType: OpTypeSweep, Timestamp: ts, Period: period}
}
