package domain

import (
	"encoding/base64"
	"math"
)

// Sighting is the counter record kept for one (namespace, value) pair.
//
// Timestamps are unix seconds.
type Sighting struct {
	Count       uint64 `json:"count"`
	ShadowCount uint64 `json:"shadow_count"`
	FirstSeen   int64  `json:"first_seen"`
	LastSeen    int64  `json:"last_seen"`
	LastDecayAt int64  `json:"last_decay_at"`
}

// ReadOptions selects which parts of a record a read reports.
type ReadOptions struct {
	// WithStats adds first_seen and last_seen.
	WithStats bool
	// WithShadow adds the previous-period count.
	WithShadow bool
}

// Stats is the read view of a Sighting.
//
// Optional fields are nil when the read mode excludes them.
type Stats struct {
	Value       []byte
	Count       uint64
	ShadowCount *uint64
	FirstSeen   *int64
	LastSeen    *int64
}

// Stats projects the record onto the fields selected by opts.
func (s Sighting) Stats(value []byte, opts ReadOptions) Stats {
	out := Stats{
		Value: value,
		Count: s.Count,
	}
	if opts.WithShadow {
		shadow := s.ShadowCount
		out.ShadowCount = &shadow
	}
	if opts.WithStats {
		first, last := s.FirstSeen, s.LastSeen
		out.FirstSeen = &first
		out.LastSeen = &last
	}
	return out
}

// AddCount adds incr to count, saturating at the maximum uint64.
func AddCount(count, incr uint64) uint64 {
	if count > math.MaxUint64-incr {
		return math.MaxUint64
	}
	return count + incr
}

// EncodeValue encodes a raw value for transport (base64url, no padding).
func EncodeValue(value []byte) string {
	return base64.RawURLEncoding.EncodeToString(value)
}

// DecodeValue decodes a transport-encoded value.
func DecodeValue(encoded string) ([]byte, error) {
	v, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrMalformedValue.WithCause(err)
	}
	return v, nil
}
