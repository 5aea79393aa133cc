package wal

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"

	"github.com/yndnr/sightingdb-go/internal/core/domain"
	"github.com/yndnr/sightingdb-go/pkg/crypto/adaptive"
)

type wireBody struct {
	Namespace string           `json:"ns,omitempty"`
	Value     []byte           `json:"val,omitempty"`
	Increment uint64           `json:"incr,omitempty"`
	Suppress  bool             `json:"suppress,omitempty"`
	Period    int64            `json:"period,omitempty"`
	Record    *domain.Sighting `json:"rec,omitempty"`
}

type wirePayload struct {
	Timestamp int64     `json:"ts"`
	Body      *wireBody `json:"body,omitempty"`

	// Sealed is base64 of adaptive.Cipher.Encrypt(bodyJSON).
	Sealed string `json:"sealed,omitempty"`
}

func validateEntry(e *Entry) error {
	if e == nil {
		return fmt.Errorf("wal: entry is nil")
	}
	if !e.OpType.valid() {
		return ErrInvalidEntryType
	}
	switch e.OpType {
	case OpTypeWrite:
		if e.Record == nil {
			return fmt.Errorf("wal: missing record for %s", e.OpType)
		}
		if e.Namespace == "" {
			return fmt.Errorf("wal: missing namespace for %s", e.OpType)
		}
	case OpTypeDelete, OpTypeDeletePrefix:
		if e.Namespace == "" {
			return fmt.Errorf("wal: missing namespace for %s", e.OpType)
		}
	case OpTypeSweep:
		if e.Period <= 0 {
			return fmt.Errorf("wal: sweep requires a positive period")
		}
	}
	return nil
}

func encodeEntryFrame(e *Entry, cipher adaptive.Cipher) ([]byte, error) {
	if err := validateEntry(e); err != nil {
		return nil, err
	}

	body := &wireBody{
		Namespace: e.Namespace,
		Value:     e.Value,
		Increment: e.Increment,
		Suppress:  e.Suppress,
		Period:    e.Period,
		Record:    e.Record,
	}
	p := wirePayload{Timestamp: e.Timestamp}

	if cipher == nil {
		p.Body = body
	} else {
		plain, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("wal: marshal body: %w", err)
		}
		sealed, err := cipher.Encrypt(plain, []byte{byte(e.OpType)})
		if err != nil {
			return nil, fmt.Errorf("wal: encrypt body: %w", err)
		}
		p.Sealed = base64.StdEncoding.EncodeToString(sealed)
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("wal: marshal payload: %w", err)
	}

	typeByte := []byte{byte(e.OpType)}
	crc := crc32.ChecksumIEEE(append(typeByte, payload...))

	// Length = CRC(4) + Type(1) + Payload.
	length := uint32(4 + 1 + len(payload))

	out := make([]byte, 0, 4+int(length))
	out = binary.BigEndian.AppendUint32(out, length)
	out = binary.BigEndian.AppendUint32(out, crc)
	out = append(out, typeByte...)
	out = append(out, payload...)
	return out, nil
}

// checkFrame verifies the CRC of a frame without decoding its payload.
func checkFrame(frame []byte) error {
	// Frame layout: [crc32:4][type:1][payload...]
	if len(frame) < 5 {
		return ErrCorruptedEntry
	}
	want := binary.BigEndian.Uint32(frame[:4])
	if crc32.ChecksumIEEE(frame[4:]) != want {
		return ErrChecksumMismatch
	}
	if !OpType(frame[4]).valid() {
		return ErrInvalidEntryType
	}
	return nil
}

func decodeEntryFrame(frame []byte, cipher adaptive.Cipher) (*Entry, error) {
	if err := checkFrame(frame); err != nil {
		return nil, err
	}
	op := OpType(frame[4])

	var p wirePayload
	if err := json.Unmarshal(frame[5:], &p); err != nil {
		return nil, fmt.Errorf("wal: unmarshal payload: %w", err)
	}

	body := p.Body
	if body == nil {
		if p.Sealed == "" {
			return nil, fmt.Errorf("wal: missing body for %s", op)
		}
		if cipher == nil {
			return nil, fmt.Errorf("wal: encrypted entry requires cipher")
		}
		sealed, err := base64.StdEncoding.DecodeString(p.Sealed)
		if err != nil {
			return nil, fmt.Errorf("wal: decode sealed body: %w", err)
		}
		plain, err := cipher.Decrypt(sealed, []byte{byte(op)})
		if err != nil {
			return nil, fmt.Errorf("wal: decrypt body: %w", err)
		}
		body = &wireBody{}
		if err := json.Unmarshal(plain, body); err != nil {
			return nil, fmt.Errorf("wal: unmarshal body: %w", err)
		}
	}

	out := &Entry{
		OpType:    op,
		Timestamp: p.Timestamp,
		Namespace: body.Namespace,
		Value:     body.Value,
		Increment: body.Increment,
		Suppress:  body.Suppress,
		Period:    body.Period,
		Record:    body.Record,
	}
	if err := validateEntry(out); err != nil {
		return nil, err
	}
	return out, nil
}
