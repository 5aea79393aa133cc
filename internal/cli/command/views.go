package command

import (
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/yndnr/sightingdb-go/internal/cli/output"
	"github.com/yndnr/sightingdb-go/internal/core/domain"
)

// sighting is one read result. Bulk replies put an error in the slot of a
// failed item, in which case Count is nil and Message is set.
type sighting struct {
	Value       string  `json:"value"`
	Count       *uint64 `json:"count,omitempty"`
	ShadowCount *uint64 `json:"shadow_count,omitempty"`
	FirstSeen   *int64  `json:"first_seen,omitempty"`
	LastSeen    *int64  `json:"last_seen,omitempty"`
	Message     string  `json:"message,omitempty"`
	Code        string  `json:"code,omitempty"`
}

func (s sighting) Table(wide bool) *output.Table {
	return sightings{s}.Table(wide)
}

type sightings []sighting

func (s sightings) Table(wide bool) *output.Table {
	var shadow, stats, failed bool
	for _, r := range s {
		shadow = shadow || r.ShadowCount != nil
		stats = stats || r.FirstSeen != nil || r.LastSeen != nil
		failed = failed || r.Message != ""
	}

	t := &output.Table{Headers: []string{"VALUE", "COUNT"}}
	if shadow {
		t.Headers = append(t.Headers, "SHADOW")
	}
	if stats {
		t.Headers = append(t.Headers, "FIRST_SEEN", "LAST_SEEN")
	}
	if failed {
		t.Headers = append(t.Headers, "ERROR")
	}
	if wide {
		t.Headers = append(t.Headers, "ENCODED")
	}

	for _, r := range s {
		row := []string{displayValue(r.Value), uintCell(r.Count)}
		if shadow {
			row = append(row, uintCell(r.ShadowCount))
		}
		if stats {
			row = append(row, timeCell(r.FirstSeen), timeCell(r.LastSeen))
		}
		if failed {
			row = append(row, errorCell(r.Code, r.Message))
		}
		if wide {
			row = append(row, r.Value)
		}
		t.AddRow(row...)
	}
	return t
}

// displayValue shows printable values as text and anything else in its
// base64url wire form.
func displayValue(encoded string) string {
	raw, err := domain.DecodeValue(encoded)
	if err != nil || len(raw) == 0 || !utf8.Valid(raw) {
		return encoded
	}
	for _, r := range string(raw) {
		if !unicode.IsPrint(r) {
			return encoded
		}
	}
	return string(raw)
}

func uintCell(v *uint64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatUint(*v, 10)
}

func timeCell(v *int64) string {
	if v == nil {
		return "-"
	}
	return time.Unix(*v, 0).UTC().Format(time.RFC3339)
}

func errorCell(code, msg string) string {
	switch {
	case msg == "":
		return "-"
	case code == "":
		return msg
	default:
		return code + " " + msg
	}
}

// itemResult is one slot of a bulk write reply.
type itemResult struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type bulkWriteResult struct {
	Message string       `json:"message"`
	Written int          `json:"written"`
	Failed  int          `json:"failed"`
	Skipped int          `json:"skipped"`
	Items   []itemResult `json:"items"`

	values []string
}

func (b *bulkWriteResult) Table(wide bool) *output.Table {
	t := &output.Table{Headers: []string{"VALUE", "RESULT"}}
	if wide {
		t.Headers = append(t.Headers, "DETAILS")
	}
	for i, item := range b.Items {
		value := "-"
		if i < len(b.values) {
			value = displayValue(b.values[i])
		}
		row := []string{value, errorCell(item.Code, item.Message)}
		if wide {
			row = append(row, orDash(item.Details))
		}
		t.AddRow(row...)
	}
	return t
}

type message struct {
	Message string `json:"message"`
	Deleted *bool  `json:"deleted,omitempty"`
}

func (m message) Table(bool) *output.Table {
	return &output.Table{Rows: [][]string{{m.Message}}}
}

type grants struct {
	Key   string   `json:"key"`
	Read  []string `json:"read"`
	Write []string `json:"write"`
}

func (g grants) Table(bool) *output.Table {
	t := &output.Table{Headers: []string{"MODE", "PREFIX"}}
	for _, p := range g.Read {
		t.AddRow(string(domain.ModeRead), "/"+p)
	}
	for _, p := range g.Write {
		t.AddRow(string(domain.ModeWrite), "/"+p)
	}
	return t
}

type keyList struct {
	Keys []string `json:"keys"`
}

func (k keyList) Table(bool) *output.Table {
	t := &output.Table{Headers: []string{"KEY"}}
	for _, key := range k.Keys {
		t.AddRow(key)
	}
	return t
}

type newKey struct {
	Key    string `json:"key"`
	Mode   string `json:"mode"`
	Prefix string `json:"prefix"`
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
