package memory

import (
	"github.com/yndnr/sightingdb-go/internal/core/domain"
)

// Entry is one (value, record) pair of a namespace listing.
type Entry struct {
	Value    []byte
	Sighting domain.Sighting
}

type namespaceEntry struct {
	order   []string
	records map[string]*domain.Sighting
}

func newNamespaceEntry() *namespaceEntry {
	return &namespaceEntry{records: make(map[string]*domain.Sighting)}
}

// Index is the namespace -> value -> Sighting map.
type Index struct {
	namespaces map[string]*namespaceEntry
	order      []string
	records    int
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{namespaces: make(map[string]*namespaceEntry)}
}

// Get returns the record for (ns, value).
func (x *Index) Get(ns string, value []byte) (domain.Sighting, bool) {
	entry, ok := x.namespaces[ns]
	if !ok {
		return domain.Sighting{}, false
	}
	rec, ok := entry.records[string(value)]
	if !ok {
		return domain.Sighting{}, false
	}
	return *rec, true
}

// Put stores rec for (ns, value), creating the namespace if needed.
func (x *Index) Put(ns string, value []byte, rec domain.Sighting) {
	entry, ok := x.namespaces[ns]
	if !ok {
		entry = newNamespaceEntry()
		x.namespaces[ns] = entry
		x.order = append(x.order, ns)
	}

	key := string(value)
	if existing, ok := entry.records[key]; ok {
		*existing = rec
		return
	}
	stored := rec
	entry.records[key] = &stored
	entry.order = append(entry.order, key)
	x.records++
}

// Namespace lists the records directly under ns in insertion order.
// The result is empty, not nil, when ns is absent.
func (x *Index) Namespace(ns string) []Entry {
	entry, ok := x.namespaces[ns]
	if !ok {
		return []Entry{}
	}
	out := make([]Entry, 0, len(entry.order))
	for _, key := range entry.order {
		out = append(out, Entry{Value: []byte(key), Sighting: *entry.records[key]})
	}
	return out
}

// Has reports whether ns holds at least one record.
func (x *Index) Has(ns string) bool {
	_, ok := x.namespaces[ns]
	return ok
}

// HasPrefix reports whether any namespace lies at or below prefix.
func (x *Index) HasPrefix(prefix string) bool {
	for _, ns := range x.order {
		if domain.HasPathPrefix(ns, prefix) {
			return true
		}
	}
	return false
}

// Delete removes the whole namespace ns. It reports whether ns existed.
func (x *Index) Delete(ns string) bool {
	entry, ok := x.namespaces[ns]
	if !ok {
		return false
	}
	x.records -= len(entry.records)
	delete(x.namespaces, ns)
	x.order = removeString(x.order, ns)
	return true
}

// DeletePrefix removes every namespace at or below prefix and returns how
// many were removed. Matching is segment-wise.
func (x *Index) DeletePrefix(prefix string) int {
	kept := x.order[:0]
	removed := 0
	for _, ns := range x.order {
		if domain.HasPathPrefix(ns, prefix) {
			x.records -= len(x.namespaces[ns].records)
			delete(x.namespaces, ns)
			removed++
			continue
		}
		kept = append(kept, ns)
	}
	x.order = kept
	return removed
}

// Namespaces returns namespace names in creation order.
func (x *Index) Namespaces() []string {
	out := make([]string, len(x.order))
	copy(out, x.order)
	return out
}

// NamespaceCount returns the number of namespaces.
func (x *Index) NamespaceCount() int {
	return len(x.order)
}

// Len returns the total number of records.
func (x *Index) Len() int {
	return x.records
}

// Each calls fn for every record, namespaces in creation order and values
// in insertion order. Iteration stops when fn returns false.
func (x *Index) Each(fn func(ns string, value []byte, rec domain.Sighting) bool) {
	for _, ns := range x.order {
		entry := x.namespaces[ns]
		for _, key := range entry.order {
			if !fn(ns, []byte(key), *entry.records[key]) {
				return
			}
		}
	}
}

// Update rewrites records in place. fn returns the new record and whether
// it changed; Update returns the number of changed records.
func (x *Index) Update(fn func(rec domain.Sighting) (domain.Sighting, bool)) int {
	changed := 0
	for _, ns := range x.order {
		for _, rec := range x.namespaces[ns].records {
			if next, ok := fn(*rec); ok {
				*rec = next
				changed++
			}
		}
	}
	return changed
}

// Reset drops all namespaces.
func (x *Index) Reset() {
	x.namespaces = make(map[string]*namespaceEntry)
	x.order = nil
	x.records = 0
}

func removeString(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
