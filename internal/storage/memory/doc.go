// Package memory provides the in-memory namespace index for SightingDB.
//
// The index maps namespace -> value -> Sighting. Namespaces are created
// lazily on first write and removed as a whole; values inside a namespace
// keep their insertion order so listings are stable across calls.
//
// Thread Safety:
//
// Index is not safe for concurrent use. The storage engine owns the only
// instance and guards every call with its exclusive lock.
package memory
