// Package storage provides the SightingDB storage engine.
//
// The engine combines the in-memory namespace index, the decay policy,
// the write-ahead log and snapshots behind one exclusive lock:
//
//   - Index: namespace -> value -> Sighting, insertion ordered
//   - WAL: every mutation is appended before the index changes
//   - Snapshot: periodic full dumps that bound replay time
//
// Every operation holds the lock for its whole duration, so operations
// are linearizable and a reader never sees a half-applied write. When WAL
// appends keep failing the engine turns read-only rather than acknowledge
// writes it cannot make durable.
//
// Encryption at rest is optional: a master key or passphrase is expanded
// into separate WAL and snapshot keys.
package storage
