// Package wal provides the append-only durability log for SightingDB.
//
// Every engine mutation is appended here before it touches the in-memory
// index, so a restart can rebuild state by replaying the log on top of the
// latest snapshot.
//
// Features:
//
//   - Write-through appends with per-append or interval fsync
//   - Segment rotation by size or entry count, forced before snapshots
//   - Optional payload sealing with adaptive ciphers
//   - Compaction of segments covered by a snapshot
//   - Torn-tail tolerant replay
//
// Operations:
//
//   - WRITE: one sighting, carrying the resulting record
//   - DELETE: one namespace
//   - DELETE_PREFIX: a namespace subtree
//   - SWEEP: time-driven decay rotation of every due record
//
// Segment format:
//
//	wal-<segment-id>.log
//	[magic:8 "SDBWAL\x00\x01"]
//	[Entry]*
//	[checksum:32 SHA-256 of all bytes above] (absent on the open segment)
//
// Entry wire format:
//
//	[Length:4][CRC32:4][Type:1][Payload:Length-5]
//
// Where:
//   - Length = CRC32 + Type + Payload (big-endian uint32)
//   - CRC32 covers Type+Payload (IEEE)
//   - Payload is JSON; the operation body is sealed when a cipher is set
package wal
