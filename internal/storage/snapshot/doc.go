// Package snapshot writes and loads full dumps of the namespace index.
//
// A snapshot records the WAL offset it covers, so recovery loads the
// newest valid snapshot and replays only the log entries after it.
//
// File format:
//
//	snapshot-<timestamp>-<sequence>.snap
//	[magic:8 "SDBSNAP\x01"]
//	[HeaderLen:4][HeaderJSON:HeaderLen]
//	[DataLen:4][Data:DataLen]   (JSON namespaces, or sealed bytes)
//	[checksum:32 SHA-256 of all bytes above]
//
// Files are written to a temporary name, synced and renamed into place,
// so a crash never leaves a half-written snapshot under its final name.
package snapshot
