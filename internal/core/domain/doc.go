// Package domain defines the core domain models for SightingDB.
//
// Domain models are pure values without IO dependencies. This package
// contains:
//
//   - Sighting: the counter record kept per (namespace, value) pair
//   - Stats: the read view of a Sighting
//   - Namespace helpers: normalization and path-segment prefix matching
//   - ACL layout: where API key bindings and grants live in the keyspace
//   - Errors: domain-specific error definitions
package domain
