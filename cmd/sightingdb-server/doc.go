// Command sightingdb-server runs the SightingDB daemon.
//
// Usage:
//
//	sightingdb-server [--config FILE] [--apikey KEY] [--log-level LEVEL]
//	sightingdb-server --gen-key
//
// Startup loads the configuration (file, then SIGHTINGDB_* variables, then
// flags), recovers the engine from its snapshot and WAL, installs the
// bootstrap key and serves the HTTP API until SIGINT or SIGTERM.
package main
