// Package config loads and saves the sightingdb-cli settings file
// (~/.sightingdb/cli.yaml).
//
// Precedence, lowest first: built-in defaults, the file, SIGHTINGDB_CLI_*
// environment variables, then command-line flags.
package config
