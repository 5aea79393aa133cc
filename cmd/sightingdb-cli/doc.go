// Command sightingdb-cli is the command-line client for a SightingDB server.
//
//	sightingdb-cli write /ip/blocklist 10.0.0.1
//	sightingdb-cli read --stats /ip/blocklist 10.0.0.1
//	sightingdb-cli import sightings.csv
//	sightingdb-cli acl grant sdbk_... read /ip
//
// Settings come from ~/.sightingdb/cli.yaml, SIGHTINGDB_CLI_* variables and
// flags, in increasing priority.
package main
