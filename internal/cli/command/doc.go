// Package command defines the sightingdb-cli commands on urfave/cli/v2.
//
//   - root.go: the App, global flags and per-invocation setup
//   - sighting.go: write, read, ls, delete and import
//   - admin.go: acl, snapshot and stats (the /c endpoints)
//   - system.go: info, health and config
//
// Every command parses its arguments, sends one or more requests through
// connection.HTTPClient and hands the decoded reply to the formatter picked
// by --output.
package command
