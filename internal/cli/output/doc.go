// Package output renders sightingdb-cli results as a table, JSON, JSON
// Lines or YAML.
//
// Commands hand a value to the Formatter picked by --output. Values that
// know how to lay themselves out implement Tabular; anything else is
// rendered by reflecting over its json tags. ProgressBar and Spinner draw
// on stderr while a long request runs.
package output
