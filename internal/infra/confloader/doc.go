// Package confloader loads layered configuration with koanf.
//
// Sources, lowest priority first:
//
//  1. Defaults already set on the target struct
//  2. Configuration file (YAML or TOML, chosen by extension)
//  3. Environment variables (SIGHTINGDB_ prefix, "__" between levels)
//  4. Explicit overrides from command-line flags (LoadMap)
//
// Watcher reports changes to the configuration file so that settings such
// as the log level can be reloaded without a restart.
package confloader
