// Package config defines the sightingdb-server configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: masking of secrets for logging
//   - storage.go: translation into the storage engine configuration
//
// Configuration is loaded via internal/infra/confloader from a file, the
// environment (SIGHTINGDB_ prefix) and command-line flags.
package config
