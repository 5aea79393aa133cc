package config

import (
	"fmt"

	"github.com/yndnr/sightingdb-go/pkg/token"
)

const secretSet = "[set]"

// Sanitize returns a copy of cfg that is safe to log. Encryption secrets
// are replaced by a placeholder and the bootstrap key by its fingerprint,
// which matches the fingerprint logged by the ACL service.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	out := *cfg
	if out.Security.EncryptionKey != "" {
		out.Security.EncryptionKey = fmt.Sprintf("%s (%d hex chars)", secretSet, len(out.Security.EncryptionKey))
	}
	if out.Security.Passphrase != "" {
		out.Security.Passphrase = secretSet
	}
	if out.Auth.BootstrapKey != "" {
		out.Auth.BootstrapKey = "fingerprint:" + token.Fingerprint(out.Auth.BootstrapKey)
	}
	return &out
}
