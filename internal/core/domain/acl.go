package domain

import "strings"

// ACLKeyRoot is the namespace under which API key bindings live.
//
// Layout, for an API key K:
//
//	_config/acl/apikeys/K          binding (value ""), presence = valid key
//	_config/acl/apikeys/K/read     one value per permitted read prefix
//	_config/acl/apikeys/K/write    one value per permitted write prefix
const ACLKeyRoot = ReservedRoot + "/acl/apikeys"

// PlaceholderAPIKey is the default key replaced by a bootstrap key.
const PlaceholderAPIKey = "changeme"

// AccessMode selects the read or write grant of a key.
type AccessMode string

const (
	ModeRead  AccessMode = "read"
	ModeWrite AccessMode = "write"
)

// Valid reports whether m names a known mode.
func (m AccessMode) Valid() bool {
	return m == ModeRead || m == ModeWrite
}

// ACLBindingNamespace returns the binding namespace for an API key.
func ACLBindingNamespace(apiKey string) string {
	return ACLKeyRoot + Separator + apiKey
}

// ACLBindingKey returns the API key when ns is exactly a binding
// namespace.
func ACLBindingKey(ns string) (string, bool) {
	key, ok := strings.CutPrefix(NormalizeNamespace(ns), ACLKeyRoot+Separator)
	if !ok || key == "" || strings.Contains(key, Separator) {
		return "", false
	}
	return key, true
}

// ACLGrantNamespace returns the grant namespace for an API key and mode.
func ACLGrantNamespace(apiKey string, mode AccessMode) string {
	return ACLBindingNamespace(apiKey) + Separator + string(mode)
}

// ValidateAPIKey rejects keys that cannot be stored as a single segment.
func ValidateAPIKey(apiKey string) error {
	if apiKey == "" {
		return ErrAPIKeyMissing
	}
	if strings.Contains(apiKey, Separator) {
		return ErrInvalidAPIKey.WithDetails("api key must not contain '/'")
	}
	if strings.TrimSpace(apiKey) != apiKey || strings.ContainsAny(apiKey, " \t\r\n") {
		return ErrInvalidAPIKey.WithDetails("api key must not contain whitespace")
	}
	return nil
}
