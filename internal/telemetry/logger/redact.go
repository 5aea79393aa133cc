package logger

import (
	"log/slog"
	"strings"
)

// APIKeyPrefix marks API keys generated by sightingdb-server --gen-key.
const APIKeyPrefix = "sdbk_"

// aclPathMarker precedes the API key segment of ACL namespaces.
const aclPathMarker = "_config/acl/apikeys/"

const redactedValue = "***REDACTED***"

// Attribute names containing one of these are dropped entirely.
var sensitiveKeyPatterns = []string{
	"password",
	"passphrase",
	"secret",
	"apikey",
	"api_key",
	"encryption_key",
	"credential",
	"authorization",
	"bearer",
}

// redactSensitive is the ReplaceAttr hook of every handler built by New.
// String and error values are scanned for keys; groups are walked.
func redactSensitive(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return redactText(a.Key, v.String())
	case slog.KindAny:
		if err, ok := v.Any().(error); ok && err != nil {
			return redactText(a.Key, err.Error())
		}
	case slog.KindGroup:
		group := v.Group()
		out := make([]slog.Attr, len(group))
		for i := range group {
			out[i] = redactSensitive(group[i])
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

func redactText(key, s string) slog.Attr {
	if s != "" && IsSensitiveKey(key) {
		return slog.String(key, redactedValue)
	}
	return slog.String(key, RedactString(s))
}

// RedactString masks generated API keys and the key segment of ACL
// namespaces found in s.
func RedactString(s string) string {
	if body, ok := strings.CutPrefix(s, APIKeyPrefix); ok {
		if len(body) <= 6 {
			return APIKeyPrefix + "***"
		}
		return APIKeyPrefix + body[:3] + "..." + body[len(body)-3:]
	}
	if !strings.Contains(s, aclPathMarker) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for {
		before, after, found := strings.Cut(s, aclPathMarker)
		b.WriteString(before)
		if !found {
			return b.String()
		}
		b.WriteString(aclPathMarker)
		end := strings.IndexAny(after, "/ \"")
		if end < 0 {
			end = len(after)
		}
		if end > 0 {
			b.WriteString("***")
		}
		s = after[end:]
	}
}

// IsSensitiveKey reports whether an attribute name suggests a secret.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, p := range sensitiveKeyPatterns {
		if strings.Contains(k, p) {
			return true
		}
	}
	return false
}

// IsSensitiveValue reports whether RedactString would change value.
func IsSensitiveValue(value string) bool {
	return RedactString(value) != value
}
