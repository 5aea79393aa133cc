package domain

import "strings"

// Separator delimits namespace segments.
const Separator = "/"

// ReservedRoot is the top-level segment reserved for engine configuration.
const ReservedRoot = "_config"

// NormalizeNamespace trims leading and trailing separators.
func NormalizeNamespace(ns string) string {
	return strings.Trim(ns, Separator)
}

// ValidateNamespace checks that ns is a usable, normalized namespace.
// Empty namespaces and empty segments ("a//b") are rejected.
func ValidateNamespace(ns string) error {
	if ns == "" {
		return ErrInvalidNamespace.WithDetails("namespace is empty")
	}
	for _, seg := range strings.Split(ns, Separator) {
		if seg == "" {
			return ErrInvalidNamespace.Detailf("empty segment in %s", ns)
		}
	}
	return nil
}

// JoinNamespace joins segments with the separator, skipping empty ones.
func JoinNamespace(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = NormalizeNamespace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, Separator)
}

// HasPathPrefix reports whether ns equals prefix or lies below it.
//
// The comparison is segment-wise: "a/b" is under "a" but not under "a/bc"
// and "a/bc" is not under "a/b". The empty prefix matches every namespace.
func HasPathPrefix(ns, prefix string) bool {
	ns = NormalizeNamespace(ns)
	prefix = NormalizeNamespace(prefix)
	if prefix == "" {
		return true
	}
	if ns == prefix {
		return true
	}
	return strings.HasPrefix(ns, prefix+Separator)
}

// IsReserved reports whether ns lives under the reserved root.
func IsReserved(ns string) bool {
	return HasPathPrefix(ns, ReservedRoot)
}
