// Package token generates SightingDB API keys.
//
// Key format:
//
//   - Prefix: sdbk_ (5 characters)
//   - Body: 43 characters of Base64 RawURL encoded random bytes
//   - Total: 48 characters
//
// The body alphabet has no '/' so a key is always a single namespace
// segment under _config/acl/apikeys.
package token
