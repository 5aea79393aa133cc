// Package service provides the SightingDB domain services.
//
// This package contains:
//
//   - ACLService: API key bindings and read/write grants, stored as
//     ordinary records under the reserved _config/acl/apikeys subtree
//   - SightingService: client operations, each an ACL check followed by
//     one engine call
//
// Services hold no locks of their own. Bulk operations are sequences of
// independent calls, so a failing item leaves earlier items committed.
package service
