// Package httpserver runs the SightingDB HTTP(S) listener.
//
// NewRouter wraps the API handler from package handler in the middleware
// chain (panic recovery, request IDs, metrics, audit logging, CORS and a
// per-client rate limit) and mounts the Prometheus endpoint. The /c admin
// routes and the metrics endpoint can be restricted to an IP allow list.
package httpserver
