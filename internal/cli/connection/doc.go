// Package connection is the HTTP client sightingdb-cli uses to talk to a
// SightingDB server.
//
// Every request carries the API key in the Authorization header. Failed
// requests come back as *APIError, built from the server's
// {"message","code","details"} envelope.
package connection
