// Package handler implements the SightingDB HTTP endpoints.
//
// Routes follow the short path scheme of the daemon: /w writes, /r and
// /rs read, /wb, /rb and /rbs take JSON bulk bodies, /d deletes a
// namespace, /c administers API keys and snapshots and /i reports the
// server identity. Everything after the route prefix is the namespace.
//
// The API key travels in the Authorization header, with or without a
// "Bearer " prefix. Authorization itself happens in the service layer.
package handler
