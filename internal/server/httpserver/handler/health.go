package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/sightingdb-go/internal/infra/buildinfo"
)

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.admin != nil && h.admin.Stats().ReadOnly {
		status = "read_only"
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleInfo handles GET /i.
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, buildinfo.Ident())
}

// HelpText is served on the root path.
const HelpText = `SightingDB daemon
REST Endpoints:
	/w: write (GET)
	/wb: write in bulk mode (POST)
	/r: read (GET)
	/rs: read with statistics (GET)
	/rb: read in bulk mode (POST)
	/rbs: read with statistics in bulk mode (POST)
	/d: delete (GET, DELETE)
	/c: configure (GET)
	/i: info (GET)
`

// handleHelp handles GET /.
func (h *Handler) handleHelp(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(HelpText))
}
