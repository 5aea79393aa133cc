package handler

import (
	"net/http"

	"github.com/yndnr/sightingdb-go/internal/core/domain"
	"github.com/yndnr/sightingdb-go/internal/telemetry/logger"
)

// Configure sections.
const (
	sectionACL      = "acl"
	sectionSnapshot = "snapshot"
	sectionStats    = "stats"
)

// handleConfigure handles GET /c/{section}.
//
// The caller needs the write grant on the reserved _config root.
//
//	/c/acl                                  list bound keys
//	/c/acl?key=K                            show the grants of K
//	/c/acl?key=K&grant=read|write&prefix=P  grant K access below P
//	/c/acl?revoke=K                         remove K and its grants
//	/c/snapshot                             take a snapshot now
//	/c/stats                                engine statistics
func (h *Handler) handleConfigure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.acl.Check(ctx, apiKey(r), domain.ModeWrite, domain.ReservedRoot); err != nil {
		h.writeError(w, r, err)
		return
	}

	switch section := domain.NormalizeNamespace(r.PathValue("section")); section {
	case sectionACL:
		h.configureACL(w, r)
	case sectionSnapshot:
		if h.admin == nil {
			h.writeError(w, r, domain.ErrInternal.WithDetails("snapshots unavailable"))
			return
		}
		info, err := h.admin.TriggerSnapshot(ctx)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		logger.L(ctx).Info("snapshot requested", "snapshot_id", info.SnapshotID, "records", info.RecordCount)
		h.writeJSON(w, r, http.StatusOK, info)
	case sectionStats:
		if h.admin == nil {
			h.writeError(w, r, domain.ErrInternal.WithDetails("stats unavailable"))
			return
		}
		h.writeJSON(w, r, http.StatusOK, h.admin.Stats())
	default:
		h.writeError(w, r, domain.ErrBadRequest.Detailf("unknown configure section: %s", section))
	}
}

func (h *Handler) configureACL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if target := q.Get("revoke"); target != "" {
		removed, err := h.acl.Revoke(ctx, target)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if !removed {
			h.writeJSON(w, r, http.StatusOK, DeleteResponse{Message: domain.ErrAPIKeyNotFound.Message})
			return
		}
		h.writeJSON(w, r, http.StatusOK, DeleteResponse{Message: "ok", Deleted: true})
		return
	}

	target := q.Get("key")
	if target == "" {
		keys, err := h.acl.Keys(ctx)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if keys == nil {
			keys = []string{}
		}
		h.writeJSON(w, r, http.StatusOK, KeysResponse{Keys: keys})
		return
	}

	if q.Has("grant") {
		mode := domain.AccessMode(q.Get("grant"))
		if err := h.acl.Grant(ctx, target, mode, q.Get("prefix")); err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeMessage(w, r, http.StatusOK, "ok")
		return
	}

	g, err := h.acl.Grants(ctx, target)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, GrantsResponse{Key: target, Read: g.Read, Write: g.Write})
}
