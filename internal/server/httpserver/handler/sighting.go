package handler

import (
	"net/http"
	"strconv"

	"github.com/yndnr/sightingdb-go/internal/core/domain"
	"github.com/yndnr/sightingdb-go/internal/core/service"
	"github.com/yndnr/sightingdb-go/internal/telemetry/logger"
)

// handleWrite handles GET /w/{ns}?val=&timestamp=.
func (h *Handler) handleWrite(w http.ResponseWriter, r *http.Request) {
	ns, err := namespace(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	if !q.Has("val") {
		h.writeError(w, r, domain.ErrMissingValue)
		return
	}
	value, err := domain.DecodeValue(q.Get("val"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ts, err := parseTimestamp(q.Get("timestamp"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.sightings.Write(r.Context(), apiKey(r), ns, value, ts); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeMessage(w, r, http.StatusOK, "ok")
}

// handleRead handles GET /r/{ns}?val=&noshadow.
func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, false)
}

// handleReadWithStats handles GET /rs/{ns}?val=&noshadow.
func (h *Handler) handleReadWithStats(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, true)
}

// read answers a single-value lookup, or lists the namespace when val is
// absent.
func (h *Handler) read(w http.ResponseWriter, r *http.Request, withStats bool) {
	ns, err := namespace(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	opts := domain.ReadOptions{WithStats: withStats, WithShadow: !q.Has("noshadow")}

	if !q.Has("val") {
		list, err := h.sightings.ReadNamespace(r.Context(), apiKey(r), ns, opts)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		items := make([]any, 0, len(list))
		for _, st := range list {
			items = append(items, newStatsResponse(st))
		}
		h.writeJSON(w, r, http.StatusOK, ItemsResponse{Items: items})
		return
	}

	value, err := domain.DecodeValue(q.Get("val"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.sightings.Read(r.Context(), apiKey(r), ns, value, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newStatsResponse(*st))
}

// handleBulkWrite handles POST /wb.
//
// Items are written one by one; a failed item is reported in its slot and
// does not roll back or stop the others. Items with an empty value are
// skipped.
func (h *Handler) handleBulkWrite(w http.ResponseWriter, r *http.Request) {
	var req BulkWriteRequest
	if err := h.decodeBody(w, r, h.schemas.bulkWrite, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	key := apiKey(r)
	if err := h.acl.Authenticate(r.Context(), key); err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := BulkWriteResponse{Items: make([]MessageResponse, len(req.Items))}
	var (
		writes []service.WriteItem
		slots  []int
	)
	for i, item := range req.Items {
		if item.Value == "" {
			resp.Skipped++
			resp.Items[i] = MessageResponse{Message: "skipped"}
			continue
		}
		ns := domain.NormalizeNamespace(item.Namespace)
		value, err := domain.DecodeValue(item.Value)
		if err == nil {
			err = domain.ValidateNamespace(ns)
		}
		if err != nil {
			resp.Failed++
			resp.Items[i] = itemError(err)
			continue
		}
		writes = append(writes, service.WriteItem{Namespace: ns, Value: value, Timestamp: item.Timestamp})
		slots = append(slots, i)
	}

	for j, err := range h.sightings.BulkWrite(r.Context(), key, writes) {
		if err != nil {
			resp.Failed++
			resp.Items[slots[j]] = itemError(err)
			continue
		}
		resp.Written++
		resp.Items[slots[j]] = MessageResponse{Message: "ok"}
	}

	resp.Message = "ok"
	if resp.Failed > 0 {
		resp.Message = "some items were not written"
	}
	logger.L(r.Context()).Debug("bulk write",
		"items", len(req.Items),
		"written", resp.Written,
		"failed", resp.Failed,
		"skipped", resp.Skipped,
	)
	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleBulkRead handles POST /rb.
func (h *Handler) handleBulkRead(w http.ResponseWriter, r *http.Request) {
	h.bulkRead(w, r, false)
}

// handleBulkReadWithStats handles POST /rbs.
func (h *Handler) handleBulkReadWithStats(w http.ResponseWriter, r *http.Request) {
	h.bulkRead(w, r, true)
}

func (h *Handler) bulkRead(w http.ResponseWriter, r *http.Request, withStats bool) {
	var req BulkReadRequest
	if err := h.decodeBody(w, r, h.schemas.bulkRead, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	key := apiKey(r)
	if err := h.acl.Authenticate(r.Context(), key); err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]any, len(req.Items))
	var (
		reads []service.ReadItem
		slots []int
	)
	for i, item := range req.Items {
		ns := domain.NormalizeNamespace(item.Namespace)
		value, err := domain.DecodeValue(item.Value)
		if err == nil {
			err = domain.ValidateNamespace(ns)
		}
		if err != nil {
			items[i] = itemError(err)
			continue
		}
		reads = append(reads, service.ReadItem{
			Namespace: ns,
			Value:     value,
			Options:   domain.ReadOptions{WithStats: withStats, WithShadow: !item.NoShadow},
		})
		slots = append(slots, i)
	}

	for j, res := range h.sightings.BulkRead(r.Context(), key, reads) {
		if res.Err != nil {
			items[slots[j]] = itemError(res.Err)
			continue
		}
		items[slots[j]] = newStatsResponse(*res.Stats)
	}
	h.writeJSON(w, r, http.StatusOK, ItemsResponse{Items: items})
}

// handleDelete handles GET and DELETE /d/{ns}.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ns, err := namespace(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	deleted, err := h.sightings.Delete(r.Context(), apiKey(r), ns)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !deleted {
		h.writeJSON(w, r, http.StatusOK, DeleteResponse{Message: domain.ErrNamespaceNotFound.Message})
		return
	}
	h.writeJSON(w, r, http.StatusOK, DeleteResponse{Message: "ok", Deleted: true})
}

// parseTimestamp parses unix seconds; the empty string means now.
func parseTimestamp(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ts < 0 {
		return 0, domain.ErrBadRequest.Detailf("timestamp must be unix seconds: %s", s)
	}
	return ts, nil
}

func itemError(err error) MessageResponse {
	de, _ := domain.As(err)
	return errorBody(de)
}
