package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/yndnr/sightingdb-go/internal/core/domain"
	"github.com/yndnr/sightingdb-go/internal/core/service"
	"github.com/yndnr/sightingdb-go/internal/storage"
	"github.com/yndnr/sightingdb-go/internal/storage/snapshot"
	"github.com/yndnr/sightingdb-go/internal/telemetry/logger"
)

// DefaultPostLimit caps bulk request bodies when Config.PostLimit is unset.
const DefaultPostLimit int64 = 1 << 20

// Admin is the engine surface exposed through /c.
type Admin interface {
	Stats() storage.Stats
	TriggerSnapshot(ctx context.Context) (*snapshot.Info, error)
}

// Config holds the handler dependencies.
type Config struct {
	Sightings *service.SightingService
	ACL       *service.ACLService
	Admin     Admin
	Logger    logger.Logger

	// PostLimit is the maximum accepted bulk body size in bytes.
	PostLimit int64
}

// Handler serves the SightingDB API.
type Handler struct {
	sightings *service.SightingService
	acl       *service.ACLService
	admin     Admin
	logger    logger.Logger
	postLimit int64
	schemas   *schemas
	mux       *http.ServeMux
}

// New creates a Handler and registers its routes.
func New(cfg Config) (*Handler, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.PostLimit <= 0 {
		cfg.PostLimit = DefaultPostLimit
	}
	sc, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	h := &Handler{
		sightings: cfg.Sightings,
		acl:       cfg.ACL,
		admin:     cfg.Admin,
		logger:    cfg.Logger.With("component", "http"),
		postLimit: cfg.PostLimit,
		schemas:   sc,
		mux:       http.NewServeMux(),
	}
	h.registerRoutes()
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /i", h.handleInfo)
	h.mux.HandleFunc("GET /{$}", h.handleHelp)

	h.mux.HandleFunc("GET /w/{ns...}", h.handleWrite)
	h.mux.HandleFunc("POST /wb", h.handleBulkWrite)

	h.mux.HandleFunc("GET /r/{ns...}", h.handleRead)
	h.mux.HandleFunc("GET /rs/{ns...}", h.handleReadWithStats)
	h.mux.HandleFunc("POST /rb", h.handleBulkRead)
	h.mux.HandleFunc("POST /rbs", h.handleBulkReadWithStats)

	h.mux.HandleFunc("GET /d/{ns...}", h.handleDelete)
	h.mux.HandleFunc("DELETE /d/{ns...}", h.handleDelete)

	h.mux.HandleFunc("GET /c/{section...}", h.handleConfigure)
}

// writeJSON writes v as the JSON response body.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L(r.Context()).Error("failed to encode response", "error", err)
	}
}

// writeMessage writes a {"message": ...} status result.
func (h *Handler) writeMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, r, status, MessageResponse{Message: msg})
}

// writeError converts err into an error envelope with the status derived
// from its code. Non-domain errors are logged and reported as internal.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	de, ok := domain.As(err)
	if !ok {
		logger.L(r.Context()).Error("internal error", "error", err, "path", r.URL.Path)
	} else if de.HTTPStatus() >= http.StatusInternalServerError {
		logger.L(r.Context()).Error("request failed", "error", err, "path", r.URL.Path)
	}
	w.Header().Set("X-Error-Code", de.Code)
	h.writeJSON(w, r, de.HTTPStatus(), errorBody(de))
}

func errorBody(de *domain.DomainError) MessageResponse {
	return MessageResponse{Message: de.Message, Code: de.Code, Details: de.Details}
}

// apiKey extracts the API key from the Authorization header.
func apiKey(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if rest, ok := strings.CutPrefix(v, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return v
}

// namespace returns the normalized wildcard namespace of the route.
func namespace(r *http.Request) (string, error) {
	ns := domain.NormalizeNamespace(r.PathValue("ns"))
	if err := domain.ValidateNamespace(ns); err != nil {
		return "", err
	}
	return ns, nil
}
