package httpserver

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/sightingdb-go/internal/core/domain"
	"github.com/yndnr/sightingdb-go/internal/telemetry/logger"
	"github.com/yndnr/sightingdb-go/pkg/cmap"
	"github.com/yndnr/sightingdb-go/pkg/token"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together. The first middleware is the
// outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID assigns every request an ID (a ULID unless the client sent
// one) and stores it, with log, in the request context so that
// logger.L(ctx) tags entries with it. Requests carrying an API key are
// also tagged with the key's fingerprint.
func RequestID(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = ulid.Make().String()
			}
			w.Header().Set(HeaderRequestID, requestID)

			ctx := logger.WithRequestID(r.Context(), requestID)
			if key := bearer(r); key != "" {
				ctx = logger.WithCaller(ctx, token.Fingerprint(key))
			}
			if log != nil {
				ctx = logger.WithLogger(ctx, log)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestMetrics records per-route request counts and latencies.
type RequestMetrics interface {
	RecordRequest(route, method, code string)
	ObserveRequestDuration(route, code string, seconds float64)
}

// Instrument records every request in m, labelled by route prefix.
func Instrument(m RequestMetrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			route := routeOf(r.URL.Path)
			code := strconv.Itoa(wrapped.statusCode)
			m.RecordRequest(route, r.Method, code)
			m.ObserveRequestDuration(route, code, time.Since(start).Seconds())
		})
	}
}

// knownRoutes bounds the route label cardinality.
var knownRoutes = map[string]bool{
	"/w": true, "/wb": true, "/r": true, "/rs": true, "/rb": true, "/rbs": true,
	"/d": true, "/c": true, "/i": true, "/health": true, "/metrics": true,
}

// routeOf maps a request path onto its route prefix; the namespace part
// is dropped.
func routeOf(path string) string {
	if path == "/" || path == "" {
		return "/"
	}
	first, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	route := "/" + first
	if !knownRoutes[route] {
		return "other"
	}
	return route
}

// RateLimitConfig configures the per-client rate limiter.
type RateLimitConfig struct {
	// Rate is the sustained requests per second per client.
	Rate float64

	// Burst is the bucket size. Zero means ceil(Rate).
	Burst int

	// IdleTTL drops limiters of clients idle for longer. Zero means 10m.
	IdleTTL time.Duration

	// OnLimited is called for every rejected request.
	OnLimited func()
}

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64
}

// RateLimit applies a token bucket per client address.
func RateLimit(cfg RateLimitConfig) Middleware {
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(cfg.Rate)))
	}
	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = 10 * time.Minute
	}

	limiters := cmap.New[*clientLimiter]()
	var lastSweep atomic.Int64
	lastSweep.Store(time.Now().UnixNano())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			cl, _ := limiters.GetOrCreate(getClientIP(r), func() *clientLimiter {
				return &clientLimiter{lim: rate.NewLimiter(rate.Limit(cfg.Rate), burst)}
			})
			cl.lastSeen.Store(now.UnixNano())

			if last := lastSweep.Load(); now.UnixNano()-last > int64(idle) && lastSweep.CompareAndSwap(last, now.UnixNano()) {
				cutoff := now.Add(-idle).UnixNano()
				limiters.DeleteFunc(func(_ string, c *clientLimiter) bool {
					return c.lastSeen.Load() < cutoff
				})
			}

			if !cl.lim.AllowN(now, 1) {
				if cfg.OnLimited != nil {
					cfg.OnLimited()
				}
				w.Header().Set("Retry-After", "1")
				writeDomainError(w, domain.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Audit logs one entry per request once it completed.
func Audit(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			attrs := []any{
				"request_id", logger.RequestIDFromContext(r.Context()),
				"caller", logger.CallerFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"client_ip", getClientIP(r),
			}
			switch {
			case wrapped.statusCode >= 500:
				log.Error("request completed with error", attrs...)
			case wrapped.statusCode >= 400:
				log.Warn("request completed with client error", attrs...)
			default:
				log.Info("request completed", attrs...)
			}
		})
	}
}

// Recover turns a handler panic into a 500 response.
func Recover(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("panic recovered",
						"request_id", logger.RequestIDFromContext(r.Context()),
						"error", fmt.Sprint(err),
						"path", r.URL.Path,
					)
					writeDomainError(w, domain.ErrInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// NetworkACLConfig holds configuration for network ACL middleware.
type NetworkACLConfig struct {
	// AllowList holds IPs and CIDRs. Empty means no restriction.
	AllowList []string

	Logger logger.Logger
}

// NetworkACL rejects clients whose address is not in the allow list.
// Invalid entries are logged and ignored.
func NetworkACL(cfg NetworkACLConfig) Middleware {
	var networks []*net.IPNet
	for _, entry := range cfg.AllowList {
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil {
				bits := 8 * len(ip.To16())
				if ip.To4() != nil {
					ip, bits = ip.To4(), 32
				}
				networks = append(networks, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
				continue
			}
		} else if _, n, err := net.ParseCIDR(entry); err == nil {
			networks = append(networks, n)
			continue
		}
		if cfg.Logger != nil {
			cfg.Logger.Warn("invalid entry in allow list", "entry", entry)
		}
	}

	return func(next http.Handler) http.Handler {
		if len(networks) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)
			if ip := net.ParseIP(clientIP); ip != nil {
				for _, n := range networks {
					if n.Contains(ip) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			if cfg.Logger != nil {
				cfg.Logger.Warn("request denied by network ACL", "client_ip", clientIP, "path", r.URL.Path)
			}
			writeDomainError(w, domain.ErrPermissionDenied.WithDetails("client address not in allow list"))
		})
	}
}

// CORS adds Cross-Origin Resource Sharing headers. An empty list or "*"
// allows every origin.
func CORS(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := len(allowedOrigins) == 0
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// writeDomainError writes the error envelope used by the handlers.
func writeDomainError(w http.ResponseWriter, de *domain.DomainError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", de.Code)
	w.WriteHeader(de.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]string{
		"message": de.Message,
		"code":    de.Code,
	})
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// SplitHostPort handles bracketed IPv6 like [::1]:8080.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if rest, ok := strings.CutPrefix(v, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return v
}
