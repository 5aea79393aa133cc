package httpserver

import (
	"net/http"
	"time"

	"github.com/yndnr/sightingdb-go/internal/telemetry/logger"
	"github.com/yndnr/sightingdb-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// API serves the SightingDB endpoints.
	API http.Handler

	Logger logger.Logger

	// Metrics, when set, instruments requests and is exposed on MetricsPath.
	Metrics     *metric.Registry
	MetricsPath string

	// AdminAllowList restricts /c and the metrics endpoint to these
	// IPs/CIDRs. Empty means no restriction.
	AdminAllowList []string

	// CORSAllowedOrigins enables CORS when non-empty.
	CORSAllowedOrigins []string

	// RateLimit is requests per second per client; zero disables it.
	RateLimit float64
	RateBurst int

	// EnableAudit logs every completed request.
	EnableAudit bool
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		MetricsPath: "/metrics",
		EnableAudit: true,
	}
}

// NewRouter wraps the API handler in the middleware chain and mounts the
// metrics endpoint.
//
// Chain order: Recover -> RequestID -> Instrument -> Audit -> CORS ->
// RateLimit -> API.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	chain := []Middleware{Recover(log), RequestID(log)}
	if cfg.Metrics != nil {
		chain = append(chain, Instrument(cfg.Metrics))
	}
	if cfg.EnableAudit {
		chain = append(chain, Audit(log))
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		chain = append(chain, CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.RateLimit > 0 {
		rl := RateLimitConfig{Rate: cfg.RateLimit, Burst: cfg.RateBurst, IdleTTL: 10 * time.Minute}
		if cfg.Metrics != nil {
			rl.OnLimited = cfg.Metrics.RecordRateLimited
		}
		chain = append(chain, RateLimit(rl))
	}

	adminACL := NetworkACL(NetworkACLConfig{AllowList: cfg.AdminAllowList, Logger: log})
	api := Chain(cfg.API, chain...)

	mux := http.NewServeMux()
	mux.Handle("/", api)
	mux.Handle("/c/", adminACL(api))

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, Chain(cfg.Metrics.Handler(), Recover(log), adminACL))
	}
	return mux
}
