package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tabvault/tabvault-go/internal/core/service"
	"github.com/tabvault/tabvault-go/internal/server/httpserver/handler"
	"github.com/tabvault/tabvault-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Engine handles all persistence operations.
	Engine *service.Engine

	// Logger for request logging.
	Logger *slog.Logger

	// Metrics serves /metrics when set; nil disables the endpoint.
	Metrics prometheus.Gatherer

	// RateLimit is the per-IP request rate (requests/second). Zero
	// disables rate limiting.
	RateLimit float64

	// RateBurst is the per-IP burst size when rate limiting is on.
	RateBurst int

	// CORSAllowedOrigins is the list of allowed CORS origins. Empty
	// disables the CORS layer entirely.
	CORSAllowedOrigins []string
}

// NewRouter creates and configures the HTTP router with all routes and
// middleware. Health and metrics endpoints get a light chain so probes
// never hit the rate limiter or flood the access log.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	h := handler.New(cfg.Engine, log)

	light := []Middleware{Recover(log), RequestID()}

	api := []Middleware{Recover(log), RequestID(), AccessLog(log)}
	if len(cfg.CORSAllowedOrigins) > 0 {
		api = append(api, CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.RateLimit > 0 {
		api = append(api, RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	apiHandler := Chain(h, api...)

	mux := http.NewServeMux()

	mux.Handle("GET /health", Chain(h, light...))
	mux.Handle("GET /ready", Chain(h, light...))
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(metric.Handler(cfg.Metrics), light...))
	}

	// Method and path dispatch happens inside the handler; the router
	// only decides which middleware chain a subtree gets.
	mux.Handle("/sessions", apiHandler)
	mux.Handle("/sessions/", apiHandler)
	mux.Handle("/admin/v1/", apiHandler)

	return mux
}
