package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/candorops/signoff/internal/bus"
	"github.com/candorops/signoff/internal/config"
	"github.com/candorops/signoff/internal/observability"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Bus          *bus.Coordinator
	Metrics      *observability.Metrics
	Authenticate func(http.Handler) http.Handler

	// Health endpoints. Defaulted when nil so tests can stay light.
	HealthHandler  http.Handler
	ReadyHandler   http.Handler
	MetricsHandler http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.HealthHandler == nil {
		deps.HealthHandler = observability.HandleHealth()
	}
	if deps.ReadyHandler == nil {
		deps.ReadyHandler = observability.HandleReady(observability.ReadinessChecks{
			RecoveryComplete: func() bool { return true },
		})
	}
	if deps.MetricsHandler == nil {
		deps.MetricsHandler = observability.Handler()
	}
	auth := deps.Authenticate
	if auth == nil {
		auth = Authenticator(deps.Config.Identity, nil)
	}

	r := chi.NewRouter()

	// Instrumentation outermost, then protection and headers, on every route.
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}
	r.Use(observability.TracingMiddleware)
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes bypass authentication.
	r.Method(http.MethodGet, "/healthz", deps.HealthHandler)
	r.Method(http.MethodGet, "/readyz", deps.ReadyHandler)
	r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)

	// Versioned API behind the full middleware chain.
	r.Route("/v1", func(r chi.Router) {
		r.Use(auth)
		r.Use(RequestLogging(logger))

		// The live stream is long-lived and must not inherit the handler
		// deadline.
		r.Get("/incidents/{incidentID}/live", handleLive(deps.Bus, deps.Config.Live, logger, deps.Metrics))

		r.Group(func(r chi.Router) {
			r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))

			r.Post("/incidents/{incidentID}/state", handleEmitState(deps.Bus))
			r.Post("/incidents/{incidentID}/pause", handlePause(deps.Bus))
			r.Post("/incidents/{incidentID}/resume", handleResume(deps.Bus))
			r.Get("/incidents", handleListIncidents(deps.Bus))
			r.Get("/incidents/{incidentID}", handleGetIncident(deps.Bus))
			r.Get("/incidents/{incidentID}/action", handleGetAction(deps.Bus))
			r.Get("/actions", handleListActions(deps.Bus))
		})
	})

	return r
}
