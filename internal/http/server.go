package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cajaclaro/internal/auth"
	"cajaclaro/internal/cache"
	"cajaclaro/internal/core"
	applog "cajaclaro/internal/log"
	"cajaclaro/internal/middleware/ratelimit"
	"cajaclaro/internal/middleware/security"
	"cajaclaro/internal/middleware/trace"
	"cajaclaro/internal/payments"
	"cajaclaro/internal/services"
	"cajaclaro/internal/storage"
)

// Deps are the services the API exposes.
type Deps struct {
	Store      storage.Store
	Accounts   *services.AccountService
	Ledger     *services.LedgerService
	Recurring  *services.RecurringService
	Dashboard  *services.DashboardService
	Milestones *services.MilestoneService
	Payments   *payments.Service
	Verifier   *auth.Verifier
	Location   *time.Location
	// Caches is optional; its counters are exported on /metrics.
	Caches *cache.Manager
}

// Options tune the transport.
type Options struct {
	RateLimitPerMinute int
	RateLimitBurst     int
	ImportMaxBytes     int64
}

type Server struct {
	http.Server
	deps   Deps
	opts   Options
	logger *applog.Logger
	now    func() time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	startedAt        time.Time
	metrics          appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if opts.ImportMaxBytes <= 0 {
		opts.ImportMaxBytes = 5 << 20
	}

	detector := security.NewDetector()
	s := &Server{
		deps:   deps,
		opts:   opts,
		logger: applog.ForComponent(applog.ComponentHTTP),
		now:    time.Now,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			Burst:             opts.RateLimitBurst,
		}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, nil),
		startedAt:        time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// Gateways authenticate with their own signatures
	mux.HandleFunc("POST /api/v1/webhooks/{gateway}", s.handlePaymentWebhook)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/negocio", s.handleOnboard)
	api.HandleFunc("GET /api/v1/negocio", s.withAccount(s.handleGetAccount))
	api.HandleFunc("PUT /api/v1/negocio", s.withAccount(s.handleUpdateAccount))

	api.HandleFunc("POST /api/v1/transacciones", s.withAccount(s.handleCreateTransaction))
	api.HandleFunc("GET /api/v1/transacciones", s.withAccount(s.handleListTransactions))
	api.HandleFunc("POST /api/v1/transacciones/importar", s.withAccount(s.handleImport))
	api.HandleFunc("GET /api/v1/transacciones/exportar", s.withAccount(s.handleExport))

	api.HandleFunc("POST /api/v1/recurrentes", s.withAccount(s.handleCreateRecurring))
	api.HandleFunc("GET /api/v1/recurrentes", s.withAccount(s.handleListRecurring))
	api.HandleFunc("POST /api/v1/recurrentes/{id}/pausar", s.withAccount(s.handlePauseRecurring))
	api.HandleFunc("POST /api/v1/recurrentes/{id}/reanudar", s.withAccount(s.handleResumeRecurring))
	api.HandleFunc("DELETE /api/v1/recurrentes/{id}", s.withAccount(s.handleDeleteRecurring))

	api.HandleFunc("GET /api/v1/dashboard", s.withAccount(s.handleDashboard))
	api.HandleFunc("POST /api/v1/simulador", s.withAccount(s.handleSimulate))

	api.HandleFunc("POST /api/v1/hitos", s.withAccount(s.handleCreateMilestone))
	api.HandleFunc("DELETE /api/v1/hitos/{id}", s.withAccount(s.handleDeleteMilestone))

	mux.Handle("/api/v1/", auth.Middleware(deps.Verifier)(api))

	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, detector.ExtractClientIP(r),
			applog.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "rate_limited", "too many requests").Write(w)
	})(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              addr,
		Handler:           detector.Middleware(headers.Middleware(s.traceMiddleware.Middleware(limited))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// accountHandler is a handler bound to the caller's account.
type accountHandler func(w http.ResponseWriter, r *http.Request, account core.Account)

// withAccount resolves the caller's account; callers that have not
// onboarded yet get 404.
func (s *Server) withAccount(next accountHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			writeError(w, r, "resolve account", auth.ErrMissingToken)
			return
		}
		account, err := s.deps.Accounts.ForOwner(r.Context(), id.OwnerID)
		if err != nil {
			writeError(w, r, "resolve account", err)
			return
		}
		ctx := applog.ContextWith(r.Context(), applog.FieldAccountID, account.ID.String())
		next(w, r.WithContext(ctx), account)
	}
}

// today is the current business date.
func (s *Server) today() core.Date {
	return services.BusinessDate(s.now(), s.deps.Location)
}

// Shutdown stops the listener and the background goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
