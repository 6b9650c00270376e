package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	applog "cajaclaro/internal/log"
)

// appMetrics counts domain events for /metrics.
type appMetrics struct {
	transactionsRecorded int64
	rowsImported         int64
	paymentsApplied      int64
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks the ledger store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	code := http.StatusOK
	checks := map[string]any{
		"rate_limiter": map[string]any{
			"active_clients": s.rateLimiter.ActiveClients(),
			"status":         "ok",
		},
	}
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		code = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	NewJSONResponse().Status(code).Data(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.WriteHeader(http.StatusOK)

	// Prometheus text exposition
	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_request_duration_avg_ms Average request duration\n")
	fmt.Fprintf(w, "# TYPE http_request_duration_avg_ms gauge\n")
	fmt.Fprintf(w, "http_request_duration_avg_ms %.2f\n\n", traceMetrics.AverageMs())

	fmt.Fprintf(w, "# HELP transactions_recorded_total Manual transactions recorded\n")
	fmt.Fprintf(w, "# TYPE transactions_recorded_total counter\n")
	fmt.Fprintf(w, "transactions_recorded_total %d\n\n", atomic.LoadInt64(&s.metrics.transactionsRecorded))

	fmt.Fprintf(w, "# HELP transactions_imported_total Rows imported from spreadsheets\n")
	fmt.Fprintf(w, "# TYPE transactions_imported_total counter\n")
	fmt.Fprintf(w, "transactions_imported_total %d\n\n", atomic.LoadInt64(&s.metrics.rowsImported))

	fmt.Fprintf(w, "# HELP plan_payments_applied_total Payment confirmations that changed a plan\n")
	fmt.Fprintf(w, "# TYPE plan_payments_applied_total counter\n")
	fmt.Fprintf(w, "plan_payments_applied_total %d\n\n", atomic.LoadInt64(&s.metrics.paymentsApplied))

	fmt.Fprintf(w, "# HELP rate_limit_rejected_total Requests rejected by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE rate_limit_rejected_total counter\n")
	fmt.Fprintf(w, "rate_limit_rejected_total %d\n\n", rateLimitMetrics.Rejected)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	if s.deps.Caches != nil {
		cs := s.deps.Caches.Stats()
		fmt.Fprintf(w, "# HELP cache_hits_total Account cache hits\n")
		fmt.Fprintf(w, "# TYPE cache_hits_total counter\n")
		fmt.Fprintf(w, "cache_hits_total %d\n\n", cs.Hits)

		fmt.Fprintf(w, "# HELP cache_misses_total Account cache misses\n")
		fmt.Fprintf(w, "# TYPE cache_misses_total counter\n")
		fmt.Fprintf(w, "cache_misses_total %d\n\n", cs.Misses)
	}

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", time.Since(s.startedAt).Seconds())
}
