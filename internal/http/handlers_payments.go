package http

import (
	"io"
	"net/http"
	"sync/atomic"

	"cajaclaro/internal/payments"
)

// maxWebhookBody caps gateway notifications.
const maxWebhookBody = 64 << 10

// handlePaymentWebhook confirms a plan purchase. Gateways retry on non-2xx,
// so a replayed confirmation answers 200 with applied=false.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if s.deps.Payments == nil {
		writeError(w, r, "payment webhook", payments.ErrUnknownGateway)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, r, "payment webhook", err)
		return
	}
	res, err := s.deps.Payments.Confirm(r.Context(), r.PathValue("gateway"), r.Header, body)
	if err != nil {
		writeError(w, r, "payment webhook", err)
		return
	}
	if res.Applied {
		atomic.AddInt64(&s.metrics.paymentsApplied, 1)
	}
	NewJSONResponse().Data(map[string]any{
		"applied": res.Applied,
		"plan":    res.Confirmation.Plan,
	}).Write(w)
}
