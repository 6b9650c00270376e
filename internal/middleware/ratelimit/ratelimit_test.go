package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(perMinute, burst int) (*Limiter, *time.Time) {
	clock := time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, Burst: burst, ExpiresIn: time.Minute})
	rl.now = func() time.Time { return clock }
	return rl, &clock
}

func TestAllowBurstThenRefill(t *testing.T) {
	rl, clock := newTestLimiter(60, 3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("1.2.3.4"), "request %d within burst", i)
	}
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "clients have separate buckets")

	*clock = clock.Add(time.Second)
	assert.True(t, rl.Allow("1.2.3.4"), "one token refills per second at 60/min")
	assert.Equal(t, int64(1), rl.GetMetrics().Rejected)
}

func TestCleanupDropsIdleClients(t *testing.T) {
	rl, clock := newTestLimiter(60, 1)
	defer rl.Stop()

	rl.Allow("a")
	*clock = clock.Add(30 * time.Second)
	rl.Allow("b")
	*clock = clock.Add(45 * time.Second)

	rl.cleanupStaleEntries()
	assert.Equal(t, 1, rl.ActiveClients())
}

func TestMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(60, 1)
	defer rl.Stop()

	h := rl.Middleware(func(r *http.Request) string { return r.RemoteAddr }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestStopIsIdempotent(t *testing.T) {
	rl := NewLimiter(Config{})
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
