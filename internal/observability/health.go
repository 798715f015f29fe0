package observability

import (
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// HealthChecker tracks service readiness and exposes it as an HTTP handler.
type HealthChecker struct {
	logger    *zap.Logger
	mu        sync.RWMutex
	ready     bool
	feedReady bool
	usesFeed  bool
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		logger: logger,
		ready:  true,
	}
}

// SetFeedReady sets the market data feed readiness status
func (h *HealthChecker) SetFeedReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.feedReady = ready
	h.usesFeed = true
}

// SetReady sets overall service readiness. Used during shutdown to fail
// health checks before the listener closes.
func (h *HealthChecker) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// Handler serves the health check endpoint.
func (h *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		ready := h.ready
		feedReady := h.feedReady
		usesFeed := h.usesFeed
		h.mu.RUnlock()

		// Healthy when ready and (not using a feed or the feed is up)
		if ready && (!usesFeed || feedReady) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("NOT_READY"))
		}
	}
}
