// Package healthprobe serves the liveness and readiness endpoints.
// Liveness is unconditional; readiness flips on once the app has
// authenticated with the exchange and started its loops, and off again
// at the start of shutdown so the load balancer drains first.
package healthprobe

import (
	"net/http"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// HealthChecker tracks process readiness.
type HealthChecker struct {
	started time.Time
	ready   atomic.Bool
}

// New creates a HealthChecker that reports not-ready.
func New() *HealthChecker {
	return &HealthChecker{started: time.Now()}
}

// SetReady flips the readiness state.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// HealthResponse is the body of both probe endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Message string `json:"message,omitempty"`
}

// Health handles liveness. Always 200 while the process runs.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.write(w, http.StatusOK, HealthResponse{
			Status: "healthy",
			Uptime: time.Since(h.started).String(),
		})
	}
}

// Ready handles readiness. 503 until SetReady(true).
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.ready.Load() {
			h.write(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "not_ready",
				Message: "application is starting",
			})
			return
		}

		h.write(w, http.StatusOK, HealthResponse{
			Status: "ready",
			Uptime: time.Since(h.started).String(),
		})
	}
}

func (h *HealthChecker) write(w http.ResponseWriter, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
