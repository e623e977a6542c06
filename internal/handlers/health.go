package handlers

import (
	"context"
	"net/http"
	"time"

	applog "nutrilabel/internal/log"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status   string    `json:"status"`
	Time     time.Time `json:"time"`
	Database string    `json:"database,omitempty"`
}

// Health is a readiness handler suitable for infrastructure probes. With a
// Pinger configured it also checks the database and answers 503 when the
// database is unreachable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	applog.Debug(r.Context(), "health check requested", "method", r.Method)
	resp := healthResponse{
		Status: "ok",
		Time:   time.Now().UTC(),
	}
	status := http.StatusOK

	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp.Database = "ok"
		if err := h.store.Ping(ctx); err != nil {
			applog.Error(r.Context(), "database ping failed", "error", err)
			resp.Status = "degraded"
			resp.Database = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, r, status, resp)
	applog.Debug(r.Context(), "health check responded", "status", resp.Status)
}
