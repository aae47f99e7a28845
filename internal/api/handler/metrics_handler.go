package handler

import (
	"context"
	"net/http"

	"github.com/notifyhub/alert-relay/internal/domain"
)

// WorkerSnapshot is the read side of the worker pool manager.
type WorkerSnapshot interface {
	ActiveWorkers() int
	QueueDepths(ctx context.Context) (map[string]int64, error)
}

// MetricsHandler serves a human-readable JSON snapshot of the pipeline.
// Raw Prometheus metrics (counters, histograms) are available at /metrics
// via promhttp.Handler and are separate from this endpoint.
type MetricsHandler struct {
	workers     WorkerSnapshot
	connections func() int
}

func NewMetricsHandler(workers WorkerSnapshot, connections func() int) *MetricsHandler {
	return &MetricsHandler{workers: workers, connections: connections}
}

// GetMetrics handles GET /api/v1/metrics
//
// Recipient ids are shortened: a full id is enough to open an overlay.
//
// @Summary  Real-time worker and queue snapshot
// @Tags     metrics
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/metrics [get]
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	depths, err := h.workers.QueueDepths(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}

	byRecipient := make(map[string]int64, len(depths))
	var total int64
	for rid, n := range depths {
		byRecipient[domain.ShortID(rid)] = n
		total += n
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"active_workers":   h.workers.ActiveWorkers(),
		"open_connections": h.connections(),
		"queue_depth":      byRecipient,
		"total_queued":     total,
	})
}
