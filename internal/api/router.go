package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/alert-relay/internal/api/handler"
	apimw "github.com/notifyhub/alert-relay/internal/api/middleware"
	"github.com/notifyhub/alert-relay/internal/broadcast"
	"github.com/notifyhub/alert-relay/internal/service"
)

// Dependencies are everything the HTTP surface needs from main.
type Dependencies struct {
	Service  *service.AlertService
	Hub      *broadcast.Hub
	Workers  handler.WorkerSnapshot
	Ping     handler.Pinger
	Registry *prometheus.Registry
	Logger   *zap.Logger

	WebhookRateLimit float64
	WriteWait        time.Duration
}

// NewRouter builds the chi router with all middleware and routes registered.
func NewRouter(d Dependencies) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(d.Logger))

	// --- handler instances ---
	wh := handler.NewWebhookHandler(d.Service, d.Logger)
	ah := handler.NewAlertHandler(d.Service, d.Logger)
	oh := handler.NewOverlayHandler(d.Hub, d.WriteWait, d.Logger)
	mh := handler.NewMetricsHandler(d.Workers, d.Hub.Len)
	hh := handler.NewHealthHandler(d.Ping)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Get("/ready", hh.Ready)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))

	// Inbound events; the limit protects the store from redelivery storms.
	r.With(apimw.RateLimit(d.WebhookRateLimit, int(d.WebhookRateLimit)+1)).
		Post("/webhooks/kick", wh.Kick)

	// Overlay browser sources
	r.Get("/ws", oh.Connect)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/recipients/{recipientId}/alerts/test", ah.SendTest)

		// JSON metrics snapshot
		r.Get("/metrics", mh.GetMetrics)
	})

	return r
}
