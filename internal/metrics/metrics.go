package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/alert-relay/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	AlertsReceived   *prometheus.CounterVec
	AlertsRejected   *prometheus.CounterVec
	AlertsDelivered  *prometheus.CounterVec
	AlertsDropped    prometheus.Counter
	DeliveryFailures prometheus.Counter
	DeliveryLatency  prometheus.Histogram
	WorkerExits      *prometheus.CounterVec

	reg prometheus.Registerer
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AlertsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_received_total",
			Help: "Verified inbound events accepted and queued, by alert type.",
		}, []string{"type"}),

		AlertsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_rejected_total",
			Help: "Inbound events rejected before queueing, by reason.",
		}, []string{"reason"}),

		AlertsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_delivered_total",
			Help: "Alerts handed to the broadcaster and removed from the store, by type.",
		}, []string{"type"}),

		AlertsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alerts_dropped_total",
			Help: "Queued ids whose payload was missing after all load retries.",
		}),

		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alert_send_failures_total",
			Help: "Per-connection send failures during fan-out.",
		}),

		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alert_delivery_seconds",
			Help:    "Time from ingestion to fan-out.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		}),

		WorkerExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alert_worker_exits_total",
			Help: "Consumer worker exits, by final state.",
		}, []string{"state"}),

		reg: reg,
	}

	reg.MustRegister(
		m.AlertsReceived,
		m.AlertsRejected,
		m.AlertsDelivered,
		m.AlertsDropped,
		m.DeliveryFailures,
		m.DeliveryLatency,
		m.WorkerExits,
	)

	return m
}

// RegisterGauges exposes live process state read on every scrape.
// activeWorkers and openConns must be safe for concurrent use.
func (m *Metrics) RegisterGauges(activeWorkers, openConns func() int) {
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "alert_workers_active",
			Help: "Recipients with a running consumer worker.",
		}, func() float64 { return float64(activeWorkers()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "overlay_connections_open",
			Help: "Registered overlay connections.",
		}, func() float64 { return float64(openConns()) }),
	)
}

// WorkerHooks returns the callbacks expected by worker.MetricHooks.
// Centralises the prometheus observation calls so the worker package stays
// import-free.
func (m *Metrics) WorkerHooks() (
	onDelivered func(a *domain.Alert),
	onDropped func(),
	onExit func(state string),
) {
	onDelivered = func(a *domain.Alert) {
		m.AlertsDelivered.WithLabelValues(string(a.Type())).Inc()
		if a.CreatedAt > 0 {
			since := time.Since(time.UnixMilli(a.CreatedAt))
			m.DeliveryLatency.Observe(since.Seconds())
		}
	}
	onDropped = func() { m.AlertsDropped.Inc() }
	onExit = func(state string) { m.WorkerExits.WithLabelValues(state).Inc() }
	return
}

// OnSendFailed is the broadcaster's per-connection failure hook.
func (m *Metrics) OnSendFailed() { m.DeliveryFailures.Inc() }

// OnReceived and OnRejected are the ingress hooks.
func (m *Metrics) OnReceived(t domain.AlertType) {
	m.AlertsReceived.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) OnRejected(reason string) {
	m.AlertsRejected.WithLabelValues(reason).Inc()
}
