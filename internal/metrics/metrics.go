// ABOUTME: Prometheus collectors for webhook ingestion, provider calls, realtime fan-out and HTTP
// ABOUTME: Collectors live on a private registry; helper methods are safe on a nil *Metrics

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for chat-gateway
type Metrics struct {
	registry *prometheus.Registry

	// Webhook ingestion
	WebhookRequests *prometheus.CounterVec
	WebhookEvents   *prometheus.CounterVec

	// Message log
	MessagesRecorded *prometheus.CounterVec

	// Provider calls
	ProviderRequests *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec

	// Realtime fan-out
	RealtimeClients    prometheus.Gauge
	RealtimeEvictions  prometheus.Counter
	RealtimeBroadcasts *prometheus.CounterVec

	// Operator HTTP API
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	StartTime time.Time
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{registry: reg, StartTime: time.Now()}

	m.WebhookRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatgw_webhook_requests_total",
			Help: "Webhook deliveries by outcome",
		},
		[]string{"result"},
	)

	m.WebhookEvents = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatgw_webhook_events_total",
			Help: "Normalized webhook events by kind and outcome",
		},
		[]string{"kind", "result"},
	)

	m.MessagesRecorded = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatgw_messages_recorded_total",
			Help: "Messages inserted into the message log by sender",
		},
		[]string{"sender"},
	)

	m.ProviderRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatgw_provider_requests_total",
			Help: "Provider HTTP attempts by operation and status code",
		},
		[]string{"op", "status"},
	)

	m.ProviderDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatgw_provider_request_duration_seconds",
			Help:    "Duration of provider HTTP attempts in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"op"},
	)

	m.RealtimeClients = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatgw_realtime_clients",
			Help: "Currently connected realtime streams",
		},
	)

	m.RealtimeEvictions = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "chatgw_realtime_evictions_total",
			Help: "Realtime streams dropped because their buffer was full",
		},
	)

	m.RealtimeBroadcasts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatgw_realtime_broadcasts_total",
			Help: "Realtime events broadcast by event kind",
		},
		[]string{"event"},
	)

	m.HTTPRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatgw_http_requests_total",
			Help: "Operator API requests by method and status code",
		},
		[]string{"method", "code"},
	)

	m.HTTPDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatgw_http_request_duration_seconds",
			Help:    "Duration of operator API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WebhookRequest counts one webhook delivery.
func (m *Metrics) WebhookRequest(result string) {
	if m == nil {
		return
	}
	m.WebhookRequests.WithLabelValues(result).Inc()
}

// WebhookEvent counts one normalized event outcome.
func (m *Metrics) WebhookEvent(kind, result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(kind, result).Inc()
}

// MessageRecorded counts one inserted message.
func (m *Metrics) MessageRecorded(sender string) {
	if m == nil {
		return
	}
	m.MessagesRecorded.WithLabelValues(sender).Inc()
}

// ProviderAttempt records one provider HTTP attempt. Status 0 means no response.
func (m *Metrics) ProviderAttempt(op string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(op, strconv.Itoa(status)).Inc()
	m.ProviderDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ClientConnected adjusts the connected-stream gauge.
func (m *Metrics) ClientConnected(delta int) {
	if m == nil {
		return
	}
	m.RealtimeClients.Add(float64(delta))
}

// ClientEvicted counts a stream dropped for back-pressure.
func (m *Metrics) ClientEvicted() {
	if m == nil {
		return
	}
	m.RealtimeEvictions.Inc()
}

// Broadcast counts one fan-out of an event kind.
func (m *Metrics) Broadcast(event string) {
	if m == nil {
		return
	}
	m.RealtimeBroadcasts.WithLabelValues(event).Inc()
}

// HTTPRequest records one operator API request.
func (m *Metrics) HTTPRequest(method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(d.Seconds())
}
