// Package observability provides Prometheus metrics for the chess MCP
// server, following the same nil-safe, config-gated pattern the upstream
// server used for its own Metrics struct: every Record* method tolerates a
// nil *Metrics so callers never need a feature-flag check of their own.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kadirpekel/chessmcp/internal/engine"
)

// Config gates metrics collection and names the registry namespace.
type Config struct {
	Enabled   bool
	Namespace string
}

// SetDefaults fills in an empty namespace.
func (c *Config) SetDefaults() {
	if c.Namespace == "" {
		c.Namespace = "chessmcp"
	}
}

// Metrics holds every Prometheus collector the server reports through. A
// nil *Metrics is valid and every method becomes a no-op, so wiring it in
// is optional.
type Metrics struct {
	registry *prometheus.Registry

	sessionsCreated *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	sessionsEnded   *prometheus.CounterVec

	engineSearches   *prometheus.CounterVec
	engineSearchDur  *prometheus.HistogramVec
	engineTimeouts   *prometheus.CounterVec
	engineLoad       *prometheus.GaugeVec

	rateLimitDenials *prometheus.CounterVec

	transportRequests *prometheus.CounterVec
	transportDuration *prometheus.HistogramVec

	ratchetDecryptFailures prometheus.Counter
}

// New builds a Metrics instance from cfg, returning (nil, nil) when
// disabled so callers can pass the result straight through without a
// conditional.
func New(cfg Config) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	m := &Metrics{registry: prometheus.NewRegistry()}
	ns := cfg.Namespace

	m.sessionsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "sessions_created_total", Help: "Game sessions created, by AI opponent.",
	}, []string{"ai_opponent"})
	m.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "sessions_active", Help: "Currently live game sessions.",
	})
	m.sessionsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "sessions_ended_total", Help: "Game sessions ended, by final status.",
	}, []string{"status"})

	m.engineSearches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "engine_searches_total", Help: "Engine searches dispatched, by engine and class.",
	}, []string{"engine", "class"})
	m.engineSearchDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "engine_search_duration_seconds", Help: "Engine search latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"engine", "class"})
	m.engineTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "engine_timeouts_total", Help: "Engine searches that hit their deadline.",
	}, []string{"engine", "class"})
	m.engineLoad = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Name: "engine_in_flight", Help: "In-flight searches per engine.",
	}, []string{"engine"})

	m.rateLimitDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "rate_limit_denials_total", Help: "Requests denied by the rate limiter, by class.",
	}, []string{"class"})

	m.transportRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "transport_requests_total", Help: "JSON-RPC requests handled, by transport and method.",
	}, []string{"transport", "method"})
	m.transportDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "transport_request_duration_seconds", Help: "JSON-RPC request handling latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"transport", "method"})

	m.ratchetDecryptFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "ratchet_decrypt_failures_total", Help: "Encrypted envelopes that failed to decrypt.",
	})

	for _, c := range []prometheus.Collector{
		m.sessionsCreated, m.sessionsActive, m.sessionsEnded,
		m.engineSearches, m.engineSearchDur, m.engineTimeouts, m.engineLoad,
		m.rateLimitDenials, m.transportRequests, m.transportDuration,
		m.ratchetDecryptFailures,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler returns the HTTP handler serving this registry's metrics page.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionCreated increments the per-opponent session counter and
// live-session gauge.
func (m *Metrics) RecordSessionCreated(aiOpponent string) {
	if m == nil {
		return
	}
	m.sessionsCreated.WithLabelValues(aiOpponent).Inc()
	m.sessionsActive.Inc()
}

// RecordSessionEnded decrements the live-session gauge and records the
// terminal status reached.
func (m *Metrics) RecordSessionEnded(status string) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.sessionsEnded.WithLabelValues(status).Inc()
}

// RecordSearch satisfies engine.DispatchMetrics.
func (m *Metrics) RecordSearch(engineName string, class engine.Class, duration time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	m.engineSearches.WithLabelValues(engineName, string(class)).Inc()
	m.engineSearchDur.WithLabelValues(engineName, string(class)).Observe(duration.Seconds())
	if timedOut {
		m.engineTimeouts.WithLabelValues(engineName, string(class)).Inc()
	}
}

// SetEngineLoad satisfies engine.DispatchMetrics.
func (m *Metrics) SetEngineLoad(engineName string, inFlight int64) {
	if m == nil {
		return
	}
	m.engineLoad.WithLabelValues(engineName).Set(float64(inFlight))
}

// RecordRateLimitDenial tallies a denied admission by class.
func (m *Metrics) RecordRateLimitDenial(class string) {
	if m == nil {
		return
	}
	m.rateLimitDenials.WithLabelValues(class).Inc()
}

// RecordTransportRequest tallies a handled JSON-RPC request and its
// latency, by transport ("stdio"/"websocket") and method name.
func (m *Metrics) RecordTransportRequest(transport, method string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transportRequests.WithLabelValues(transport, method).Inc()
	m.transportDuration.WithLabelValues(transport, method).Observe(duration.Seconds())
}

// RecordRatchetDecryptFailure tallies one failed envelope decryption.
func (m *Metrics) RecordRatchetDecryptFailure() {
	if m == nil {
		return
	}
	m.ratchetDecryptFailures.Inc()
}
