package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// successWindow is how many recent outcomes feed a per-expert success rate.
const successWindow = 50

// alertThreshold marks an expert degraded below this success rate.
const alertThreshold = 0.5

// Monitor owns the service metrics and the health snapshot state.
type Monitor struct {
	startedAt time.Time

	totalRequests   prometheus.Counter
	chatRequests    prometheus.Counter
	workflowSuccess prometheus.Counter
	workflowErrors  prometheus.Counter
	expertFailures  *prometheus.CounterVec
	parseFailures   *prometheus.CounterVec

	requestDuration  *prometheus.HistogramVec
	workflowDuration prometheus.Histogram
	expertLatency    *prometheus.HistogramVec

	mu      sync.Mutex
	windows map[string]*outcomeRing
}

// outcomeRing is a fixed-size window of recent expert outcomes.
type outcomeRing struct {
	outcomes [successWindow]bool
	next     int
	filled   int
}

func (r *outcomeRing) record(ok bool) {
	r.outcomes[r.next] = ok
	r.next = (r.next + 1) % successWindow
	if r.filled < successWindow {
		r.filled++
	}
}

func (r *outcomeRing) rate() float64 {
	if r.filled == 0 {
		return 1.0
	}
	ok := 0
	for i := 0; i < r.filled; i++ {
		if r.outcomes[i] {
			ok++
		}
	}
	return float64(ok) / float64(r.filled)
}

func New(reg prometheus.Registerer) *Monitor {
	m := &Monitor{
		startedAt: time.Now().UTC(),
		windows:   make(map[string]*outcomeRing),
		totalRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linesage_total_requests",
			Help: "Total HTTP requests received.",
		}),
		chatRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linesage_chat_requests",
			Help: "Chat turns received.",
		}),
		workflowSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linesage_workflow_success_total",
			Help: "Turns that produced a recommendation.",
		}),
		workflowErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linesage_workflow_errors_total",
			Help: "Turns that failed outright.",
		}),
		expertFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linesage_expert_failures_total",
			Help: "Expert call failures by expert and error kind.",
		}, []string{"expert", "kind"}),
		parseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linesage_parse_failures_total",
			Help: "Moderator phase outputs that failed to parse.",
		}, []string{"phase"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linesage_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		workflowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linesage_workflow_duration_seconds",
			Help:    "End-to-end turn latency.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180},
		}),
		expertLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linesage_expert_latency_seconds",
			Help:    "Per-expert call latency.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"expert"}),
	}

	reg.MustRegister(
		m.totalRequests, m.chatRequests,
		m.workflowSuccess, m.workflowErrors,
		m.expertFailures, m.parseFailures,
		m.requestDuration, m.workflowDuration, m.expertLatency,
	)
	return m
}

func (m *Monitor) RequestReceived()     { m.totalRequests.Inc() }
func (m *Monitor) ChatRequestReceived() { m.chatRequests.Inc() }
func (m *Monitor) WorkflowSucceeded(d time.Duration) {
	m.workflowSuccess.Inc()
	m.workflowDuration.Observe(d.Seconds())
}
func (m *Monitor) WorkflowFailed() { m.workflowErrors.Inc() }

func (m *Monitor) ObserveRequest(method, path, status string, d time.Duration) {
	m.requestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

func (m *Monitor) ExpertFailed(expert, kind string) {
	m.expertFailures.WithLabelValues(expert, kind).Inc()
	m.recordOutcome(expert, false)
}

func (m *Monitor) ExpertSucceeded(expert string) {
	m.recordOutcome(expert, true)
}

func (m *Monitor) ExpertLatency(expert string, seconds float64) {
	m.expertLatency.WithLabelValues(expert).Observe(seconds)
}

func (m *Monitor) ParseFailed(phase string) {
	m.parseFailures.WithLabelValues(phase).Inc()
}

func (m *Monitor) recordOutcome(expert string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ring, exists := m.windows[expert]
	if !exists {
		ring = &outcomeRing{}
		m.windows[expert] = ring
	}
	ring.record(ok)
}

// Health is the snapshot served by the health endpoint.
type Health struct {
	Status             string             `json:"status"`
	UptimeSeconds      float64            `json:"uptime_seconds"`
	ActiveSessions     int                `json:"active_sessions"`
	ExpertSuccessRates map[string]float64 `json:"expert_success_rates"`
	ActiveAlerts       []string           `json:"active_alerts,omitempty"`
}

// Snapshot assembles the current health view. Experts whose recent success
// rate is below the alert threshold raise an alert and degrade the status.
func (m *Monitor) Snapshot(activeSessions int) Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := Health{
		Status:             "healthy",
		UptimeSeconds:      time.Since(m.startedAt).Seconds(),
		ActiveSessions:     activeSessions,
		ExpertSuccessRates: make(map[string]float64, len(m.windows)),
	}
	for expert, ring := range m.windows {
		rate := ring.rate()
		h.ExpertSuccessRates[expert] = rate
		if rate < alertThreshold {
			h.ActiveAlerts = append(h.ActiveAlerts, expert+" success rate degraded")
		}
	}
	if len(h.ActiveAlerts) > 0 {
		h.Status = "degraded"
	}
	return h
}
