package monitoring

import (
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RequestReceived()
	m.RequestReceived()
	m.ChatRequestReceived()
	m.WorkflowSucceeded(2 * time.Second)
	m.WorkflowFailed()
	m.ExpertFailed("GPT", "TIMEOUT")
	m.ParseFailed("synthesis")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.totalRequests))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chatRequests))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workflowSuccess))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workflowErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.expertFailures.WithLabelValues("GPT", "TIMEOUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.parseFailures.WithLabelValues("synthesis")))
}

func TestMonitor_SnapshotHealthy(t *testing.T) {
	m := New(prometheus.NewRegistry())
	for i := 0; i < 10; i++ {
		m.ExpertSucceeded("GPT")
	}

	h := m.Snapshot(3)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, 3, h.ActiveSessions)
	assert.Equal(t, 1.0, h.ExpertSuccessRates["GPT"])
	assert.Empty(t, h.ActiveAlerts)
	assert.GreaterOrEqual(t, h.UptimeSeconds, 0.0)
}

func TestMonitor_SnapshotDegradedExpertRaisesAlert(t *testing.T) {
	m := New(prometheus.NewRegistry())
	for i := 0; i < 8; i++ {
		m.ExpertFailed("Clova", "RATE_LIMIT")
	}
	m.ExpertSucceeded("Clova")
	m.ExpertSucceeded("GPT")

	h := m.Snapshot(0)
	assert.Equal(t, "degraded", h.Status)
	require.Len(t, h.ActiveAlerts, 1)
	assert.Contains(t, h.ActiveAlerts[0], "Clova")
	assert.InDelta(t, 1.0/9.0, h.ExpertSuccessRates["Clova"], 1e-9)
}

func TestMonitor_WindowSlides(t *testing.T) {
	m := New(prometheus.NewRegistry())
	for i := 0; i < successWindow; i++ {
		m.ExpertFailed("GPT", "TIMEOUT")
	}
	for i := 0; i < successWindow; i++ {
		m.ExpertSucceeded("GPT")
	}

	h := m.Snapshot(0)
	assert.Equal(t, 1.0, h.ExpertSuccessRates["GPT"], "old failures must age out of the window")
}

func TestMonitor_SnapshotListsAllObservedExperts(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ExpertSucceeded("GPT")
	m.ExpertSucceeded("Gemini")
	m.ExpertFailed("Clova", "TIMEOUT")

	h := m.Snapshot(0)
	var names []string
	for name := range h.ExpertSuccessRates {
		names = append(names, name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"Clova", "GPT", "Gemini"}, names)
}
