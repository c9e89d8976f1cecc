package analyzer

import (
	"sync"
	"time"
)

// MetricsSummary aggregates analyzer activity since process start.
type MetricsSummary struct {
	TotalRequests    int64   `json:"total_requests"`
	Scored           int64   `json:"scored"`
	NoFace           int64   `json:"no_face"`
	Unreadable       int64   `json:"unreadable"`
	Failed           int64   `json:"failed"`
	CacheHits        int64   `json:"cache_hits"`
	AverageScore     float64 `json:"average_score"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

type metrics struct {
	mu         sync.Mutex
	summary    MetricsSummary
	scoreSum   float64
	latencySum time.Duration
}

func (m *metrics) record(res *Result, err error, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.summary.TotalRequests++
	m.latencySum += latency

	switch {
	case err != nil || res == nil:
		m.summary.Failed++
	case res.Outcome == OutcomeScored:
		m.summary.Scored++
		if res.Scores != nil {
			m.scoreSum += res.Scores.Total
		}
	case res.Outcome == OutcomeNoFace:
		m.summary.NoFace++
	case res.Outcome == OutcomeUnreadable:
		m.summary.Unreadable++
	}
	if res != nil && res.Cached {
		m.summary.CacheHits++
	}
}

func (m *metrics) snapshot() MetricsSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.summary
	if out.Scored > 0 {
		out.AverageScore = m.scoreSum / float64(out.Scored)
	}
	if out.TotalRequests > 0 {
		out.AverageLatencyMs = float64(m.latencySum.Microseconds()) / 1000 / float64(out.TotalRequests)
	}
	return out
}

// Metrics returns a snapshot of the analyzer counters.
func (a *Analyzer) Metrics() MetricsSummary {
	return a.metrics.snapshot()
}
