// Package metrics keeps in-process counters for the analyze endpoint.
package metrics

import (
	"sync/atomic"
	"time"
)

type Metrics struct {
	totalAnalyses  atomic.Int64
	totalErrors    atomic.Int64
	totalAnomalies atomic.Int64
	totalLatency   atomic.Int64
	lastAnalysis   atomic.Int64
	started        time.Time
}

// Snapshot is the JSON view served on /health
type Snapshot struct {
	Analyses      int64   `json:"analyses"`
	Errors        int64   `json:"errors"`
	Anomalies     int64   `json:"anomalies"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	LastAnalysis  int64   `json:"last_analysis,omitempty"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

func New() *Metrics {
	return &Metrics{started: time.Now()}
}

// RecordAnalysis counts one successful analysis and its latency
func (m *Metrics) RecordAnalysis(d time.Duration, anomalous bool) {
	m.totalAnalyses.Add(1)
	m.totalLatency.Add(d.Milliseconds())
	m.lastAnalysis.Store(time.Now().Unix())
	if anomalous {
		m.totalAnomalies.Add(1)
	}
}

func (m *Metrics) IncrementErrors() {
	m.totalErrors.Add(1)
}

func (m *Metrics) GetAvgLatency() float64 {
	n := m.totalAnalyses.Load()
	if n == 0 {
		return 0
	}
	return float64(m.totalLatency.Load()) / float64(n)
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Analyses:      m.totalAnalyses.Load(),
		Errors:        m.totalErrors.Load(),
		Anomalies:     m.totalAnomalies.Load(),
		AvgLatencyMs:  m.GetAvgLatency(),
		LastAnalysis:  m.lastAnalysis.Load(),
		UptimeSeconds: int64(time.Since(m.started).Seconds()),
	}
}
