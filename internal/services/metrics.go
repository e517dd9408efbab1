package services

import (
	"sync/atomic"
	"time"
)

// Metrics holds process-wide operational counters. Constructed once in
// main and injected; there is no package-level instance.
type Metrics struct {
	sessionsOpened   atomic.Int64
	sessionsClosed   atomic.Int64
	measurements     atomic.Int64
	webhookDiagnoses atomic.Int64
	webhookFailures  atomic.Int64
	localDiagnoses   atomic.Int64
	restEntries      atomic.Int64

	startTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncSessionsOpened()   { m.sessionsOpened.Add(1) }
func (m *Metrics) IncSessionsClosed()   { m.sessionsClosed.Add(1) }
func (m *Metrics) IncMeasurements()     { m.measurements.Add(1) }
func (m *Metrics) IncWebhookDiagnoses() { m.webhookDiagnoses.Add(1) }
func (m *Metrics) IncWebhookFailures()  { m.webhookFailures.Add(1) }
func (m *Metrics) IncLocalDiagnoses()   { m.localDiagnoses.Add(1) }
func (m *Metrics) IncRestEntries()      { m.restEntries.Add(1) }

func (m *Metrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"sessions_opened":       m.sessionsOpened.Load(),
		"sessions_closed":       m.sessionsClosed.Load(),
		"measurements_ingested": m.measurements.Load(),
		"webhook_diagnoses":     m.webhookDiagnoses.Load(),
		"webhook_failures":      m.webhookFailures.Load(),
		"local_diagnoses":       m.localDiagnoses.Load(),
		"rest_entries":          m.restEntries.Load(),
		"uptime_sec":            int64(time.Since(m.startTime).Seconds()),
	}
}
