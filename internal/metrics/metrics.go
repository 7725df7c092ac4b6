// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the service counters.
type Metrics struct {
	Scans           *prometheus.CounterVec
	TokenRejections *prometheus.CounterVec
	TokensMinted    prometheus.Counter
	TokensPurged    prometheus.Counter
	SweepRecords    *prometheus.CounterVec
	SweepRetries    prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "scans_total",
			Help:      "Scan attempts by flow and outcome.",
		}, []string{"flow", "outcome"}),
		TokenRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "token_rejections_total",
			Help:      "Scan tokens rejected by reason.",
		}, []string{"reason"}),
		TokensMinted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "tokens_minted_total",
			Help:      "Scan tokens issued.",
		}),
		TokensPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "tokens_purged_total",
			Help:      "Expired scan tokens removed by the background purge.",
		}),
		SweepRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "sweep_records_total",
			Help:      "Absentee sweep results per student.",
		}, []string{"result"}),
		SweepRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "sweep_retries_total",
			Help:      "Sweeps queued for retry after a partial failure.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Scans, m.TokenRejections, m.TokensMinted, m.TokensPurged, m.SweepRecords, m.SweepRetries)
	}
	return m
}

// Scan counts one scan attempt.
func (m *Metrics) Scan(flow, outcome string) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(flow, outcome).Inc()
}

// TokenRejected counts one token failure.
func (m *Metrics) TokenRejected(reason string) {
	if m == nil {
		return
	}
	m.TokenRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) TokenMinted() {
	if m == nil {
		return
	}
	m.TokensMinted.Inc()
}

func (m *Metrics) Purged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensPurged.Add(float64(n))
}

// Swept records the per-student tallies of one sweep run.
func (m *Metrics) Swept(created, skipped, failed int) {
	if m == nil {
		return
	}
	m.SweepRecords.WithLabelValues("created").Add(float64(created))
	m.SweepRecords.WithLabelValues("skipped").Add(float64(skipped))
	m.SweepRecords.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) SweepRetryQueued() {
	if m == nil {
		return
	}
	m.SweepRetries.Inc()
}
