package review

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the review subsystem.
type Metrics struct {
	DecisionsTotal        *prometheus.CounterVec
	DecisionFailuresTotal *prometheus.CounterVec
	DecisionDuration      *prometheus.HistogramVec
	DecisionRetriesTotal  prometheus.Counter
	AlertsIngestedTotal   *prometheus.CounterVec
	EscalationsTotal      prometheus.Counter
	SummariesTotal        *prometheus.CounterVec
	RankedAlerts          prometheus.Histogram
}

// NewMetrics registers and returns review metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ward_decisions_total",
			Help: "Total recorded operator decisions by type.",
		}, []string{"type"}),
		DecisionFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ward_decision_failures_total",
			Help: "Total failed decision recordings by reason.",
		}, []string{"reason"}),
		DecisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ward_decision_duration_seconds",
			Help:    "Duration of decision recording in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms .. ~16s
		}, []string{"type"}),
		DecisionRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ward_decision_retries_total",
			Help: "Total internal retries after decision write contention.",
		}),
		AlertsIngestedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ward_alerts_ingested_total",
			Help: "Total ingested alerts by impact level.",
		}, []string{"impact"}),
		EscalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ward_escalations_total",
			Help: "Total alerts moved to escalated status.",
		}),
		SummariesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ward_summaries_total",
			Help: "Total machine summary generations by outcome.",
		}, []string{"outcome"}),
		RankedAlerts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ward_ranked_alerts",
			Help:    "Alerts per ranking computation.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 .. ~2048
		}),
	}

	reg.MustRegister(
		m.DecisionsTotal,
		m.DecisionFailuresTotal,
		m.DecisionDuration,
		m.DecisionRetriesTotal,
		m.AlertsIngestedTotal,
		m.EscalationsTotal,
		m.SummariesTotal,
		m.RankedAlerts,
	)

	return m
}
