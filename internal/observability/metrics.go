// Package observability provides Prometheus metrics for the decision cycle.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sentibot"

// Metrics holds all Prometheus metrics for the bot. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	DecisionsTotal   *prometheus.CounterVec
	ExecutionsTotal  *prometheus.CounterVec
	LedgerWrites     *prometheus.CounterVec
	SkippedTicks     prometheus.Counter
	FeedbackFailures prometheus.Counter
	Invested         prometheus.Gauge
	LastSentiment    prometheus.Gauge
}

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the registry on /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// NewMetrics registers every metric on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Decision cycles run, by outcome",
		}, []string{"outcome"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Wall time of one decision cycle",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		DecisionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "actions_total",
			Help:      "Decisions after freshness adjustment, by action",
		}, []string{"action"}),
		ExecutionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "results_total",
			Help:      "Pipeline executions, by action and error kind",
		}, []string{"action", "kind"}),
		LedgerWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "sentiment_writes_total",
			Help:      "Sentiment ledger writes, by receipt status",
		}, []string{"status"}),
		SkippedTicks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "skipped_ticks_total",
			Help:      "Ticks skipped because the previous cycle was still running",
		}),
		FeedbackFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feedback",
			Name:      "failures_total",
			Help:      "Feedback posts that failed",
		}),
		Invested: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "invested",
			Help:      "1 when the investment flag is set",
		}),
		LastSentiment: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sentiment_score",
			Help:      "Aggregated sentiment of the last cycle",
		}),
	}
}

func (m *Metrics) ObserveCycle(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(seconds)
}

func (m *Metrics) ObserveDecision(action string, sentiment float64) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(action).Inc()
	m.LastSentiment.Set(sentiment)
}

func (m *Metrics) ObserveExecution(action, kind string, invested bool) {
	if m == nil {
		return
	}
	m.ExecutionsTotal.WithLabelValues(action, kind).Inc()
	if invested {
		m.Invested.Set(1)
	} else {
		m.Invested.Set(0)
	}
}

func (m *Metrics) ObserveLedgerWrite(status string) {
	if m == nil {
		return
	}
	m.LedgerWrites.WithLabelValues(status).Inc()
}

func (m *Metrics) IncSkippedTick() {
	if m == nil {
		return
	}
	m.SkippedTicks.Inc()
}

func (m *Metrics) IncFeedbackFailure() {
	if m == nil {
		return
	}
	m.FeedbackFailures.Inc()
}
