// Package metrics provides Prometheus metrics for simulation runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/pipeline"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "conviction"

// Metrics holds the Prometheus metrics of a simulation.
type Metrics struct {
	registry *prometheus.Registry

	// Step metrics
	StepsTotal   prometheus.Counter
	StepDuration prometheus.Histogram
	StepErrors   *prometheus.CounterVec

	// Proposal metrics
	Proposals     *prometheus.GaugeVec
	AcceptedTotal prometheus.Counter
	OutcomesTotal *prometheus.CounterVec

	// Commons metrics
	FundingPool    prometheus.Gauge
	TokenSupply    prometheus.Gauge
	CollateralPool prometheus.Gauge
	TokenPrice     prometheus.Gauge
	Sentiment      prometheus.Gauge
	LockedTokens   prometheus.Gauge
	Participants   prometheus.Gauge
}

// New creates metrics registered on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		StepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "steps_total",
			Help:      "Total number of simulated steps",
		}),
		StepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Wall time of one simulated step in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		StepErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "errors_total",
			Help:      "Total number of failed steps",
		}, []string{"run"}),

		Proposals: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "proposals",
			Name:      "count",
			Help:      "Current number of proposals by status",
		}, []string{"status"}),
		AcceptedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proposals",
			Name:      "accepted_total",
			Help:      "Total number of proposals accepted for funding",
		}),
		OutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proposals",
			Name:      "outcomes_total",
			Help:      "Total number of resolved proposals by outcome",
		}, []string{"outcome"}),

		FundingPool: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "commons",
			Name:      "funding_pool",
			Help:      "Currency available to fund proposals",
		}),
		TokenSupply: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "commons",
			Name:      "token_supply",
			Help:      "Tokens in circulation",
		}),
		CollateralPool: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "commons",
			Name:      "collateral_pool",
			Help:      "Currency backing the bonding curve",
		}),
		TokenPrice: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "commons",
			Name:      "token_price",
			Help:      "Marginal token price on the bonding curve",
		}),
		Sentiment: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "commons",
			Name:      "sentiment",
			Help:      "Commons-wide sentiment",
		}),
		LockedTokens: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "commons",
			Name:      "locked_tokens",
			Help:      "Hatcher tokens still vesting",
		}),
		Participants: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "commons",
			Name:      "participants",
			Help:      "Number of participants",
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStep records a completed step. A nil Metrics is a no-op.
func (m *Metrics) ObserveStep(snap pipeline.Snapshot, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StepsTotal.Inc()
	m.StepDuration.Observe(elapsed.Seconds())

	for _, status := range models.AllStatuses {
		m.Proposals.WithLabelValues(string(status)).Set(float64(snap.Statuses[status]))
	}
	m.AcceptedTotal.Add(float64(len(snap.Accepted)))
	m.OutcomesTotal.WithLabelValues(string(models.StatusCompleted)).Add(float64(len(snap.Completed)))
	m.OutcomesTotal.WithLabelValues(string(models.StatusFailed)).Add(float64(len(snap.Failed)))

	m.FundingPool.Set(snap.FundingPool)
	m.TokenSupply.Set(snap.TokenSupply)
	m.CollateralPool.Set(snap.CollateralPool)
	m.TokenPrice.Set(snap.TokenPrice)
	m.Sentiment.Set(snap.Sentiment)
	m.LockedTokens.Set(snap.LockedTokens)
	m.Participants.Set(float64(snap.Participants))
}

// ObserveError records a failed step of run. A nil Metrics is a no-op.
func (m *Metrics) ObserveError(run string) {
	if m == nil {
		return
	}
	m.StepErrors.WithLabelValues(run).Inc()
}
