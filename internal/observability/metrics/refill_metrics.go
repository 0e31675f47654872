package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RefillMetrics captures refill engine health signals.
type RefillMetrics struct {
	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	orgsRefilled   prometheus.Counter
	orgFailures    prometheus.Counter
	creditsGranted prometheus.Counter
}

var (
	refillMetricsOnce sync.Once
	refillMetrics     *RefillMetrics
)

// Refill returns the singleton refill metrics registry.
func Refill() *RefillMetrics {
	refillMetricsOnce.Do(func() {
		refillMetrics = newRefillMetrics(prometheus.DefaultRegisterer)
	})
	return refillMetrics
}

func newRefillMetrics(reg prometheus.Registerer) *RefillMetrics {
	m := &RefillMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credcore_refill_runs_total",
			Help: "Refill batch runs, by outcome status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "credcore_refill_run_duration_seconds",
			Help:    "End-to-end duration of refill batch runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		orgsRefilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "credcore_refill_orgs_total",
			Help: "Organizations granted credits by the refill engine.",
		}),
		orgFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "credcore_refill_org_failures_total",
			Help: "Per-organization refill failures recorded and skipped.",
		}),
		creditsGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "credcore_refill_credits_granted_total",
			Help: "Total credits granted by refill runs.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.runs, m.runDuration, m.orgsRefilled, m.orgFailures, m.creditsGranted,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}

	return m
}

func (m *RefillMetrics) ObserveRun(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())
}

func (m *RefillMetrics) IncOrgRefilled(credits int64) {
	if m == nil {
		return
	}
	m.orgsRefilled.Inc()
	if credits > 0 {
		m.creditsGranted.Add(float64(credits))
	}
}

func (m *RefillMetrics) IncOrgFailure() {
	if m == nil {
		return
	}
	m.orgFailures.Inc()
}
