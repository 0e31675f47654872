// Package metrics exposes prometheus instruments for the ledger and refill engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	ledgerEntries       *prometheus.CounterVec
	insufficientBalance prometheus.Counter
	rateLimitAllowed    prometheus.Counter
	rateLimitDenied     prometheus.Counter
}

// New registers the domain instruments on the given registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credcore_ledger_entries_total",
			Help: "Ledger entries appended, by movement kind.",
		}, []string{"kind"}),
		insufficientBalance: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "credcore_insufficient_balance_total",
			Help: "Transactions rejected because the balance would go negative.",
		}),
		rateLimitAllowed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "credcore_rate_limit_allowed_total",
			Help: "Requests allowed by the rate limiter.",
		}),
		rateLimitDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "credcore_rate_limit_denied_total",
			Help: "Requests denied by the rate limiter.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.ledgerEntries,
		m.insufficientBalance,
		m.rateLimitAllowed,
		m.rateLimitDenied,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Metrics) RecordLedgerEntry(amount int64) {
	if m == nil {
		return
	}
	kind := "zero"
	switch {
	case amount > 0:
		kind = "credit"
	case amount < 0:
		kind = "debit"
	}
	m.ledgerEntries.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordInsufficientBalance() {
	if m == nil {
		return
	}
	m.insufficientBalance.Inc()
}

func (m *Metrics) RecordRateLimit(allowed bool) {
	if m == nil {
		return
	}
	if allowed {
		m.rateLimitAllowed.Inc()
		return
	}
	m.rateLimitDenied.Inc()
}
