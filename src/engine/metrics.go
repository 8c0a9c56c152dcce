package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the engine's prometheus collectors. A nil *Metrics is valid and
// turns every observation into a no-op, so tests can skip registration.
type Metrics struct {
	batches     prometheus.Counter
	malformed   prometheus.Counter
	evaluations prometheus.Counter
	matches     prometheus.Counter
	dispatches  *prometheus.CounterVec
	retries     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ruleflow",
			Name:      "batches_total",
			Help:      "Transaction batches processed by the engine.",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ruleflow",
			Name:      "malformed_transactions_total",
			Help:      "Raw transactions skipped because normalization failed.",
		}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ruleflow",
			Name:      "evaluations_total",
			Help:      "Rule/event condition evaluations performed.",
		}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ruleflow",
			Name:      "matches_total",
			Help:      "Evaluations where the rule condition matched.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ruleflow",
			Name:      "dispatches_total",
			Help:      "Settled dispatch outcomes by action type and status.",
		}, []string{"action", "status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ruleflow",
			Name:      "dispatch_retries_total",
			Help:      "Retry attempts after transient effector failures.",
		}, []string{"action"}),
	}
	reg.MustRegister(m.batches, m.malformed, m.evaluations, m.matches, m.dispatches, m.retries)
	return m
}

func (m *Metrics) observeBatch() {
	if m == nil {
		return
	}
	m.batches.Inc()
}

func (m *Metrics) observeMalformed() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}

func (m *Metrics) observeEvaluation(matched bool) {
	if m == nil {
		return
	}
	m.evaluations.Inc()
	if matched {
		m.matches.Inc()
	}
}

func (m *Metrics) observeDispatch(action, status string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(action, status).Inc()
}

func (m *Metrics) observeRetry(action string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(action).Inc()
}
