// Package metrics holds the Prometheus metrics recorded by investigations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Query outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Token decode results.
const (
	TokenOK     = "ok"
	TokenAbsent = "absent"
)

// InvestigationMetrics records union query and token activity.
type InvestigationMetrics struct {
	// QueriesTotal counts union queries sent to storage by outcome.
	QueriesTotal *prometheus.CounterVec
	// QueryDuration tracks union query latency.
	QueryDuration prometheus.Histogram
	// RowsReturned tracks how many rows a page carried.
	RowsReturned prometheus.Histogram
	// TokenDecodes counts token decodes by result. Absent covers both
	// missing and rejected tokens.
	TokenDecodes *prometheus.CounterVec
	// EmptyFilters counts investigations short-circuited for lack of targets.
	EmptyFilters prometheus.Counter
	// CheckLogWrites counts check log rows written.
	CheckLogWrites prometheus.Counter
}

func newInvestigationMetrics() *InvestigationMetrics {
	return &InvestigationMetrics{
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkuser_queries_total",
			Help: "Total number of union queries issued",
		}, []string{"outcome"}),

		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkuser_query_duration_seconds",
			Help:    "Duration of union queries",
			Buckets: prometheus.DefBuckets,
		}),

		RowsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkuser_rows_returned",
			Help:    "Rows returned per investigation page",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
		}),

		TokenDecodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkuser_token_decode_total",
			Help: "Pagination token decodes by result",
		}, []string{"result"}),

		EmptyFilters: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkuser_empty_filter_total",
			Help: "Investigations answered without a query because no target was usable",
		}),

		CheckLogWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkuser_check_log_writes_total",
			Help: "Check log rows written",
		}),
	}
}

func (m *InvestigationMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.QueriesTotal, m.QueryDuration, m.RowsReturned,
		m.TokenDecodes, m.EmptyFilters, m.CheckLogWrites,
	}
}

// NewInvestigationMetrics creates the metrics and registers them with the
// default registry.
func NewInvestigationMetrics() *InvestigationMetrics {
	return NewInvestigationMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewInvestigationMetricsWithRegistry registers the metrics with reg. Tests
// pass a fresh prometheus.NewRegistry().
func NewInvestigationMetricsWithRegistry(reg prometheus.Registerer) *InvestigationMetrics {
	m := newInvestigationMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}

// ObserveQuery records one union query.
func (m *InvestigationMetrics) ObserveQuery(seconds float64, rows int, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	m.QueryDuration.Observe(seconds)
	if err == nil {
		m.RowsReturned.Observe(float64(rows))
	}
}

// ObserveToken records one token decode.
func (m *InvestigationMetrics) ObserveToken(ok bool) {
	if m == nil {
		return
	}
	result := TokenAbsent
	if ok {
		result = TokenOK
	}
	m.TokenDecodes.WithLabelValues(result).Inc()
}

// ObserveEmptyFilter records a short-circuited investigation.
func (m *InvestigationMetrics) ObserveEmptyFilter() {
	if m == nil {
		return
	}
	m.EmptyFilters.Inc()
}

// ObserveCheckLog records n check log rows written.
func (m *InvestigationMetrics) ObserveCheckLog(n int) {
	if m == nil {
		return
	}
	m.CheckLogWrites.Add(float64(n))
}
