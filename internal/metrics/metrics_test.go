package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvestigationMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInvestigationMetricsWithRegistry(reg)
	require.NotNil(t, m)
	require.NotNil(t, m.QueriesTotal)
	require.NotNil(t, m.QueryDuration)
	require.NotNil(t, m.RowsReturned)
	require.NotNil(t, m.TokenDecodes)
	require.NotNil(t, m.EmptyFilters)
	require.NotNil(t, m.CheckLogWrites)

	assert.Panics(t, func() { NewInvestigationMetricsWithRegistry(reg) }, "duplicate registration must panic")
}

func TestObserveQuery(t *testing.T) {
	m := NewInvestigationMetricsWithRegistry(prometheus.NewRegistry())

	m.ObserveQuery(0.01, 12, nil)
	m.ObserveQuery(0.02, 3, nil)
	m.ObserveQuery(0.5, 0, errors.New("boom"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.QueriesTotal.WithLabelValues(OutcomeOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.QueriesTotal.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.QueryDuration))
}

func TestObserveToken(t *testing.T) {
	m := NewInvestigationMetricsWithRegistry(prometheus.NewRegistry())

	m.ObserveToken(true)
	m.ObserveToken(false)
	m.ObserveToken(false)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.TokenDecodes.WithLabelValues(TokenOK)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.TokenDecodes.WithLabelValues(TokenAbsent)))
}

func TestObserveCounters(t *testing.T) {
	m := NewInvestigationMetricsWithRegistry(prometheus.NewRegistry())

	m.ObserveEmptyFilter()
	m.ObserveCheckLog(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.EmptyFilters))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.CheckLogWrites))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *InvestigationMetrics
	assert.NotPanics(t, func() {
		m.ObserveQuery(1, 1, nil)
		m.ObserveToken(true)
		m.ObserveEmptyFilter()
		m.ObserveCheckLog(1)
	})
}
