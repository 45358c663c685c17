package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.OpenViews.Inc()
	m.EditsApplied.WithLabelValues(ResultSuccess).Add(2)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "vista_open_views")
	assert.Contains(t, names, "vista_view_edits_total")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.EditsApplied.WithLabelValues(ResultSuccess)))
}

func TestNewWithoutRegisterer(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.OpenViews.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(a.OpenViews))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.OpenViews))
}

func TestResult(t *testing.T) {
	assert.Equal(t, ResultSuccess, Result(nil))
	assert.Equal(t, ResultFailure, Result(errors.New("x")))
}
