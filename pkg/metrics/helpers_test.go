package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// histogramSum gathers reg and returns the sample sum of the series of name
// carrying label=value.
func histogramSum(t *testing.T, reg prometheus.Gatherer, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, series := range mf.GetMetric() {
			if hasLabel(series, label, value) {
				return series.GetHistogram().GetSampleSum()
			}
		}
	}
	t.Fatalf("histogram %s{%s=%q} not found", name, label, value)
	return 0
}

func hasLabel(series *dto.Metric, name, value string) bool {
	for _, lp := range series.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}
