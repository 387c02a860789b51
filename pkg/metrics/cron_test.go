package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	const job = "payout-generation"

	m.ObserveRun(job, 250*time.Millisecond, nil)
	m.ObserveRun(job, time.Second, errors.New("ledger unavailable"))
	m.ObserveSkipped(job)
	m.ObserveSkipped("")

	for _, outcome := range []string{JobSucceeded, JobFailed, JobSkipped} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(job, outcome)), outcome)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("unknown", JobSkipped)))
	assert.InDelta(t, 1.25, histogramSum(t, reg, "cron_job_duration_seconds", "job", job), 1e-9)
	assert.Positive(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues(job)))
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	assert.NotPanics(t, func() {
		m.ObserveRun("job", time.Second, nil)
		m.ObserveSkipped("job")
		NewCronJobMetrics(nil).ObserveRun("job", time.Second, nil)
	})
}
