package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsRunsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	fixed := time.Unix(1_790_000_000, 0)
	m.now = func() time.Time { return fixed }

	m.ObserveDuration("ledger-maturation", 250*time.Millisecond)
	m.IncSuccess("ledger-maturation")
	m.IncFailure("ledger-maturation")
	m.IncFailure("")
	m.IncSkipped()

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger-maturation", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger-maturation", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("unknown", "failure")))
	require.Equal(t, float64(fixed.Unix()), testutil.ToFloat64(m.lastSuccess.WithLabelValues("ledger-maturation")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.skipped))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sum, err := fetchHistogramSum(mfs, "points_cron_job_duration_seconds", "job", "ledger-maturation")
	require.NoError(t, err)
	require.InDelta(t, 0.25, sum, 1e-9)
}

func TestCronJobMetricsNoopWithoutRegisterer(t *testing.T) {
	m := NewCronJobMetrics(nil)
	m.IncSuccess("noop")
	m.IncSkipped()
	m.ObserveDuration("noop", time.Second)

	var nilMetrics *CronJobMetrics
	nilMetrics.IncFailure("noop")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findSeries(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findSeries(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}

func findSeries(mfs []*dto.MetricFamily, name, label, value string) (*dto.Metric, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return nil, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		for _, pair := range metric.GetLabel() {
			if pair.GetName() == label && pair.GetValue() == value {
				return metric, nil
			}
		}
	}
	return nil, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}
