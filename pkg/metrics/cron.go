package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "points"

// CronJobMetrics records sweep job runs. A nil or unregistered value is a
// no-op.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	skipped     prometheus.Counter
	now         func() time.Time
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_duration_seconds",
			Help:      "Duration of cron jobs in seconds.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_runs_total",
			Help:      "Cron job executions by result (success or failure).",
		}, []string{"job", "result"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run; alert when it stops advancing.",
		}, []string{"job"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "cycle_skipped_total",
			Help:      "Cycles skipped because another instance held the lock.",
		}),
		now: time.Now,
	}
	reg.MustRegister(m.duration, m.runs, m.lastSuccess, m.skipped)
	return m
}

func (c *CronJobMetrics) enabled() bool {
	return c != nil && c.runs != nil
}

func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.duration.WithLabelValues(labelValue(job)).Observe(duration.Seconds())
}

func (c *CronJobMetrics) IncSuccess(job string) {
	if !c.enabled() {
		return
	}
	c.runs.WithLabelValues(labelValue(job), "success").Inc()
	c.lastSuccess.WithLabelValues(labelValue(job)).Set(float64(c.now().Unix()))
}

func (c *CronJobMetrics) IncFailure(job string) {
	if !c.enabled() {
		return
	}
	c.runs.WithLabelValues(labelValue(job), "failure").Inc()
}

// IncSkipped counts a cycle that did not win the lock.
func (c *CronJobMetrics) IncSkipped() {
	if !c.enabled() {
		return
	}
	c.skipped.Inc()
}

func labelValue(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
