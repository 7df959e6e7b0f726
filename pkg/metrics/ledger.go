package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics counts accounting activity across earning, redemption and sweeps.
type LedgerMetrics struct {
	pointsCredited    *prometheus.CounterVec
	watchEvents       *prometheus.CounterVec
	redemptions       *prometheus.CounterVec
	sweepTransitions  *prometheus.CounterVec
	driftDetected     prometheus.Counter
	cacheInvalidation prometheus.Counter
}

// NewLedgerMetrics registers the ledger metrics. A nil registerer yields a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		pointsCredited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "points_credited_total",
			Help:      "Points credited to wallets by entry kind.",
		}, []string{"kind"}),
		watchEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "watch_events_total",
			Help:      "Processed watch events by outcome.",
		}, []string{"outcome"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "redemptions_total",
			Help:      "Redemption requests by outcome.",
		}, []string{"outcome"}),
		sweepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "sweep_transitions_total",
			Help:      "Entries transitioned by the maturation and expiration sweeps.",
		}, []string{"transition"}),
		driftDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "wallet_drift_total",
			Help:      "Wallets whose projection disagreed with the ledger.",
		}),
		cacheInvalidation: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "cache_invalidation_failures_total",
			Help:      "Wallet cache invalidations that failed after commit.",
		}),
	}
	reg.MustRegister(m.pointsCredited, m.watchEvents, m.redemptions, m.sweepTransitions, m.driftDetected, m.cacheInvalidation)
	return m
}

// AddCredited adds points credited under the given entry kind.
func (m *LedgerMetrics) AddCredited(kind string, points int64) {
	if m == nil || m.pointsCredited == nil || points <= 0 {
		return
	}
	m.pointsCredited.WithLabelValues(labelValue(kind)).Add(float64(points))
}

// IncWatchEvent records the outcome of one watch event.
func (m *LedgerMetrics) IncWatchEvent(outcome string) {
	if m == nil || m.watchEvents == nil {
		return
	}
	m.watchEvents.WithLabelValues(labelValue(outcome)).Inc()
}

// IncRedemption records a redemption outcome.
func (m *LedgerMetrics) IncRedemption(outcome string) {
	if m == nil || m.redemptions == nil {
		return
	}
	m.redemptions.WithLabelValues(labelValue(outcome)).Inc()
}

// AddTransitions adds swept entries for a transition such as "matured" or "expired".
func (m *LedgerMetrics) AddTransitions(transition string, n int) {
	if m == nil || m.sweepTransitions == nil || n <= 0 {
		return
	}
	m.sweepTransitions.WithLabelValues(labelValue(transition)).Add(float64(n))
}

// IncDrift counts one wallet found out of sync.
func (m *LedgerMetrics) IncDrift() {
	if m == nil || m.driftDetected == nil {
		return
	}
	m.driftDetected.Inc()
}

// IncCacheInvalidationFailure counts a failed post-commit cache invalidation.
func (m *LedgerMetrics) IncCacheInvalidationFailure() {
	if m == nil || m.cacheInvalidation == nil {
		return
	}
	m.cacheInvalidation.Inc()
}
