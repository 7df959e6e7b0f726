package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestLedgerMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	m.AddCredited("EARN", 120)
	m.AddCredited("EARN", 30)
	m.AddCredited("BONUS", 0)
	m.IncWatchEvent("credited")
	m.IncRedemption("requested")
	m.AddTransitions("matured", 3)
	m.IncDrift()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "points_ledger_points_credited_total", "kind", "EARN"); err != nil || got != 150 {
		t.Fatalf("expected 150 credited, got %f (%v)", got, err)
	}
	if _, err := fetchCounterValue(mfs, "points_ledger_points_credited_total", "kind", "BONUS"); err == nil {
		t.Fatal("zero credits should not create a series")
	}
	if got, err := fetchCounterValue(mfs, "points_ledger_sweep_transitions_total", "transition", "matured"); err != nil || got != 3 {
		t.Fatalf("expected 3 transitions, got %f (%v)", got, err)
	}
	drift := findMetricFamily(mfs, "points_ledger_wallet_drift_total")
	if drift == nil || drift.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatal("expected drift counter to be 1")
	}
}

func TestLedgerMetricsNilSafe(t *testing.T) {
	var m *LedgerMetrics
	m.AddCredited("EARN", 10)
	m.IncDrift()
	NewLedgerMetrics(nil).IncRedemption("failed")
}
