package instance

import "testing"

func TestIDPrefersEnvironment(t *testing.T) {
	t.Setenv("POINTS_INSTANCE_ID", "cron-7")
	if got := ID(); got != "cron-7" {
		t.Fatalf("expected cron-7, got %q", got)
	}
}

func TestIDFallsBackToHostname(t *testing.T) {
	t.Setenv("POINTS_INSTANCE_ID", "")
	if got := ID(); got == "" {
		t.Fatal("expected a non-empty id")
	}
}
