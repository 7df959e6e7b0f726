package env

import "testing"

func TestName(t *testing.T) {
	cases := map[string]string{
		"log_format":         "POINTS_LOG_FORMAT",
		"POINTS_INSTANCE_ID": "POINTS_INSTANCE_ID",
		" app_env ":          "POINTS_APP_ENV",
	}
	for in, want := range cases {
		if got := Name(in); got != want {
			t.Fatalf("Name(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetFallsBackOnBlank(t *testing.T) {
	t.Setenv("POINTS_LOG_FORMAT", "   ")
	if got := Get("LOG_FORMAT", "json"); got != "json" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("POINTS_LOG_FORMAT", " console ")
	if got := Get("LOG_FORMAT", "json"); got != "console" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}
