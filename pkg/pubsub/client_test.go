package pubsub

import (
	"testing"

	"github.com/watchpoints/points-engine/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		project, kind, name, want string
	}{
		{"proj", "topics", "payouts", "projects/proj/topics/payouts"},
		{"proj", "subscriptions", " results-sub ", "projects/proj/subscriptions/results-sub"},
		{"proj", "topics", "projects/other/topics/x", "projects/other/topics/x"},
		{"", "topics", "payouts", ""},
		{"proj", "topics", "", ""},
	}
	for _, tc := range cases {
		if got := resourceName(tc.project, tc.kind, tc.name); got != tc.want {
			t.Fatalf("resourceName(%q,%q,%q) = %q, want %q", tc.project, tc.kind, tc.name, got, tc.want)
		}
	}
}

func TestClientOptionsPrefersInlineCredentials(t *testing.T) {
	if opts := clientOptions(config.GCPConfig{}); len(opts) != 0 {
		t.Fatalf("expected default credentials, got %d options", len(opts))
	}
	if opts := clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/key.json"}); len(opts) != 1 {
		t.Fatalf("expected a single credentials option, got %d", len(opts))
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil || c.Subscription("x") != nil {
		t.Fatal("nil client should return nil handles")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
