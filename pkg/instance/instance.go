package instance

import (
	"os"

	"github.com/watchpoints/points-engine/pkg/env"
)

const fallbackID = "points-0"

// ID names this replica: POINTS_INSTANCE_ID, then the hostname.
func ID() string {
	if id := env.Get("INSTANCE_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
