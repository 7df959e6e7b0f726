// Package env reads POINTS_* variables needed before the config loader runs.
package env

import (
	"os"
	"strings"
)

const Prefix = "POINTS_"

// Name returns the full variable name for key, adding Prefix when missing.
func Name(key string) string {
	key = strings.ToUpper(strings.TrimSpace(key))
	if strings.HasPrefix(key, Prefix) {
		return key
	}
	return Prefix + key
}

// Get returns the trimmed value of the prefixed variable, or fallback when it
// is unset or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(Name(key))); val != "" {
		return val
	}
	return fallback
}
