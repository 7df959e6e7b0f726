package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchpoints/points-engine/pkg/auth"
	"github.com/watchpoints/points-engine/pkg/config"
	"github.com/watchpoints/points-engine/pkg/enums"
)

func testConfig() *config.Config {
	return &config.Config{
		JWT:    config.JWTConfig{Secret: "test-secret", Issuer: "watchpoints", TTL: time.Hour},
		Ledger: config.LedgerConfig{MinWatchSeconds: 5},
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	previous := loadConfig
	loadConfig = func() (*config.Config, error) { return testConfig(), nil }
	t.Cleanup(func() { loadConfig = previous })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRatesPrintsTable(t *testing.T) {
	out, err := execute(t, "rates", "--toml=false")
	require.NoError(t, err)
	assert.Contains(t, out, "window")
	assert.Contains(t, out, "FINANCE")
	assert.Contains(t, out, "500")
}

func TestRatesEmitsTOML(t *testing.T) {
	out, err := execute(t, "rates", "--toml")
	require.NoError(t, err)
	assert.Contains(t, out, "window_seconds = 600")
	assert.Contains(t, out, "[rates]")
}

func TestRatesQuote(t *testing.T) {
	out, err := execute(t, "rates", "quote", "--category", "education", "--seconds", "600", "--tier", "verified")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "2000 points"), out)
}

func TestRatesQuoteRejectsTier(t *testing.T) {
	_, err := execute(t, "rates", "quote", "--category", "education", "--seconds", "600", "--tier", "gold")
	require.Error(t, err)
}

func TestTokenMintsParsableJWT(t *testing.T) {
	userID := uuid.New()
	out, err := execute(t, "token", "--user", userID.String(), "--role", "admin")
	require.NoError(t, err)

	claims, err := auth.ParseAccessToken(testConfig().JWT, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, enums.RoleAdmin, claims.Role)
}

func TestTokenRejectsBadUser(t *testing.T) {
	_, err := execute(t, "token", "--user", "not-a-uuid", "--role", "user")
	require.ErrorContains(t, err, "invalid --user")
}

func TestDLQRejectsUnknownFilters(t *testing.T) {
	_, err := execute(t, "dlq", "--type", "points_teleported", "--reason", "")
	require.Error(t, err)

	_, err = execute(t, "dlq", "--type", "", "--reason", "boredom")
	require.Error(t, err)
}

func TestDLQRequeueRejectsBadEventID(t *testing.T) {
	_, err := execute(t, "dlq", "requeue", "--event", "nope")
	require.ErrorContains(t, err, "invalid --event")
}
