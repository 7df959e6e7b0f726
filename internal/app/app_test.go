package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchpoints/points-engine/internal/bonuses"
	"github.com/watchpoints/points-engine/internal/earnings"
	"github.com/watchpoints/points-engine/internal/redemptions"
	"github.com/watchpoints/points-engine/pkg/config"
	"github.com/watchpoints/points-engine/pkg/db/dbtest"
	"github.com/watchpoints/points-engine/pkg/enums"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/redis/redistest"
)

func testConfig() *config.Config {
	return &config.Config{
		Ledger: config.LedgerConfig{
			HoldingPeriod:   720 * time.Hour,
			ExpiryWindow:    2160 * time.Hour,
			MinWatchSeconds: 5,
			MinRedemption:   100,
			DedupeWindow:    10 * time.Minute,
		},
		Wallet:    config.WalletConfig{CacheTTL: 30 * time.Second},
		Cron:      config.CronConfig{BatchSize: 50},
		Reconcile: config.ReconcileConfig{SampleSize: 10},
		Timeouts:  config.TimeoutsConfig{Earn: 5 * time.Second, Redeem: 5 * time.Second},
	}
}

func TestNewRequiresClients(t *testing.T) {
	_, err := New(context.Background(), Params{Config: testConfig()})
	require.Error(t, err)
}

func TestEngineEarnMatureRedeem(t *testing.T) {
	ctx := context.Background()
	redisClient, _ := redistest.NewClient()
	engine, err := New(ctx, Params{
		Config:     testConfig(),
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         dbtest.Open(t),
		Redis:      redisClient,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	userID := uuid.New()
	earned, err := engine.Earnings.RecordWatch(ctx, earnings.WatchInput{
		UserID:               userID,
		VideoID:              "video-1",
		CreatorID:            "creator-1",
		WatchDurationSeconds: 600,
		Category:             "education",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 400, earned.PointsEarned)
	assert.Equal(t, 1, earned.Multiplier)
	assert.EqualValues(t, 400, earned.Wallet.PendingPoints)

	_, err = engine.Redemptions.Redeem(ctx, redemptions.RedeemInput{
		UserID:         userID,
		Points:         100,
		Method:         "transfer",
		IdempotencyKey: "too-early",
	})
	require.Error(t, err, "pending points are not spendable")

	result, err := engine.Maturation.Sweep(ctx, time.Now().Add(721*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	grant, err := engine.Bonuses.Grant(ctx, bonuses.GrantInput{
		UserID:         userID,
		Points:         50,
		Reason:         "welcome",
		IdempotencyKey: "welcome-" + userID.String(),
		GrantedBy:      uuid.New(),
	})
	require.NoError(t, err)
	require.False(t, grant.Duplicate)

	redemption, err := engine.Redemptions.Redeem(ctx, redemptions.RedeemInput{
		UserID:         userID,
		Points:         300,
		Method:         "transfer",
		Destination:    "acct-1",
		IdempotencyKey: "redeem-1",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.RedemptionStatusPending, redemption.Status)

	view, err := engine.Wallets.GetFresh(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, view.PendingPoints)
	assert.EqualValues(t, 150, view.AvailablePoints)

	report, err := engine.Reconciler.Check(ctx, userID)
	require.NoError(t, err)
	assert.True(t, report.InSync)
}
