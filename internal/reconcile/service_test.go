package reconcile

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/watchpoints/points-engine/internal/ledger"
	"github.com/watchpoints/points-engine/internal/wallet"
	"github.com/watchpoints/points-engine/pkg/db"
	"github.com/watchpoints/points-engine/pkg/db/dbtest"
	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/outbox"
	"github.com/watchpoints/points-engine/pkg/redis"
	"github.com/watchpoints/points-engine/pkg/redis/redistest"
)

type failingBalances struct {
	ledger.Repository
	userID uuid.UUID
}

func (f failingBalances) WithTx(tx *gorm.DB) ledger.Repository {
	return failingBalances{Repository: f.Repository.WithTx(tx), userID: f.userID}
}

func (f failingBalances) Balances(ctx context.Context, userID uuid.UUID) (ledger.Balances, error) {
	if userID == f.userID {
		return ledger.Balances{}, errors.New("database is locked")
	}
	return f.Repository.Balances(ctx, userID)
}

type fixture struct {
	client  *db.Client
	ledger  ledger.Repository
	wallets *wallet.Service
	cache   *redis.Client
	svc     *Service
}

func newFixture(t *testing.T, autoRepair bool, sample int) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	cache, _ := redistest.NewClient()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	wallets, err := wallet.NewService(wallet.ServiceParams{Repo: wallet.NewRepository(client.DB()), Cache: cache, Queue: cache, Logger: logg})
	require.NoError(t, err)
	f := &fixture{client: client, ledger: ledger.NewRepository(client.DB()), wallets: wallets, cache: cache}
	f.svc, err = NewService(ServiceParams{
		DB:         client,
		Ledger:     f.ledger,
		Wallets:    wallets,
		Outbox:     outbox.NewService(outbox.NewRepository(client.DB()), logg),
		Queue:      cache,
		SampleSize: sample,
		AutoRepair: autoRepair,
		Logger:     logg,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) seed(t *testing.T, userID uuid.UUID, points int64, status enums.LedgerEntryStatus, delta wallet.Delta) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	expires := now.Add(time.Hour)
	entry := &models.LedgerEntry{UserID: userID, Kind: enums.LedgerKindEarn, Points: points, Status: status, AvailableAt: &now, ExpiresAt: &expires}
	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := f.ledger.WithTx(tx).Append(ctx, entry); err != nil {
			return err
		}
		_, err := f.wallets.Repository().WithTx(tx).ApplyDelta(ctx, userID, delta)
		return err
	}))
}

func (f *fixture) driftEvents(t *testing.T) int {
	t.Helper()
	var count int64
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventWalletDriftDetected).Count(&count).Error)
	return int(count)
}

func TestCheckReportsInSyncWallet(t *testing.T) {
	f := newFixture(t, true, 10)
	userID := uuid.New()
	f.seed(t, userID, 40, enums.LedgerStatusPosted, wallet.Delta{Pending: 40, Earned: 40})

	report, err := f.svc.Check(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, report.InSync)
	assert.Equal(t, int64(40), report.Derived.PendingPoints)

	empty, err := f.svc.Check(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, empty.InSync)
}

func TestRebuildRepairsDrift(t *testing.T) {
	f := newFixture(t, true, 10)
	ctx := context.Background()
	userID := uuid.New()
	// projection lost the credit's available points
	f.seed(t, userID, 90, enums.LedgerStatusAvailable, wallet.Delta{Earned: 90})

	check, err := f.svc.Check(ctx, userID)
	require.NoError(t, err)
	assert.False(t, check.InSync)

	report, err := f.svc.Rebuild(ctx, userID)
	require.NoError(t, err)
	assert.False(t, report.InSync)
	assert.True(t, report.Repaired)
	assert.Equal(t, int64(0), report.Stored.AvailablePoints)
	assert.Equal(t, int64(90), report.Derived.AvailablePoints)

	view, err := f.wallets.GetFresh(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), view.AvailablePoints)
	assert.Equal(t, 1, f.driftEvents(t))

	again, err := f.svc.Rebuild(ctx, userID)
	require.NoError(t, err)
	assert.True(t, again.InSync)
	assert.Equal(t, 1, f.driftEvents(t))
}

func TestRunProcessesQueueAndRollingBatch(t *testing.T) {
	f := newFixture(t, false, 2)
	ctx := context.Background()
	drifted := uuid.New()
	f.seed(t, drifted, 10, enums.LedgerStatusPosted, wallet.Delta{Pending: 3, Earned: 10})
	for i := 0; i < 3; i++ {
		userID := uuid.New()
		f.seed(t, userID, 5, enums.LedgerStatusPosted, wallet.Delta{Pending: 5, Earned: 5})
	}
	require.NoError(t, f.cache.Enqueue(ctx, redis.ReconcileQueue, drifted.String(), "not-a-uuid"))

	first, err := f.svc.Run(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first.Checked, 2)
	assert.Equal(t, 1, first.Drifted)
	assert.Zero(t, first.Repaired, "auto repair disabled")

	seen := first.Checked
	for i := 0; i < 3; i++ {
		res, err := f.svc.Run(ctx)
		require.NoError(t, err)
		seen += res.Checked
	}
	assert.GreaterOrEqual(t, seen, 4, "rolling batch must cover every wallet")

	view, err := f.wallets.GetFresh(ctx, drifted)
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.PendingPoints)
	assert.GreaterOrEqual(t, f.driftEvents(t), 1)
}

func TestRunRequeuesUsersThatFail(t *testing.T) {
	f := newFixture(t, true, 10)
	ctx := context.Background()
	broken := uuid.New()
	healthy := uuid.New()
	f.seed(t, broken, 10, enums.LedgerStatusPosted, wallet.Delta{Pending: 10, Earned: 10})
	f.seed(t, healthy, 10, enums.LedgerStatusPosted, wallet.Delta{Pending: 10, Earned: 10})
	require.NoError(t, f.cache.Enqueue(ctx, redis.ReconcileQueue, broken.String(), healthy.String()))

	f.svc.ledger = failingBalances{Repository: f.ledger, userID: broken}
	res, err := f.svc.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, res.Checked)

	queued, err := f.cache.Dequeue(ctx, redis.ReconcileQueue, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{broken.String()}, queued)
}
