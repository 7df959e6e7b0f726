package earnings

import (
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/internal/ledger"
	"github.com/watchpoints/points-engine/internal/rates"
	"github.com/watchpoints/points-engine/internal/tiers"
	"github.com/watchpoints/points-engine/internal/wallet"
	"github.com/watchpoints/points-engine/pkg/config"
	"github.com/watchpoints/points-engine/pkg/db/dbtest"
	"github.com/watchpoints/points-engine/pkg/enums"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/redis/redistest"
)

type harness struct {
	svc    *Service
	ledger ledger.Repository
	now    time.Time
}

type failingTiers struct{}

func (failingTiers) GetUserTier(context.Context, uuid.UUID) (enums.UserTier, error) {
	return "", pkgerrors.New(pkgerrors.CodeDependency, "verification down")
}

func newHarness(t *testing.T, provider tiers.Provider) *harness {
	t.Helper()
	client := dbtest.Open(t)
	cache, _ := redistest.NewClient()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	ledgerRepo := ledger.NewRepository(client.DB())
	wallets, err := wallet.NewService(wallet.ServiceParams{
		Repo:   wallet.NewRepository(client.DB()),
		Cache:  cache,
		Queue:  cache,
		Logger: logg,
	})
	if err != nil {
		t.Fatalf("wallet service: %v", err)
	}
	model, err := rates.NewModel(rates.DefaultTable())
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	h := &harness{ledger: ledgerRepo, now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	h.svc, err = NewService(ServiceParams{
		DB:      client,
		Ledger:  ledgerRepo,
		Wallets: wallets,
		Tiers:   provider,
		Rates:   model,
		Store:   cache,
		Config: config.LedgerConfig{
			HoldingPeriod: 30 * 24 * time.Hour,
			ExpiryWindow:  90 * 24 * time.Hour,
			DedupeWindow:  10 * time.Minute,
		},
		Logger: logg,
		Now:    func() time.Time { return h.now },
	})
	if err != nil {
		t.Fatalf("earnings service: %v", err)
	}
	return h
}

func TestRecordWatchCreditsPendingPoints(t *testing.T) {
	h := newHarness(t, tiers.Static(enums.UserTierVerified))
	userID := uuid.New()

	result, err := h.svc.RecordWatch(context.Background(), WatchInput{
		UserID:               userID,
		VideoID:              "vid-1",
		CreatorID:            "creator-1",
		WatchDurationSeconds: 600,
		Category:             "finance",
	})
	if err != nil {
		t.Fatalf("record watch: %v", err)
	}
	if result.PointsEarned != 2500 || result.Multiplier != 5 || result.Duplicate {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Wallet.PendingPoints != 2500 || result.Wallet.AvailablePoints != 0 || result.Wallet.TotalEarned != 2500 {
		t.Fatalf("unexpected wallet %+v", result.Wallet)
	}

	entry, err := h.ledger.FindByID(context.Background(), result.EntryID)
	if err != nil {
		t.Fatalf("find entry: %v", err)
	}
	if entry.Status != enums.LedgerStatusPosted || entry.Kind != enums.LedgerKindEarn {
		t.Fatalf("unexpected entry %+v", entry)
	}
	wantAvailable := h.now.Add(30 * 24 * time.Hour)
	if entry.AvailableAt == nil || !entry.AvailableAt.Equal(wantAvailable) {
		t.Fatalf("expected available_at %s, got %v", wantAvailable, entry.AvailableAt)
	}
	if entry.ExpiresAt == nil || !entry.ExpiresAt.Equal(wantAvailable.Add(90*24*time.Hour)) {
		t.Fatalf("unexpected expires_at %v", entry.ExpiresAt)
	}
	if entry.ContentCategory == nil || *entry.ContentCategory != "FINANCE" {
		t.Fatalf("expected normalized category, got %v", entry.ContentCategory)
	}
}

func TestRecordWatchDeduplicatesWithinWindow(t *testing.T) {
	h := newHarness(t, tiers.Static(enums.UserTierNone))
	userID := uuid.New()
	input := WatchInput{UserID: userID, VideoID: "vid-1", WatchDurationSeconds: 600, Category: "GAMING"}

	first, err := h.svc.RecordWatch(context.Background(), input)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	h.now = h.now.Add(time.Minute)
	second, err := h.svc.RecordWatch(context.Background(), input)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Duplicate || second.EntryID != first.EntryID {
		t.Fatalf("expected duplicate of %s, got %+v", first.EntryID, second)
	}
	if second.Wallet.PendingPoints != 100 {
		t.Fatalf("expected no extra credit, got %+v", second.Wallet)
	}
}

func TestRecordWatchExplicitKeySurvivesExpiredDedupeWindow(t *testing.T) {
	h := newHarness(t, tiers.Static(enums.UserTierPending))
	userID := uuid.New()
	input := WatchInput{UserID: userID, VideoID: "vid-1", WatchDurationSeconds: 300, Category: "EDUCATION", IdempotencyKey: "client-key"}

	first, err := h.svc.RecordWatch(context.Background(), input)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.PointsEarned != 600 {
		t.Fatalf("expected 600 points, got %d", first.PointsEarned)
	}

	// simulate the redis window lapsing; the unique index still rejects the replay
	if err := h.svc.store.Del(context.Background(), h.svc.store.DedupeKey(dedupeScope, userID.String(), "client-key")); err != nil {
		t.Fatalf("del: %v", err)
	}
	second, err := h.svc.RecordWatch(context.Background(), input)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Duplicate || second.EntryID != first.EntryID || second.Wallet.PendingPoints != 600 {
		t.Fatalf("expected duplicate, got %+v", second)
	}
}

func TestRecordWatchBelowMinimumWritesNothing(t *testing.T) {
	h := newHarness(t, tiers.Static(enums.UserTierVerified))
	userID := uuid.New()

	result, err := h.svc.RecordWatch(context.Background(), WatchInput{UserID: userID, VideoID: "v", WatchDurationSeconds: 4, Category: "FINANCE"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if result.PointsEarned != 0 || result.EntryID != uuid.Nil {
		t.Fatalf("expected zero result, got %+v", result)
	}
	entries, _, err := h.ledger.QueryByUser(context.Background(), userID, ledger.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestRecordWatchValidation(t *testing.T) {
	h := newHarness(t, tiers.Static(enums.UserTierNone))
	cases := []WatchInput{
		{VideoID: "v", Category: "FINANCE", WatchDurationSeconds: 10},
		{UserID: uuid.New(), Category: "FINANCE", WatchDurationSeconds: 10},
		{UserID: uuid.New(), VideoID: "v", WatchDurationSeconds: 10},
		{UserID: uuid.New(), VideoID: "v", Category: "FINANCE", WatchDurationSeconds: -1},
		{UserID: uuid.New(), VideoID: "v", Category: "FINANCE", WatchDurationSeconds: math.NaN()},
	}
	for _, input := range cases {
		if _, err := h.svc.RecordWatch(context.Background(), input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %+v, got %v", input, err)
		}
	}
}

func TestRecordWatchRejectsOversizedDuration(t *testing.T) {
	h := newHarness(t, tiers.Static(enums.UserTierVerified))
	userID := uuid.New()

	for _, seconds := range []float64{86401, 5e18, 1e300} {
		_, err := h.svc.RecordWatch(context.Background(), WatchInput{UserID: userID, VideoID: "v", WatchDurationSeconds: seconds, Category: "FINANCE"})
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%g seconds: expected validation error, got %v", seconds, err)
		}
	}
	entries, _, err := h.ledger.QueryByUser(context.Background(), userID, ledger.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected nothing credited, got %d entries", len(entries))
	}

	result, err := h.svc.RecordWatch(context.Background(), WatchInput{UserID: userID, VideoID: "v", WatchDurationSeconds: 86400, Category: "FINANCE"})
	if err != nil {
		t.Fatalf("record at the cap: %v", err)
	}
	if result.PointsEarned != 360000 || result.Wallet.PendingPoints != 360000 {
		t.Fatalf("unexpected result at the cap %+v", result)
	}
}

func TestRecordWatchTierFailureIsRetryable(t *testing.T) {
	h := newHarness(t, failingTiers{})
	_, err := h.svc.RecordWatch(context.Background(), WatchInput{UserID: uuid.New(), VideoID: "v", WatchDurationSeconds: 600, Category: "FINANCE"})
	if !pkgerrors.Retryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestDeriveIdempotencyKeyBuckets(t *testing.T) {
	userID := uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := DeriveIdempotencyKey(userID, "v", base, 10*time.Minute)
	b := DeriveIdempotencyKey(userID, "v", base.Add(5*time.Minute), 10*time.Minute)
	c := DeriveIdempotencyKey(userID, "v", base.Add(10*time.Minute), 10*time.Minute)
	d := DeriveIdempotencyKey(userID, "other", base, 10*time.Minute)
	if a != b {
		t.Fatal("expected same bucket within window")
	}
	if a == c || a == d {
		t.Fatal("expected distinct keys across windows and videos")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
}
