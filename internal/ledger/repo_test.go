package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/pkg/db/dbtest"
	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
)

func credit(userID uuid.UUID, kind enums.LedgerEntryKind, points int64, status enums.LedgerEntryStatus, postedAt time.Time) *models.LedgerEntry {
	availableAt := postedAt.Add(24 * time.Hour)
	expiresAt := postedAt.Add(90 * 24 * time.Hour)
	return &models.LedgerEntry{
		UserID:      userID,
		Kind:        kind,
		Points:      points,
		Status:      status,
		PostedAt:    postedAt,
		AvailableAt: &availableAt,
		ExpiresAt:   &expiresAt,
	}
}

func strPtr(v string) *string { return &v }

func TestAppendValidatesSign(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	cases := []struct {
		name  string
		entry *models.LedgerEntry
	}{
		{"nil", nil},
		{"zero points", credit(userID, enums.LedgerKindEarn, 0, enums.LedgerStatusPosted, now)},
		{"negative earn", credit(userID, enums.LedgerKindEarn, -5, enums.LedgerStatusPosted, now)},
		{"positive redeem", &models.LedgerEntry{UserID: userID, Kind: enums.LedgerKindRedeem, Points: 5, Status: enums.LedgerStatusRedeemed}},
		{"credit without expiry", &models.LedgerEntry{UserID: userID, Kind: enums.LedgerKindBonus, Points: 5, Status: enums.LedgerStatusPosted}},
		{"missing user", credit(uuid.Nil, enums.LedgerKindEarn, 5, enums.LedgerStatusPosted, now)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := repo.Append(ctx, tc.entry)
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAppendRejectsDuplicateIdempotencyKey(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	first := credit(userID, enums.LedgerKindEarn, 10, enums.LedgerStatusPosted, now)
	first.IdempotencyKey = strPtr("watch-1")
	id, err := repo.Append(ctx, first)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	second := credit(userID, enums.LedgerKindEarn, 10, enums.LedgerStatusPosted, now)
	second.IdempotencyKey = strPtr("watch-1")
	if _, err := repo.Append(ctx, second); !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}

	// Same key under another kind is a different operation.
	bonus := credit(userID, enums.LedgerKindBonus, 10, enums.LedgerStatusPosted, now)
	bonus.IdempotencyKey = strPtr("watch-1")
	if _, err := repo.Append(ctx, bonus); err != nil {
		t.Fatalf("append bonus: %v", err)
	}

	found, err := repo.FindByIdempotencyKey(ctx, userID, enums.LedgerKindEarn, "watch-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil || found.ID != id {
		t.Fatalf("expected entry %s, got %+v", id, found)
	}
	missing, err := repo.FindByIdempotencyKey(ctx, userID, enums.LedgerKindEarn, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", missing, err)
	}
}

func TestTransitionStatus(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	entry := credit(uuid.New(), enums.LedgerKindEarn, 10, enums.LedgerStatusPosted, time.Now().UTC())
	if _, err := repo.Append(ctx, entry); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := repo.TransitionStatus(ctx, entry.ID, enums.LedgerStatusPosted, enums.LedgerStatusExpired); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	ok, err := repo.TransitionStatus(ctx, entry.ID, enums.LedgerStatusPosted, enums.LedgerStatusAvailable)
	if err != nil || !ok {
		t.Fatalf("expected transition, got %v %v", ok, err)
	}
	ok, err = repo.TransitionStatus(ctx, entry.ID, enums.LedgerStatusPosted, enums.LedgerStatusAvailable)
	if err != nil || ok {
		t.Fatalf("expected second transition to be a no-op, got %v %v", ok, err)
	}
	stored, err := repo.FindByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Status != enums.LedgerStatusAvailable {
		t.Fatalf("expected AVAILABLE, got %s", stored.Status)
	}
}

func TestFindByIDNotFound(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	if _, err := repo.FindByID(context.Background(), uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestQueryByUserPagesNewestFirst(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	userID := uuid.New()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if _, err := repo.Append(ctx, credit(userID, enums.LedgerKindEarn, int64(i+1), enums.LedgerStatusPosted, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := repo.Append(ctx, credit(uuid.New(), enums.LedgerKindEarn, 99, enums.LedgerStatusPosted, base)); err != nil {
		t.Fatalf("append other: %v", err)
	}

	page, next, err := repo.QueryByUser(ctx, userID, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(page) != 2 || page[0].Points != 5 || page[1].Points != 4 {
		t.Fatalf("unexpected first page: %+v", page)
	}
	if next == "" {
		t.Fatal("expected next cursor")
	}

	var seen []int64
	cursor := next
	for cursor != "" {
		page, cursor, err = repo.QueryByUser(ctx, userID, Filter{Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("query page: %v", err)
		}
		for _, e := range page {
			seen = append(seen, e.Points)
		}
	}
	if len(seen) != 3 || seen[0] != 3 || seen[2] != 1 {
		t.Fatalf("unexpected remaining pages: %v", seen)
	}

	if _, _, err := repo.QueryByUser(ctx, userID, Filter{Cursor: "***"}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for bad cursor, got %v", err)
	}

	filtered, _, err := repo.QueryByUser(ctx, userID, Filter{Kinds: []enums.LedgerEntryKind{enums.LedgerKindBonus}})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(filtered) != 0 {
		t.Fatalf("expected no bonus entries, got %d", len(filtered))
	}
}

func TestQueryMaturableAndExpirable(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	userID := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	old := credit(userID, enums.LedgerKindEarn, 10, enums.LedgerStatusPosted, base)
	fresh := credit(userID, enums.LedgerKindEarn, 10, enums.LedgerStatusPosted, base.Add(72*time.Hour))
	stale := credit(userID, enums.LedgerKindBonus, 10, enums.LedgerStatusAvailable, base.Add(-200*24*time.Hour))
	for _, e := range []*models.LedgerEntry{old, fresh, stale} {
		if _, err := repo.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	cutoff := base.Add(48 * time.Hour)
	maturable, err := repo.QueryMaturable(ctx, cutoff, nil, 10)
	if err != nil {
		t.Fatalf("maturable: %v", err)
	}
	if len(maturable) != 1 || maturable[0].ID != old.ID {
		t.Fatalf("expected only the old entry, got %+v", maturable)
	}

	expirable, err := repo.QueryExpirable(ctx, cutoff, nil, 10)
	if err != nil {
		t.Fatalf("expirable: %v", err)
	}
	if len(expirable) != 1 || expirable[0].ID != stale.ID {
		t.Fatalf("expected only the stale entry, got %+v", expirable)
	}
}

func TestSpendableAndBalances(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	first := credit(userID, enums.LedgerKindEarn, 100, enums.LedgerStatusAvailable, now.Add(-48*time.Hour))
	second := credit(userID, enums.LedgerKindBonus, 50, enums.LedgerStatusAvailable, now.Add(-24*time.Hour))
	pending := credit(userID, enums.LedgerKindEarn, 30, enums.LedgerStatusPosted, now)
	for _, e := range []*models.LedgerEntry{first, second, pending} {
		if _, err := repo.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	redemptionID := uuid.New()
	redeem := &models.LedgerEntry{
		UserID:       userID,
		Kind:         enums.LedgerKindRedeem,
		Points:       -120,
		Status:       enums.LedgerStatusRedeemed,
		RedemptionID: &redemptionID,
	}
	if _, err := repo.Append(ctx, redeem); err != nil {
		t.Fatalf("append redeem: %v", err)
	}
	if err := repo.AppendAllocations(ctx, []models.LedgerAllocation{
		{UserID: userID, RedemptionID: redemptionID, RedeemEntryID: redeem.ID, CreditEntryID: first.ID, Points: 100},
		{UserID: userID, RedemptionID: redemptionID, RedeemEntryID: redeem.ID, CreditEntryID: second.ID, Points: 20},
	}); err != nil {
		t.Fatalf("allocations: %v", err)
	}
	if _, err := repo.TransitionStatus(ctx, first.ID, enums.LedgerStatusAvailable, enums.LedgerStatusRedeemed); err != nil {
		t.Fatalf("transition: %v", err)
	}

	spendable, err := repo.ListSpendable(ctx, userID)
	if err != nil {
		t.Fatalf("spendable: %v", err)
	}
	if len(spendable) != 1 || spendable[0].Entry.ID != second.ID || spendable[0].Remaining != 30 {
		t.Fatalf("unexpected spendable: %+v", spendable)
	}

	balances, err := repo.Balances(ctx, userID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	want := Balances{Pending: 30, Available: 30, TotalEarned: 180, TotalRedeemed: 120}
	if balances != want {
		t.Fatalf("expected %+v, got %+v", want, balances)
	}

	if err := repo.AppendAllocations(ctx, []models.LedgerAllocation{{UserID: userID, CreditEntryID: second.ID}}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty allocation, got %v", err)
	}
}
