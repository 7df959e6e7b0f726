package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
)

func TestGetWalletReturnsCallerBalances(t *testing.T) {
	userID := uuid.New()
	svc := &stubWallets{}
	svc.view.PendingPoints = 40
	svc.view.AvailablePoints = 60
	handler := GetWallet(svc, nil)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil), userID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var body struct {
		UserID          uuid.UUID `json:"userId"`
		PendingPoints   int64     `json:"pendingPoints"`
		AvailablePoints int64     `json:"availablePoints"`
	}
	decodeData(t, rec, &body)
	if body.UserID != userID || body.PendingPoints != 40 || body.AvailablePoints != 60 {
		t.Fatalf("unexpected wallet body %+v", body)
	}
}

func TestGetWalletRequiresUser(t *testing.T) {
	handler := GetWallet(&stubWallets{}, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestGetWalletArchived(t *testing.T) {
	handler := GetWallet(&stubWallets{err: pkgerrors.New(pkgerrors.CodeNotFound, "wallet archived")}, nil)
	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil), uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestListLedgerParsesFilters(t *testing.T) {
	entryID := uuid.New()
	repo := &stubLedger{
		rows: []models.LedgerEntry{{
			ID:       entryID,
			Kind:     enums.LedgerKindEarn,
			Points:   25,
			Status:   enums.LedgerStatusPosted,
			PostedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		}},
		next: "next-page",
	}
	handler := ListLedger(repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet/ledger?limit=10&kind=EARN,BONUS&status=POSTED&from=2026-01-01T00:00:00Z", nil)
	req = withUser(req, uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if repo.filter.Limit != 10 || len(repo.filter.Kinds) != 2 || len(repo.filter.Statuses) != 1 || repo.filter.From == nil {
		t.Fatalf("unexpected filter %+v", repo.filter)
	}
	var page struct {
		Items []struct {
			ID     uuid.UUID `json:"id"`
			Points int64     `json:"points"`
		} `json:"items"`
		NextCursor string `json:"nextCursor"`
	}
	decodeData(t, rec, &page)
	if len(page.Items) != 1 || page.Items[0].ID != entryID || page.NextCursor != "next-page" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestListLedgerRejectsBadFilters(t *testing.T) {
	cases := map[string]string{
		"unknown kind":   "/api/v1/wallet/ledger?kind=GIFT",
		"unknown status": "/api/v1/wallet/ledger?status=LOST",
		"bad time":       "/api/v1/wallet/ledger?from=yesterday",
		"inverted range": "/api/v1/wallet/ledger?from=2026-02-01T00:00:00Z&to=2026-01-01T00:00:00Z",
		"limit too high": "/api/v1/wallet/ledger?limit=1000",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			repo := &stubLedger{}
			handler := ListLedger(repo, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, target, nil), uuid.New()))

			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422 got %d", rec.Code)
			}
			if code := decodeErrorCode(t, rec); code != string(pkgerrors.CodeValidation) {
				t.Fatalf("expected validation code got %s", code)
			}
		})
	}
}
