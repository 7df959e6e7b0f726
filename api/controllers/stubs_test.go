package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/api/middleware"
	"github.com/watchpoints/points-engine/internal/bonuses"
	"github.com/watchpoints/points-engine/internal/earnings"
	"github.com/watchpoints/points-engine/internal/ledger"
	"github.com/watchpoints/points-engine/internal/maturation"
	"github.com/watchpoints/points-engine/internal/reconcile"
	"github.com/watchpoints/points-engine/internal/redemptions"
	"github.com/watchpoints/points-engine/internal/wallet"
	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
)

func withUser(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithCaller(req.Context(), middleware.Caller{UserID: userID, Role: enums.RoleUser}))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return envelope.Error.Code
}

type stubWallets struct {
	view       wallet.View
	err        error
	archivedID uuid.UUID
}

func (s *stubWallets) Get(_ context.Context, userID uuid.UUID) (wallet.View, error) {
	if s.err != nil {
		return wallet.View{}, s.err
	}
	view := s.view
	view.UserID = userID
	return view, nil
}

func (s *stubWallets) Archive(_ context.Context, userID uuid.UUID, _ time.Time) error {
	s.archivedID = userID
	return s.err
}

type stubLedger struct {
	rows   []models.LedgerEntry
	next   string
	filter ledger.Filter
	err    error
}

func (s *stubLedger) QueryByUser(_ context.Context, _ uuid.UUID, filter ledger.Filter) ([]models.LedgerEntry, string, error) {
	s.filter = filter
	return s.rows, s.next, s.err
}

type stubEarnings struct {
	input  earnings.WatchInput
	result earnings.EarnResult
	err    error
}

func (s *stubEarnings) RecordWatch(_ context.Context, input earnings.WatchInput) (earnings.EarnResult, error) {
	s.input = input
	return s.result, s.err
}

type stubRedemptions struct {
	input      redemptions.RedeemInput
	redemption *models.RedemptionRequest
	rows       []models.RedemptionRequest
	filter     redemptions.ListFilter
	settledRef string
	reason     string
	err        error
}

func (s *stubRedemptions) Redeem(_ context.Context, input redemptions.RedeemInput) (*models.RedemptionRequest, error) {
	s.input = input
	return s.redemption, s.err
}

func (s *stubRedemptions) Get(_ context.Context, _, _ uuid.UUID) (*models.RedemptionRequest, error) {
	return s.redemption, s.err
}

func (s *stubRedemptions) GetByID(_ context.Context, _ uuid.UUID) (*models.RedemptionRequest, error) {
	return s.redemption, s.err
}

func (s *stubRedemptions) List(_ context.Context, _ uuid.UUID, filter redemptions.ListFilter) ([]models.RedemptionRequest, string, error) {
	s.filter = filter
	return s.rows, "", s.err
}

func (s *stubRedemptions) Complete(_ context.Context, _ uuid.UUID, providerReference string) (*models.RedemptionRequest, error) {
	s.settledRef = providerReference
	return s.redemption, s.err
}

func (s *stubRedemptions) Fail(_ context.Context, _ uuid.UUID, reason string) (*models.RedemptionRequest, error) {
	s.reason = reason
	return s.redemption, s.err
}

type stubSweeper struct {
	result maturation.Result
	err    error
}

func (s stubSweeper) Sweep(context.Context, time.Time) (maturation.Result, error) {
	return s.result, s.err
}

type stubReconciler struct {
	checked bool
	rebuilt bool
}

func (s *stubReconciler) Check(_ context.Context, userID uuid.UUID) (reconcile.Report, error) {
	s.checked = true
	return reconcile.Report{UserID: userID, InSync: true}, nil
}

func (s *stubReconciler) Rebuild(_ context.Context, userID uuid.UUID) (reconcile.Report, error) {
	s.rebuilt = true
	return reconcile.Report{UserID: userID, Repaired: true}, nil
}

type stubBonuses struct {
	input  bonuses.GrantInput
	result bonuses.GrantResult
	err    error
}

func (s *stubBonuses) Grant(_ context.Context, input bonuses.GrantInput) (bonuses.GrantResult, error) {
	s.input = input
	return s.result, s.err
}
