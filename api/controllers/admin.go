package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/watchpoints/points-engine/api/responses"
	"github.com/watchpoints/points-engine/api/validators"
	"github.com/watchpoints/points-engine/internal/bonuses"
	"github.com/watchpoints/points-engine/internal/maturation"
	"github.com/watchpoints/points-engine/internal/reconcile"
	"github.com/watchpoints/points-engine/internal/wallet"
	"github.com/watchpoints/points-engine/pkg/db/models"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
	"github.com/watchpoints/points-engine/pkg/logger"
)

type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (maturation.Result, error)
}

type WalletAdmin interface {
	Get(ctx context.Context, userID uuid.UUID) (wallet.View, error)
	Archive(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type Reconciler interface {
	Check(ctx context.Context, userID uuid.UUID) (reconcile.Report, error)
	Rebuild(ctx context.Context, userID uuid.UUID) (reconcile.Report, error)
}

type SettlementService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.RedemptionRequest, error)
	Complete(ctx context.Context, id uuid.UUID, providerReference string) (*models.RedemptionRequest, error)
	Fail(ctx context.Context, id uuid.UUID, reason string) (*models.RedemptionRequest, error)
}

type BonusGranter interface {
	Grant(ctx context.Context, input bonuses.GrantInput) (bonuses.GrantResult, error)
}

type sweepResponse struct {
	Processed int `json:"processed"`
	Expired   int `json:"expired"`
	Failed    int `json:"failed"`
}

// AdminProcessMaturation runs one maturation and expiry sweep as of now.
// Entries that fail are counted and logged; the sweep only errors when
// nothing moved.
func AdminProcessMaturation(svc Sweeper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.Sweep(r.Context(), time.Now().UTC())
		resp := sweepResponse{Processed: result.Processed, Expired: result.Expired}
		if err != nil {
			if resp.Processed+resp.Expired == 0 {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			resp.Failed = len(multierr.Errors(err))
			logg.Error(logg.WithField(r.Context(), "failed", resp.Failed), "maturation sweep partially applied", err)
		}
		responses.WriteSuccess(w, resp)
	}
}

func AdminGetWallet(svc WalletAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// AdminArchiveWallet soft-deletes a wallet. Ledger history is retained.
func AdminArchiveWallet(svc WalletAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Archive(r.Context(), userID, time.Now().UTC()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AdminReconcileWallet compares a wallet with its ledger. With dryRun=true
// nothing is written; otherwise a drifted projection is rebuilt.
func AdminReconcileWallet(svc Reconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dryRun := false
		if raw := strings.TrimSpace(r.URL.Query().Get("dryRun")); raw != "" {
			dryRun, err = strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "dryRun must be a boolean").WithDetails(map[string]any{"field": "dryRun"}))
				return
			}
		}

		var report reconcile.Report
		if dryRun {
			report, err = svc.Check(r.Context(), userID)
		} else {
			report, err = svc.Rebuild(r.Context(), userID)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func AdminGetRedemption(svc SettlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "redemptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		redemption, err := svc.GetByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newRedemptionResponse(redemption))
	}
}

type completeRedemptionRequest struct {
	ProviderReference string `json:"providerReference" validate:"required,max=256"`
}

// AdminCompleteRedemption settles a redemption as paid out.
func AdminCompleteRedemption(svc SettlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "redemptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req completeRedemptionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		redemption, err := svc.Complete(r.Context(), id, validators.SanitizeString(req.ProviderReference, 256))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newRedemptionResponse(redemption))
	}
}

type failRedemptionRequest struct {
	Reason string `json:"reason" validate:"required,max=512"`
}

// AdminFailRedemption marks a redemption failed and refunds its points.
func AdminFailRedemption(svc SettlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "redemptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req failRedemptionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		redemption, err := svc.Fail(r.Context(), id, validators.SanitizeString(req.Reason, 512))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newRedemptionResponse(redemption))
	}
}

type grantBonusRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
	Points int64  `json:"points" validate:"gt=0"`
	Reason string `json:"reason" validate:"required,max=256"`
}

// AdminGrantBonus credits a user with immediately available points.
func AdminGrantBonus(svc BonusGranter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req grantBonusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid userId"))
			return
		}

		result, err := svc.Grant(r.Context(), bonuses.GrantInput{
			UserID:         userID,
			Points:         req.Points,
			Reason:         validators.SanitizeString(req.Reason, 256),
			IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyHeader)),
			GrantedBy:      adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.Duplicate {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"entry":     newLedgerEntryResponse(*result.Entry),
			"duplicate": result.Duplicate,
		})
	}
}
