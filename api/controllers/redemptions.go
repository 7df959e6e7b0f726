package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/api/responses"
	"github.com/watchpoints/points-engine/api/validators"
	"github.com/watchpoints/points-engine/internal/redemptions"
	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/pagination"
)

type RedemptionService interface {
	Redeem(ctx context.Context, input redemptions.RedeemInput) (*models.RedemptionRequest, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.RedemptionRequest, error)
	List(ctx context.Context, userID uuid.UUID, filter redemptions.ListFilter) ([]models.RedemptionRequest, string, error)
}

type createRedemptionRequest struct {
	Points      int64  `json:"pointsRequested" validate:"gt=0"`
	Method      string `json:"method" validate:"required,redemption_method"`
	Destination string `json:"destination" validate:"max=256"`
}

type createRedemptionResponse struct {
	RedemptionID    uuid.UUID              `json:"redemptionId"`
	PointsRequested int64                  `json:"pointsRequested"`
	Status          enums.RedemptionStatus `json:"status"`
}

// CreateRedemption debits available points and opens a payout request.
func CreateRedemption(svc RedemptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createRedemptionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		redemption, err := svc.Redeem(r.Context(), redemptions.RedeemInput{
			UserID:         userID,
			Points:         req.Points,
			Method:         req.Method,
			Destination:    validators.SanitizeString(req.Destination, 256),
			IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyHeader)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, createRedemptionResponse{
			RedemptionID:    redemption.ID,
			PointsRequested: redemption.PointsRequested,
			Status:          redemption.Status,
		})
	}
}

// GetRedemption returns one of the caller's redemption requests.
func GetRedemption(svc RedemptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "redemptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		redemption, err := svc.Get(r.Context(), userID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newRedemptionResponse(redemption))
	}
}

// ListRedemptions pages the caller's redemption history.
func ListRedemptions(svc RedemptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := redemptions.ListFilter{Limit: limit, Cursor: r.URL.Query().Get("cursor")}
		for _, raw := range validators.ParseQueryList(r, "status") {
			status, err := enums.ParseRedemptionStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}

		rows, next, err := svc.List(r.Context(), userID, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]redemptionResponse, 0, len(rows))
		for i := range rows {
			items = append(items, newRedemptionResponse(&rows[i]))
		}
		responses.WriteSuccess(w, pageResponse[redemptionResponse]{Items: items, NextCursor: next})
	}
}
