package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/api/middleware"
	"github.com/watchpoints/points-engine/api/responses"
	"github.com/watchpoints/points-engine/api/validators"
	"github.com/watchpoints/points-engine/internal/earnings"
	"github.com/watchpoints/points-engine/pkg/logger"
)

const idempotencyHeader = middleware.IdempotencyHeader

type WatchRecorder interface {
	RecordWatch(ctx context.Context, input earnings.WatchInput) (earnings.EarnResult, error)
}

type watchEventRequest struct {
	VideoID              string  `json:"videoId" validate:"required,max=128"`
	CreatorID            string  `json:"creatorId" validate:"required,max=128"`
	WatchDurationSeconds float64 `json:"watchDurationSeconds" validate:"gte=0,lte=31536000"`
	Category             string  `json:"category" validate:"max=64"`
}

type watchEventResponse struct {
	EntryID           *uuid.UUID `json:"entryId,omitempty"`
	PointsEarned      int64      `json:"pointsEarned"`
	MultiplierApplied int        `json:"multiplierApplied"`
	PendingPoints     int64      `json:"pendingPoints"`
	AvailablePoints   int64      `json:"availablePoints"`
	Duplicate         bool       `json:"duplicate"`
}

// RecordWatchEvent credits the caller for a completed watch.
func RecordWatchEvent(svc WatchRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req watchEventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RecordWatch(r.Context(), earnings.WatchInput{
			UserID:               userID,
			VideoID:              validators.SanitizeString(req.VideoID, 128),
			CreatorID:            validators.SanitizeString(req.CreatorID, 128),
			WatchDurationSeconds: req.WatchDurationSeconds,
			Category:             strings.ToLower(validators.SanitizeString(req.Category, 64)),
			IdempotencyKey:       strings.TrimSpace(r.Header.Get(idempotencyHeader)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := watchEventResponse{
			PointsEarned:      result.PointsEarned,
			MultiplierApplied: result.Multiplier,
			PendingPoints:     result.Wallet.PendingPoints,
			AvailablePoints:   result.Wallet.AvailablePoints,
			Duplicate:         result.Duplicate,
		}
		if result.EntryID != uuid.Nil {
			id := result.EntryID
			resp.EntryID = &id
		}
		responses.WriteSuccess(w, resp)
	}
}
