package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
)

type ledgerEntryResponse struct {
	ID              uuid.UUID               `json:"id"`
	Kind            enums.LedgerEntryKind   `json:"kind"`
	Points          int64                   `json:"points"`
	Status          enums.LedgerEntryStatus `json:"status"`
	VideoID         *string                 `json:"videoId,omitempty"`
	CreatorID       *string                 `json:"creatorId,omitempty"`
	ContentCategory *string                 `json:"contentCategory,omitempty"`
	Multiplier      *int                    `json:"multiplier,omitempty"`
	RelatedEntryID  *uuid.UUID              `json:"relatedEntryId,omitempty"`
	RedemptionID    *uuid.UUID              `json:"redemptionId,omitempty"`
	PostedAt        time.Time               `json:"postedAt"`
	AvailableAt     *time.Time              `json:"availableAt,omitempty"`
	ExpiresAt       *time.Time              `json:"expiresAt,omitempty"`
}

func newLedgerEntryResponse(e models.LedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:              e.ID,
		Kind:            e.Kind,
		Points:          e.Points,
		Status:          e.Status,
		VideoID:         e.RelatedVideoID,
		CreatorID:       e.RelatedCreatorID,
		ContentCategory: e.ContentCategory,
		Multiplier:      e.Multiplier,
		RelatedEntryID:  e.RelatedEntryID,
		RedemptionID:    e.RedemptionID,
		PostedAt:        e.PostedAt,
		AvailableAt:     e.AvailableAt,
		ExpiresAt:       e.ExpiresAt,
	}
}

type redemptionResponse struct {
	RedemptionID      uuid.UUID              `json:"redemptionId"`
	PointsRequested   int64                  `json:"pointsRequested"`
	Method            enums.RedemptionMethod `json:"method"`
	Status            enums.RedemptionStatus `json:"status"`
	ProviderReference *string                `json:"providerReference,omitempty"`
	FailureReason     *string                `json:"failureReason,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
	CompletedAt       *time.Time             `json:"completedAt,omitempty"`
}

func newRedemptionResponse(r *models.RedemptionRequest) redemptionResponse {
	return redemptionResponse{
		RedemptionID:      r.ID,
		PointsRequested:   r.PointsRequested,
		Method:            r.Method,
		Status:            r.Status,
		ProviderReference: r.ProviderReference,
		FailureReason:     r.FailureReason,
		CreatedAt:         r.CreatedAt,
		CompletedAt:       r.CompletedAt,
	}
}

type pageResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}
