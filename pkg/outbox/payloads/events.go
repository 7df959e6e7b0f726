package payloads

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/pkg/enums"
)

// RedemptionRequestedEvent asks the payout provider to settle a redemption.
type RedemptionRequestedEvent struct {
	RedemptionID    uuid.UUID              `json:"redemption_id"`
	UserID          uuid.UUID              `json:"user_id"`
	PointsRequested int64                  `json:"points_requested"`
	Method          enums.RedemptionMethod `json:"method"`
	Destination     string                 `json:"destination"`
	RequestedAt     time.Time              `json:"requested_at"`
}

// RedemptionCompletedEvent reports a successful payout.
type RedemptionCompletedEvent struct {
	RedemptionID      uuid.UUID `json:"redemption_id"`
	UserID            uuid.UUID `json:"user_id"`
	PointsRedeemed    int64     `json:"points_redeemed"`
	ProviderReference string    `json:"provider_reference,omitempty"`
	CompletedAt       time.Time `json:"completed_at"`
}

// RedemptionReversedEvent reports a failed payout whose points were returned.
type RedemptionReversedEvent struct {
	RedemptionID   uuid.UUID `json:"redemption_id"`
	UserID         uuid.UUID `json:"user_id"`
	PointsReturned int64     `json:"points_returned"`
	ReverseEntryID uuid.UUID `json:"reverse_entry_id"`
	Reason         string    `json:"reason,omitempty"`
	ReversedAt     time.Time `json:"reversed_at"`
}

// WalletBalances is a snapshot of the four wallet counters.
type WalletBalances struct {
	PendingPoints   int64 `json:"pending_points"`
	AvailablePoints int64 `json:"available_points"`
	TotalEarned     int64 `json:"total_earned"`
	TotalRedeemed   int64 `json:"total_redeemed"`
}

// WalletDriftDetectedEvent reports a projection that disagreed with the ledger.
type WalletDriftDetectedEvent struct {
	UserID     uuid.UUID      `json:"user_id"`
	Stored     WalletBalances `json:"stored"`
	Derived    WalletBalances `json:"derived"`
	Repaired   bool           `json:"repaired"`
	DetectedAt time.Time      `json:"detected_at"`
}

// BonusGrantedEvent reports an administrative bonus credit.
type BonusGrantedEvent struct {
	EntryID   uuid.UUID `json:"entry_id"`
	UserID    uuid.UUID `json:"user_id"`
	Points    int64     `json:"points"`
	Reason    string    `json:"reason,omitempty"`
	GrantedBy uuid.UUID `json:"granted_by"`
	GrantedAt time.Time `json:"granted_at"`
}

// Payout result statuses. An empty status falls back to Success.
const (
	PayoutStatusAccepted  = "accepted"
	PayoutStatusSucceeded = "succeeded"
	PayoutStatusFailed    = "failed"
)

// PayoutResultMessage is consumed from the payout provider's result subscription.
type PayoutResultMessage struct {
	RedemptionID      uuid.UUID `json:"redemption_id"`
	Status            string    `json:"status,omitempty"`
	Success           bool      `json:"success"`
	ProviderReference string    `json:"provider_reference,omitempty"`
	FailureReason     string    `json:"failure_reason,omitempty"`
}

// Outcome resolves the result status.
func (m PayoutResultMessage) Outcome() string {
	switch status := strings.ToLower(strings.TrimSpace(m.Status)); status {
	case PayoutStatusAccepted, PayoutStatusSucceeded, PayoutStatusFailed:
		return status
	case "":
		if m.Success {
			return PayoutStatusSucceeded
		}
		return PayoutStatusFailed
	default:
		return ""
	}
}
