package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateRedemption OutboxAggregateType = "redemption"
	AggregateWallet     OutboxAggregateType = "wallet"
	AggregateLedger     OutboxAggregateType = "ledger_entry"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateRedemption,
	AggregateWallet,
	AggregateLedger,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventRedemptionRequested OutboxEventType = "redemption_requested"
	EventRedemptionCompleted OutboxEventType = "redemption_completed"
	EventRedemptionReversed  OutboxEventType = "redemption_reversed"
	EventWalletDriftDetected OutboxEventType = "wallet_drift_detected"
	EventBonusGranted        OutboxEventType = "bonus_granted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventRedemptionRequested,
	EventRedemptionCompleted,
	EventRedemptionReversed,
	EventWalletDriftDetected,
	EventBonusGranted,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
