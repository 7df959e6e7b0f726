package enums

import "fmt"

// RedemptionStatus tracks a payout request from creation to settlement.
type RedemptionStatus string

const (
	RedemptionStatusPending    RedemptionStatus = "PENDING"
	RedemptionStatusProcessing RedemptionStatus = "PROCESSING"
	RedemptionStatusSuccess    RedemptionStatus = "SUCCESS"
	RedemptionStatusFailed     RedemptionStatus = "FAILED"
)

var validRedemptionStatuses = []RedemptionStatus{
	RedemptionStatusPending,
	RedemptionStatusProcessing,
	RedemptionStatusSuccess,
	RedemptionStatusFailed,
}

// IsValid reports whether the value matches the canonical redemption status enum.
func (s RedemptionStatus) IsValid() bool {
	for _, candidate := range validRedemptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s RedemptionStatus) IsTerminal() bool {
	return s == RedemptionStatusSuccess || s == RedemptionStatusFailed
}

// ParseRedemptionStatus converts raw input into RedemptionStatus.
func ParseRedemptionStatus(value string) (RedemptionStatus, error) {
	for _, candidate := range validRedemptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid redemption status %q", value)
}

// RedemptionMethod is how the payout provider delivers redeemed value.
type RedemptionMethod string

const (
	RedemptionMethodTransfer RedemptionMethod = "transfer"
	RedemptionMethodVoucher  RedemptionMethod = "voucher"
)

var validRedemptionMethods = []RedemptionMethod{
	RedemptionMethodTransfer,
	RedemptionMethodVoucher,
}

// IsValid reports whether the value matches a supported redemption method.
func (m RedemptionMethod) IsValid() bool {
	for _, candidate := range validRedemptionMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseRedemptionMethod converts raw input into RedemptionMethod.
func ParseRedemptionMethod(value string) (RedemptionMethod, error) {
	for _, candidate := range validRedemptionMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid redemption method %q", value)
}
