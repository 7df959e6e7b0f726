package enums

import "fmt"

// LedgerEntryKind classifies the balance-affecting event an entry records.
type LedgerEntryKind string

const (
	LedgerKindEarn    LedgerEntryKind = "EARN"
	LedgerKindMature  LedgerEntryKind = "MATURE"
	LedgerKindRedeem  LedgerEntryKind = "REDEEM"
	LedgerKindReverse LedgerEntryKind = "REVERSE"
	LedgerKindExpire  LedgerEntryKind = "EXPIRE"
	LedgerKindBonus   LedgerEntryKind = "BONUS"
)

var validLedgerEntryKinds = []LedgerEntryKind{
	LedgerKindEarn,
	LedgerKindMature,
	LedgerKindRedeem,
	LedgerKindReverse,
	LedgerKindExpire,
	LedgerKindBonus,
}

// CreditKinds carry spendable value through the POSTED/AVAILABLE lifecycle.
var CreditKinds = []LedgerEntryKind{LedgerKindEarn, LedgerKindBonus, LedgerKindReverse}

// IsValid reports whether the value matches the canonical ledger kind enum.
func (k LedgerEntryKind) IsValid() bool {
	for _, candidate := range validLedgerEntryKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// IsCredit reports whether entries of this kind hold spendable value.
func (k LedgerEntryKind) IsCredit() bool {
	for _, candidate := range CreditKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// IsDebit reports whether entries of this kind must carry negative points.
func (k LedgerEntryKind) IsDebit() bool {
	return k == LedgerKindRedeem || k == LedgerKindExpire
}

// ParseLedgerEntryKind converts raw input into LedgerEntryKind.
func ParseLedgerEntryKind(value string) (LedgerEntryKind, error) {
	for _, candidate := range validLedgerEntryKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry kind %q", value)
}

// LedgerEntryStatus is the current lifecycle stage of the value an entry represents.
type LedgerEntryStatus string

const (
	LedgerStatusPosted    LedgerEntryStatus = "POSTED"
	LedgerStatusAvailable LedgerEntryStatus = "AVAILABLE"
	LedgerStatusRedeemed  LedgerEntryStatus = "REDEEMED"
	LedgerStatusExpired   LedgerEntryStatus = "EXPIRED"
)

var validLedgerEntryStatuses = []LedgerEntryStatus{
	LedgerStatusPosted,
	LedgerStatusAvailable,
	LedgerStatusRedeemed,
	LedgerStatusExpired,
}

var allowedLedgerTransitions = map[LedgerEntryStatus][]LedgerEntryStatus{
	LedgerStatusPosted:    {LedgerStatusAvailable},
	LedgerStatusAvailable: {LedgerStatusRedeemed, LedgerStatusExpired},
}

// IsValid reports whether the value matches the canonical ledger status enum.
func (s LedgerEntryStatus) IsValid() bool {
	for _, candidate := range validLedgerEntryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether from -> to is one of the permitted lifecycle moves.
func (s LedgerEntryStatus) CanTransitionTo(to LedgerEntryStatus) bool {
	for _, candidate := range allowedLedgerTransitions[s] {
		if candidate == to {
			return true
		}
	}
	return false
}

// ParseLedgerEntryStatus converts raw input into LedgerEntryStatus.
func ParseLedgerEntryStatus(value string) (LedgerEntryStatus, error) {
	for _, candidate := range validLedgerEntryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry status %q", value)
}
