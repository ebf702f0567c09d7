package enums

import "fmt"

// RenewalStatus tracks the outcome of a scheduled renewal charge.
type RenewalStatus string

const (
	RenewalStatusPending   RenewalStatus = "pending"
	RenewalStatusCompleted RenewalStatus = "completed"
	RenewalStatusFailed    RenewalStatus = "failed"
)

var validRenewalStatuses = []RenewalStatus{
	RenewalStatusPending,
	RenewalStatusCompleted,
	RenewalStatusFailed,
}

// String implements fmt.Stringer.
func (r RenewalStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RenewalStatus.
func (r RenewalStatus) IsValid() bool {
	for _, candidate := range validRenewalStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRenewalStatus converts raw input into a RenewalStatus.
func ParseRenewalStatus(value string) (RenewalStatus, error) {
	for _, candidate := range validRenewalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid renewal status %q", value)
}
