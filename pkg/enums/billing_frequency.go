package enums

import (
	"fmt"
	"time"
)

// BillingFrequency is the unit a subscription's billing interval is expressed in.
type BillingFrequency string

const (
	BillingFrequencyDay   BillingFrequency = "day"
	BillingFrequencyWeek  BillingFrequency = "week"
	BillingFrequencyMonth BillingFrequency = "month"
	BillingFrequencyYear  BillingFrequency = "year"
)

var validBillingFrequencies = []BillingFrequency{
	BillingFrequencyDay,
	BillingFrequencyWeek,
	BillingFrequencyMonth,
	BillingFrequencyYear,
}

// String implements fmt.Stringer.
func (b BillingFrequency) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingFrequency.
func (b BillingFrequency) IsValid() bool {
	for _, candidate := range validBillingFrequencies {
		if candidate == b {
			return true
		}
	}
	return false
}

// AddTo advances t by interval units of the frequency. Unknown frequencies
// fall back to months so a bad row never schedules an immediate charge.
func (b BillingFrequency) AddTo(t time.Time, interval int) time.Time {
	if interval <= 0 {
		interval = 1
	}
	switch b {
	case BillingFrequencyDay:
		return t.AddDate(0, 0, interval)
	case BillingFrequencyWeek:
		return t.AddDate(0, 0, 7*interval)
	case BillingFrequencyYear:
		return t.AddDate(interval, 0, 0)
	default:
		return t.AddDate(0, interval, 0)
	}
}

// ParseBillingFrequency converts raw input into a BillingFrequency.
func ParseBillingFrequency(value string) (BillingFrequency, error) {
	for _, candidate := range validBillingFrequencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing frequency %q", value)
}
