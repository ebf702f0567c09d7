package enums

import "fmt"

// ChangeType classifies a subscription audit record.
type ChangeType string

const (
	ChangeTypePause           ChangeType = "pause"
	ChangeTypeResume          ChangeType = "resume"
	ChangeTypeCancel          ChangeType = "cancel"
	ChangeTypeReactivate      ChangeType = "reactivate"
	ChangeTypeUpgrade         ChangeType = "upgrade"
	ChangeTypeDowngrade       ChangeType = "downgrade"
	ChangeTypePlanChange      ChangeType = "plan_change"
	ChangeTypeFrequencyChange ChangeType = "frequency_change"
)

var validChangeTypes = []ChangeType{
	ChangeTypePause,
	ChangeTypeResume,
	ChangeTypeCancel,
	ChangeTypeReactivate,
	ChangeTypeUpgrade,
	ChangeTypeDowngrade,
	ChangeTypePlanChange,
	ChangeTypeFrequencyChange,
}

// String implements fmt.Stringer.
func (c ChangeType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ChangeType.
func (c ChangeType) IsValid() bool {
	for _, candidate := range validChangeTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseChangeType converts raw input into a ChangeType.
func ParseChangeType(value string) (ChangeType, error) {
	for _, candidate := range validChangeTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid change type %q", value)
}
