package enums

import "fmt"

// PricingModel describes how a pricing option bills the buyer.
type PricingModel string

const (
	PricingModelOneOff       PricingModel = "one_off"
	PricingModelSubscription PricingModel = "subscription"
	PricingModelUsageBased   PricingModel = "usage_based"
)

var validPricingModels = []PricingModel{
	PricingModelOneOff,
	PricingModelSubscription,
	PricingModelUsageBased,
}

// String implements fmt.Stringer.
func (p PricingModel) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PricingModel.
func (p PricingModel) IsValid() bool {
	for _, candidate := range validPricingModels {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsRecurring reports whether the model spawns a subscription at checkout.
func (p PricingModel) IsRecurring() bool {
	return p == PricingModelSubscription
}

// ParsePricingModel converts raw input into a PricingModel.
func ParsePricingModel(value string) (PricingModel, error) {
	for _, candidate := range validPricingModels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pricing model %q", value)
}
