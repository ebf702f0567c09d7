package payments

import (
	"github.com/shopspring/decimal"

	"github.com/CyberITEX/cms-commerce/pkg/enums"
	pkgerrors "github.com/CyberITEX/cms-commerce/pkg/errors"
)

// GatewayResult is the raw outcome reported by a payment gateway before
// normalization. Amount units differ per gateway: stripe reports minor-unit
// integers, the other gateways report major-unit decimals.
type GatewayResult struct {
	Gateway          enums.PaymentGateway `json:"gateway"`
	Method           string               `json:"method"`
	Currency         string               `json:"currency"`
	AmountMinorUnits *int64               `json:"amount_minor_units,omitempty"`
	Amount           *decimal.Decimal     `json:"amount,omitempty"`
	TransactionID    string               `json:"transaction_id"`
	ReferenceID      *string              `json:"reference_id,omitempty"`
	Succeeded        bool                 `json:"succeeded"`
	FailureMessage   string               `json:"failure_message,omitempty"`
}

// NormalizeAmount resolves the gateway's reported amount into major units.
func NormalizeAmount(result GatewayResult) (decimal.Decimal, error) {
	switch result.Gateway {
	case enums.PaymentGatewayStripe:
		if result.AmountMinorUnits == nil {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "stripe payload missing minor-unit amount")
		}
		return decimal.NewFromInt(*result.AmountMinorUnits).Div(decimal.NewFromInt(100)).Round(2), nil

	case enums.PaymentGatewayPayPal, enums.PaymentGatewayBraintree, enums.PaymentGatewayBankTransfer:
		if result.Amount == nil {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "gateway payload missing amount")
		}
		return result.Amount.Round(2), nil

	default:
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment gateway").
			WithDetails(map[string]string{"gateway": string(result.Gateway)})
	}
}

// Validate checks the identifiers a gateway result must carry before it can
// be registered.
func (r GatewayResult) Validate() error {
	if !r.Gateway.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment gateway").
			WithDetails(map[string]string{"gateway": string(r.Gateway)})
	}
	if r.TransactionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway transaction id is required")
	}
	return nil
}
