package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/CyberITEX/cms-commerce/api/responses"
	"github.com/CyberITEX/cms-commerce/api/validators"
	ordersvc "github.com/CyberITEX/cms-commerce/internal/orders"
	"github.com/CyberITEX/cms-commerce/internal/payments"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
)

type checkoutRequest struct {
	BillingAddress *string              `json:"billing_address,omitempty"`
	Payment        gatewayResultPayload `json:"payment" validate:"required"`
}

type gatewayResultPayload struct {
	Gateway          string           `json:"gateway" validate:"required"`
	Method           string           `json:"method"`
	Currency         string           `json:"currency"`
	AmountMinorUnits *int64           `json:"amount_minor_units,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	TransactionID    string           `json:"transaction_id" validate:"required"`
	ReferenceID      *string          `json:"reference_id,omitempty"`
	Succeeded        bool             `json:"succeeded"`
	FailureMessage   string           `json:"failure_message,omitempty"`
}

func (p gatewayResultPayload) toResult() payments.GatewayResult {
	return payments.GatewayResult{
		Gateway:          enums.PaymentGateway(p.Gateway),
		Method:           p.Method,
		Currency:         p.Currency,
		AmountMinorUnits: p.AmountMinorUnits,
		Amount:           p.Amount,
		TransactionID:    p.TransactionID,
		ReferenceID:      p.ReferenceID,
		Succeeded:        p.Succeeded,
		FailureMessage:   p.FailureMessage,
	}
}

// Checkout materializes the caller's active cart into an order once the
// gateway has settled the charge.
func Checkout(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ProcessAfterPayment(r.Context(), userID, ordersvc.CheckoutInput{
			BillingAddress: payload.BillingAddress,
			Payment:        payload.Payment.toResult(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
