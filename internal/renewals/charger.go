package renewals

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	"github.com/CyberITEX/cms-commerce/internal/payments"
	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
	pkgerrors "github.com/CyberITEX/cms-commerce/pkg/errors"
	pkgstripe "github.com/CyberITEX/cms-commerce/pkg/stripe"
)

var hundred = decimal.NewFromInt(100)

// Charger obtains a gateway result for one due renewal. Implementations
// report declines as failed results, not errors; errors are reserved for
// not being able to reach the gateway at all.
type Charger interface {
	Charge(ctx context.Context, renewal *models.RenewalOrder) (payments.GatewayResult, error)
}

type paymentIntentCreator interface {
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeIntentWrapper struct{}

func (stripeIntentWrapper) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params == nil {
		params = &stripe.PaymentIntentParams{}
	}
	params.Context = ctx
	return paymentintent.New(params)
}

// StripeCharger charges renewals as merchant-initiated off-session payment
// intents.
type StripeCharger struct {
	api paymentIntentCreator
}

// NewStripeCharger builds the charger from the configured Stripe client.
func NewStripeCharger(client *pkgstripe.Client) (*StripeCharger, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe client required")
	}
	return &StripeCharger{api: stripeIntentWrapper{}}, nil
}

// Charge creates and confirms an off-session payment intent for the
// renewal's total. Gateway declines come back as failed results.
func (c *StripeCharger) Charge(ctx context.Context, renewal *models.RenewalOrder) (payments.GatewayResult, error) {
	minor := renewal.TotalAmount.Mul(hundred).IntPart()
	params := &stripe.PaymentIntentParams{
		Amount:     stripe.Int64(minor),
		Currency:   stripe.String(strings.ToLower(renewal.Currency)),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
	}
	params.AddMetadata("renewal_order_number", renewal.RenewalOrderNumber)
	params.AddMetadata("subscription_id", renewal.SubscriptionID.String())

	intent, err := c.api.CreatePaymentIntent(ctx, params)
	if err != nil {
		// Card errors still carry a payment intent; treat them as declines.
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.PaymentIntent != nil {
			return declinedResult(minor, renewal.Currency, stripeErr.PaymentIntent.ID, stripeErr.Msg), nil
		}
		return payments.GatewayResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe charge")
	}

	result := payments.GatewayResult{
		Gateway:          enums.PaymentGatewayStripe,
		Method:           "card",
		Currency:         renewal.Currency,
		AmountMinorUnits: &intent.Amount,
		TransactionID:    intent.ID,
		Succeeded:        intent.Status == stripe.PaymentIntentStatusSucceeded,
	}
	if !result.Succeeded {
		result.FailureMessage = "payment intent status " + string(intent.Status)
	}
	return result, nil
}

func declinedResult(minor int64, currency, transactionID, message string) payments.GatewayResult {
	return payments.GatewayResult{
		Gateway:          enums.PaymentGatewayStripe,
		Method:           "card",
		Currency:         currency,
		AmountMinorUnits: &minor,
		TransactionID:    transactionID,
		Succeeded:        false,
		FailureMessage:   message,
	}
}
