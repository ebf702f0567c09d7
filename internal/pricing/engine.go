package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// Totals is the full monetary breakdown of a priced cart.
type Totals struct {
	Subtotal                 decimal.Decimal `json:"subtotal"`
	ItemCount                int             `json:"item_count"`
	DiscountAmount           decimal.Decimal `json:"discount_amount"`
	TipAmount                decimal.Decimal `json:"tip_amount"`
	TipPercentage            decimal.Decimal `json:"tip_percentage"`
	TransactionFeePercentage decimal.Decimal `json:"transaction_fee_percentage"`
	TransactionFeeAmount     decimal.Decimal `json:"transaction_fee_amount"`
	TaxPercentage            decimal.Decimal `json:"tax_percentage"`
	TaxAmount                decimal.Decimal `json:"tax_amount"`
	GrandTotal               decimal.Decimal `json:"grand_total"`
}

// ComputeTotals derives cart totals from the cart's items and level settings.
// Items must carry their PricingOption snapshot. The computation is pure:
// the same item set always yields the same totals.
//
// grandTotal = subtotal - discountAmount + tipAmount + feeAmount + taxAmount,
// each component rounded to 2 decimal places.
func ComputeTotals(cart *models.Cart) Totals {
	totals := Totals{
		Subtotal:                 decimal.Zero,
		DiscountAmount:           cart.DiscountAmount.Round(2),
		TipPercentage:            cart.TipPercentage,
		TransactionFeePercentage: cart.TransactionFeePercentage,
		TaxPercentage:            cart.TaxPercentage,
		TipAmount:                decimal.Zero,
		TransactionFeeAmount:     decimal.Zero,
		TaxAmount:                decimal.Zero,
		GrandTotal:               decimal.Zero,
	}

	for _, item := range cart.Items {
		if item.PricingOption == nil {
			continue
		}
		unit := EffectiveUnitPrice(*item.PricingOption)
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		totals.Subtotal = totals.Subtotal.Add(unit.Mul(decimal.NewFromInt(int64(qty))))
		totals.ItemCount += qty
	}
	totals.Subtotal = totals.Subtotal.Round(2)

	if totals.DiscountAmount.GreaterThan(totals.Subtotal) {
		totals.DiscountAmount = totals.Subtotal
	}

	totals.TransactionFeeAmount = totals.Subtotal.
		Mul(totals.TransactionFeePercentage).Div(hundred).Round(2)

	taxable := totals.Subtotal.Sub(totals.DiscountAmount)
	totals.TaxAmount = taxable.Mul(totals.TaxPercentage).Div(hundred).Round(2)

	// explicit tip amount wins over a percentage-derived one
	if cart.TipAmount.IsPositive() {
		totals.TipAmount = cart.TipAmount.Round(2)
	} else if totals.TipPercentage.IsPositive() {
		totals.TipAmount = totals.Subtotal.Mul(totals.TipPercentage).Div(hundred).Round(2)
	}

	totals.GrandTotal = totals.Subtotal.
		Sub(totals.DiscountAmount).
		Add(totals.TipAmount).
		Add(totals.TransactionFeeAmount).
		Add(totals.TaxAmount).
		Round(2)

	return totals
}

// EffectiveUnitPrice resolves one pricing snapshot to its discounted unit
// price. Fixed discounts larger than the price clamp the unit at zero rather
// than producing a negative line.
func EffectiveUnitPrice(option models.PricingOption) decimal.Decimal {
	price := option.Price
	if option.DiscountType == nil || option.DiscountAmount.IsZero() {
		return price.Round(2)
	}

	switch *option.DiscountType {
	case enums.DiscountTypePercentage:
		price = price.Mul(decimal.NewFromInt(1).Sub(option.DiscountAmount.Div(hundred)))
	case enums.DiscountTypeFixed:
		price = price.Sub(option.DiscountAmount)
	}

	if price.IsNegative() {
		price = decimal.Zero
	}
	return price.Round(2)
}
