package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CyberITEX/cms-commerce/pkg/enums"
)

// Cart is the mutable pre-checkout container for one user's line items.
// Totals are denormalized by the pricing engine after every mutation.
type Cart struct {
	ID                       uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                   uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index"`
	Status                   enums.CartStatus `gorm:"column:status;type:cart_status;not null;default:'active'"`
	Currency                 string           `gorm:"column:currency;not null;default:'USD'"`
	Subtotal                 decimal.Decimal  `gorm:"column:subtotal;type:numeric(12,2);not null;default:0"`
	ItemCount                int              `gorm:"column:item_count;not null;default:0"`
	DiscountAmount           decimal.Decimal  `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	TipAmount                decimal.Decimal  `gorm:"column:tip_amount;type:numeric(12,2);not null;default:0"`
	TipPercentage            decimal.Decimal  `gorm:"column:tip_percentage;type:numeric(5,2);not null;default:0"`
	TransactionFeePercentage decimal.Decimal  `gorm:"column:transaction_fee_percentage;type:numeric(5,2);not null;default:0"`
	TransactionFeeAmount     decimal.Decimal  `gorm:"column:transaction_fee_amount;type:numeric(12,2);not null;default:0"`
	TaxPercentage            decimal.Decimal  `gorm:"column:tax_percentage;type:numeric(5,2);not null;default:0"`
	TaxAmount                decimal.Decimal  `gorm:"column:tax_amount;type:numeric(12,2);not null;default:0"`
	GrandTotal               decimal.Decimal  `gorm:"column:grand_total;type:numeric(12,2);not null;default:0"`
	CouponID                 *uuid.UUID       `gorm:"column:coupon_id;type:uuid"`
	CouponCode               *string          `gorm:"column:coupon_code"`
	Items                    []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CompletedAt              *time.Time       `gorm:"column:completed_at"`
	CreatedAt                time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
