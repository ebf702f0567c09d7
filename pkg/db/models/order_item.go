package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CyberITEX/cms-commerce/pkg/enums"
)

// OrderItem snapshots one cart line into an order, including the billing
// terms needed to spawn a subscription when the pricing model is recurring.
type OrderItem struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID       uuid.UUID              `gorm:"column:product_id;type:uuid;not null"`
	PlanID          uuid.UUID              `gorm:"column:plan_id;type:uuid;not null"`
	PricingOptionID uuid.UUID              `gorm:"column:pricing_option_id;type:uuid;not null"`
	ProductName     string                 `gorm:"column:product_name;not null"`
	PlanName        string                 `gorm:"column:plan_name;not null"`
	PricingName     string                 `gorm:"column:pricing_name;not null"`
	UnitPrice       decimal.Decimal        `gorm:"column:unit_price;type:numeric(12,2);not null"`
	DiscountType    *enums.DiscountType    `gorm:"column:discount_type;type:discount_type"`
	DiscountAmount  decimal.Decimal        `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	Quantity        int                    `gorm:"column:quantity;not null;default:1"`
	Subtotal        decimal.Decimal        `gorm:"column:subtotal;type:numeric(12,2);not null"`
	PricingModel    enums.PricingModel     `gorm:"column:pricing_model;type:pricing_model;not null"`
	BillingFreq     enums.BillingFrequency `gorm:"column:billing_frequency;type:billing_frequency;not null;default:'month'"`
	BillingInterval int                    `gorm:"column:billing_interval;not null;default:1"`
	BillingCycles   int                    `gorm:"column:billing_cycles;not null;default:0"`
	Downloadable    bool                   `gorm:"column:downloadable;not null;default:false"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
