package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CyberITEX/cms-commerce/pkg/enums"
)

// PricingOption is the price/discount/billing snapshot referenced by cart and
// order items. It is treated as immutable once a cart item points at it.
type PricingOption struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PlanID          uuid.UUID              `gorm:"column:plan_id;type:uuid;not null;index"`
	Name            string                 `gorm:"column:name;not null"`
	Price           decimal.Decimal        `gorm:"column:price;type:numeric(12,2);not null"`
	DiscountType    *enums.DiscountType    `gorm:"column:discount_type;type:discount_type"`
	DiscountAmount  decimal.Decimal        `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	PricingModel    enums.PricingModel     `gorm:"column:pricing_model;type:pricing_model;not null;default:'one_off'"`
	BillingFreq     enums.BillingFrequency `gorm:"column:billing_frequency;type:billing_frequency;not null;default:'month'"`
	BillingInterval int                    `gorm:"column:billing_interval;not null;default:1"`
	BillingCycles   int                    `gorm:"column:billing_cycles;not null;default:0"`
	TrialDays       int                    `gorm:"column:trial_days;not null;default:0"`
	Plan            *Plan                  `gorm:"foreignKey:PlanID"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
