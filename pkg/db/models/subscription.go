package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CyberITEX/cms-commerce/pkg/enums"
	"github.com/CyberITEX/cms-commerce/pkg/types"
)

// Subscription is a recurring billing agreement spawned from one order item.
// PendingChange holds a requester-initiated transition awaiting approval so
// the status column only ever carries settled states.
type Subscription struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index"`
	OrderItemID     uuid.UUID                `gorm:"column:order_item_id;type:uuid;not null"`
	UserID          uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	Status          enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	PendingChange   *types.PendingChange     `gorm:"column:pending_change;type:jsonb;serializer:json"`
	ProductName     string                   `gorm:"column:product_name;not null"`
	PlanName        string                   `gorm:"column:plan_name;not null"`
	PricingName     string                   `gorm:"column:pricing_name;not null"`
	PlanID          uuid.UUID                `gorm:"column:plan_id;type:uuid;not null"`
	PricingOptionID uuid.UUID                `gorm:"column:pricing_option_id;type:uuid;not null"`
	Price           decimal.Decimal          `gorm:"column:price;type:numeric(12,2);not null"`
	DiscountAmount  decimal.Decimal          `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	BillingFreq     enums.BillingFrequency   `gorm:"column:billing_frequency;type:billing_frequency;not null;default:'month'"`
	BillingInterval int                      `gorm:"column:billing_interval;not null;default:1"`
	BillingCycles   int                      `gorm:"column:billing_cycles;not null;default:0"`
	NextBillingDate *time.Time               `gorm:"column:next_billing_date"`
	AutoRenew       bool                     `gorm:"column:auto_renew;not null;default:true"`
	TrialEndsAt     *time.Time               `gorm:"column:trial_ends_at"`
	CanceledAt      *time.Time               `gorm:"column:canceled_at"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
