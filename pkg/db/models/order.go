package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CyberITEX/cms-commerce/pkg/enums"
)

// Order is the immutable-once-paid snapshot of a checkout. Monetary fields
// are copied from the cart at materialization time. LastRenewalSequence is
// the per-order renewal counter; it only moves forward, under row lock.
type Order struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber         string              `gorm:"column:order_number;not null;uniqueIndex"`
	UserID              uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Status              enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	Type                enums.OrderType     `gorm:"column:type;type:order_type;not null;default:'order'"`
	Currency            string              `gorm:"column:currency;not null;default:'USD'"`
	Subtotal            decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null;default:0"`
	DiscountAmount      decimal.Decimal     `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	TipAmount           decimal.Decimal     `gorm:"column:tip_amount;type:numeric(12,2);not null;default:0"`
	TransactionFee      decimal.Decimal     `gorm:"column:transaction_fee;type:numeric(12,2);not null;default:0"`
	TaxAmount           decimal.Decimal     `gorm:"column:tax_amount;type:numeric(12,2);not null;default:0"`
	GrandTotal          decimal.Decimal     `gorm:"column:grand_total;type:numeric(12,2);not null;default:0"`
	CouponCode          *string             `gorm:"column:coupon_code"`
	BillingAddress      *string             `gorm:"column:billing_address"`
	LastRenewalSequence int                 `gorm:"column:last_renewal_sequence;not null;default:0"`
	Items               []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusChanges       []OrderStatusChange `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaidAt              *time.Time          `gorm:"column:paid_at"`
	CompletedAt         *time.Time          `gorm:"column:completed_at"`
	CanceledAt          *time.Time          `gorm:"column:canceled_at"`
	FailedAt            *time.Time          `gorm:"column:failed_at"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
