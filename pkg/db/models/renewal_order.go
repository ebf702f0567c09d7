package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CyberITEX/cms-commerce/pkg/enums"
)

// RenewalOrder is one dated, sequenced recurring charge attempt against a
// subscription's parent order. RenewalSequence comes from the parent order's
// counter column so numbers per parent are gapless-increasing.
type RenewalOrder struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID            uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	SubscriptionID     uuid.UUID           `gorm:"column:subscription_id;type:uuid;not null;index"`
	RenewalOrderNumber string              `gorm:"column:renewal_order_number;not null;uniqueIndex"`
	RenewalSequence    int                 `gorm:"column:renewal_sequence;not null"`
	Status             enums.RenewalStatus `gorm:"column:status;type:renewal_status;not null;default:'pending'"`
	Currency           string              `gorm:"column:currency;not null;default:'USD'"`
	RenewalAmount      decimal.Decimal     `gorm:"column:renewal_amount;type:numeric(12,2);not null"`
	DiscountAmount     decimal.Decimal     `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	TaxAmount          decimal.Decimal     `gorm:"column:tax_amount;type:numeric(12,2);not null;default:0"`
	TotalAmount        decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	NextRenewalDate    time.Time           `gorm:"column:next_renewal_date;not null"`
	AttemptCount       int                 `gorm:"column:attempt_count;not null;default:0"`
	LastAttemptAt      *time.Time          `gorm:"column:last_attempt_at"`
	NextAttemptAt      *time.Time          `gorm:"column:next_attempt_at"`
	FailureReason      *string             `gorm:"column:failure_reason"`
	CompletedAt        *time.Time          `gorm:"column:completed_at"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
