package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/CyberITEX/cms-commerce/pkg/enums"
)

// Coupon is a redeemable discount with optional usage constraints.
type Coupon struct {
	ID                    uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name                  string             `gorm:"column:name;not null"`
	Codes                 pq.StringArray     `gorm:"column:codes;type:text[];not null"`
	Status                enums.CouponStatus `gorm:"column:status;type:coupon_status;not null;default:'active'"`
	DiscountType          enums.DiscountType `gorm:"column:discount_type;type:discount_type;not null"`
	Value                 decimal.Decimal    `gorm:"column:value;type:numeric(12,2);not null"`
	ExpirationDate        *time.Time         `gorm:"column:expiration_date"`
	UsageLimit            *int               `gorm:"column:usage_limit"`
	UsedCount             int                `gorm:"column:used_count;not null;default:0"`
	MinimumOrderAmount    *decimal.Decimal   `gorm:"column:minimum_order_amount;type:numeric(12,2)"`
	MaximumDiscountAmount *decimal.Decimal   `gorm:"column:maximum_discount_amount;type:numeric(12,2)"`
	RestrictedUserID      *uuid.UUID         `gorm:"column:restricted_user_id;type:uuid"`
	CreatedAt             time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// HasCode reports whether the coupon's code set contains code.
func (c Coupon) HasCode(code string) bool {
	for _, candidate := range c.Codes {
		if candidate == code {
			return true
		}
	}
	return false
}
