package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem ties a quantity of one pricing snapshot to a cart.
type CartItem struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID          uuid.UUID      `gorm:"column:cart_id;type:uuid;not null;index"`
	PricingOptionID uuid.UUID      `gorm:"column:pricing_option_id;type:uuid;not null"`
	Quantity        int            `gorm:"column:quantity;not null;default:1"`
	Notes           *string        `gorm:"column:notes"`
	PricingOption   *PricingOption `gorm:"foreignKey:PricingOptionID"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
