package models

import (
	"time"

	"github.com/google/uuid"
)

// DownloadGrant records that a user gained download access to a plan's
// assets, either from a one-off purchase or from a subscription item.
type DownloadGrant struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	PlanID         uuid.UUID  `gorm:"column:plan_id;type:uuid;not null"`
	SubscriptionID *uuid.UUID `gorm:"column:subscription_id;type:uuid"`
	GrantedAt      time.Time  `gorm:"column:granted_at;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}
