package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/CyberITEX/cms-commerce/pkg/enums"
)

// SubscriptionChange is one immutable audit entry per subscription
// transition. The table is the only record of how a subscription reached
// its current state.
type SubscriptionChange struct {
	ID             uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID                 `gorm:"column:subscription_id;type:uuid;not null;index"`
	ChangeType     enums.ChangeType          `gorm:"column:change_type;type:change_type;not null"`
	FromStatus     *enums.SubscriptionStatus `gorm:"column:from_status;type:subscription_status"`
	ToStatus       *enums.SubscriptionStatus `gorm:"column:to_status;type:subscription_status"`
	FromPlan       *string                   `gorm:"column:from_plan"`
	ToPlan         *string                   `gorm:"column:to_plan"`
	ActorID        *uuid.UUID                `gorm:"column:actor_id;type:uuid"`
	Reason         *string                   `gorm:"column:reason"`
	Notes          *string                   `gorm:"column:notes"`
	EffectiveAt    time.Time                 `gorm:"column:effective_at;not null"`
	CreatedAt      time.Time                 `gorm:"column:created_at;autoCreateTime"`
}
