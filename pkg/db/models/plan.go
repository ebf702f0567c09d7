package models

import (
	"time"

	"github.com/google/uuid"
)

// Plan groups the pricing options sold for one product.
type Plan struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	Name         string    `gorm:"column:name;not null"`
	Downloadable bool      `gorm:"column:downloadable;not null;default:false"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true"`
	Product      *Product  `gorm:"foreignKey:ProductID"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
