package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/pkg/db/models"
)

type gormOptionLoader struct {
	db *gorm.DB
}

// NewPricingOptionLoader builds the snapshot accessor the cart service
// validates new lines against.
func NewPricingOptionLoader(db *gorm.DB) pricingOptionLoader {
	return &gormOptionLoader{db: db}
}

func (l *gormOptionLoader) WithTx(tx *gorm.DB) pricingOptionLoader {
	if tx == nil {
		return l
	}
	return &gormOptionLoader{db: tx}
}

func (l *gormOptionLoader) Load(ctx context.Context, id uuid.UUID) (*models.PricingOption, error) {
	var option models.PricingOption
	err := l.db.WithContext(ctx).
		Preload("Plan").
		Preload("Plan.Product").
		Where("id = ?", id).
		First(&option).Error
	if err != nil {
		return nil, err
	}
	return &option, nil
}
