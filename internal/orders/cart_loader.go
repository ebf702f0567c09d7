package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
)

// CartLoader is the slice of cart access checkout needs, kept narrow so the
// materializer does not depend on the cart package's wider surface.
type CartLoader interface {
	WithTx(tx *gorm.DB) CartLoader
	FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	MarkCompleted(ctx context.Context, cartID uuid.UUID) error
}

type gormCartLoader struct {
	db *gorm.DB
}

// NewCartLoader builds the checkout-scoped cart reader.
func NewCartLoader(db *gorm.DB) CartLoader {
	return &gormCartLoader{db: db}
}

func (l *gormCartLoader) WithTx(tx *gorm.DB) CartLoader {
	if tx == nil {
		return l
	}
	return &gormCartLoader{db: tx}
}

// FindActiveByUser loads the active cart with the full snapshot chain the
// materializer copies from: items, pricing options, plans and products.
func (l *gormCartLoader) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := l.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.PricingOption").
		Preload("Items.PricingOption.Plan").
		Preload("Items.PricingOption.Plan.Product").
		Where("user_id = ? AND status = ?", userID, enums.CartStatusActive).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (l *gormCartLoader) MarkCompleted(ctx context.Context, cartID uuid.UUID) error {
	now := time.Now().UTC()
	return l.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{
			"status":       enums.CartStatusCompleted,
			"completed_at": now,
		}).Error
}
