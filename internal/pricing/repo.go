package pricing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/pkg/db/models"
)

// CartRepository encapsulates the cart reads and writes the pricing engine needs.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindWithItems(ctx context.Context, cartID uuid.UUID) (*models.Cart, error)
	SaveTotals(ctx context.Context, cartID uuid.UUID, totals Totals) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided GORM handle.
func NewRepository(db *gorm.DB) CartRepository {
	return &repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindWithItems loads a cart along with item pricing snapshots.
func (r *repository) FindWithItems(ctx context.Context, cartID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.PricingOption").
		Where("id = ?", cartID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// SaveTotals persists the computed totals onto the cart row.
func (r *repository) SaveTotals(ctx context.Context, cartID uuid.UUID, totals Totals) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{
			"subtotal":                   totals.Subtotal,
			"item_count":                 totals.ItemCount,
			"discount_amount":            totals.DiscountAmount,
			"tip_amount":                 totals.TipAmount,
			"tip_percentage":             totals.TipPercentage,
			"transaction_fee_percentage": totals.TransactionFeePercentage,
			"transaction_fee_amount":     totals.TransactionFeeAmount,
			"tax_percentage":             totals.TaxPercentage,
			"tax_amount":                 totals.TaxAmount,
			"grand_total":                totals.GrandTotal,
		}).Error
}
