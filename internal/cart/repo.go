package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
)

// Repository encapsulates cart and cart item persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindByID(ctx context.Context, cartID uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) (*models.Cart, error)
	UpsertItem(ctx context.Context, cartID, pricingOptionID uuid.UUID, quantity int, notes *string) error
	RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) (bool, error)
	UpdateSettings(ctx context.Context, cartID uuid.UUID, updates map[string]any) error
	MarkCompleted(ctx context.Context, cartID uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided GORM handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindActiveByUser returns the newest active cart for the user with items loaded.
func (r *repository) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Items.PricingOption").
		Where("user_id = ? AND status = ?", userID, enums.CartStatusActive).
		Order("created_at DESC").
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) FindByID(ctx context.Context, cartID uuid.UUID) (*models.Cart, error) {
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

func (r *repository) Create(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	if cart.Status == "" {
		cart.Status = enums.CartStatusActive
	}
	if err := r.db.WithContext(ctx).Create(cart).Error; err != nil {
		return nil, err
	}
	return cart, nil
}

// UpsertItem sets the quantity for the pricing option in the cart, inserting
// the line when it does not exist yet.
func (r *repository) UpsertItem(ctx context.Context, cartID, pricingOptionID uuid.UUID, quantity int, notes *string) error {
	var existing models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND pricing_option_id = ?", cartID, pricingOptionID).
		First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return r.db.WithContext(ctx).Create(&models.CartItem{
			CartID:          cartID,
			PricingOptionID: pricingOptionID,
			Quantity:        quantity,
			Notes:           notes,
		}).Error
	}

	updates := map[string]any{"quantity": quantity}
	if notes != nil {
		updates["notes"] = notes
	}
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", existing.ID).
		Updates(updates).Error
}

// RemoveItem deletes the line and reports whether a row was removed.
func (r *repository) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		Delete(&models.CartItem{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateSettings patches cart-level pricing inputs (tip, fee, tax).
func (r *repository) UpdateSettings(ctx context.Context, cartID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(updates).Error
}

// MarkCompleted flips the cart out of the active state after checkout.
func (r *repository) MarkCompleted(ctx context.Context, cartID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{
			"status":       enums.CartStatusCompleted,
			"completed_at": at,
		}).Error
}
