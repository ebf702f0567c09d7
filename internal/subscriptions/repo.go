package subscriptions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/pkg/db/models"
)

// Repository persists subscriptions and their append-only change log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, subscriptionID uuid.UUID) (*models.Subscription, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Subscription, int64, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Subscription, error)
	Update(ctx context.Context, subscriptionID uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, subscriptionID uuid.UUID) error
	AppendChange(ctx context.Context, change *models.SubscriptionChange) error
	ListChanges(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionChange, error)
	FindPricingOption(ctx context.Context, optionID uuid.UUID) (*models.PricingOption, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided GORM handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, subscriptionID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("id = ?", subscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Subscription, int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var subs []models.Subscription
	err = r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&subs).Error
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) Update(ctx context.Context, subscriptionID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", subscriptionID).
		Updates(updates).Error
}

func (r *repository) Delete(ctx context.Context, subscriptionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", subscriptionID).
		Delete(&models.Subscription{}).Error
}

func (r *repository) AppendChange(ctx context.Context, change *models.SubscriptionChange) error {
	return r.db.WithContext(ctx).Create(change).Error
}

func (r *repository) ListChanges(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionChange, error) {
	var changes []models.SubscriptionChange
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC").
		Find(&changes).Error
	if err != nil {
		return nil, err
	}
	return changes, nil
}

func (r *repository) FindPricingOption(ctx context.Context, optionID uuid.UUID) (*models.PricingOption, error) {
	var option models.PricingOption
	err := r.db.WithContext(ctx).
		Preload("Plan").
		Preload("Plan.Product").
		Where("id = ?", optionID).
		First(&option).Error
	if err != nil {
		return nil, err
	}
	return &option, nil
}
