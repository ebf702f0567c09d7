package renewals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
)

// Repository persists renewal orders and the rows renewal processing touches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindSubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Subscription, error)
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	NextRenewalSequence(ctx context.Context, orderID uuid.UUID) (int, error)
	CreateRenewalOrder(ctx context.Context, renewal *models.RenewalOrder) error
	FindRenewalOrder(ctx context.Context, renewalOrderID uuid.UUID) (*models.RenewalOrder, error)
	LastFailedRenewal(ctx context.Context, subscriptionID uuid.UUID) (*models.RenewalOrder, error)
	UpdateRenewalOrder(ctx context.Context, renewalOrderID uuid.UUID, updates map[string]any) error
	ListDue(ctx context.Context, now time.Time, limit, offset int) ([]models.RenewalOrder, error)
	CountDue(ctx context.Context, now time.Time) (int64, error)
	ListDueSubscriptions(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	HasPendingRenewal(ctx context.Context, subscriptionID uuid.UUID) (bool, error)
	UpdateSubscription(ctx context.Context, subscriptionID uuid.UUID, updates map[string]any) error
	AppendSubscriptionChange(ctx context.Context, change *models.SubscriptionChange) error
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

func (r *repository) FindSubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("id = ?", subscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindOrderForUpdate row-locks the parent order so concurrent renewals for
// the same order serialize on the sequence counter.
func (r *repository) FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// NextRenewalSequence bumps the parent order's renewal counter and returns
// the new value. Sequences per parent are strictly increasing from 1.
func (r *repository) NextRenewalSequence(ctx context.Context, orderID uuid.UUID) (int, error) {
	var seq int
	err := r.db.WithContext(ctx).
		Raw(`UPDATE orders
		     SET last_renewal_sequence = last_renewal_sequence + 1
		     WHERE id = ?
		     RETURNING last_renewal_sequence`, orderID).
		Scan(&seq).Error
	if err != nil {
		return 0, err
	}
	if seq == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return seq, nil
}

func (r *repository) CreateRenewalOrder(ctx context.Context, renewal *models.RenewalOrder) error {
	return r.db.WithContext(ctx).Create(renewal).Error
}

func (r *repository) FindRenewalOrder(ctx context.Context, renewalOrderID uuid.UUID) (*models.RenewalOrder, error) {
	var renewal models.RenewalOrder
	err := r.db.WithContext(ctx).Where("id = ?", renewalOrderID).First(&renewal).Error
	if err != nil {
		return nil, err
	}
	return &renewal, nil
}

// LastFailedRenewal returns the subscription's most recent failed renewal,
// or nil when it has none. Served by the partial retry index.
func (r *repository) LastFailedRenewal(ctx context.Context, subscriptionID uuid.UUID) (*models.RenewalOrder, error) {
	var renewal models.RenewalOrder
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Where("status = ?", enums.RenewalStatusFailed).
		Order("created_at DESC").
		First(&renewal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &renewal, nil
}

func (r *repository) UpdateRenewalOrder(ctx context.Context, renewalOrderID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.RenewalOrder{}).
		Where("id = ?", renewalOrderID).
		Updates(updates).Error
}

// ListDue returns pending renewals whose due date has passed, oldest first.
// Rows waiting on a retry backoff are excluded until next_attempt_at passes.
func (r *repository) ListDue(ctx context.Context, now time.Time, limit, offset int) ([]models.RenewalOrder, error) {
	var renewals []models.RenewalOrder
	err := r.dueQuery(ctx, now).
		Order("next_renewal_date ASC").
		Limit(limit).
		Offset(offset).
		Find(&renewals).Error
	if err != nil {
		return nil, err
	}
	return renewals, nil
}

// CountDue counts due renewals with the same predicate as ListDue, ignoring
// pagination.
func (r *repository) CountDue(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	err := r.dueQuery(ctx, now).Count(&total).Error
	return total, err
}

func (r *repository) dueQuery(ctx context.Context, now time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.RenewalOrder{}).
		Where("status = ?", enums.RenewalStatusPending).
		Where("next_renewal_date <= ?", now).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now)
}

// ListDueSubscriptions returns auto-renewing subscriptions whose billing
// date has arrived and that can be charged again.
func (r *repository) ListDueSubscriptions(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("auto_renew = ?", true).
		Where("next_billing_date IS NOT NULL AND next_billing_date <= ?", now).
		Where("status IN ?", []enums.SubscriptionStatus{
			enums.SubscriptionStatusActive,
			enums.SubscriptionStatusPastDue,
		}).
		Order("next_billing_date ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) HasPendingRenewal(ctx context.Context, subscriptionID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RenewalOrder{}).
		Where("subscription_id = ?", subscriptionID).
		Where("status = ?", enums.RenewalStatusPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) UpdateSubscription(ctx context.Context, subscriptionID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", subscriptionID).
		Updates(updates).Error
}

func (r *repository) AppendSubscriptionChange(ctx context.Context, change *models.SubscriptionChange) error {
	return r.db.WithContext(ctx).Create(change).Error
}
