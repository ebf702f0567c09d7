package coupons

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
)

// Repository encapsulates coupon persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveByCode(ctx context.Context, code string) (*models.Coupon, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	MarkExpired(ctx context.Context, id uuid.UUID) error
	// IncrementUsage bumps usedCount only while the usage limit allows it and
	// reports whether the increment was applied.
	IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error)
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

// FindActiveByCode returns the active coupon whose code set contains code.
func (r *repository) FindActiveByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("? = ANY(codes) AND status = ?", code, enums.CouponStatusActive).
		First(&coupon).Error
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ?", id).
		Update("status", enums.CouponStatusExpired).Error
}

func (r *repository) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ? AND (usage_limit IS NULL OR used_count < usage_limit)", id).
		Update("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CartStore is the slice of cart access coupon application needs.
type CartStore interface {
	WithTx(tx *gorm.DB) CartStore
	FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	AttachCoupon(ctx context.Context, cartID, couponID uuid.UUID, code string, discount decimal.Decimal) error
	DetachCoupon(ctx context.Context, cartID uuid.UUID) error
}

type gormCartStore struct {
	db *gorm.DB
}

// NewCartStore builds the cart accessor the coupon service mutates.
func NewCartStore(db *gorm.DB) CartStore {
	return &gormCartStore{db: db}
}

func (s *gormCartStore) WithTx(tx *gorm.DB) CartStore {
	if tx == nil {
		return s
	}
	return &gormCartStore{db: tx}
}

func (s *gormCartStore) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.WithContext(ctx).
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

func (s *gormCartStore) AttachCoupon(ctx context.Context, cartID, couponID uuid.UUID, code string, discount decimal.Decimal) error {
	return s.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{
			"coupon_id":       couponID,
			"coupon_code":     code,
			"discount_amount": discount,
		}).Error
}

func (s *gormCartStore) DetachCoupon(ctx context.Context, cartID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{
			"coupon_id":       nil,
			"coupon_code":     nil,
			"discount_amount": decimal.Zero,
		}).Error
}
