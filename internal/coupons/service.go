package coupons

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/internal/pricing"
	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
	pkgerrors "github.com/CyberITEX/cms-commerce/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type repricer interface {
	PriceCartTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) (*pricing.Totals, error)
}

// Service applies and removes discount codes on a user's active cart.
type Service interface {
	Apply(ctx context.Context, userID uuid.UUID, code string) (*ApplyResult, error)
	Remove(ctx context.Context, userID uuid.UUID) (*pricing.Totals, error)
}

// ApplyResult reports the applied coupon and the repriced totals.
type ApplyResult struct {
	CouponID       uuid.UUID       `json:"coupon_id"`
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Totals         pricing.Totals  `json:"totals"`
}

type service struct {
	repo   Repository
	carts  CartStore
	pricer repricer
	tx     txRunner
	nowFn  func() time.Time
}

// ServiceParams wires coupon dependencies.
type ServiceParams struct {
	Repo   Repository
	Carts  CartStore
	Pricer repricer
	Tx     txRunner
	Now    func() time.Time
}

// NewService validates dependencies and builds the coupon service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "coupon repository required")
	}
	if params.Carts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cart store required")
	}
	if params.Pricer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pricing service required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:   params.Repo,
		carts:  params.Carts,
		pricer: params.Pricer,
		tx:     params.Tx,
		nowFn:  now,
	}, nil
}

// Apply runs the validation pipeline and attaches the coupon to the user's
// active cart, short-circuiting on the first failed check.
func (s *service) Apply(ctx context.Context, userID uuid.UUID, code string) (*ApplyResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}

	var result *ApplyResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		repo := s.repo.WithTx(tx)

		cart, err := carts.FindActiveByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "active cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(cart.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		coupon, err := repo.FindActiveByCode(ctx, code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
		}

		now := s.nowFn()
		if coupon.ExpirationDate != nil && coupon.ExpirationDate.Before(now) {
			if err := repo.MarkExpired(ctx, coupon.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire coupon")
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "coupon has expired")
		}
		if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "coupon usage limit reached")
		}
		if coupon.RestrictedUserID != nil && *coupon.RestrictedUserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "coupon is restricted to another user")
		}
		if coupon.MinimumOrderAmount != nil && cart.Subtotal.LessThan(*coupon.MinimumOrderAmount) {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart total below coupon minimum")
		}

		discount := ComputeDiscount(coupon, cart.Subtotal)

		if err := carts.AttachCoupon(ctx, cart.ID, coupon.ID, code, discount); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach coupon")
		}
		applied, err := repo.IncrementUsage(ctx, coupon.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment coupon usage")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "coupon usage limit reached")
		}

		totals, err := s.pricer.PriceCartTx(ctx, tx, cart.ID)
		if err != nil {
			return err
		}

		result = &ApplyResult{
			CouponID:       coupon.ID,
			Code:           code,
			DiscountAmount: discount,
			Totals:         *totals,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Remove detaches any applied coupon from the user's active cart and reprices.
func (s *service) Remove(ctx context.Context, userID uuid.UUID) (*pricing.Totals, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	var totals *pricing.Totals
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)

		cart, err := carts.FindActiveByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "active cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		if err := carts.DetachCoupon(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "detach coupon")
		}

		totals, err = s.pricer.PriceCartTx(ctx, tx, cart.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return totals, nil
}

// ComputeDiscount derives the coupon's discount against the cart total.
// Percentage discounts honor maximumDiscountAmount; fixed discounts never
// exceed the cart total.
func ComputeDiscount(coupon *models.Coupon, cartTotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch coupon.DiscountType {
	case enums.DiscountTypePercentage:
		discount = cartTotal.Mul(coupon.Value).Div(hundred)
		if coupon.MaximumDiscountAmount != nil && discount.GreaterThan(*coupon.MaximumDiscountAmount) {
			discount = *coupon.MaximumDiscountAmount
		}
	case enums.DiscountTypeFixed:
		discount = coupon.Value
		if discount.GreaterThan(cartTotal) {
			discount = cartTotal
		}
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount.Round(2)
}
