package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/internal/pricing"
	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
	pkgerrors "github.com/CyberITEX/cms-commerce/pkg/errors"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func decPtr(value string) *decimal.Decimal {
	d := dec(value)
	return &d
}

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubCouponRepo struct {
	coupons map[string]*models.Coupon
	expired []uuid.UUID
	denyUse bool
}

func (s *stubCouponRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubCouponRepo) FindActiveByCode(ctx context.Context, code string) (*models.Coupon, error) {
	for _, coupon := range s.coupons {
		if coupon.HasCode(code) && coupon.Status == enums.CouponStatusActive {
			return coupon, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCouponRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	for _, coupon := range s.coupons {
		if coupon.ID == id {
			return coupon, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCouponRepo) MarkExpired(ctx context.Context, id uuid.UUID) error {
	s.expired = append(s.expired, id)
	return nil
}

func (s *stubCouponRepo) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	if s.denyUse {
		return false, nil
	}
	for _, coupon := range s.coupons {
		if coupon.ID == id {
			coupon.UsedCount++
		}
	}
	return true, nil
}

type stubCarts struct {
	cart     *models.Cart
	attached *decimal.Decimal
	detached bool
}

func (s *stubCarts) WithTx(tx *gorm.DB) CartStore { return s }

func (s *stubCarts) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if s.cart == nil || s.cart.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.cart, nil
}

func (s *stubCarts) AttachCoupon(ctx context.Context, cartID, couponID uuid.UUID, code string, discount decimal.Decimal) error {
	s.attached = &discount
	s.cart.CouponID = &couponID
	s.cart.CouponCode = &code
	s.cart.DiscountAmount = discount
	return nil
}

func (s *stubCarts) DetachCoupon(ctx context.Context, cartID uuid.UUID) error {
	s.detached = true
	s.cart.CouponID = nil
	s.cart.CouponCode = nil
	s.cart.DiscountAmount = decimal.Zero
	return nil
}

type stubPricer struct {
	cart *models.Cart
}

func (s *stubPricer) PriceCartTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) (*pricing.Totals, error) {
	totals := pricing.ComputeTotals(s.cart)
	return &totals, nil
}

func newFixture(t *testing.T, cart *models.Cart, coupon *models.Coupon) (Service, *stubCouponRepo, *stubCarts) {
	t.Helper()
	repo := &stubCouponRepo{coupons: map[string]*models.Coupon{}}
	if coupon != nil {
		repo.coupons[coupon.ID.String()] = coupon
	}
	carts := &stubCarts{cart: cart}
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Carts:  carts,
		Pricer: &stubPricer{cart: cart},
		Tx:     stubTx{},
	})
	require.NoError(t, err)
	return svc, repo, carts
}

func activeCart(userID uuid.UUID, subtotal string) *models.Cart {
	return &models.Cart{
		ID:       uuid.New(),
		UserID:   userID,
		Status:   enums.CartStatusActive,
		Subtotal: dec(subtotal),
		Items: []models.CartItem{
			{ID: uuid.New(), Quantity: 1, PricingOption: &models.PricingOption{Price: dec(subtotal)}},
		},
	}
}

func TestApplyFixedCouponReducesTotalByExactAmount(t *testing.T) {
	userID := uuid.New()
	cart := activeCart(userID, "50")
	coupon := &models.Coupon{
		ID:           uuid.New(),
		Codes:        []string{"SAVE20"},
		Status:       enums.CouponStatusActive,
		DiscountType: enums.DiscountTypeFixed,
		Value:        dec("20"),
	}

	svc, repo, carts := newFixture(t, cart, coupon)

	result, err := svc.Apply(context.Background(), userID, "SAVE20")
	require.NoError(t, err)

	assert.True(t, result.DiscountAmount.Equal(dec("20.00")))
	assert.True(t, result.Totals.GrandTotal.Equal(dec("30.00")), "grand total = %s", result.Totals.GrandTotal)
	require.NotNil(t, carts.attached)
	assert.Equal(t, 1, repo.coupons[coupon.ID.String()].UsedCount)
}

func TestApplyPercentageCouponHonorsMaximumDiscount(t *testing.T) {
	userID := uuid.New()
	cart := activeCart(userID, "10")
	coupon := &models.Coupon{
		ID:                    uuid.New(),
		Codes:                 []string{"HALF"},
		Status:                enums.CouponStatusActive,
		DiscountType:          enums.DiscountTypePercentage,
		Value:                 dec("50"),
		MaximumDiscountAmount: decPtr("3"),
	}

	svc, _, _ := newFixture(t, cart, coupon)

	result, err := svc.Apply(context.Background(), userID, "HALF")
	require.NoError(t, err)
	assert.True(t, result.DiscountAmount.Equal(dec("3.00")), "discount = %s", result.DiscountAmount)
}

func TestApplyFixedCouponCappedAtCartTotal(t *testing.T) {
	assert.True(t, ComputeDiscount(&models.Coupon{
		DiscountType: enums.DiscountTypeFixed,
		Value:        dec("80"),
	}, dec("50")).Equal(dec("50.00")))
}

func TestApplyExpiredCouponFlipsStatus(t *testing.T) {
	userID := uuid.New()
	cart := activeCart(userID, "50")
	past := time.Now().Add(-time.Hour)
	coupon := &models.Coupon{
		ID:             uuid.New(),
		Codes:          []string{"OLD"},
		Status:         enums.CouponStatusActive,
		DiscountType:   enums.DiscountTypeFixed,
		Value:          dec("5"),
		ExpirationDate: &past,
	}

	svc, repo, _ := newFixture(t, cart, coupon)

	_, err := svc.Apply(context.Background(), userID, "OLD")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
	require.Len(t, repo.expired, 1)
	assert.Equal(t, coupon.ID, repo.expired[0])
}

func TestApplyUsageLimitReached(t *testing.T) {
	userID := uuid.New()
	cart := activeCart(userID, "50")
	limit := 3
	coupon := &models.Coupon{
		ID:           uuid.New(),
		Codes:        []string{"MAXED"},
		Status:       enums.CouponStatusActive,
		DiscountType: enums.DiscountTypeFixed,
		Value:        dec("5"),
		UsageLimit:   &limit,
		UsedCount:    3,
	}

	svc, _, _ := newFixture(t, cart, coupon)

	_, err := svc.Apply(context.Background(), userID, "MAXED")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestApplyUserRestrictedCoupon(t *testing.T) {
	userID := uuid.New()
	otherUser := uuid.New()
	cart := activeCart(userID, "50")
	coupon := &models.Coupon{
		ID:               uuid.New(),
		Codes:            []string{"VIP"},
		Status:           enums.CouponStatusActive,
		DiscountType:     enums.DiscountTypeFixed,
		Value:            dec("5"),
		RestrictedUserID: &otherUser,
	}

	svc, _, _ := newFixture(t, cart, coupon)

	_, err := svc.Apply(context.Background(), userID, "VIP")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
}

func TestApplyBelowMinimumOrderAmount(t *testing.T) {
	userID := uuid.New()
	cart := activeCart(userID, "10")
	coupon := &models.Coupon{
		ID:                 uuid.New(),
		Codes:              []string{"BIGONLY"},
		Status:             enums.CouponStatusActive,
		DiscountType:       enums.DiscountTypeFixed,
		Value:              dec("5"),
		MinimumOrderAmount: decPtr("25"),
	}

	svc, _, _ := newFixture(t, cart, coupon)

	_, err := svc.Apply(context.Background(), userID, "BIGONLY")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestApplyUnknownCode(t *testing.T) {
	userID := uuid.New()
	svc, _, _ := newFixture(t, activeCart(userID, "50"), nil)

	_, err := svc.Apply(context.Background(), userID, "NOPE")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestApplyEmptyCartRejected(t *testing.T) {
	userID := uuid.New()
	cart := activeCart(userID, "0")
	cart.Items = nil
	svc, _, _ := newFixture(t, cart, nil)

	_, err := svc.Apply(context.Background(), userID, "ANY")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestRemoveDetachesAndReprices(t *testing.T) {
	userID := uuid.New()
	cart := activeCart(userID, "50")
	couponID := uuid.New()
	code := "SAVE20"
	cart.CouponID = &couponID
	cart.CouponCode = &code
	cart.DiscountAmount = dec("20")

	svc, _, carts := newFixture(t, cart, nil)

	totals, err := svc.Remove(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, carts.detached)
	assert.True(t, totals.DiscountAmount.IsZero())
	assert.True(t, totals.GrandTotal.Equal(dec("50.00")))
}
