package pricing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	pkgerrors "github.com/CyberITEX/cms-commerce/pkg/errors"
)

type stubCartRepo struct {
	carts map[uuid.UUID]*models.Cart
	saved map[uuid.UUID]Totals
}

func newStubCartRepo() *stubCartRepo {
	return &stubCartRepo{
		carts: map[uuid.UUID]*models.Cart{},
		saved: map[uuid.UUID]Totals{},
	}
}

func (s *stubCartRepo) WithTx(tx *gorm.DB) CartRepository { return s }

func (s *stubCartRepo) FindWithItems(ctx context.Context, cartID uuid.UUID) (*models.Cart, error) {
	cart, ok := s.carts[cartID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cart, nil
}

func (s *stubCartRepo) SaveTotals(ctx context.Context, cartID uuid.UUID, totals Totals) error {
	s.saved[cartID] = totals
	return nil
}

func TestPriceCartPersistsTotals(t *testing.T) {
	repo := newStubCartRepo()
	cartID := uuid.New()
	repo.carts[cartID] = &models.Cart{
		ID: cartID,
		Items: []models.CartItem{
			{Quantity: 2, PricingOption: &models.PricingOption{Price: dec("25")}},
		},
	}

	svc, err := NewService(repo)
	require.NoError(t, err)

	totals, err := svc.PriceCart(context.Background(), cartID)
	require.NoError(t, err)
	assert.True(t, totals.Subtotal.Equal(dec("50.00")))

	saved, ok := repo.saved[cartID]
	require.True(t, ok)
	assert.True(t, saved.GrandTotal.Equal(totals.GrandTotal))
}

func TestPriceCartMissingCart(t *testing.T) {
	svc, err := NewService(newStubCartRepo())
	require.NoError(t, err)

	_, err = svc.PriceCart(context.Background(), uuid.New())
	require.Error(t, err)
	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeNotFound, domainErr.Code())
}

func TestPriceCartRequiresID(t *testing.T) {
	svc, err := NewService(newStubCartRepo())
	require.NoError(t, err)

	_, err = svc.PriceCart(context.Background(), uuid.Nil)
	assert.Error(t, err)
}

func TestNewServiceRequiresRepo(t *testing.T) {
	_, err := NewService(nil)
	assert.Error(t, err)
}
