package pricing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/CyberITEX/cms-commerce/pkg/errors"
)

// Service recomputes and persists cart totals.
type Service interface {
	PriceCart(ctx context.Context, cartID uuid.UUID) (*Totals, error)
	PriceCartTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) (*Totals, error)
}

type service struct {
	repo CartRepository
}

// NewService wires pricing dependencies.
func NewService(repo CartRepository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pricing repository required")
	}
	return &service{repo: repo}, nil
}

// PriceCart recomputes the cart's totals from its item set and persists them.
// Idempotent: repricing an unchanged cart writes the same values again.
func (s *service) PriceCart(ctx context.Context, cartID uuid.UUID) (*Totals, error) {
	return s.price(ctx, s.repo, cartID)
}

// PriceCartTx reprices inside an existing transaction so callers can bundle
// the reprice with the mutation that triggered it.
func (s *service) PriceCartTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) (*Totals, error) {
	return s.price(ctx, s.repo.WithTx(tx), cartID)
}

func (s *service) price(ctx context.Context, repo CartRepository, cartID uuid.UUID) (*Totals, error) {
	if cartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id is required")
	}

	cart, err := repo.FindWithItems(ctx, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	totals := ComputeTotals(cart)
	if err := repo.SaveTotals(ctx, cartID, totals); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cart totals")
	}
	return &totals, nil
}
