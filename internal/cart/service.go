package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/internal/pricing"
	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	pkgerrors "github.com/CyberITEX/cms-commerce/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type repricer interface {
	PriceCartTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) (*pricing.Totals, error)
}

type pricingOptionLoader interface {
	WithTx(tx *gorm.DB) pricingOptionLoader
	Load(ctx context.Context, id uuid.UUID) (*models.PricingOption, error)
}

// Service exposes cart mutation and lookup operations. Every mutation ends
// with a reprice so the stored totals never go stale.
type Service interface {
	GetActiveCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Quote(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*models.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*models.Cart, error)
	UpdateSettings(ctx context.Context, userID uuid.UUID, input SettingsInput) (*models.Cart, error)
}

// AddItemInput captures one add/update line request.
type AddItemInput struct {
	PricingOptionID uuid.UUID `json:"pricing_option_id" validate:"required"`
	Quantity        int       `json:"quantity" validate:"required,min=1"`
	Notes           *string   `json:"notes,omitempty"`
}

// SettingsInput patches cart-level pricing inputs. Nil fields are untouched.
type SettingsInput struct {
	TipAmount                *decimal.Decimal `json:"tip_amount,omitempty"`
	TipPercentage            *decimal.Decimal `json:"tip_percentage,omitempty"`
	TransactionFeePercentage *decimal.Decimal `json:"transaction_fee_percentage,omitempty"`
	TaxPercentage            *decimal.Decimal `json:"tax_percentage,omitempty"`
}

type service struct {
	repo    Repository
	options pricingOptionLoader
	pricer  repricer
	tx      txRunner
}

// NewService wires cart dependencies.
func NewService(repo Repository, options pricingOptionLoader, pricer repricer, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cart repository required")
	}
	if options == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pricing option loader required")
	}
	if pricer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pricing service required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{repo: repo, options: options, pricer: pricer, tx: tx}, nil
}

// GetActiveCart returns the user's active cart, or not-found.
func (s *service) GetActiveCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cart, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "active cart not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

// Quote reprices the user's active cart against current pricing options and
// returns the refreshed totals.
func (s *service) Quote(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	var quoted *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindActiveByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "active cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if _, err := s.pricer.PriceCartTx(ctx, tx, cart.ID); err != nil {
			return err
		}

		quoted, err = repo.FindByID(ctx, cart.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return quoted, nil
}

// AddItem validates the pricing snapshot, upserts the line into the user's
// active cart (creating the cart on first add), and reprices.
func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.PricingOptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pricing option id is required")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var updated *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		option, err := s.options.WithTx(tx).Load(ctx, input.PricingOptionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "pricing option not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pricing option")
		}
		if option.Plan != nil && !option.Plan.IsActive {
			return pkgerrors.New(pkgerrors.CodeValidation, "plan is not available")
		}

		cart, err := repo.FindActiveByUser(ctx, userID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
			}
			cart, err = repo.Create(ctx, &models.Cart{UserID: userID})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
			}
		}

		if err := repo.UpsertItem(ctx, cart.ID, input.PricingOptionID, input.Quantity, input.Notes); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert cart item")
		}
		if _, err := s.pricer.PriceCartTx(ctx, tx, cart.ID); err != nil {
			return err
		}

		updated, err = repo.FindByID(ctx, cart.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveItem drops the line from the user's active cart and reprices.
func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}

	var updated *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindActiveByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "active cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		removed, err := repo.RemoveItem(ctx, cart.ID, itemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
		}
		if !removed {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}

		if _, err := s.pricer.PriceCartTx(ctx, tx, cart.ID); err != nil {
			return err
		}

		updated, err = repo.FindByID(ctx, cart.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateSettings patches tip/fee/tax inputs on the active cart and reprices.
func (s *service) UpdateSettings(ctx context.Context, userID uuid.UUID, input SettingsInput) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	updates := map[string]any{}
	if input.TipAmount != nil {
		if input.TipAmount.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "tip amount cannot be negative")
		}
		updates["tip_amount"] = *input.TipAmount
	}
	if input.TipPercentage != nil {
		if input.TipPercentage.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "tip percentage cannot be negative")
		}
		updates["tip_percentage"] = *input.TipPercentage
	}
	if input.TransactionFeePercentage != nil {
		if input.TransactionFeePercentage.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "fee percentage cannot be negative")
		}
		updates["transaction_fee_percentage"] = *input.TransactionFeePercentage
	}
	if input.TaxPercentage != nil {
		if input.TaxPercentage.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "tax percentage cannot be negative")
		}
		updates["tax_percentage"] = *input.TaxPercentage
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no settings provided")
	}

	var updated *models.Cart
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindActiveByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "active cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}

		if err := repo.UpdateSettings(ctx, cart.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart settings")
		}
		if _, err := s.pricer.PriceCartTx(ctx, tx, cart.ID); err != nil {
			return err
		}

		updated, err = repo.FindByID(ctx, cart.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
