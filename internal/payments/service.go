package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/pkg/db"
	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
	pkgerrors "github.com/CyberITEX/cms-commerce/pkg/errors"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
)

// Service normalizes gateway results into payment records. Registering a
// successful payment against a pending order flips it into processing.
type Service interface {
	Register(ctx context.Context, orderID uuid.UUID, result GatewayResult) (*models.OrderPayment, error)
	RegisterTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, result GatewayResult) (*models.OrderPayment, error)
	RegisterRenewal(ctx context.Context, tx *gorm.DB, renewalOrderID uuid.UUID, result GatewayResult) (*models.OrderPayment, error)
	RefundStripe(ctx context.Context, orderID uuid.UUID, transactionID string) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderPayment, error)
}

type service struct {
	repo      Repository
	stripeAPI StripePaymentClient
	logg      *logger.Logger
	nowFn     func() time.Time
}

// ServiceParams wires payment registrar dependencies. Stripe is optional;
// refunds fail with a dependency error when it is absent.
type ServiceParams struct {
	Repo   Repository
	Stripe StripePaymentClient
	Logger *logger.Logger
	Now    func() time.Time
}

// NewService validates dependencies and builds the registrar.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	nowFn := params.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &service{
		repo:      params.Repo,
		stripeAPI: params.Stripe,
		logg:      params.Logger,
		nowFn:     nowFn,
	}, nil
}

// Register records a gateway result against an order outside any caller
// transaction.
func (s *service) Register(ctx context.Context, orderID uuid.UUID, result GatewayResult) (*models.OrderPayment, error) {
	return s.register(ctx, s.repo, orderID, nil, result)
}

// RegisterTx records a gateway result against an order inside the caller's
// transaction so the payment lands atomically with the order it settles.
func (s *service) RegisterTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, result GatewayResult) (*models.OrderPayment, error) {
	return s.register(ctx, s.repo.WithTx(tx), orderID, nil, result)
}

// RegisterRenewal records a renewal charge attempt. The payment row carries
// both the parent order id and the renewal order id.
func (s *service) RegisterRenewal(ctx context.Context, tx *gorm.DB, renewalOrderID uuid.UUID, result GatewayResult) (*models.OrderPayment, error) {
	if renewalOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "renewal order id is required")
	}
	repo := s.repo.WithTx(tx)

	renewal, err := repo.FindRenewalOrder(ctx, renewalOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "renewal order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load renewal order")
	}
	return s.register(ctx, repo, renewal.OrderID, &renewal.ID, result)
}

func (s *service) register(ctx context.Context, repo Repository, orderID uuid.UUID, renewalOrderID *uuid.UUID, result GatewayResult) (*models.OrderPayment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}

	amount, err := NormalizeAmount(result)
	if err != nil {
		return nil, err
	}

	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	status := enums.PaymentStatusCompleted
	if !result.Succeeded {
		status = enums.PaymentStatusFailed
	}

	currency := strings.ToUpper(strings.TrimSpace(result.Currency))
	if currency == "" {
		currency = order.Currency
	}

	payment := &models.OrderPayment{
		OrderID:        order.ID,
		RenewalOrderID: renewalOrderID,
		Gateway:        result.Gateway,
		Method:         result.Method,
		Amount:         amount,
		Currency:       currency,
		Status:         status,
		TransactionID:  result.TransactionID,
		ReferenceID:    result.ReferenceID,
	}
	if err := repo.CreatePayment(ctx, payment); err != nil {
		if db.IsUniqueViolation(err, "uq_order_payments_gateway_txn") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "transaction already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment")
	}

	// The parent order only moves on a successful non-renewal payment.
	// Renewal settlements drive the subscription state machine instead.
	if result.Succeeded && renewalOrderID == nil && order.Status == enums.OrderStatusPending {
		if err := repo.MarkOrderPaid(ctx, order.ID, s.nowFn().UTC()); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"gateway":  result.Gateway.String(),
		"status":   status.String(),
		"amount":   amount.StringFixed(2),
	}), "payment registered")

	return payment, nil
}

// RefundStripe issues a full refund for a stripe charge belonging to the order.
func (s *service) RefundStripe(ctx context.Context, orderID uuid.UUID, transactionID string) error {
	if s.stripeAPI == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "stripe is not configured")
	}
	if orderID == uuid.Nil || transactionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id and transaction id are required")
	}

	payments, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order payments")
	}
	var matched *models.OrderPayment
	for i := range payments {
		if payments[i].TransactionID == transactionID && payments[i].Gateway == enums.PaymentGatewayStripe {
			matched = &payments[i]
			break
		}
	}
	if matched == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "stripe payment not found for order")
	}
	if matched.Status != enums.PaymentStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only completed payments can be refunded")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(transactionID),
	}
	if _, err := s.stripeAPI.Refund(ctx, params); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe refund")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":       orderID.String(),
		"transaction_id": transactionID,
	}), "stripe refund issued")
	return nil
}

// ListByOrder returns every payment attempt recorded against the order.
func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderPayment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	payments, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order payments")
	}
	return payments, nil
}
