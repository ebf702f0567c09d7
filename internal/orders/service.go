package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/internal/payments"
	"github.com/CyberITEX/cms-commerce/internal/pricing"
	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/email"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
	pkgerrors "github.com/CyberITEX/cms-commerce/pkg/errors"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type registrar interface {
	RegisterTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, result payments.GatewayResult) (*models.OrderPayment, error)
}

// subscriptionCascader applies order-driven bulk transitions to every
// subscription spawned by an order. Implemented by the subscriptions service.
type subscriptionCascader interface {
	PauseForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (int, error)
	ResumeForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (int, error)
	DeleteForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (int, error)
}

// CheckoutInput carries everything a checkout needs beyond the active cart.
type CheckoutInput struct {
	BillingAddress *string                `json:"billing_address,omitempty"`
	Payment        payments.GatewayResult `json:"payment"`
}

// CheckoutResult is the composite payload returned after a successful checkout.
type CheckoutResult struct {
	Order         *models.Order          `json:"order"`
	Payment       *models.OrderPayment   `json:"payment"`
	Subscriptions []models.Subscription  `json:"subscriptions,omitempty"`
	Grants        []models.DownloadGrant `json:"download_grants,omitempty"`
}

// StatusUpdateResult reports an order transition and its subscription cascade.
type StatusUpdateResult struct {
	Order                  *models.Order     `json:"order"`
	PreviousStatus         enums.OrderStatus `json:"previous_status"`
	SubscriptionsProcessed int               `json:"subscriptions_processed"`
}

// Service materializes orders from carts and drives order status transitions.
type Service interface {
	ProcessAfterPayment(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*CheckoutResult, error)
	GetOrder(ctx context.Context, userID uuid.UUID, orderID uuid.UUID) (*models.Order, error)
	GetByNumber(ctx context.Context, userID uuid.UUID, number string) (*models.Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, int64, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus enums.OrderStatus, actorID *uuid.UUID, reason string) (*StatusUpdateResult, error)
}

type service struct {
	repo          Repository
	carts         CartLoader
	payments      registrar
	subscriptions subscriptionCascader
	mailer        email.Mailer
	tx            txRunner
	logg          *logger.Logger
	nowFn         func() time.Time
}

// ServiceParams wires order dependencies.
type ServiceParams struct {
	Repo          Repository
	Carts         CartLoader
	Payments      registrar
	Subscriptions subscriptionCascader
	Mailer        email.Mailer
	Tx            txRunner
	Logger        *logger.Logger
	Now           func() time.Time
}

// NewService validates dependencies and builds the order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order repository required")
	}
	if params.Carts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cart loader required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment registrar required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "subscription cascader required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	nowFn := params.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &service{
		repo:          params.Repo,
		carts:         params.Carts,
		payments:      params.Payments,
		subscriptions: params.Subscriptions,
		mailer:        params.Mailer,
		tx:            params.Tx,
		logg:          params.Logger,
		nowFn:         nowFn,
	}, nil
}

// ProcessAfterPayment turns the user's active cart into an order, its items,
// any subscriptions and download grants, registers the gateway payment and
// completes the cart, all in one transaction. The confirmation email goes out
// after commit and never fails the checkout.
func (s *service) ProcessAfterPayment(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*CheckoutResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if err := input.Payment.Validate(); err != nil {
		return nil, err
	}
	if _, err := payments.NormalizeAmount(input.Payment); err != nil {
		return nil, err
	}
	if !input.Payment.Succeeded {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout requires a successful gateway result")
	}

	result := &CheckoutResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		carts := s.carts.WithTx(tx)

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

		order, err := s.materializeOrder(ctx, repo, cart, input.BillingAddress)
		if err != nil {
			return err
		}

		items, subscriptionItems := buildItems(order, cart)
		if err := repo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}
		order.Items = items

		subscriptions, err := s.createSubscriptions(ctx, repo, order, subscriptionItems)
		if err != nil {
			return err
		}
		if len(subscriptions) > 0 {
			order.Type = enums.OrderTypeSubscription
			if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"type": enums.OrderTypeSubscription}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag subscription order")
			}
		}

		grants, err := s.grantDownloads(ctx, repo, order, items, subscriptions)
		if err != nil {
			return err
		}

		payment, err := s.payments.RegisterTx(ctx, tx, order.ID, input.Payment)
		if err != nil {
			return err
		}
		order.Status = enums.OrderStatusProcessing

		if err := carts.MarkCompleted(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete cart")
		}

		result.Order = order
		result.Payment = payment
		result.Subscriptions = subscriptions
		result.Grants = grants
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sendConfirmation(ctx, userID, result.Order)
	return result, nil
}

func (s *service) materializeOrder(ctx context.Context, repo Repository, cart *models.Cart, billingAddress *string) (*models.Order, error) {
	number, err := repo.NextOrderNumber(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
	}

	order := &models.Order{
		OrderNumber:    number,
		UserID:         cart.UserID,
		Status:         enums.OrderStatusPending,
		Type:           enums.OrderTypeOrder,
		Currency:       cart.Currency,
		Subtotal:       cart.Subtotal,
		DiscountAmount: cart.DiscountAmount,
		TipAmount:      cart.TipAmount,
		TransactionFee: cart.TransactionFeeAmount,
		TaxAmount:      cart.TaxAmount,
		GrandTotal:     cart.GrandTotal,
		CouponCode:     cart.CouponCode,
		BillingAddress: billingAddress,
	}
	if err := repo.CreateOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return order, nil
}

// buildItems snapshots every cart line into an order item and collects the
// recurring ones for subscription creation.
func buildItems(order *models.Order, cart *models.Cart) ([]models.OrderItem, []models.OrderItem) {
	items := make([]models.OrderItem, 0, len(cart.Items))
	var subscriptionItems []models.OrderItem

	for _, line := range cart.Items {
		option := line.PricingOption
		if option == nil {
			continue
		}
		quantity := line.Quantity
		if quantity < 1 {
			quantity = 1
		}
		unit := pricing.EffectiveUnitPrice(*option)

		item := models.OrderItem{
			ID:              uuid.New(),
			OrderID:         order.ID,
			PricingOptionID: option.ID,
			PlanID:          option.PlanID,
			PricingName:     option.Name,
			UnitPrice:       option.Price,
			DiscountType:    option.DiscountType,
			DiscountAmount:  option.DiscountAmount,
			Quantity:        quantity,
			Subtotal:        unit.Mul(decimalFromInt(quantity)).Round(2),
			PricingModel:    option.PricingModel,
			BillingFreq:     option.BillingFreq,
			BillingInterval: option.BillingInterval,
			BillingCycles:   option.BillingCycles,
		}
		if option.Plan != nil {
			item.PlanName = option.Plan.Name
			item.Downloadable = option.Plan.Downloadable
			item.ProductID = option.Plan.ProductID
			if option.Plan.Product != nil {
				item.ProductName = option.Plan.Product.Name
			}
		}

		items = append(items, item)
		if option.PricingModel == enums.PricingModelSubscription {
			subscriptionItems = append(subscriptionItems, item)
		}
	}
	return items, subscriptionItems
}

func (s *service) createSubscriptions(ctx context.Context, repo Repository, order *models.Order, items []models.OrderItem) ([]models.Subscription, error) {
	if len(items) == 0 {
		return nil, nil
	}

	now := s.nowFn().UTC()
	subscriptions := make([]models.Subscription, 0, len(items))
	for _, item := range items {
		next := item.BillingFreq.AddTo(now, item.BillingInterval)
		// The subscription column is an absolute amount, so percentage
		// discounts are materialized per unit before storing.
		effective := pricing.EffectiveUnitPrice(models.PricingOption{
			Price:          item.UnitPrice,
			DiscountType:   item.DiscountType,
			DiscountAmount: item.DiscountAmount,
		})
		sub := models.Subscription{
			OrderID:         order.ID,
			OrderItemID:     item.ID,
			UserID:          order.UserID,
			Status:          enums.SubscriptionStatusActive,
			ProductName:     item.ProductName,
			PlanName:        item.PlanName,
			PricingName:     item.PricingName,
			PlanID:          item.PlanID,
			PricingOptionID: item.PricingOptionID,
			Price:           item.UnitPrice,
			DiscountAmount:  item.UnitPrice.Sub(effective),
			BillingFreq:     item.BillingFreq,
			BillingInterval: item.BillingInterval,
			BillingCycles:   item.BillingCycles,
			NextBillingDate: &next,
			AutoRenew:       true,
		}
		if err := repo.CreateSubscription(ctx, &sub); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
		}
		subscriptions = append(subscriptions, sub)
	}
	return subscriptions, nil
}

// grantDownloads records download access for every downloadable item, linking
// the grant to its subscription when the item spawned one.
func (s *service) grantDownloads(ctx context.Context, repo Repository, order *models.Order, items []models.OrderItem, subscriptions []models.Subscription) ([]models.DownloadGrant, error) {
	subByItem := make(map[uuid.UUID]uuid.UUID, len(subscriptions))
	for _, sub := range subscriptions {
		subByItem[sub.OrderItemID] = sub.ID
	}

	now := s.nowFn().UTC()
	var grants []models.DownloadGrant
	for _, item := range items {
		if !item.Downloadable {
			continue
		}
		grant := models.DownloadGrant{
			UserID:    order.UserID,
			OrderID:   order.ID,
			PlanID:    item.PlanID,
			GrantedAt: now,
		}
		if subID, ok := subByItem[item.ID]; ok {
			grant.SubscriptionID = &subID
		}
		if err := repo.CreateDownloadGrant(ctx, &grant); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create download grant")
		}
		grants = append(grants, grant)
	}
	return grants, nil
}

func (s *service) GetOrder(ctx context.Context, userID uuid.UUID, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if userID != uuid.Nil && order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

func (s *service) GetByNumber(ctx context.Context, userID uuid.UUID, number string) (*models.Order, error) {
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	order, err := s.repo.FindByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if userID != uuid.Nil && order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, int64, error) {
	if userID == uuid.Nil {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}
	orders, total, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, total, nil
}

// UpdateStatus moves an order to a new status, appends an audit entry and
// cascades the transition onto the order's subscriptions: cancellation and
// failure delete them, a fall back to pending pauses them, and completing a
// pending order resumes them.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus enums.OrderStatus, actorID *uuid.UUID, reason string) (*StatusUpdateResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if !newStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]string{"status": string(newStatus)})
	}

	result := &StatusUpdateResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		previous := order.Status
		if previous == newStatus {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already in requested status")
		}

		now := s.nowFn().UTC()
		updates := map[string]any{"status": newStatus}
		switch newStatus {
		case enums.OrderStatusCompleted:
			updates["completed_at"] = now
		case enums.OrderStatusCanceled:
			updates["canceled_at"] = now
		case enums.OrderStatusFailed:
			updates["failed_at"] = now
		}
		if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		change := &models.OrderStatusChange{
			OrderID:    order.ID,
			FromStatus: previous,
			ToStatus:   newStatus,
			ActorID:    actorID,
		}
		if reason != "" {
			change.Note = &reason
		}
		if err := repo.AppendStatusChange(ctx, change); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status change")
		}

		processed, err := s.cascade(ctx, tx, order.ID, previous, newStatus, reason)
		if err != nil {
			return err
		}

		order.Status = newStatus
		result.Order = order
		result.PreviousStatus = previous
		result.SubscriptionsProcessed = processed
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sendStatusUpdate(ctx, result.Order, result.PreviousStatus, reason)
	return result, nil
}

func (s *service) cascade(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, previous, next enums.OrderStatus, reason string) (int, error) {
	switch {
	case next == enums.OrderStatusCanceled || next == enums.OrderStatusFailed:
		return s.subscriptions.DeleteForOrderTx(ctx, tx, orderID, reason)
	case next == enums.OrderStatusPending:
		return s.subscriptions.PauseForOrderTx(ctx, tx, orderID, reason)
	case next == enums.OrderStatusCompleted && previous == enums.OrderStatusPending:
		return s.subscriptions.ResumeForOrderTx(ctx, tx, orderID, reason)
	}
	return 0, nil
}

func (s *service) sendConfirmation(ctx context.Context, userID uuid.UUID, order *models.Order) {
	if s.mailer == nil || order == nil {
		return
	}
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "skip confirmation email: user lookup failed")
		return
	}
	msg := email.Message{
		To:       user.Email,
		Subject:  "Order confirmation " + order.OrderNumber,
		Template: "order-confirmation",
		Vars: map[string]string{
			"order_number": order.OrderNumber,
			"grand_total":  order.GrandTotal.StringFixed(2),
			"currency":     order.Currency,
		},
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "confirmation email failed")
	}
}

func (s *service) sendStatusUpdate(ctx context.Context, order *models.Order, previous enums.OrderStatus, reason string) {
	if s.mailer == nil || order == nil {
		return
	}
	user, err := s.repo.FindUser(ctx, order.UserID)
	if err != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "skip status email: user lookup failed")
		return
	}
	msg := email.Message{
		To:       user.Email,
		Subject:  "Order " + order.OrderNumber + " is now " + order.Status.String(),
		Template: "order-status-update",
		Vars: map[string]string{
			"order_number":    order.OrderNumber,
			"previous_status": previous.String(),
			"new_status":      order.Status.String(),
			"reason":          reason,
		},
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "status email failed")
	}
}

func decimalFromInt(v int) decimal.Decimal {
	return decimal.NewFromInt(int64(v))
}
