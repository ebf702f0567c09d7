package renewals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/internal/payments"
	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
	pkgerrors "github.com/CyberITEX/cms-commerce/pkg/errors"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
)

// Renewal charges never go below this floor; gateways reject amounts under
// their minimum, so the discount is trimmed instead.
var minimumCharge = decimal.RequireFromString("0.50")

const retryBackoff = 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type registrar interface {
	RegisterRenewal(ctx context.Context, tx *gorm.DB, renewalOrderID uuid.UUID, result payments.GatewayResult) (*models.OrderPayment, error)
}

// ProcessResult reports the outcome of one renewal charge attempt.
type ProcessResult struct {
	Renewal      *models.RenewalOrder `json:"renewal_order"`
	Subscription *models.Subscription `json:"subscription"`
	Payment      *models.OrderPayment `json:"payment,omitempty"`
}

// DuePage is one page of due renewals plus the unpaginated total.
type DuePage struct {
	Items []models.RenewalOrder `json:"items"`
	Total int64                 `json:"total"`
}

// Service creates and settles renewal orders for recurring subscriptions.
type Service interface {
	CreateRenewalOrder(ctx context.Context, subscriptionID uuid.UUID) (*models.RenewalOrder, error)
	ProcessRenewal(ctx context.Context, renewalOrderID uuid.UUID, result payments.GatewayResult) (*ProcessResult, error)
	ListDue(ctx context.Context, limit, offset int) (*DuePage, error)
	ListDueSubscriptions(ctx context.Context, limit int) ([]models.Subscription, error)
	HasPendingRenewal(ctx context.Context, subscriptionID uuid.UUID) (bool, error)
	IncrementAttempt(ctx context.Context, renewalOrderID uuid.UUID) error
}

type service struct {
	repo     Repository
	payments registrar
	tx       txRunner
	logg     *logger.Logger
	nowFn    func() time.Time
}

// ServiceParams wires renewal dependencies.
type ServiceParams struct {
	Repo     Repository
	Payments registrar
	Tx       txRunner
	Logger   *logger.Logger
	Now      func() time.Time
}

// NewService validates dependencies and builds the renewal service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "renewal repository required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment registrar required")
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
		repo:     params.Repo,
		payments: params.Payments,
		tx:       params.Tx,
		logg:     params.Logger,
		nowFn:    nowFn,
	}, nil
}

// CanRenew reports whether the subscription is eligible for a renewal charge:
// active with an arrived billing date, lapsed (past due, failed or canceled),
// or trialing past the trial end.
func CanRenew(sub *models.Subscription, now time.Time) bool {
	if sub == nil {
		return false
	}
	switch sub.Status {
	case enums.SubscriptionStatusActive:
		return sub.NextBillingDate != nil && !sub.NextBillingDate.After(now)
	case enums.SubscriptionStatusPastDue, enums.SubscriptionStatusFailed, enums.SubscriptionStatusCanceled:
		return true
	case enums.SubscriptionStatusTrialing:
		return sub.TrialEndsAt != nil && !sub.TrialEndsAt.After(now)
	default:
		return false
	}
}

// CreateRenewalOrder materializes the next dated charge for a subscription.
// The parent order is row-locked while the sequence advances, so numbers per
// parent are gapless and strictly increasing.
func (s *service) CreateRenewalOrder(ctx context.Context, subscriptionID uuid.UUID) (*models.RenewalOrder, error) {
	if subscriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}

	var result *models.RenewalOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sub, err := repo.FindSubscription(ctx, subscriptionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}

		now := s.nowFn().UTC()
		if !CanRenew(sub, now) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is not eligible for renewal")
		}

		order, err := repo.FindOrderForUpdate(ctx, sub.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "parent order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock parent order")
		}

		seq, err := repo.NextRenewalSequence(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance renewal sequence")
		}

		amount, discount, total := renewalPricing(sub.Price, sub.DiscountAmount)

		dueAt := now
		if sub.NextBillingDate != nil {
			dueAt = sub.NextBillingDate.UTC()
		}

		renewal := &models.RenewalOrder{
			OrderID:            order.ID,
			SubscriptionID:     sub.ID,
			RenewalOrderNumber: fmt.Sprintf("%s-R%03d", order.OrderNumber, seq),
			RenewalSequence:    seq,
			Status:             enums.RenewalStatusPending,
			Currency:           order.Currency,
			RenewalAmount:      amount,
			DiscountAmount:     discount,
			TotalAmount:        total,
			NextRenewalDate:    dueAt,
		}

		// A declined charge leaves its renewal failed; the backoff it earned
		// carries into the replacement so the card is not retried every cycle.
		last, err := repo.LastFailedRenewal(ctx, sub.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load last failed renewal")
		}
		if last != nil {
			renewal.AttemptCount = last.AttemptCount
			renewal.NextAttemptAt = last.NextAttemptAt
		}

		if err := repo.CreateRenewalOrder(ctx, renewal); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create renewal order")
		}
		result = renewal
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// renewalPricing applies the subscription's stored discount and enforces the
// minimum charge floor, trimming the effective discount when it would push
// the total under the floor.
func renewalPricing(price, storedDiscount decimal.Decimal) (amount, discount, total decimal.Decimal) {
	amount = price.Round(2)
	discount = storedDiscount.Round(2)
	if discount.GreaterThan(amount) {
		discount = amount
	}
	total = amount.Sub(discount)
	if total.LessThan(minimumCharge) && amount.GreaterThanOrEqual(minimumCharge) {
		total = minimumCharge
		discount = amount.Sub(minimumCharge)
	}
	if total.LessThan(minimumCharge) {
		total = minimumCharge
		discount = decimal.Zero
	}
	return amount, discount, total
}

// ProcessRenewal settles one renewal with a gateway result. Success completes
// the renewal, reactivates the subscription and restarts its billing clock;
// failure marks the renewal failed and demotes an active subscription to
// past due without touching the billing date.
func (s *service) ProcessRenewal(ctx context.Context, renewalOrderID uuid.UUID, result payments.GatewayResult) (*ProcessResult, error) {
	if renewalOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "renewal order id is required")
	}

	out := &ProcessResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		renewal, err := repo.FindRenewalOrder(ctx, renewalOrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "renewal order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load renewal order")
		}
		if renewal.Status == enums.RenewalStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "renewal order already completed")
		}

		sub, err := repo.FindSubscription(ctx, renewal.SubscriptionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}

		payment, err := s.payments.RegisterRenewal(ctx, tx, renewal.ID, result)
		if err != nil {
			return err
		}
		out.Payment = payment

		now := s.nowFn().UTC()
		if result.Succeeded {
			if err := repo.UpdateRenewalOrder(ctx, renewal.ID, map[string]any{
				"status":         enums.RenewalStatusCompleted,
				"completed_at":   now,
				"failure_reason": nil,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete renewal order")
			}
			renewal.Status = enums.RenewalStatusCompleted
			renewal.CompletedAt = &now

			next := sub.BillingFreq.AddTo(now, sub.BillingInterval)
			if err := repo.UpdateSubscription(ctx, sub.ID, map[string]any{
				"status":            enums.SubscriptionStatusActive,
				"next_billing_date": next,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reactivate subscription")
			}

			from := sub.Status
			active := enums.SubscriptionStatusActive
			change := &models.SubscriptionChange{
				SubscriptionID: sub.ID,
				ChangeType:     enums.ChangeTypeReactivate,
				FromStatus:     &from,
				ToStatus:       &active,
				EffectiveAt:    now,
			}
			if err := repo.AppendSubscriptionChange(ctx, change); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reactivation")
			}
			sub.Status = active
			sub.NextBillingDate = &next
		} else {
			updates := map[string]any{
				"status":          enums.RenewalStatusFailed,
				"last_attempt_at": now,
			}
			if result.FailureMessage != "" {
				updates["failure_reason"] = result.FailureMessage
			}
			if err := repo.UpdateRenewalOrder(ctx, renewal.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail renewal order")
			}
			renewal.Status = enums.RenewalStatusFailed
			if result.FailureMessage != "" {
				reason := result.FailureMessage
				renewal.FailureReason = &reason
			}

			// The billing date stays put so eligibility keeps pointing at
			// the missed period.
			if sub.Status == enums.SubscriptionStatusActive {
				if err := repo.UpdateSubscription(ctx, sub.ID, map[string]any{
					"status": enums.SubscriptionStatusPastDue,
				}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "demote subscription")
				}
				sub.Status = enums.SubscriptionStatusPastDue
			}
		}

		out.Renewal = renewal
		out.Subscription = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListDue returns the page of chargeable renewals plus a dedicated total
// count over the same predicate.
func (s *service) ListDue(ctx context.Context, limit, offset int) (*DuePage, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}

	now := s.nowFn().UTC()
	items, err := s.repo.ListDue(ctx, now, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due renewals")
	}
	total, err := s.repo.CountDue(ctx, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count due renewals")
	}
	return &DuePage{Items: items, Total: total}, nil
}

func (s *service) ListDueSubscriptions(ctx context.Context, limit int) ([]models.Subscription, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	subs, err := s.repo.ListDueSubscriptions(ctx, s.nowFn().UTC(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due subscriptions")
	}
	return subs, nil
}

func (s *service) HasPendingRenewal(ctx context.Context, subscriptionID uuid.UUID) (bool, error) {
	pending, err := s.repo.HasPendingRenewal(ctx, subscriptionID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending renewal")
	}
	return pending, nil
}

// IncrementAttempt bumps the attempt counter and pushes the next attempt a
// day out. There is no automatic retry loop; the worker polls due renewals.
func (s *service) IncrementAttempt(ctx context.Context, renewalOrderID uuid.UUID) error {
	if renewalOrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "renewal order id is required")
	}
	now := s.nowFn().UTC()
	err := s.repo.UpdateRenewalOrder(ctx, renewalOrderID, map[string]any{
		"attempt_count":   gorm.Expr("attempt_count + 1"),
		"last_attempt_at": now,
		"next_attempt_at": now.Add(retryBackoff),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment renewal attempt")
	}
	return nil
}
