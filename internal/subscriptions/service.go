package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/internal/pricing"
	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
	pkgerrors "github.com/CyberITEX/cms-commerce/pkg/errors"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
	"github.com/CyberITEX/cms-commerce/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives every subscription transition. Each settled transition
// appends exactly one change record; the status column never carries
// pending states, those live in the pending_change column until an admin
// settles them.
type Service interface {
	GetSubscription(ctx context.Context, userID uuid.UUID, subscriptionID uuid.UUID) (*models.Subscription, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Subscription, int64, error)
	ListChanges(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionChange, error)

	RequestChange(ctx context.Context, userID uuid.UUID, subscriptionID uuid.UUID, requested enums.SubscriptionStatus, reason string) (*models.Subscription, error)
	ApprovePending(ctx context.Context, actorID uuid.UUID, subscriptionID uuid.UUID) (*models.Subscription, error)
	RejectPending(ctx context.Context, actorID uuid.UUID, subscriptionID uuid.UUID, reason string) (*models.Subscription, error)

	Pause(ctx context.Context, actorID uuid.UUID, subscriptionID uuid.UUID, reason string) (*models.Subscription, error)
	Resume(ctx context.Context, actorID uuid.UUID, subscriptionID uuid.UUID, reason string) (*models.Subscription, error)
	Cancel(ctx context.Context, actorID uuid.UUID, subscriptionID uuid.UUID, reason string) (*models.Subscription, error)

	ChangePlan(ctx context.Context, actorID uuid.UUID, subscriptionID uuid.UUID, newOptionID uuid.UUID) (*models.Subscription, error)
	ChangeFrequency(ctx context.Context, actorID uuid.UUID, subscriptionID uuid.UUID, freq enums.BillingFrequency, interval int) (*models.Subscription, error)

	PauseForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (int, error)
	ResumeForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (int, error)
	DeleteForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (int, error)
}

type service struct {
	repo  Repository
	tx    txRunner
	logg  *logger.Logger
	nowFn func() time.Time
}

// ServiceParams wires subscription dependencies.
type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Logger *logger.Logger
	Now    func() time.Time
}

// NewService validates dependencies and builds the subscription service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "subscription repository required")
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
		repo:  params.Repo,
		tx:    params.Tx,
		logg:  params.Logger,
		nowFn: nowFn,
	}, nil
}

func (s *service) GetSubscription(ctx context.Context, userID uuid.UUID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.load(ctx, s.repo, subscriptionID)
	if err != nil {
		return nil, err
	}
	if userID != uuid.Nil && sub.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "subscription belongs to another user")
	}
	return sub, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Subscription, int64, error) {
	if userID == uuid.Nil {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}
	subs, total, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}
	return subs, total, nil
}

func (s *service) ListChanges(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionChange, error) {
	if subscriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	changes, err := s.repo.ListChanges(ctx, subscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscription changes")
	}
	return changes, nil
}

// RequestChange files a pause or cancel request for admin approval. The
// status column is untouched until the request is settled.
func (s *service) RequestChange(ctx context.Context, userID uuid.UUID, subscriptionID uuid.UUID, requested enums.SubscriptionStatus, reason string) (*models.Subscription, error) {
	if requested != enums.SubscriptionStatusPaused && requested != enums.SubscriptionStatusCanceled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only pause and cancel can be requested")
	}

	var result *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.load(ctx, repo, subscriptionID)
		if err != nil {
			return err
		}
		if userID != uuid.Nil && sub.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "subscription belongs to another user")
		}
		if sub.Status != enums.SubscriptionStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only active subscriptions can file requests")
		}
		if sub.PendingChange != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "a pending request already exists")
		}

		pending := &types.PendingChange{
			RequestedStatus: requested,
			RequestedBy:     userID,
			RequestedAt:     s.nowFn().UTC(),
			Reason:          reason,
		}
		if err := repo.Update(ctx, sub.ID, map[string]any{"pending_change": pending}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store pending change")
		}
		sub.PendingChange = pending
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApprovePending applies the stored request as a real transition.
func (s *service) ApprovePending(ctx context.Context, actorID uuid.UUID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	var result *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.load(ctx, repo, subscriptionID)
		if err != nil {
			return err
		}
		if sub.PendingChange == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no pending request to approve")
		}

		reason := sub.PendingChange.Reason
		switch sub.PendingChange.RequestedStatus {
		case enums.SubscriptionStatusPaused:
			err = s.transition(ctx, repo, sub, enums.SubscriptionStatusPaused, enums.ChangeTypePause, &actorID, reason, map[string]any{
				"pending_change": nil,
			})
		case enums.SubscriptionStatusCanceled:
			now := s.nowFn().UTC()
			err = s.transition(ctx, repo, sub, enums.SubscriptionStatusCanceled, enums.ChangeTypeCancel, &actorID, reason, map[string]any{
				"pending_change": nil,
				"canceled_at":    now,
			})
			if err == nil {
				sub.CanceledAt = &now
			}
		default:
			err = pkgerrors.New(pkgerrors.CodeStateConflict, "pending request carries an unsupported status")
		}
		if err != nil {
			return err
		}
		sub.PendingChange = nil
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RejectPending discards the stored request. The status never moved, so no
// change record is written.
func (s *service) RejectPending(ctx context.Context, actorID uuid.UUID, subscriptionID uuid.UUID, reason string) (*models.Subscription, error) {
	var result *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.load(ctx, repo, subscriptionID)
		if err != nil {
			return err
		}
		if sub.PendingChange == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no pending request to reject")
		}
		if err := repo.Update(ctx, sub.ID, map[string]any{"pending_change": nil}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear pending change")
		}
		sub.PendingChange = nil
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithSubscriptionID(ctx, subscriptionID.String()), "pending request rejected")
	return result, nil
}

// Pause applies a direct pause, skipping the approval phase.
func (s *service) Pause(ctx context.Context, actorID uuid.UUID, subscriptionID uuid.UUID, reason string) (*models.Subscription, error) {
	var result *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.load(ctx, repo, subscriptionID)
		if err != nil {
			return err
		}
		if sub.Status == enums.SubscriptionStatusPaused {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is already paused")
		}
		if sub.Status == enums.SubscriptionStatusCanceled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "canceled subscriptions cannot be paused")
		}
		if err := s.transition(ctx, repo, sub, enums.SubscriptionStatusPaused, enums.ChangeTypePause, &actorID, reason, nil); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Resume reactivates a paused subscription and restarts the billing clock
// from now rather than from the missed date.
func (s *service) Resume(ctx context.Context, actorID uuid.UUID, subscriptionID uuid.UUID, reason string) (*models.Subscription, error) {
	var result *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.load(ctx, repo, subscriptionID)
		if err != nil {
			return err
		}
		if sub.Status != enums.SubscriptionStatusPaused {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only paused subscriptions can be resumed")
		}

		next := sub.BillingFreq.AddTo(s.nowFn().UTC(), sub.BillingInterval)
		err = s.transition(ctx, repo, sub, enums.SubscriptionStatusActive, enums.ChangeTypeResume, &actorID, reason, map[string]any{
			"next_billing_date": next,
		})
		if err != nil {
			return err
		}
		sub.NextBillingDate = &next
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel applies a direct cancellation, skipping the approval phase.
func (s *service) Cancel(ctx context.Context, actorID uuid.UUID, subscriptionID uuid.UUID, reason string) (*models.Subscription, error) {
	var result *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.load(ctx, repo, subscriptionID)
		if err != nil {
			return err
		}
		if sub.Status == enums.SubscriptionStatusCanceled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is already canceled")
		}

		now := s.nowFn().UTC()
		err = s.transition(ctx, repo, sub, enums.SubscriptionStatusCanceled, enums.ChangeTypeCancel, &actorID, reason, map[string]any{
			"canceled_at":    now,
			"pending_change": nil,
		})
		if err != nil {
			return err
		}
		sub.CanceledAt = &now
		sub.PendingChange = nil
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ChangePlan moves the subscription onto another pricing option and
// classifies the move by price: dearer is an upgrade, cheaper a downgrade,
// same price a plain plan change.
func (s *service) ChangePlan(ctx context.Context, actorID uuid.UUID, subscriptionID uuid.UUID, newOptionID uuid.UUID) (*models.Subscription, error) {
	if newOptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pricing option id is required")
	}

	var result *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.load(ctx, repo, subscriptionID)
		if err != nil {
			return err
		}
		if sub.Status == enums.SubscriptionStatusCanceled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "canceled subscriptions cannot change plan")
		}

		option, err := repo.FindPricingOption(ctx, newOptionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "pricing option not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pricing option")
		}
		if option.PricingModel != enums.PricingModelSubscription {
			return pkgerrors.New(pkgerrors.CodeValidation, "target pricing option is not recurring")
		}
		if option.ID == sub.PricingOptionID {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription already uses this pricing option")
		}

		changeType := enums.ChangeTypePlanChange
		switch {
		case option.Price.GreaterThan(sub.Price):
			changeType = enums.ChangeTypeUpgrade
		case option.Price.LessThan(sub.Price):
			changeType = enums.ChangeTypeDowngrade
		}

		fromPlan := sub.PlanName + " / " + sub.PricingName
		toPlan := option.Name
		planName := sub.PlanName
		productName := sub.ProductName
		if option.Plan != nil {
			planName = option.Plan.Name
			toPlan = option.Plan.Name + " / " + option.Name
			if option.Plan.Product != nil {
				productName = option.Plan.Product.Name
			}
		}

		next := option.BillingFreq.AddTo(s.nowFn().UTC(), option.BillingInterval)
		discount := option.Price.Sub(pricing.EffectiveUnitPrice(*option))
		updates := map[string]any{
			"plan_id":           option.PlanID,
			"pricing_option_id": option.ID,
			"plan_name":         planName,
			"pricing_name":      option.Name,
			"product_name":      productName,
			"price":             option.Price,
			"discount_amount":   discount,
			"billing_frequency": option.BillingFreq,
			"billing_interval":  option.BillingInterval,
			"billing_cycles":    option.BillingCycles,
			"next_billing_date": next,
		}
		if err := repo.Update(ctx, sub.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply plan change")
		}

		change := &models.SubscriptionChange{
			SubscriptionID: sub.ID,
			ChangeType:     changeType,
			FromStatus:     &sub.Status,
			ToStatus:       &sub.Status,
			FromPlan:       &fromPlan,
			ToPlan:         &toPlan,
			ActorID:        &actorID,
			EffectiveAt:    s.nowFn().UTC(),
		}
		if err := repo.AppendChange(ctx, change); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record plan change")
		}

		sub.PlanID = option.PlanID
		sub.PricingOptionID = option.ID
		sub.PlanName = planName
		sub.PricingName = option.Name
		sub.ProductName = productName
		sub.Price = option.Price
		sub.DiscountAmount = discount
		sub.BillingFreq = option.BillingFreq
		sub.BillingInterval = option.BillingInterval
		sub.BillingCycles = option.BillingCycles
		sub.NextBillingDate = &next
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ChangeFrequency rewrites the billing cadence and restarts the clock.
func (s *service) ChangeFrequency(ctx context.Context, actorID uuid.UUID, subscriptionID uuid.UUID, freq enums.BillingFrequency, interval int) (*models.Subscription, error) {
	if !freq.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid billing frequency").
			WithDetails(map[string]string{"frequency": string(freq)})
	}
	if interval < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "billing interval must be at least 1")
	}

	var result *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.load(ctx, repo, subscriptionID)
		if err != nil {
			return err
		}
		if sub.Status == enums.SubscriptionStatusCanceled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "canceled subscriptions cannot change frequency")
		}
		if sub.BillingFreq == freq && sub.BillingInterval == interval {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription already bills at this cadence")
		}

		next := freq.AddTo(s.nowFn().UTC(), interval)
		updates := map[string]any{
			"billing_frequency": freq,
			"billing_interval":  interval,
			"next_billing_date": next,
		}
		if err := repo.Update(ctx, sub.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply frequency change")
		}

		change := &models.SubscriptionChange{
			SubscriptionID: sub.ID,
			ChangeType:     enums.ChangeTypeFrequencyChange,
			FromStatus:     &sub.Status,
			ToStatus:       &sub.Status,
			ActorID:        &actorID,
			EffectiveAt:    s.nowFn().UTC(),
		}
		if err := repo.AppendChange(ctx, change); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record frequency change")
		}

		sub.BillingFreq = freq
		sub.BillingInterval = interval
		sub.NextBillingDate = &next
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PauseForOrderTx pauses every pausable subscription on the order. Runs
// inside the caller's transaction.
func (s *service) PauseForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (int, error) {
	repo := s.repo.WithTx(tx)
	subs, err := repo.ListByOrder(ctx, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order subscriptions")
	}

	processed := 0
	for i := range subs {
		sub := &subs[i]
		if sub.Status != enums.SubscriptionStatusActive && sub.Status != enums.SubscriptionStatusTrialing {
			continue
		}
		if err := s.transition(ctx, repo, sub, enums.SubscriptionStatusPaused, enums.ChangeTypePause, nil, reason, nil); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// ResumeForOrderTx reactivates the order's paused subscriptions with a fresh
// billing clock.
func (s *service) ResumeForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (int, error) {
	repo := s.repo.WithTx(tx)
	subs, err := repo.ListByOrder(ctx, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order subscriptions")
	}

	processed := 0
	for i := range subs {
		sub := &subs[i]
		if sub.Status != enums.SubscriptionStatusPaused {
			continue
		}
		next := sub.BillingFreq.AddTo(s.nowFn().UTC(), sub.BillingInterval)
		err := s.transition(ctx, repo, sub, enums.SubscriptionStatusActive, enums.ChangeTypeResume, nil, reason, map[string]any{
			"next_billing_date": next,
		})
		if err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// DeleteForOrderTx removes every subscription on the order. The cancel
// record is written before the row goes so the audit trail survives.
func (s *service) DeleteForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (int, error) {
	repo := s.repo.WithTx(tx)
	subs, err := repo.ListByOrder(ctx, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order subscriptions")
	}

	canceled := enums.SubscriptionStatusCanceled
	processed := 0
	for i := range subs {
		sub := subs[i]
		change := &models.SubscriptionChange{
			SubscriptionID: sub.ID,
			ChangeType:     enums.ChangeTypeCancel,
			FromStatus:     &sub.Status,
			ToStatus:       &canceled,
			EffectiveAt:    s.nowFn().UTC(),
		}
		if reason != "" {
			change.Reason = &reason
		}
		if err := repo.AppendChange(ctx, change); err != nil {
			return processed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record subscription removal")
		}
		if err := repo.Delete(ctx, sub.ID); err != nil {
			return processed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete subscription")
		}
		processed++
	}
	return processed, nil
}

func (s *service) load(ctx context.Context, repo Repository, subscriptionID uuid.UUID) (*models.Subscription, error) {
	if subscriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}
	sub, err := repo.FindByID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	return sub, nil
}

// transition persists a status move and its change record, then mirrors the
// move onto the in-memory row.
func (s *service) transition(ctx context.Context, repo Repository, sub *models.Subscription, to enums.SubscriptionStatus, changeType enums.ChangeType, actorID *uuid.UUID, reason string, extra map[string]any) error {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	if err := repo.Update(ctx, sub.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription status")
	}

	from := sub.Status
	change := &models.SubscriptionChange{
		SubscriptionID: sub.ID,
		ChangeType:     changeType,
		FromStatus:     &from,
		ToStatus:       &to,
		ActorID:        actorID,
		EffectiveAt:    s.nowFn().UTC(),
	}
	if reason != "" {
		change.Reason = &reason
	}
	if err := repo.AppendChange(ctx, change); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record subscription change")
	}

	sub.Status = to
	return nil
}
