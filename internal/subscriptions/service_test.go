package subscriptions

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
	pkgerrors "github.com/CyberITEX/cms-commerce/pkg/errors"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
	"github.com/CyberITEX/cms-commerce/pkg/types"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubRepo struct {
	subs    map[uuid.UUID]*models.Subscription
	options map[uuid.UUID]*models.PricingOption
	changes []models.SubscriptionChange
	deleted []uuid.UUID
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		subs:    map[uuid.UUID]*models.Subscription{},
		options: map[uuid.UUID]*models.PricingOption{},
	}
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) FindByID(ctx context.Context, subscriptionID uuid.UUID) (*models.Subscription, error) {
	if sub, ok := s.subs[subscriptionID]; ok {
		return sub, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Subscription, int64, error) {
	var out []models.Subscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	return out, int64(len(out)), nil
}

func (s *stubRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, sub := range s.subs {
		if sub.OrderID == orderID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (s *stubRepo) Update(ctx context.Context, subscriptionID uuid.UUID, updates map[string]any) error {
	sub, ok := s.subs[subscriptionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if status, ok := updates["status"].(enums.SubscriptionStatus); ok {
		sub.Status = status
	}
	if pending, ok := updates["pending_change"]; ok {
		if pending == nil {
			sub.PendingChange = nil
		} else if pc, ok := pending.(*types.PendingChange); ok {
			sub.PendingChange = pc
		}
	}
	if next, ok := updates["next_billing_date"].(time.Time); ok {
		sub.NextBillingDate = &next
	}
	return nil
}

func (s *stubRepo) Delete(ctx context.Context, subscriptionID uuid.UUID) error {
	delete(s.subs, subscriptionID)
	s.deleted = append(s.deleted, subscriptionID)
	return nil
}

func (s *stubRepo) AppendChange(ctx context.Context, change *models.SubscriptionChange) error {
	change.ID = uuid.New()
	s.changes = append(s.changes, *change)
	return nil
}

func (s *stubRepo) ListChanges(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionChange, error) {
	var out []models.SubscriptionChange
	for _, change := range s.changes {
		if change.SubscriptionID == subscriptionID {
			out = append(out, change)
		}
	}
	return out, nil
}

func (s *stubRepo) FindPricingOption(ctx context.Context, optionID uuid.UUID) (*models.PricingOption, error) {
	if option, ok := s.options[optionID]; ok {
		return option, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func newTestService(t *testing.T, repo *stubRepo) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Tx:     stubTx{},
		Logger: logger.New(logger.Options{ServiceName: "subscriptions-test", Output: io.Discard}),
		Now:    func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return svc
}

func activeSubscription(userID uuid.UUID) *models.Subscription {
	next := testNow.AddDate(0, 1, 0)
	return &models.Subscription{
		ID:              uuid.New(),
		OrderID:         uuid.New(),
		OrderItemID:     uuid.New(),
		UserID:          userID,
		Status:          enums.SubscriptionStatusActive,
		ProductName:     "Widget",
		PlanName:        "Basic",
		PricingName:     "Monthly",
		PlanID:          uuid.New(),
		PricingOptionID: uuid.New(),
		Price:           dec("29.99"),
		BillingFreq:     enums.BillingFrequencyMonth,
		BillingInterval: 1,
		NextBillingDate: &next,
		AutoRenew:       true,
	}
}

func TestResumeRestartsBillingClock(t *testing.T) {
	userID := uuid.New()
	repo := newStubRepo()
	sub := activeSubscription(userID)
	sub.Status = enums.SubscriptionStatusPaused
	repo.subs[sub.ID] = sub
	svc := newTestService(t, repo)

	result, err := svc.Resume(context.Background(), userID, sub.ID, "customer asked")
	require.NoError(t, err)

	assert.Equal(t, enums.SubscriptionStatusActive, result.Status)
	require.NotNil(t, result.NextBillingDate)
	assert.Equal(t, testNow.AddDate(0, 1, 0), *result.NextBillingDate)

	require.Len(t, repo.changes, 1)
	change := repo.changes[0]
	assert.Equal(t, enums.ChangeTypeResume, change.ChangeType)
	require.NotNil(t, change.ToStatus)
	assert.Equal(t, result.Status, *change.ToStatus)
	require.NotNil(t, change.FromStatus)
	assert.Equal(t, enums.SubscriptionStatusPaused, *change.FromStatus)
}

func TestResumeRequiresPaused(t *testing.T) {
	userID := uuid.New()
	repo := newStubRepo()
	sub := activeSubscription(userID)
	repo.subs[sub.ID] = sub
	svc := newTestService(t, repo)

	_, err := svc.Resume(context.Background(), userID, sub.ID, "")
	require.Error(t, err)

	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, domainErr.Code())
	assert.Empty(t, repo.changes)
}

func TestRequestCancelStoresPendingChange(t *testing.T) {
	userID := uuid.New()
	repo := newStubRepo()
	sub := activeSubscription(userID)
	repo.subs[sub.ID] = sub
	svc := newTestService(t, repo)

	result, err := svc.RequestChange(context.Background(), userID, sub.ID, enums.SubscriptionStatusCanceled, "too expensive")
	require.NoError(t, err)

	// Request does not transition; it only files the pending change.
	assert.Equal(t, enums.SubscriptionStatusActive, result.Status)
	require.NotNil(t, result.PendingChange)
	assert.Equal(t, enums.SubscriptionStatusCanceled, result.PendingChange.RequestedStatus)
	assert.Equal(t, userID, result.PendingChange.RequestedBy)
	assert.Empty(t, repo.changes)
}

func TestRequestChangeRejectsDuplicate(t *testing.T) {
	userID := uuid.New()
	repo := newStubRepo()
	sub := activeSubscription(userID)
	sub.PendingChange = &types.PendingChange{RequestedStatus: enums.SubscriptionStatusPaused}
	repo.subs[sub.ID] = sub
	svc := newTestService(t, repo)

	_, err := svc.RequestChange(context.Background(), userID, sub.ID, enums.SubscriptionStatusCanceled, "")
	require.Error(t, err)

	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, domainErr.Code())
}

func TestRequestChangeOnlyPauseOrCancel(t *testing.T) {
	svc := newTestService(t, newStubRepo())

	_, err := svc.RequestChange(context.Background(), uuid.New(), uuid.New(), enums.SubscriptionStatusActive, "")
	require.Error(t, err)

	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeValidation, domainErr.Code())
}

func TestApprovePendingCancel(t *testing.T) {
	userID := uuid.New()
	adminID := uuid.New()
	repo := newStubRepo()
	sub := activeSubscription(userID)
	sub.PendingChange = &types.PendingChange{
		RequestedStatus: enums.SubscriptionStatusCanceled,
		RequestedBy:     userID,
		RequestedAt:     testNow.Add(-time.Hour),
		Reason:          "too expensive",
	}
	repo.subs[sub.ID] = sub
	svc := newTestService(t, repo)

	result, err := svc.ApprovePending(context.Background(), adminID, sub.ID)
	require.NoError(t, err)

	assert.Equal(t, enums.SubscriptionStatusCanceled, result.Status)
	assert.Nil(t, result.PendingChange)
	require.NotNil(t, result.CanceledAt)

	require.Len(t, repo.changes, 1)
	change := repo.changes[0]
	assert.Equal(t, enums.ChangeTypeCancel, change.ChangeType)
	require.NotNil(t, change.ActorID)
	assert.Equal(t, adminID, *change.ActorID)
	require.NotNil(t, change.Reason)
	assert.Equal(t, "too expensive", *change.Reason)
}

func TestRejectPendingRevertsWithoutTransition(t *testing.T) {
	userID := uuid.New()
	repo := newStubRepo()
	sub := activeSubscription(userID)
	sub.PendingChange = &types.PendingChange{RequestedStatus: enums.SubscriptionStatusPaused}
	repo.subs[sub.ID] = sub
	svc := newTestService(t, repo)

	result, err := svc.RejectPending(context.Background(), uuid.New(), sub.ID, "keep it running")
	require.NoError(t, err)

	assert.Equal(t, enums.SubscriptionStatusActive, result.Status)
	assert.Nil(t, result.PendingChange)
	assert.Empty(t, repo.changes)
}

func TestApproveWithoutPendingConflicts(t *testing.T) {
	userID := uuid.New()
	repo := newStubRepo()
	sub := activeSubscription(userID)
	repo.subs[sub.ID] = sub
	svc := newTestService(t, repo)

	_, err := svc.ApprovePending(context.Background(), uuid.New(), sub.ID)
	require.Error(t, err)

	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, domainErr.Code())
}

func TestDirectCancelSkipsApproval(t *testing.T) {
	userID := uuid.New()
	repo := newStubRepo()
	sub := activeSubscription(userID)
	repo.subs[sub.ID] = sub
	svc := newTestService(t, repo)

	result, err := svc.Cancel(context.Background(), uuid.New(), sub.ID, "fraud")
	require.NoError(t, err)

	assert.Equal(t, enums.SubscriptionStatusCanceled, result.Status)
	require.NotNil(t, result.CanceledAt)
	require.Len(t, repo.changes, 1)
	assert.Equal(t, enums.ChangeTypeCancel, repo.changes[0].ChangeType)
}

func TestChangePlanClassifiesUpgrade(t *testing.T) {
	userID := uuid.New()
	repo := newStubRepo()
	sub := activeSubscription(userID)
	repo.subs[sub.ID] = sub

	option := &models.PricingOption{
		ID:              uuid.New(),
		PlanID:          uuid.New(),
		Name:            "Yearly",
		Price:           dec("299.00"),
		PricingModel:    enums.PricingModelSubscription,
		BillingFreq:     enums.BillingFrequencyYear,
		BillingInterval: 1,
		Plan: &models.Plan{
			Name:    "Pro",
			Product: &models.Product{Name: "Widget"},
		},
	}
	repo.options[option.ID] = option
	svc := newTestService(t, repo)

	result, err := svc.ChangePlan(context.Background(), uuid.New(), sub.ID, option.ID)
	require.NoError(t, err)

	assert.Equal(t, "Pro", result.PlanName)
	assert.True(t, result.Price.Equal(dec("299.00")))
	assert.Equal(t, enums.BillingFrequencyYear, result.BillingFreq)
	require.NotNil(t, result.NextBillingDate)
	assert.Equal(t, testNow.AddDate(1, 0, 0), *result.NextBillingDate)

	require.Len(t, repo.changes, 1)
	change := repo.changes[0]
	assert.Equal(t, enums.ChangeTypeUpgrade, change.ChangeType)
	require.NotNil(t, change.FromPlan)
	assert.Equal(t, "Basic / Monthly", *change.FromPlan)
	require.NotNil(t, change.ToPlan)
	assert.Equal(t, "Pro / Yearly", *change.ToPlan)
}

func TestChangePlanMaterializesPercentageDiscount(t *testing.T) {
	userID := uuid.New()
	repo := newStubRepo()
	sub := activeSubscription(userID)
	repo.subs[sub.ID] = sub

	pct := enums.DiscountTypePercentage
	option := &models.PricingOption{
		ID:              uuid.New(),
		PlanID:          uuid.New(),
		Name:            "Yearly",
		Price:           dec("50.00"),
		DiscountType:    &pct,
		DiscountAmount:  dec("10"),
		PricingModel:    enums.PricingModelSubscription,
		BillingFreq:     enums.BillingFrequencyYear,
		BillingInterval: 1,
	}
	repo.options[option.ID] = option
	svc := newTestService(t, repo)

	result, err := svc.ChangePlan(context.Background(), uuid.New(), sub.ID, option.ID)
	require.NoError(t, err)

	assert.True(t, result.Price.Equal(dec("50.00")))
	assert.True(t, result.DiscountAmount.Equal(dec("5.00")),
		"stored discount %s should be the dollar amount, not the percentage", result.DiscountAmount)
}

func TestChangePlanClassifiesDowngrade(t *testing.T) {
	userID := uuid.New()
	repo := newStubRepo()
	sub := activeSubscription(userID)
	repo.subs[sub.ID] = sub

	option := &models.PricingOption{
		ID:              uuid.New(),
		PlanID:          uuid.New(),
		Name:            "Lite",
		Price:           dec("9.99"),
		PricingModel:    enums.PricingModelSubscription,
		BillingFreq:     enums.BillingFrequencyMonth,
		BillingInterval: 1,
	}
	repo.options[option.ID] = option
	svc := newTestService(t, repo)

	_, err := svc.ChangePlan(context.Background(), uuid.New(), sub.ID, option.ID)
	require.NoError(t, err)

	require.Len(t, repo.changes, 1)
	assert.Equal(t, enums.ChangeTypeDowngrade, repo.changes[0].ChangeType)
}

func TestChangePlanRejectsOneOffOption(t *testing.T) {
	userID := uuid.New()
	repo := newStubRepo()
	sub := activeSubscription(userID)
	repo.subs[sub.ID] = sub

	option := &models.PricingOption{
		ID:           uuid.New(),
		Name:         "One-off",
		Price:        dec("99.00"),
		PricingModel: enums.PricingModelOneOff,
	}
	repo.options[option.ID] = option
	svc := newTestService(t, repo)

	_, err := svc.ChangePlan(context.Background(), uuid.New(), sub.ID, option.ID)
	require.Error(t, err)

	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeValidation, domainErr.Code())
}

func TestChangeFrequency(t *testing.T) {
	userID := uuid.New()
	repo := newStubRepo()
	sub := activeSubscription(userID)
	repo.subs[sub.ID] = sub
	svc := newTestService(t, repo)

	result, err := svc.ChangeFrequency(context.Background(), uuid.New(), sub.ID, enums.BillingFrequencyWeek, 2)
	require.NoError(t, err)

	assert.Equal(t, enums.BillingFrequencyWeek, result.BillingFreq)
	assert.Equal(t, 2, result.BillingInterval)
	require.NotNil(t, result.NextBillingDate)
	assert.Equal(t, testNow.AddDate(0, 0, 14), *result.NextBillingDate)
	require.Len(t, repo.changes, 1)
	assert.Equal(t, enums.ChangeTypeFrequencyChange, repo.changes[0].ChangeType)
}

func TestChangeFrequencySameCadenceConflicts(t *testing.T) {
	userID := uuid.New()
	repo := newStubRepo()
	sub := activeSubscription(userID)
	repo.subs[sub.ID] = sub
	svc := newTestService(t, repo)

	_, err := svc.ChangeFrequency(context.Background(), uuid.New(), sub.ID, enums.BillingFrequencyMonth, 1)
	require.Error(t, err)

	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, domainErr.Code())
}

func TestDeleteForOrderRemovesAllAndKeepsAudit(t *testing.T) {
	orderID := uuid.New()
	repo := newStubRepo()
	for i := 0; i < 2; i++ {
		sub := activeSubscription(uuid.New())
		sub.OrderID = orderID
		repo.subs[sub.ID] = sub
	}
	svc := newTestService(t, repo)

	processed, err := svc.DeleteForOrderTx(context.Background(), nil, orderID, "order canceled")
	require.NoError(t, err)

	assert.Equal(t, 2, processed)
	assert.Empty(t, repo.subs)
	require.Len(t, repo.changes, 2)
	for _, change := range repo.changes {
		assert.Equal(t, enums.ChangeTypeCancel, change.ChangeType)
		require.NotNil(t, change.ToStatus)
		assert.Equal(t, enums.SubscriptionStatusCanceled, *change.ToStatus)
	}
}

func TestPauseForOrderSkipsNonActive(t *testing.T) {
	orderID := uuid.New()
	repo := newStubRepo()

	active := activeSubscription(uuid.New())
	active.OrderID = orderID
	repo.subs[active.ID] = active

	canceled := activeSubscription(uuid.New())
	canceled.OrderID = orderID
	canceled.Status = enums.SubscriptionStatusCanceled
	repo.subs[canceled.ID] = canceled

	svc := newTestService(t, repo)

	processed, err := svc.PauseForOrderTx(context.Background(), nil, orderID, "order back to pending")
	require.NoError(t, err)

	assert.Equal(t, 1, processed)
	assert.Equal(t, enums.SubscriptionStatusPaused, repo.subs[active.ID].Status)
	assert.Equal(t, enums.SubscriptionStatusCanceled, repo.subs[canceled.ID].Status)
}

func TestResumeForOrder(t *testing.T) {
	orderID := uuid.New()
	repo := newStubRepo()
	paused := activeSubscription(uuid.New())
	paused.OrderID = orderID
	paused.Status = enums.SubscriptionStatusPaused
	repo.subs[paused.ID] = paused
	svc := newTestService(t, repo)

	processed, err := svc.ResumeForOrderTx(context.Background(), nil, orderID, "order completed")
	require.NoError(t, err)

	assert.Equal(t, 1, processed)
	assert.Equal(t, enums.SubscriptionStatusActive, repo.subs[paused.ID].Status)
	require.NotNil(t, repo.subs[paused.ID].NextBillingDate)
	assert.Equal(t, testNow.AddDate(0, 1, 0), *repo.subs[paused.ID].NextBillingDate)
}
