package renewals

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

	"github.com/CyberITEX/cms-commerce/internal/payments"
	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
	pkgerrors "github.com/CyberITEX/cms-commerce/pkg/errors"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
)

var testNow = time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func int64Ptr(v int64) *int64 { return &v }

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubRepo struct {
	subs       map[uuid.UUID]*models.Subscription
	orders     map[uuid.UUID]*models.Order
	renewals   map[uuid.UUID]*models.RenewalOrder
	changes    []models.SubscriptionChange
	subUpdates []map[string]any
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		subs:     map[uuid.UUID]*models.Subscription{},
		orders:   map[uuid.UUID]*models.Order{},
		renewals: map[uuid.UUID]*models.RenewalOrder{},
	}
}

func (s *stubRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRepo) FindSubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.Subscription, error) {
	if sub, ok := s.subs[subscriptionID]; ok {
		return sub, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if order, ok := s.orders[orderID]; ok {
		return order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) NextRenewalSequence(ctx context.Context, orderID uuid.UUID) (int, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	order.LastRenewalSequence++
	return order.LastRenewalSequence, nil
}

func (s *stubRepo) CreateRenewalOrder(ctx context.Context, renewal *models.RenewalOrder) error {
	renewal.ID = uuid.New()
	s.renewals[renewal.ID] = renewal
	return nil
}

func (s *stubRepo) FindRenewalOrder(ctx context.Context, renewalOrderID uuid.UUID) (*models.RenewalOrder, error) {
	if renewal, ok := s.renewals[renewalOrderID]; ok {
		return renewal, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) UpdateRenewalOrder(ctx context.Context, renewalOrderID uuid.UUID, updates map[string]any) error {
	renewal, ok := s.renewals[renewalOrderID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if status, ok := updates["status"].(enums.RenewalStatus); ok {
		renewal.Status = status
	}
	if reason, ok := updates["failure_reason"].(string); ok {
		renewal.FailureReason = &reason
	}
	if next, ok := updates["next_attempt_at"].(time.Time); ok {
		renewal.NextAttemptAt = &next
	}
	if last, ok := updates["last_attempt_at"].(time.Time); ok {
		renewal.LastAttemptAt = &last
	}
	if _, ok := updates["attempt_count"]; ok {
		renewal.AttemptCount++
	}
	return nil
}

func (s *stubRepo) LastFailedRenewal(ctx context.Context, subscriptionID uuid.UUID) (*models.RenewalOrder, error) {
	var last *models.RenewalOrder
	for _, renewal := range s.renewals {
		if renewal.SubscriptionID != subscriptionID || renewal.Status != enums.RenewalStatusFailed {
			continue
		}
		if last == nil || renewal.RenewalSequence > last.RenewalSequence {
			last = renewal
		}
	}
	return last, nil
}

func (s *stubRepo) ListDue(ctx context.Context, now time.Time, limit, offset int) ([]models.RenewalOrder, error) {
	var out []models.RenewalOrder
	for _, renewal := range s.renewals {
		if renewal.Status != enums.RenewalStatusPending || renewal.NextRenewalDate.After(now) {
			continue
		}
		if renewal.NextAttemptAt != nil && renewal.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, *renewal)
	}
	return out, nil
}

func (s *stubRepo) CountDue(ctx context.Context, now time.Time) (int64, error) {
	due, err := s.ListDue(ctx, now, 0, 0)
	return int64(len(due)), err
}

func (s *stubRepo) ListDueSubscriptions(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, sub := range s.subs {
		if sub.AutoRenew && sub.NextBillingDate != nil && !sub.NextBillingDate.After(now) {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (s *stubRepo) HasPendingRenewal(ctx context.Context, subscriptionID uuid.UUID) (bool, error) {
	for _, renewal := range s.renewals {
		if renewal.SubscriptionID == subscriptionID && renewal.Status == enums.RenewalStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) UpdateSubscription(ctx context.Context, subscriptionID uuid.UUID, updates map[string]any) error {
	sub, ok := s.subs[subscriptionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.subUpdates = append(s.subUpdates, updates)
	if status, ok := updates["status"].(enums.SubscriptionStatus); ok {
		sub.Status = status
	}
	if next, ok := updates["next_billing_date"].(time.Time); ok {
		sub.NextBillingDate = &next
	}
	return nil
}

func (s *stubRepo) AppendSubscriptionChange(ctx context.Context, change *models.SubscriptionChange) error {
	change.ID = uuid.New()
	s.changes = append(s.changes, *change)
	return nil
}

type stubRegistrar struct {
	payments []payments.GatewayResult
}

func (s *stubRegistrar) RegisterRenewal(ctx context.Context, tx *gorm.DB, renewalOrderID uuid.UUID, result payments.GatewayResult) (*models.OrderPayment, error) {
	s.payments = append(s.payments, result)
	amount, err := payments.NormalizeAmount(result)
	if err != nil {
		return nil, err
	}
	status := enums.PaymentStatusCompleted
	if !result.Succeeded {
		status = enums.PaymentStatusFailed
	}
	return &models.OrderPayment{ID: uuid.New(), Amount: amount, Status: status}, nil
}

func newTestService(t *testing.T, repo *stubRepo) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Payments: &stubRegistrar{},
		Tx:       stubTx{},
		Logger:   logger.New(logger.Options{ServiceName: "renewals-test", Output: io.Discard}),
		Now:      func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return svc
}

func dueSubscription(repo *stubRepo, price, discount string) *models.Subscription {
	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: "100042",
		UserID:      uuid.New(),
		Status:      enums.OrderStatusProcessing,
		Currency:    "USD",
	}
	repo.orders[order.ID] = order

	due := testNow.Add(-time.Hour)
	sub := &models.Subscription{
		ID:              uuid.New(),
		OrderID:         order.ID,
		OrderItemID:     uuid.New(),
		UserID:          order.UserID,
		Status:          enums.SubscriptionStatusActive,
		Price:           dec(price),
		DiscountAmount:  dec(discount),
		BillingFreq:     enums.BillingFrequencyMonth,
		BillingInterval: 1,
		NextBillingDate: &due,
		AutoRenew:       true,
	}
	repo.subs[sub.ID] = sub
	return sub
}

func TestCreateRenewalOrderCarriesBackoffFromFailedRenewal(t *testing.T) {
	repo := newStubRepo()
	sub := dueSubscription(repo, "29.99", "0")
	svc := newTestService(t, repo)

	first, err := svc.CreateRenewalOrder(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Nil(t, first.NextAttemptAt)

	first.Status = enums.RenewalStatusFailed
	require.NoError(t, svc.IncrementAttempt(context.Background(), first.ID))

	second, err := svc.CreateRenewalOrder(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, second.AttemptCount)
	require.NotNil(t, second.NextAttemptAt)
	assert.Equal(t, testNow.Add(24*time.Hour), *second.NextAttemptAt)

	// The replacement is not chargeable until the backoff passes.
	page, err := svc.ListDue(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestCreateRenewalOrderSequencesFromParent(t *testing.T) {
	repo := newStubRepo()
	sub := dueSubscription(repo, "29.99", "0")
	svc := newTestService(t, repo)

	first, err := svc.CreateRenewalOrder(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "100042-R001", first.RenewalOrderNumber)
	assert.Equal(t, 1, first.RenewalSequence)
	assert.True(t, first.TotalAmount.Equal(dec("29.99")))
	assert.Equal(t, enums.RenewalStatusPending, first.Status)

	first.Status = enums.RenewalStatusCompleted
	second, err := svc.CreateRenewalOrder(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "100042-R002", second.RenewalOrderNumber)
	assert.Equal(t, 2, second.RenewalSequence)
}

func TestCreateRenewalOrderAppliesDiscountAndFloor(t *testing.T) {
	repo := newStubRepo()
	sub := dueSubscription(repo, "5.00", "4.80")
	svc := newTestService(t, repo)

	renewal, err := svc.CreateRenewalOrder(context.Background(), sub.ID)
	require.NoError(t, err)

	// Full discount would charge 0.20; the floor trims it to 0.50.
	assert.True(t, renewal.TotalAmount.Equal(dec("0.50")), "got %s", renewal.TotalAmount)
	assert.True(t, renewal.DiscountAmount.Equal(dec("4.50")), "got %s", renewal.DiscountAmount)
	assert.True(t, renewal.RenewalAmount.Equal(dec("5.00")))
}

func TestCreateRenewalOrderRejectsIneligible(t *testing.T) {
	repo := newStubRepo()
	sub := dueSubscription(repo, "29.99", "0")
	future := testNow.Add(48 * time.Hour)
	sub.NextBillingDate = &future
	svc := newTestService(t, repo)

	_, err := svc.CreateRenewalOrder(context.Background(), sub.ID)
	require.Error(t, err)

	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, domainErr.Code())
}

func TestCanRenewStatuses(t *testing.T) {
	due := testNow.Add(-time.Minute)
	future := testNow.Add(time.Hour)

	assert.True(t, CanRenew(&models.Subscription{Status: enums.SubscriptionStatusActive, NextBillingDate: &due}, testNow))
	assert.False(t, CanRenew(&models.Subscription{Status: enums.SubscriptionStatusActive, NextBillingDate: &future}, testNow))
	assert.True(t, CanRenew(&models.Subscription{Status: enums.SubscriptionStatusPastDue}, testNow))
	assert.True(t, CanRenew(&models.Subscription{Status: enums.SubscriptionStatusFailed}, testNow))
	assert.True(t, CanRenew(&models.Subscription{Status: enums.SubscriptionStatusCanceled}, testNow))
	assert.True(t, CanRenew(&models.Subscription{Status: enums.SubscriptionStatusTrialing, TrialEndsAt: &due}, testNow))
	assert.False(t, CanRenew(&models.Subscription{Status: enums.SubscriptionStatusTrialing, TrialEndsAt: &future}, testNow))
	assert.False(t, CanRenew(&models.Subscription{Status: enums.SubscriptionStatusPaused}, testNow))
}

func TestProcessRenewalSuccessReactivates(t *testing.T) {
	repo := newStubRepo()
	sub := dueSubscription(repo, "29.99", "0")
	sub.Status = enums.SubscriptionStatusPastDue
	svc := newTestService(t, repo)

	renewal, err := svc.CreateRenewalOrder(context.Background(), sub.ID)
	require.NoError(t, err)

	result, err := svc.ProcessRenewal(context.Background(), renewal.ID, payments.GatewayResult{
		Gateway:          enums.PaymentGatewayStripe,
		Method:           "card",
		AmountMinorUnits: int64Ptr(2999),
		TransactionID:    "pi_renew",
		Succeeded:        true,
	})
	require.NoError(t, err)

	assert.Equal(t, enums.RenewalStatusCompleted, result.Renewal.Status)
	assert.Equal(t, enums.SubscriptionStatusActive, result.Subscription.Status)
	require.NotNil(t, result.Subscription.NextBillingDate)
	assert.Equal(t, testNow.AddDate(0, 1, 0), *result.Subscription.NextBillingDate)

	require.Len(t, repo.changes, 1)
	change := repo.changes[0]
	assert.Equal(t, enums.ChangeTypeReactivate, change.ChangeType)
	require.NotNil(t, change.FromStatus)
	assert.Equal(t, enums.SubscriptionStatusPastDue, *change.FromStatus)
}

func TestProcessRenewalFailureDemotesToPastDue(t *testing.T) {
	repo := newStubRepo()
	sub := dueSubscription(repo, "29.99", "0")
	originalDue := *sub.NextBillingDate
	svc := newTestService(t, repo)

	renewal, err := svc.CreateRenewalOrder(context.Background(), sub.ID)
	require.NoError(t, err)

	result, err := svc.ProcessRenewal(context.Background(), renewal.ID, payments.GatewayResult{
		Gateway:          enums.PaymentGatewayStripe,
		Method:           "card",
		AmountMinorUnits: int64Ptr(2999),
		TransactionID:    "pi_declined",
		Succeeded:        false,
		FailureMessage:   "card declined",
	})
	require.NoError(t, err)

	assert.Equal(t, enums.RenewalStatusFailed, result.Renewal.Status)
	require.NotNil(t, result.Renewal.FailureReason)
	assert.Equal(t, "card declined", *result.Renewal.FailureReason)
	assert.Equal(t, enums.SubscriptionStatusPastDue, result.Subscription.Status)
	// Billing date stays on the missed period.
	require.NotNil(t, result.Subscription.NextBillingDate)
	assert.Equal(t, originalDue, *result.Subscription.NextBillingDate)
	assert.Empty(t, repo.changes)
}

func TestProcessRenewalAlreadyCompleted(t *testing.T) {
	repo := newStubRepo()
	sub := dueSubscription(repo, "29.99", "0")
	svc := newTestService(t, repo)

	renewal, err := svc.CreateRenewalOrder(context.Background(), sub.ID)
	require.NoError(t, err)
	renewal.Status = enums.RenewalStatusCompleted

	_, err = svc.ProcessRenewal(context.Background(), renewal.ID, payments.GatewayResult{
		Gateway:          enums.PaymentGatewayStripe,
		AmountMinorUnits: int64Ptr(2999),
		TransactionID:    "pi_dup",
		Succeeded:        true,
	})
	require.Error(t, err)

	domainErr := pkgerrors.As(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, domainErr.Code())
}

func TestIncrementAttemptSchedulesBackoff(t *testing.T) {
	repo := newStubRepo()
	sub := dueSubscription(repo, "29.99", "0")
	svc := newTestService(t, repo)

	renewal, err := svc.CreateRenewalOrder(context.Background(), sub.ID)
	require.NoError(t, err)

	require.NoError(t, svc.IncrementAttempt(context.Background(), renewal.ID))

	stored := repo.renewals[renewal.ID]
	assert.Equal(t, 1, stored.AttemptCount)
	require.NotNil(t, stored.NextAttemptAt)
	assert.Equal(t, testNow.Add(24*time.Hour), *stored.NextAttemptAt)
	require.NotNil(t, stored.LastAttemptAt)
}

func TestListDueReportsDedicatedTotal(t *testing.T) {
	repo := newStubRepo()
	sub := dueSubscription(repo, "29.99", "0")
	svc := newTestService(t, repo)

	_, err := svc.CreateRenewalOrder(context.Background(), sub.ID)
	require.NoError(t, err)

	page, err := svc.ListDue(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(1), page.Total)
}
