package renewals

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberITEX/cms-commerce/internal/payments"
	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
	"github.com/CyberITEX/cms-commerce/pkg/logger"
)

type stubService struct {
	dueSubs    []models.Subscription
	pending    map[uuid.UUID]bool
	due        []models.RenewalOrder
	created    []uuid.UUID
	processed  []uuid.UUID
	attempts   []uuid.UUID
	processErr error
	outcome    map[uuid.UUID]enums.RenewalStatus
}

func newStubService() *stubService {
	return &stubService{
		pending: map[uuid.UUID]bool{},
		outcome: map[uuid.UUID]enums.RenewalStatus{},
	}
}

func (s *stubService) CreateRenewalOrder(ctx context.Context, subscriptionID uuid.UUID) (*models.RenewalOrder, error) {
	s.created = append(s.created, subscriptionID)
	return &models.RenewalOrder{ID: uuid.New(), SubscriptionID: subscriptionID, RenewalOrderNumber: "100001-R001"}, nil
}

func (s *stubService) ProcessRenewal(ctx context.Context, renewalOrderID uuid.UUID, result payments.GatewayResult) (*ProcessResult, error) {
	s.processed = append(s.processed, renewalOrderID)
	if s.processErr != nil {
		return nil, s.processErr
	}
	status := s.outcome[renewalOrderID]
	if status == "" {
		status = enums.RenewalStatusCompleted
	}
	return &ProcessResult{Renewal: &models.RenewalOrder{ID: renewalOrderID, Status: status}}, nil
}

func (s *stubService) ListDue(ctx context.Context, limit, offset int) (*DuePage, error) {
	return &DuePage{Items: s.due, Total: int64(len(s.due))}, nil
}

func (s *stubService) ListDueSubscriptions(ctx context.Context, limit int) ([]models.Subscription, error) {
	return s.dueSubs, nil
}

func (s *stubService) HasPendingRenewal(ctx context.Context, subscriptionID uuid.UUID) (bool, error) {
	return s.pending[subscriptionID], nil
}

func (s *stubService) IncrementAttempt(ctx context.Context, renewalOrderID uuid.UUID) error {
	s.attempts = append(s.attempts, renewalOrderID)
	return nil
}

type stubCharger struct {
	err       error
	succeeded bool
	charged   []uuid.UUID
}

func (s *stubCharger) Charge(ctx context.Context, renewal *models.RenewalOrder) (payments.GatewayResult, error) {
	s.charged = append(s.charged, renewal.ID)
	if s.err != nil {
		return payments.GatewayResult{}, s.err
	}
	return payments.GatewayResult{
		Gateway:       enums.PaymentGatewayStripe,
		TransactionID: "pi_test",
		Succeeded:     s.succeeded,
	}, nil
}

func newTestJob(t *testing.T, svc Service, charger Charger) *Job {
	t.Helper()
	job, err := NewJob(JobParams{
		Service: svc,
		Charger: charger,
		Logger:  logger.New(logger.Options{ServiceName: "renewal-job-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return job
}

func TestJobMaterializesDueSubscriptions(t *testing.T) {
	svc := newStubService()
	withPending := uuid.New()
	without := uuid.New()
	svc.dueSubs = []models.Subscription{{ID: withPending}, {ID: without}}
	svc.pending[withPending] = true

	job := newTestJob(t, svc, &stubCharger{succeeded: true})
	require.NoError(t, job.Run(context.Background()))

	// Only the subscription without an open renewal gets a new order.
	require.Len(t, svc.created, 1)
	assert.Equal(t, without, svc.created[0])
}

func TestJobSettlesSuccessfulCharge(t *testing.T) {
	svc := newStubService()
	renewal := models.RenewalOrder{ID: uuid.New(), RenewalOrderNumber: "100001-R001", NextRenewalDate: time.Now().Add(-time.Hour)}
	svc.due = []models.RenewalOrder{renewal}

	charger := &stubCharger{succeeded: true}
	job := newTestJob(t, svc, charger)
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, []uuid.UUID{renewal.ID}, charger.charged)
	assert.Equal(t, []uuid.UUID{renewal.ID}, svc.processed)
	assert.Empty(t, svc.attempts)
}

func TestJobDeclinedChargeBumpsAttempt(t *testing.T) {
	svc := newStubService()
	renewal := models.RenewalOrder{ID: uuid.New(), RenewalOrderNumber: "100001-R002"}
	svc.due = []models.RenewalOrder{renewal}
	svc.outcome[renewal.ID] = enums.RenewalStatusFailed

	job := newTestJob(t, svc, &stubCharger{succeeded: false})
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, []uuid.UUID{renewal.ID}, svc.processed)
	assert.Equal(t, []uuid.UUID{renewal.ID}, svc.attempts)
}

func TestJobGatewayErrorSkipsProcessing(t *testing.T) {
	svc := newStubService()
	renewal := models.RenewalOrder{ID: uuid.New(), RenewalOrderNumber: "100001-R003"}
	svc.due = []models.RenewalOrder{renewal}

	job := newTestJob(t, svc, &stubCharger{err: errors.New("gateway timeout")})
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway timeout")

	assert.Empty(t, svc.processed)
	assert.Equal(t, []uuid.UUID{renewal.ID}, svc.attempts)
}

func TestJobCollectsErrorsAcrossBatch(t *testing.T) {
	svc := newStubService()
	first := models.RenewalOrder{ID: uuid.New(), RenewalOrderNumber: "100001-R004"}
	second := models.RenewalOrder{ID: uuid.New(), RenewalOrderNumber: "100002-R001"}
	svc.due = []models.RenewalOrder{first, second}
	svc.processErr = errors.New("settlement conflict")

	job := newTestJob(t, svc, &stubCharger{succeeded: true})
	err := job.Run(context.Background())
	require.Error(t, err)

	// Both renewals were still attempted despite the first failing.
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, svc.processed)
}

func TestNewJobRequiresDependencies(t *testing.T) {
	_, err := NewJob(JobParams{Charger: &stubCharger{}})
	require.Error(t, err)

	_, err = NewJob(JobParams{Service: newStubService()})
	require.Error(t, err)
}
