package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/CyberITEX/cms-commerce/pkg/db/models"
	"github.com/CyberITEX/cms-commerce/pkg/enums"
)

// Repository persists normalized gateway payments and updates the rows they
// settle.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePayment(ctx context.Context, payment *models.OrderPayment) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindRenewalOrder(ctx context.Context, renewalOrderID uuid.UUID) (*models.RenewalOrder, error)
	MarkOrderPaid(ctx context.Context, orderID uuid.UUID, paidAt time.Time) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderPayment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided GORM handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.OrderPayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindRenewalOrder(ctx context.Context, renewalOrderID uuid.UUID) (*models.RenewalOrder, error) {
	var renewal models.RenewalOrder
	err := r.db.WithContext(ctx).Where("id = ?", renewalOrderID).First(&renewal).Error
	if err != nil {
		return nil, err
	}
	return &renewal, nil
}

// MarkOrderPaid flips a pending order into processing and stamps paid_at.
func (r *repository) MarkOrderPaid(ctx context.Context, orderID uuid.UUID, paidAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"status":  enums.OrderStatusProcessing,
			"paid_at": paidAt,
		}).Error
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderPayment, error) {
	var payments []models.OrderPayment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
