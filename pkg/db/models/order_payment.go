package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CyberITEX/cms-commerce/pkg/enums"
)

// OrderPayment is the normalized record of one gateway payment attempt,
// attached to either the parent order or a renewal order.
type OrderPayment struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	RenewalOrderID *uuid.UUID           `gorm:"column:renewal_order_id;type:uuid;index"`
	Gateway        enums.PaymentGateway `gorm:"column:gateway;type:payment_gateway;not null;uniqueIndex:uq_order_payments_gateway_txn"`
	Method         string               `gorm:"column:method;not null"`
	Amount         decimal.Decimal      `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency       string               `gorm:"column:currency;not null;default:'USD'"`
	Status         enums.PaymentStatus  `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	TransactionID  string               `gorm:"column:transaction_id;not null;uniqueIndex:uq_order_payments_gateway_txn"`
	ReferenceID    *string              `gorm:"column:reference_id"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
