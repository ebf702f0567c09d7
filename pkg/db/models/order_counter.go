package models

import "time"

// OrderCounter is the single-row sequence behind order numbers. Numbers are
// taken with an atomic UPDATE ... RETURNING so concurrent checkouts never
// race to the same value.
type OrderCounter struct {
	ID        int       `gorm:"column:id;primaryKey"`
	NextValue int64     `gorm:"column:next_value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the singular sequence table name explicit.
func (OrderCounter) TableName() string {
	return "order_counter"
}
