package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusCompleted RefundStatus = "COMPLETED"
	RefundStatusRejected  RefundStatus = "REJECTED"
	RefundStatusFailed    RefundStatus = "FAILED"
)

// Blocks reports whether a refund in this status holds back settlement.
func (s RefundStatus) Blocks() bool {
	return s == RefundStatusPending || s == RefundStatusCompleted
}

// Payment is owned by the payment subsystem. Settlement only ever writes PaidOutAt.
type Payment struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:numeric(18,2);not null"`
	Status       PaymentStatus   `json:"status" gorm:"type:text;not null;index"`
	PaidOutAt    *time.Time      `json:"paid_out_at"`
	CourseID     snowflake.ID    `json:"course_id" gorm:"not null"`
	InstructorID snowflake.ID    `json:"instructor_id" gorm:"not null"`
	UserID       snowflake.ID    `json:"user_id" gorm:"not null"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"not null;index"`

	Refunds []Refund `json:"refunds,omitempty" gorm:"-"`
}

func (Payment) TableName() string { return "payments" }

type Refund struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	PaymentID snowflake.ID    `json:"payment_id" gorm:"not null;index"`
	Status    RefundStatus    `json:"status" gorm:"type:text;not null"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:numeric(18,2);not null"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null"`
}

func (Refund) TableName() string { return "payment_refunds" }
