package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type EarningStatus string

const (
	EarningStatusAvailable EarningStatus = "AVAILABLE"
	EarningStatusPaid      EarningStatus = "PAID"
)

// InstructorEarning is the durable record of a settled payment. payment_id is unique.
type InstructorEarning struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	PaymentID    snowflake.ID    `json:"payment_id" gorm:"not null;uniqueIndex"`
	InstructorID snowflake.ID    `json:"instructor_id" gorm:"not null;index"`
	CourseID     snowflake.ID    `json:"course_id" gorm:"not null"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:numeric(18,2);not null"`
	Status       EarningStatus   `json:"status" gorm:"type:text;not null"`
	PaidAt       *time.Time      `json:"paid_at"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null"`
}

func (InstructorEarning) TableName() string { return "instructor_earnings" }

var ErrInvalidEarning = errors.New("invalid_earning")

type Repository interface {
	// Insert stores e unless an earning for the same payment exists and reports whether it did.
	Insert(ctx context.Context, db *gorm.DB, e *InstructorEarning) (bool, error)
	ExistsForPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (bool, error)
	ExistingPaymentIDs(ctx context.Context, db *gorm.DB, paymentIDs []snowflake.ID) (map[snowflake.ID]struct{}, error)
	FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*InstructorEarning, error)
	CountPaidOutWithoutEarning(ctx context.Context, db *gorm.DB) (int64, error)
	CountEarningsWithoutPaidOut(ctx context.Context, db *gorm.DB) (int64, error)
}
