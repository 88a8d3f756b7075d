package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypeReferral DiscountType = "REFERRAL"
	DiscountTypePromo    DiscountType = "PROMO"
)

type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "PENDING"
	PayoutStatusPaid      PayoutStatus = "PAID"
	PayoutStatusCancelled PayoutStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s PayoutStatus) Terminal() bool {
	return s == PayoutStatusPaid || s == PayoutStatusCancelled
}

// DiscountUsage is written by checkout; commission only reads it.
type DiscountUsage struct {
	ID               snowflake.ID    `json:"id" gorm:"primaryKey"`
	DiscountID       snowflake.ID    `json:"discount_id" gorm:"not null"`
	DiscountType     DiscountType    `json:"discount_type" gorm:"type:text;not null"`
	ReferredByUserID *snowflake.ID   `json:"referred_by_user_id"`
	UserID           snowflake.ID    `json:"user_id" gorm:"not null;index:idx_discount_usages_user_course"`
	CourseID         snowflake.ID    `json:"course_id" gorm:"not null;index:idx_discount_usages_user_course"`
	DiscountAmount   decimal.Decimal `json:"discount_amount" gorm:"type:numeric(18,2);not null"`
	UsedAt           time.Time       `json:"used_at" gorm:"not null"`
}

func (DiscountUsage) TableName() string { return "discount_usages" }

// IsReferral reports whether the usage can earn a commission.
func (u DiscountUsage) IsReferral() bool {
	return u.DiscountType == DiscountTypeReferral && u.ReferredByUserID != nil && *u.ReferredByUserID != 0
}

type AffiliatePayout struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	DiscountUsageID   snowflake.ID    `json:"discount_usage_id" gorm:"not null;uniqueIndex"`
	ReferredByUserID  snowflake.ID    `json:"referred_by_user_id" gorm:"not null;index"`
	CourseID          snowflake.ID    `json:"course_id" gorm:"not null"`
	CommissionPercent decimal.Decimal `json:"commission_percent" gorm:"type:numeric(7,4);not null"`
	CommissionAmount  decimal.Decimal `json:"commission_amount" gorm:"type:numeric(18,2);not null"`
	Status            PayoutStatus    `json:"status" gorm:"type:text;not null;index"`
	PaidAt            *time.Time      `json:"paid_at"`
	CancelledAt       *time.Time      `json:"cancelled_at"`
	CancelReason      *string         `json:"cancel_reason"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"not null"`
}

func (AffiliatePayout) TableName() string { return "affiliate_payouts" }

// BulkResult tallies a bulk admin operation per requested id.
type BulkResult struct {
	TotalRequested int               `json:"total_requested"`
	TotalProcessed int               `json:"total_processed"`
	TotalFailed    int               `json:"total_failed"`
	FailureReasons map[string]string `json:"failure_reasons"`
}

type ListPayoutsRequest struct {
	Status           PayoutStatus
	ReferredByUserID snowflake.ID
	AfterID          snowflake.ID
	Limit            int
}
