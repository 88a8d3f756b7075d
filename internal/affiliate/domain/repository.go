package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindUsage(ctx context.Context, db *gorm.DB, id snowflake.ID) (*DiscountUsage, error)
	// FindReferralUsage returns the latest referral usage of a user for a course.
	FindReferralUsage(ctx context.Context, db *gorm.DB, userID, courseID snowflake.ID) (*DiscountUsage, error)
	FindPayout(ctx context.Context, db *gorm.DB, id snowflake.ID) (*AffiliatePayout, error)
	FindPayoutByUsage(ctx context.Context, db *gorm.DB, usageID snowflake.ID) (*AffiliatePayout, error)
	// InsertPayout stores p unless a payout for the usage exists and reports whether it did.
	InsertPayout(ctx context.Context, db *gorm.DB, p *AffiliatePayout) (bool, error)
	// MarkPaid and Cancel only transition rows that are still PENDING.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) (bool, error)
	ListPayouts(ctx context.Context, db *gorm.DB, req ListPayoutsRequest) ([]AffiliatePayout, error)
}
