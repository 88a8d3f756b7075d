package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// ListSettlementCandidates pages COMPLETED payments without paid_out_at, oldest first.
	ListSettlementCandidates(ctx context.Context, db *gorm.DB, limit, offset int) ([]Payment, error)
	// CountPaidOut counts COMPLETED payments that already carry paid_out_at.
	CountPaidOut(ctx context.Context, db *gorm.DB) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	ListRefunds(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]Refund, error)
	ListRefundsByPaymentIDs(ctx context.Context, db *gorm.DB, paymentIDs []snowflake.ID) (map[snowflake.ID][]Refund, error)
	// MarkPaidOut sets paid_out_at only while it is still NULL and reports whether it did.
	MarkPaidOut(ctx context.Context, db *gorm.DB, id snowflake.ID, paidOutAt time.Time) (bool, error)
}
