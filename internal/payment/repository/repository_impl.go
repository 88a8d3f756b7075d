package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payout/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListSettlementCandidates(ctx context.Context, db *gorm.DB, limit, offset int) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, amount, status, paid_out_at, course_id, instructor_id, user_id, created_at, updated_at
		 FROM payments
		 WHERE status = ? AND paid_out_at IS NULL
		 ORDER BY updated_at ASC, id ASC
		 LIMIT ? OFFSET ?`,
		domain.PaymentStatusCompleted,
		limit,
		offset,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountPaidOut(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM payments
		 WHERE status = ? AND paid_out_at IS NOT NULL`,
		domain.PaymentStatusCompleted,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, amount, status, paid_out_at, course_id, instructor_id, user_id, created_at, updated_at
		 FROM payments
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListRefunds(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]domain.Refund, error) {
	var items []domain.Refund
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, status, amount, created_at
		 FROM payment_refunds
		 WHERE payment_id = ?
		 ORDER BY id ASC`,
		paymentID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListRefundsByPaymentIDs(ctx context.Context, db *gorm.DB, paymentIDs []snowflake.ID) (map[snowflake.ID][]domain.Refund, error) {
	out := make(map[snowflake.ID][]domain.Refund, len(paymentIDs))
	if len(paymentIDs) == 0 {
		return out, nil
	}
	var items []domain.Refund
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, status, amount, created_at
		 FROM payment_refunds
		 WHERE payment_id IN ?
		 ORDER BY id ASC`,
		paymentIDs,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.PaymentID] = append(out[item.PaymentID], item)
	}
	return out, nil
}

func (r *repo) MarkPaidOut(ctx context.Context, db *gorm.DB, id snowflake.ID, paidOutAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET paid_out_at = ?
		 WHERE id = ? AND paid_out_at IS NULL`,
		paidOutAt,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
