package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payout/internal/earning/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, e *domain.InstructorEarning) (bool, error) {
	if e == nil || e.ID == 0 || e.PaymentID == 0 {
		return false, domain.ErrInvalidEarning
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_id"}},
			DoNothing: true,
		}).
		Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ExistsForPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM instructor_earnings WHERE payment_id = ?`,
		paymentID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ExistingPaymentIDs(ctx context.Context, db *gorm.DB, paymentIDs []snowflake.ID) (map[snowflake.ID]struct{}, error) {
	out := make(map[snowflake.ID]struct{}, len(paymentIDs))
	if len(paymentIDs) == 0 {
		return out, nil
	}
	var ids []int64
	err := db.WithContext(ctx).Raw(
		`SELECT payment_id FROM instructor_earnings WHERE payment_id IN ?`,
		paymentIDs,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[snowflake.ID(id)] = struct{}{}
	}
	return out, nil
}

func (r *repo) FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (*domain.InstructorEarning, error) {
	var item domain.InstructorEarning
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, instructor_id, course_id, amount, status, paid_at, created_at
		 FROM instructor_earnings
		 WHERE payment_id = ?
		 LIMIT 1`,
		paymentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) CountPaidOutWithoutEarning(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM payments p
		 LEFT JOIN instructor_earnings e ON e.payment_id = p.id
		 WHERE p.paid_out_at IS NOT NULL AND e.id IS NULL`,
	).Scan(&count).Error
	return count, err
}

func (r *repo) CountEarningsWithoutPaidOut(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM instructor_earnings e
		 JOIN payments p ON p.id = e.payment_id
		 WHERE p.paid_out_at IS NULL`,
	).Scan(&count).Error
	return count, err
}
