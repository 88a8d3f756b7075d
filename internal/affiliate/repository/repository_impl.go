package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payout/internal/affiliate/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const payoutColumns = `id, discount_usage_id, referred_by_user_id, course_id, commission_percent,
	commission_amount, status, paid_at, cancelled_at, cancel_reason, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindUsage(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.DiscountUsage, error) {
	var item domain.DiscountUsage
	err := db.WithContext(ctx).Raw(
		`SELECT id, discount_id, discount_type, referred_by_user_id, user_id, course_id, discount_amount, used_at
		 FROM discount_usages
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

func (r *repo) FindReferralUsage(ctx context.Context, db *gorm.DB, userID, courseID snowflake.ID) (*domain.DiscountUsage, error) {
	var item domain.DiscountUsage
	err := db.WithContext(ctx).Raw(
		`SELECT id, discount_id, discount_type, referred_by_user_id, user_id, course_id, discount_amount, used_at
		 FROM discount_usages
		 WHERE user_id = ? AND course_id = ? AND discount_type = ? AND referred_by_user_id IS NOT NULL
		 ORDER BY used_at DESC, id DESC
		 LIMIT 1`,
		userID,
		courseID,
		domain.DiscountTypeReferral,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindPayout(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.AffiliatePayout, error) {
	return r.findPayoutWhere(ctx, db, "id = ?", id)
}

func (r *repo) FindPayoutByUsage(ctx context.Context, db *gorm.DB, usageID snowflake.ID) (*domain.AffiliatePayout, error) {
	return r.findPayoutWhere(ctx, db, "discount_usage_id = ?", usageID)
}

func (r *repo) findPayoutWhere(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.AffiliatePayout, error) {
	var item domain.AffiliatePayout
	err := db.WithContext(ctx).Raw(
		`SELECT `+payoutColumns+`
		 FROM affiliate_payouts
		 WHERE `+where+`
		 LIMIT 1`,
		arg,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertPayout(ctx context.Context, db *gorm.DB, p *domain.AffiliatePayout) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "discount_usage_id"}},
			DoNothing: true,
		}).
		Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE affiliate_payouts
		 SET status = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.PayoutStatusPaid,
		at,
		at,
		id,
		domain.PayoutStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE affiliate_payouts
		 SET status = ?, cancelled_at = ?, cancel_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.PayoutStatusCancelled,
		at,
		reason,
		at,
		id,
		domain.PayoutStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListPayouts(ctx context.Context, db *gorm.DB, req domain.ListPayoutsRequest) ([]domain.AffiliatePayout, error) {
	query := db.WithContext(ctx).Model(&domain.AffiliatePayout{})
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.ReferredByUserID != 0 {
		query = query.Where("referred_by_user_id = ?", req.ReferredByUserID)
	}
	if req.AfterID != 0 {
		query = query.Where("id > ?", req.AfterID)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	var items []domain.AffiliatePayout
	if err := query.Order("id ASC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
