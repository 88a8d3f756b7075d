package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/payout/internal/scheduler/domain"
	"gorm.io/gorm"
)

const defaultListLimit = 50

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, run *domain.JobRun) error {
	return db.WithContext(ctx).Create(run).Error
}

func (r *repo) ListRecent(ctx context.Context, db *gorm.DB, req domain.ListRunsRequest) ([]domain.JobRun, error) {
	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}
	query := db.WithContext(ctx).Model(&domain.JobRun{})
	if req.Job != "" {
		query = query.Where("job = ?", req.Job)
	}

	var items []domain.JobRun
	if err := query.Order("started_at DESC").Order("id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeleteStartedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM payout_job_runs WHERE started_at < ?`, cutoff)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
