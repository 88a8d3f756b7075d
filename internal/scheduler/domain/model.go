package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// JobRun is the persisted history of one scheduler job execution.
type JobRun struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	Job            string            `json:"job" gorm:"type:text;not null;index:idx_payout_job_runs_job_started"`
	RunID          string            `json:"run_id" gorm:"type:text;not null"`
	Trigger        string            `json:"trigger" gorm:"type:text;not null"`
	StartedAt      time.Time         `json:"started_at" gorm:"not null;index:idx_payout_job_runs_job_started"`
	FinishedAt     time.Time         `json:"finished_at" gorm:"not null"`
	ProcessedCount int               `json:"processed_count" gorm:"not null"`
	ErrorCount     int               `json:"error_count" gorm:"not null"`
	TotalAmount    decimal.Decimal   `json:"total_amount" gorm:"type:numeric(18,2);not null"`
	Status         RunStatus         `json:"status" gorm:"type:text;not null"`
	Error          *string           `json:"error,omitempty"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`
}

func (JobRun) TableName() string { return "payout_job_runs" }

type ListRunsRequest struct {
	Job   string
	Limit int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, run *JobRun) error
	// ListRecent returns the newest runs first.
	ListRecent(ctx context.Context, db *gorm.DB, req ListRunsRequest) ([]JobRun, error)
	DeleteStartedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}
