package chat

import (
	"context"
	"errors"
	"time"

	"github.com/pentabot/backend/internal/apperr"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is a queued exchange executed by the worker.
type Job struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	UserID uint64  `gorm:"not null;index:uniq_job_user_idempo,unique,priority:1"`
	ChatID *uint64 `gorm:"index"`

	Prompt string `gorm:"type:text;not null"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_job_user_idempo,unique,priority:2"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when succeeded
	ResultChatID    *uint64
	ResultMessageID *uint64
	Reply           *string `gorm:"type:text"`
	ChatTitle       *string `gorm:"type:varchar(255)"`
	Credits         *int

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Job) TableName() string { return "chat_jobs" }

func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return apperr.Storage(r.db.WithContext(ctx).Create(job).Error)
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, apperr.FromGorm(err, "Job not found")
	}
	return &j, nil
}

// GetJobForUser hides jobs owned by other users.
func (r *Repo) GetJobForUser(ctx context.Context, id string, userID uint64) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, apperr.FromGorm(err, "Job not found")
	}
	return &j, nil
}

// ClaimJob moves a queued job to running. It reports false when another worker
// already claimed it or the job is finished.
func (r *Repo) ClaimJob(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning)
	if res.Error != nil {
		return false, apperr.Storage(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, res *SendResult) error {
	return apperr.Storage(r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_chat_id":    res.ChatID,
			"result_message_id": res.MessageID,
			"reply":             res.Reply,
			"chat_title":        res.ChatTitle,
			"credits":           res.Credits,
			"error":             nil,
		}).Error)
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return apperr.Storage(r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error)
}

func (r *Repo) getJobByUserAndIdempotencyKey(ctx context.Context, userID uint64, key string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJobOrGetExisting creates job, unless (user_id, idempotency_key) already exists,
// in which case the existing job is returned with created=false.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.CreateJob(ctx, job); err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	if existing, err := r.getJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey); err == nil {
		return existing, false, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	// lost a race against a concurrent request with the same key
	existing, getErr := r.getJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, apperr.Storage(err)
	}
	return nil, false, apperr.Storage(getErr)
}
