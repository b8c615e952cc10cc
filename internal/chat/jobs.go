package chat

import (
	"context"
	"strings"

	"github.com/pentabot/backend/internal/apperr"
	"github.com/pentabot/backend/internal/common"
	"go.uber.org/zap"
)

const maxIdempotencyKeyLen = 128

// EnqueueSend records a queued exchange. With a non-empty idempotency key a repeated
// request returns the original job and created=false.
func (s *Service) EnqueueSend(ctx context.Context, userID uint64, chatID *uint64, text, idempotencyKey string) (*Job, bool, error) {
	if strings.TrimSpace(text) == "" {
		return nil, false, apperr.Validation("Message is required")
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if len(idempotencyKey) > maxIdempotencyKeyLen {
		return nil, false, apperr.Validation("Idempotency key too long")
	}

	res, err := s.ledger.CheckAndReserve(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if !res.OK {
		return nil, false, apperr.InsufficientCredits()
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}
	job := &Job{
		ID:     id,
		UserID: userID,
		ChatID: chatID,
		Prompt: text,
		Status: JobQueued,
	}
	if idempotencyKey != "" {
		job.IdempotencyKey = &idempotencyKey
	}
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, userID uint64, jobID string) (*Job, error) {
	return s.repo.GetJobForUser(ctx, jobID, userID)
}

// ProcessJob runs a queued exchange and returns the job's final state. An error means
// the job could not be loaded, claimed or recorded. A claimed job never runs twice.
func (s *Service) ProcessJob(ctx context.Context, jobID string) (JobStatus, error) {
	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	claimed, err := s.repo.ClaimJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if !claimed {
		s.log.Info("job already claimed", zap.String("job_id", jobID), zap.String("status", string(j.Status)))
		return j.Status, nil
	}

	res, err := s.HandleSend(ctx, j.UserID, j.ChatID, j.Prompt)
	if err != nil {
		if markErr := s.repo.MarkJobFailed(context.WithoutCancel(ctx), jobID, apperr.Message(err, "Chat error")); markErr != nil {
			return JobFailed, markErr
		}
		return JobFailed, nil
	}
	if err := s.repo.MarkJobSucceeded(context.WithoutCancel(ctx), jobID, res); err != nil {
		return JobSucceeded, err
	}
	return JobSucceeded, nil
}
