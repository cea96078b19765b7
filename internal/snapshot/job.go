package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/vendsight/vendsight/jobs"
)

// Job processes snapshot generation tasks.
type Job struct {
	service *Service
	logger  *slog.Logger
}

// NewJob constructs a job handler.
func NewJob(service *Service, logger *slog.Logger) *Job {
	return &Job{service: service, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *Job) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.SnapshotPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.SnapshotID == 0 {
		return asynq.SkipRetry
	}
	if err := j.service.Process(ctx, payload.SnapshotID); err != nil {
		if j.logger != nil {
			j.logger.Error("process snapshot", slog.Int64("snapshot_id", payload.SnapshotID), slog.Any("error", err))
		}
		return err
	}
	return nil
}
