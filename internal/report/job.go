package report

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// RefreshJob rebuilds the actor tree on the worker. Registered both as an
// on-demand task and on a weekly cron.
type RefreshJob struct {
	service *Service
	logger  *slog.Logger
}

// NewRefreshJob constructs a job handler.
func NewRefreshJob(service *Service, logger *slog.Logger) *RefreshJob {
	return &RefreshJob{service: service, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *RefreshJob) Handle(ctx context.Context, task *asynq.Task) error {
	if err := j.service.Refresh(ctx); err != nil {
		if j.logger != nil {
			j.logger.Error("tree refresh", slog.Any("error", err))
		}
		return err
	}
	return nil
}
