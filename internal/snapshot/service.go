package snapshot

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vendsight/vendsight/internal/report"
)

// Reporter generates the report payload for a snapshot.
type Reporter interface {
	Run(ctx context.Context, start, end string) (*report.Report, error)
}

// Service coordinates snapshot triggering and worker-side processing.
type Service struct {
	repo     Repository
	reporter Reporter
	logger   *slog.Logger
}

// NewService builds the service.
func NewService(repo Repository, reporter Reporter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, reporter: reporter, logger: logger}
}

// Trigger validates and inserts a pending snapshot. The caller enqueues the
// processing task.
func (s *Service) Trigger(ctx context.Context, req Request) (Snapshot, error) {
	if err := req.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s.repo.Insert(ctx, req)
}

// Get returns snapshot metadata and payload by id.
func (s *Service) Get(ctx context.Context, id int64) (Snapshot, error) {
	return s.repo.Get(ctx, id)
}

// GetByToken resolves a snapshot through its public token.
func (s *Service) GetByToken(ctx context.Context, token uuid.UUID) (Snapshot, error) {
	return s.repo.GetByToken(ctx, token)
}

// List fetches recent snapshots, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Snapshot, error) {
	return s.repo.List(ctx, limit)
}

// Process generates the report for a pending snapshot and persists the
// outcome. Failures are recorded on the row before the error propagates so
// asynq can retry.
func (s *Service) Process(ctx context.Context, id int64) error {
	snap, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.MarkInProgress(ctx, snap.ID); err != nil {
		return err
	}
	rep, err := s.reporter.Run(ctx, snap.Start, snap.End)
	if err != nil {
		if ferr := s.repo.Finalize(ctx, snap.ID, StatusFailed, nil, err.Error()); ferr != nil {
			s.logger.Error("record snapshot failure", slog.Int64("snapshot_id", snap.ID), slog.Any("error", ferr))
		}
		return err
	}
	if err := s.repo.Finalize(ctx, snap.ID, StatusReady, rep, ""); err != nil {
		return err
	}
	s.logger.Info("snapshot ready", slog.Int64("snapshot_id", snap.ID), slog.Int("rows", len(rep.Rows)))
	return nil
}
