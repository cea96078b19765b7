package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/vendsight/vendsight/internal/report"
	"github.com/vendsight/vendsight/jobs"
)

type memoryRepository struct {
	mu    sync.Mutex
	seq   int64
	items map[int64]*Snapshot
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{items: make(map[int64]*Snapshot)}
}

func (m *memoryRepository) Insert(ctx context.Context, req Request) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	snap := Snapshot{
		ID:        m.seq,
		Token:     uuid.New(),
		Start:     req.Start,
		End:       req.End,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.items[snap.ID] = &snap
	return snap, nil
}

func (m *memoryRepository) Get(ctx context.Context, id int64) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.items[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return *snap, nil
}

func (m *memoryRepository) GetByToken(ctx context.Context, token uuid.UUID) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snap := range m.items {
		if snap.Token == token {
			return *snap, nil
		}
	}
	return Snapshot{}, ErrNotFound
}

func (m *memoryRepository) List(ctx context.Context, limit int) ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.items))
	for _, snap := range m.items {
		out = append(out, *snap)
	}
	return out, nil
}

func (m *memoryRepository) MarkInProgress(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	snap.Status = StatusInProgress
	snap.UpdatedAt = time.Now()
	return nil
}

func (m *memoryRepository) Finalize(ctx context.Context, id int64, status Status, payload *report.Report, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	snap.Status = status
	snap.Payload = payload
	snap.Error = errMsg
	if payload != nil {
		now := time.Now()
		snap.GeneratedAt = &now
	}
	snap.UpdatedAt = time.Now()
	return nil
}

type stubReporter struct {
	rep *report.Report
	err error
}

func (s *stubReporter) Run(ctx context.Context, start, end string) (*report.Report, error) {
	return s.rep, s.err
}

func TestTriggerValidatesPeriod(t *testing.T) {
	svc := NewService(newMemoryRepository(), &stubReporter{}, nil)

	_, err := svc.Trigger(context.Background(), Request{Start: "soon", End: "2026-01-31"})
	require.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = svc.Trigger(context.Background(), Request{Start: "2026-02-01", End: "2026-01-01"})
	require.ErrorIs(t, err, ErrInvalidPeriod)

	snap, err := svc.Trigger(context.Background(), Request{Start: "2026-01-01", End: "2026-01-31"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, snap.Status)
	require.NotEqual(t, uuid.Nil, snap.Token)
}

func TestProcessMarksReady(t *testing.T) {
	repo := newMemoryRepository()
	rep := &report.Report{Start: "2026-01-01", End: "2026-01-31", Rows: []report.Row{{ActorID: "root"}}}
	svc := NewService(repo, &stubReporter{rep: rep}, nil)

	snap, err := svc.Trigger(context.Background(), Request{Start: "2026-01-01", End: "2026-01-31"})
	require.NoError(t, err)
	require.NoError(t, svc.Process(context.Background(), snap.ID))

	got, err := svc.Get(context.Background(), snap.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReady, got.Status)
	require.NotNil(t, got.Payload)
	require.NotNil(t, got.GeneratedAt)
	require.Empty(t, got.Error)
}

func TestProcessRecordsFailure(t *testing.T) {
	repo := newMemoryRepository()
	svc := NewService(repo, &stubReporter{err: errors.New("gateway down")}, nil)

	snap, err := svc.Trigger(context.Background(), Request{Start: "2026-01-01", End: "2026-01-31"})
	require.NoError(t, err)
	require.Error(t, svc.Process(context.Background(), snap.ID))

	got, err := svc.Get(context.Background(), snap.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "gateway down", got.Error)
	require.Nil(t, got.Payload)
}

func TestProcessUnknownSnapshot(t *testing.T) {
	svc := NewService(newMemoryRepository(), &stubReporter{}, nil)
	require.ErrorIs(t, svc.Process(context.Background(), 42), ErrNotFound)
}

func TestJobSkipsMalformedPayloads(t *testing.T) {
	svc := NewService(newMemoryRepository(), &stubReporter{}, nil)
	job := NewJob(svc, nil)

	err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskSnapshotProcess, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(jobs.TaskSnapshotProcess, []byte(`{"snapshot_id":0}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
