package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendsight/vendsight/internal/platform/db"
	"github.com/vendsight/vendsight/internal/report"
)

// Repository abstracts snapshot persistence so the service and job tests
// can run against a memory implementation.
type Repository interface {
	Insert(ctx context.Context, req Request) (Snapshot, error)
	Get(ctx context.Context, id int64) (Snapshot, error)
	GetByToken(ctx context.Context, token uuid.UUID) (Snapshot, error)
	List(ctx context.Context, limit int) ([]Snapshot, error)
	MarkInProgress(ctx context.Context, id int64) error
	Finalize(ctx context.Context, id int64, status Status, payload *report.Report, errMsg string) error
}

// PGRepository provides PostgreSQL backed persistence for snapshots.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert stores a pending snapshot with a fresh access token.
func (r *PGRepository) Insert(ctx context.Context, req Request) (Snapshot, error) {
	snap := Snapshot{
		Token:  uuid.New(),
		Start:  req.Start,
		End:    req.End,
		Status: StatusPending,
	}
	query := `
		INSERT INTO report_snapshots (token, period_start, period_end, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, snap.Token, snap.Start, snap.End, string(snap.Status)).
		Scan(&snap.ID, &snap.CreatedAt, &snap.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.ConstraintName == "uq_report_snapshots_token" {
			return Snapshot{}, ErrDuplicateToken
		}
		return Snapshot{}, err
	}
	return snap, nil
}

// Get loads a snapshot by id.
func (r *PGRepository) Get(ctx context.Context, id int64) (Snapshot, error) {
	return r.scanOne(ctx, `
		SELECT id, token, period_start, period_end, status, error, payload, created_at, updated_at, generated_at
		FROM report_snapshots WHERE id = $1`, id)
}

// GetByToken loads a snapshot by its public token.
func (r *PGRepository) GetByToken(ctx context.Context, token uuid.UUID) (Snapshot, error) {
	return r.scanOne(ctx, `
		SELECT id, token, period_start, period_end, status, error, payload, created_at, updated_at, generated_at
		FROM report_snapshots WHERE token = $1`, token)
}

// List returns the most recent snapshots.
func (r *PGRepository) List(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, token, period_start, period_end, status, error, created_at, updated_at, generated_at
		FROM report_snapshots ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var errMsg *string
		if err := rows.Scan(&snap.ID, &snap.Token, &snap.Start, &snap.End, &snap.Status,
			&errMsg, &snap.CreatedAt, &snap.UpdatedAt, &snap.GeneratedAt); err != nil {
			return nil, err
		}
		if errMsg != nil {
			snap.Error = *errMsg
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// MarkInProgress claims a snapshot for processing.
func (r *PGRepository) MarkInProgress(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE report_snapshots SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(StatusInProgress))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Finalize stores the outcome of a processing run. The payload write and the
// status transition commit together so a reader never observes a READY row
// without its payload.
func (r *PGRepository) Finalize(ctx context.Context, id int64, status Status, payload *report.Report, errMsg string) error {
	var raw []byte
	var generatedAt *time.Time
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		generatedAt = &now
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE report_snapshots SET payload = $2, error = $3, generated_at = $4, updated_at = NOW()
			WHERE id = $1`, id, raw, errMsg, generatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, `
			UPDATE report_snapshots SET status = $2, updated_at = NOW() WHERE id = $1`,
			id, string(status))
		return err
	})
}

func (r *PGRepository) scanOne(ctx context.Context, query string, arg any) (Snapshot, error) {
	var snap Snapshot
	var errMsg *string
	var raw []byte
	err := r.pool.QueryRow(ctx, query, arg).Scan(&snap.ID, &snap.Token, &snap.Start, &snap.End,
		&snap.Status, &errMsg, &raw, &snap.CreatedAt, &snap.UpdatedAt, &snap.GeneratedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, err
	}
	if errMsg != nil {
		snap.Error = *errMsg
	}
	if len(raw) > 0 {
		var rep report.Report
		if err := json.Unmarshal(raw, &rep); err != nil {
			return Snapshot{}, err
		}
		snap.Payload = &rep
	}
	return snap, nil
}
