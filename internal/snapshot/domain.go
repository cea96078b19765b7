// Package snapshot persists asynchronously generated reports so heavy
// reporting runs happen on the worker instead of in request handlers.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vendsight/vendsight/internal/report"
)

// Status enumerates async job lifecycle values.
type Status string

const (
	// StatusPending indicates waiting to be processed.
	StatusPending Status = "PENDING"
	// StatusInProgress indicates the worker is generating the report.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusReady indicates the payload is ready for consumption.
	StatusReady Status = "READY"
	// StatusFailed indicates generation failed.
	StatusFailed Status = "FAILED"
)

// Snapshot stores metadata plus payload for one report generation run.
type Snapshot struct {
	ID          int64
	Token       uuid.UUID
	Start       string
	End         string
	Status      Status
	Error       string
	Payload     *report.Report
	CreatedAt   time.Time
	UpdatedAt   time.Time
	GeneratedAt *time.Time
}

// Request configures a trigger for report generation.
type Request struct {
	Start string
	End   string
}

// Validate ensures the request names a usable period.
func (r Request) Validate() error {
	start, err := time.Parse("2006-01-02", r.Start)
	if err != nil {
		return fmt.Errorf("%w: start must be a YYYY-MM-DD date", ErrInvalidPeriod)
	}
	end, err := time.Parse("2006-01-02", r.End)
	if err != nil {
		return fmt.Errorf("%w: end must be a YYYY-MM-DD date", ErrInvalidPeriod)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end before start", ErrInvalidPeriod)
	}
	return nil
}

var (
	// ErrNotFound occurs when a snapshot id or token resolves to nothing.
	ErrNotFound = errors.New("snapshot: not found")
	// ErrDuplicateToken occurs when a token collides on insert.
	ErrDuplicateToken = errors.New("snapshot: duplicate token")
	// ErrInvalidPeriod occurs when a trigger names an unusable period.
	ErrInvalidPeriod = errors.New("snapshot: invalid period")
)
