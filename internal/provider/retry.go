package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	retryAttempts = 3
	retryBackoff  = time.Second
)

// Retrying wraps a Client with a bounded retry for transient connection
// failures: up to three attempts with a fixed one second backoff, after
// which the failure propagates as a hard failure for that call.
type Retrying struct {
	next    Client
	logger  *slog.Logger
	sleep   func(context.Context, time.Duration) error
	backoff time.Duration
}

// NewRetrying decorates a client with the standard retry policy.
func NewRetrying(next Client, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: next, logger: logger, sleep: sleepCtx, backoff: retryBackoff}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retry[R any](ctx context.Context, r *Retrying, op string, fn func(context.Context) (R, error)) (R, error) {
	var out R
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		out, err = fn(ctx)
		if err == nil || !errors.Is(err, ErrTransient) {
			return out, err
		}
		r.logger.Warn("transient fetch failure, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", retryAttempts),
		)
		if attempt < retryAttempts {
			if serr := r.sleep(ctx, r.backoff); serr != nil {
				return out, serr
			}
		}
	}
	return out, err
}

// FetchActorList implements Fetcher.
func (r *Retrying) FetchActorList(ctx context.Context) ([]ActorRecord, error) {
	return retry(ctx, r, "actor_list", func(ctx context.Context) ([]ActorRecord, error) {
		return r.next.FetchActorList(ctx)
	})
}

// FetchSales implements Fetcher.
func (r *Retrying) FetchSales(ctx context.Context, actorID string, method PaymentMethod, start, end time.Time) ([]SalesRecord, error) {
	return retry(ctx, r, "sales", func(ctx context.Context) ([]SalesRecord, error) {
		return r.next.FetchSales(ctx, actorID, method, start, end)
	})
}

// FetchProductMap implements ProductFetcher.
func (r *Retrying) FetchProductMap(ctx context.Context, machineID string) ([]ProductRecord, error) {
	return retry(ctx, r, "product_map", func(ctx context.Context) ([]ProductRecord, error) {
		return r.next.FetchProductMap(ctx, machineID)
	})
}

// FetchHistory implements HistoryFetcher.
func (r *Retrying) FetchHistory(ctx context.Context, machineID string) ([]HistoryEvent, error) {
	return retry(ctx, r, "history", func(ctx context.Context) ([]HistoryEvent, error) {
		return r.next.FetchHistory(ctx, machineID)
	})
}
