// Package sales retrieves and merges per-actor sales data into the actor
// tree, and rolls machine totals up into operators.
package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vendsight/vendsight/internal/hierarchy"
	"github.com/vendsight/vendsight/internal/pipeline"
	"github.com/vendsight/vendsight/internal/provider"
)

// Config tunes the fetch phase.
type Config struct {
	Workers     int
	JoinTimeout time.Duration
	MaxFanout   int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = pipeline.DefaultWorkers
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = pipeline.DefaultJoinTimeout
	}
	if c.MaxFanout <= 0 {
		c.MaxFanout = hierarchy.DefaultMaxFanout
	}
	return c
}

// Aggregator fetches sales for the reduced operator set and merges the rows
// into the tree. Workers only produce immutable result records; the tree is
// mutated by the calling goroutine after all workers return.
type Aggregator struct {
	tree    *hierarchy.Tree
	fetcher provider.Fetcher
	cfg     Config
	logger  *slog.Logger
}

// NewAggregator wires an aggregator to a tree and fetcher.
func NewAggregator(tree *hierarchy.Tree, fetcher provider.Fetcher, cfg Config, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{tree: tree, fetcher: fetcher, cfg: cfg.withDefaults(), logger: logger}
}

// MergeStats summarises one FetchAndMerge pass.
type MergeStats struct {
	Targets   int `json:"targets"`
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
	// Failed lists operator ids whose fetch exhausted its retries. These
	// are partial failures: the rest of the batch still merged.
	Failed []string `json:"failed,omitempty"`
}

type fetchResult struct {
	operatorID string
	cash       []provider.SalesRecord
	card       []provider.SalesRecord
}

// FetchAndMerge reduces the tree, fans the reduced operator set out over
// the worker pool (two remote queries per target: cash then card), and
// merges the returned rows into matching machines. Rows whose machine id no
// longer resolves are discarded.
func (a *Aggregator) FetchAndMerge(ctx context.Context, start, end time.Time, progress pipeline.Progress) (MergeStats, error) {
	root, err := a.tree.FindRoot()
	if err != nil {
		return MergeStats{}, err
	}
	targets := a.tree.Reduce(root, a.cfg.MaxFanout)
	stats := MergeStats{Targets: len(targets)}

	results := pipeline.Run(ctx, targets, func(ctx context.Context, op *hierarchy.Operator) (fetchResult, error) {
		cash, err := a.fetcher.FetchSales(ctx, op.ID, provider.MethodCash, start, end)
		if err != nil {
			return fetchResult{operatorID: op.ID}, fmt.Errorf("sales: operator %s cash: %w", op.ID, err)
		}
		card, err := a.fetcher.FetchSales(ctx, op.ID, provider.MethodCard, start, end)
		if err != nil {
			return fetchResult{operatorID: op.ID}, fmt.Errorf("sales: operator %s card: %w", op.ID, err)
		}
		return fetchResult{operatorID: op.ID, cash: cash, card: card}, nil
	}, pipeline.Options{
		Workers:     a.cfg.Workers,
		JoinTimeout: a.cfg.JoinTimeout,
		Logger:      a.logger,
		OnProgress:  progress,
	})

	for _, res := range results {
		if res.Err != nil {
			a.logger.Warn("sales fetch failed for target", slog.String("operator_id", res.Value.operatorID), slog.Any("error", res.Err))
			stats.Failed = append(stats.Failed, res.Value.operatorID)
			continue
		}
		a.mergeRecords(res.Value.cash, provider.MethodCash, &stats)
		a.mergeRecords(res.Value.card, provider.MethodCard, &stats)
	}
	return stats, nil
}

func (a *Aggregator) mergeRecords(records []provider.SalesRecord, method provider.PaymentMethod, stats *MergeStats) {
	for _, rec := range records {
		m, err := a.tree.Machine(rec.MachineID)
		if err != nil {
			// Machine no longer present in the tree; drop the row.
			stats.Unmatched++
			continue
		}
		total := &hierarchy.SalesTotal{Count: rec.Count, Amount: rec.Amount}
		if method == provider.MethodCash {
			m.Cash = total
		} else {
			m.Card = total
		}
		if rec.Device != nil {
			m.Device = *rec.Device
		}
		stats.Matched++
	}
}
