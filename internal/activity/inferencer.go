// Package activity decides whether each machine was active during a
// reporting period, from card sales when available and from the remote
// activation history otherwise.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vendsight/vendsight/internal/hierarchy"
	"github.com/vendsight/vendsight/internal/pipeline"
	"github.com/vendsight/vendsight/internal/provider"
)

// DateLayout is the wire format for reporting period bounds.
const DateLayout = "2006-01-02"

// Config tunes the classification fan-out.
type Config struct {
	Workers     int
	JoinTimeout time.Duration
}

// Inferencer classifies machine activity for a period.
type Inferencer struct {
	history provider.HistoryFetcher
	cfg     Config
	logger  *slog.Logger
}

// NewInferencer wires an inferencer to a history source.
func NewInferencer(history provider.HistoryFetcher, cfg Config, logger *slog.Logger) *Inferencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inferencer{history: history, cfg: cfg, logger: logger}
}

// Stats summarises one ClassifyAll pass.
type Stats struct {
	Machines int `json:"machines"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
	// Unknown counts machines whose history fetch failed. They keep
	// ActivityUnknown and the report layer surfaces them as such.
	Unknown int `json:"unknown"`
}

// Classify decides one machine's activity for [start, end]. Card sales in
// the period settle the question without a history fetch: a machine cannot
// take card payments while deactivated.
func (inf *Inferencer) Classify(ctx context.Context, m *hierarchy.Machine, start, end time.Time) (hierarchy.Activity, error) {
	if m.Card != nil && m.Card.Count > 0 {
		return hierarchy.ActivityActive, nil
	}

	events, err := inf.history.FetchHistory(ctx, m.ID)
	if err != nil {
		return hierarchy.ActivityUnknown, fmt.Errorf("activity: machine %s: %w", m.ID, err)
	}
	if len(events) == 0 {
		// No recorded transitions; trust the current flag.
		if m.ActiveNow() {
			return hierarchy.ActivityActive, nil
		}
		return hierarchy.ActivityInactive, nil
	}

	sort.Slice(events, func(i, j int) bool { return events[i].At.Before(events[j].At) })

	var lastBefore, firstAfter *provider.HistoryEvent
	for i := range events {
		ev := &events[i]
		switch {
		case ev.At.Before(start):
			lastBefore = ev
		case ev.At.After(end):
			if firstAfter == nil {
				firstAfter = ev
			}
		default:
			// Any transition inside the period means the machine was
			// live for at least part of it.
			return hierarchy.ActivityActive, nil
		}
	}

	if lastBefore != nil && lastBefore.Transition == provider.TransitionActivation {
		return hierarchy.ActivityActive, nil
	}
	// A deactivation after the period implies the machine was running
	// during it, even when the last event before the period was itself a
	// deactivation: the reactivation in between never made the history.
	if firstAfter != nil && firstAfter.Transition == provider.TransitionDeactivation {
		return hierarchy.ActivityActive, nil
	}
	return hierarchy.ActivityInactive, nil
}

// ClassifyAll classifies every machine in the tree for the period given as
// DateLayout strings, fanning history fetches out over the worker pool. A
// malformed bound leaves every machine unknown.
func (inf *Inferencer) ClassifyAll(ctx context.Context, tree *hierarchy.Tree, startDate, endDate string, progress pipeline.Progress) (Stats, error) {
	machines := tree.AllMachines()
	stats := Stats{Machines: len(machines)}

	start, err := time.Parse(DateLayout, startDate)
	if err != nil {
		stats.Unknown = len(machines)
		return stats, fmt.Errorf("activity: parse start date %q: %w", startDate, err)
	}
	end, err := time.Parse(DateLayout, endDate)
	if err != nil {
		stats.Unknown = len(machines)
		return stats, fmt.Errorf("activity: parse end date %q: %w", endDate, err)
	}

	type verdict struct {
		machine *hierarchy.Machine
		state   hierarchy.Activity
	}
	results := pipeline.Run(ctx, machines, func(ctx context.Context, m *hierarchy.Machine) (verdict, error) {
		state, err := inf.Classify(ctx, m, start, end)
		return verdict{machine: m, state: state}, err
	}, pipeline.Options{
		Workers:     inf.cfg.Workers,
		JoinTimeout: inf.cfg.JoinTimeout,
		Logger:      inf.logger,
		OnProgress:  progress,
	})

	for _, res := range results {
		if res.Err != nil {
			inf.logger.Warn("activity classification failed", slog.Any("error", res.Err))
			res.Value.machine.Activity = hierarchy.ActivityUnknown
			stats.Unknown++
			continue
		}
		res.Value.machine.Activity = res.Value.state
		switch res.Value.state {
		case hierarchy.ActivityActive:
			stats.Active++
		case hierarchy.ActivityInactive:
			stats.Inactive++
		default:
			stats.Unknown++
		}
	}
	return stats, nil
}
