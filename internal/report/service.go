package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vendsight/vendsight/internal/activity"
	"github.com/vendsight/vendsight/internal/fee"
	"github.com/vendsight/vendsight/internal/hierarchy"
	"github.com/vendsight/vendsight/internal/pipeline"
	"github.com/vendsight/vendsight/internal/provider"
	"github.com/vendsight/vendsight/internal/sales"
)

var ErrNoTree = errors.New("report: actor tree not loaded")

// Config tunes report generation.
type Config struct {
	Workers     int
	JoinTimeout time.Duration
	MaxFanout   int
}

// Service owns the actor tree session and runs reporting passes over it.
// All operations serialise on one mutex: a run mutates machine sales and
// activity in place.
type Service struct {
	mu       sync.Mutex
	client   provider.Fetcher
	history  provider.HistoryFetcher
	cache    *Cache
	cfg      Config
	logger   *slog.Logger
	tree     *hierarchy.Tree
	fees     *fee.Engine
	inferrer *activity.Inferencer
}

// NewService wires a report service. cache may be nil.
func NewService(client provider.Fetcher, history provider.HistoryFetcher, cache *Cache, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:   client,
		history:  history,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
		inferrer: activity.NewInferencer(history, activity.Config{Workers: cfg.Workers, JoinTimeout: cfg.JoinTimeout}, logger),
	}
}

// Refresh rebuilds the actor tree from the remote actor list. Fee schedules
// survive the rebuild for owners that still exist; schedules on vanished
// actors are dropped with a warning. Cached reports are invalidated.
func (s *Service) Refresh(ctx context.Context) error {
	records, err := s.client.FetchActorList(ctx)
	if err != nil {
		return fmt.Errorf("report: fetch actor list: %w", err)
	}
	actors := make([]hierarchy.Actor, 0, len(records))
	for _, rec := range records {
		switch rec.Kind {
		case hierarchy.KindMachine:
			actors = append(actors, &hierarchy.Machine{ID: rec.ID, Parent: rec.ParentID, Name: rec.Name, CurActive: rec.ActiveNow})
		default:
			actors = append(actors, &hierarchy.Operator{ID: rec.ID, Parent: rec.ParentID, Name: rec.Name, CurActive: rec.ActiveNow})
		}
	}
	tree, err := hierarchy.New(actors)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	engine := fee.NewEngine(tree)
	if s.fees != nil {
		for _, f := range s.fees.Export() {
			if err := engine.Attach(f); err != nil {
				s.logger.Warn("dropping fee after tree refresh",
					slog.String("owner_id", f.OwnerID),
					slog.String("fee", f.Name),
					slog.Any("error", err))
			}
		}
	}
	s.tree = tree
	s.fees = engine
	s.logger.Info("actor tree refreshed", slog.Int("actors", tree.Len()))

	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
	return nil
}

// Tree returns the current tree, or ErrNoTree before the first refresh.
func (s *Service) Tree() (*hierarchy.Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return nil, ErrNoTree
	}
	return s.tree, nil
}

// AttachFee registers a fee on an actor and invalidates cached reports.
func (s *Service) AttachFee(ctx context.Context, f *fee.Fee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fees == nil {
		return ErrNoTree
	}
	if err := s.fees.Attach(f); err != nil {
		return err
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
	return nil
}

// BulkApplyFee copies the template fee onto every machine under the owner.
func (s *Service) BulkApplyFee(ctx context.Context, ownerID string, template fee.Fee) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fees == nil {
		return 0, ErrNoTree
	}
	n, err := s.fees.BulkApply(ownerID, template)
	if err != nil {
		return 0, err
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
	return n, nil
}

// ClearFees removes an actor's fees, optionally for the whole subtree.
func (s *Service) ClearFees(ctx context.Context, ownerID string, recursive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fees == nil {
		return ErrNoTree
	}
	s.fees.Clear(ownerID, recursive)
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
	return nil
}

// ListFees returns an actor's current fee schedule.
func (s *Service) ListFees(ownerID string) ([]*fee.Fee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fees == nil {
		return nil, ErrNoTree
	}
	if _, err := s.tree.Lookup(ownerID); err != nil {
		return nil, err
	}
	return s.fees.Fees(ownerID), nil
}

// Run produces the report for [start, end], serving from cache when a
// previous run for the same period and tree version is still valid.
func (s *Service) Run(ctx context.Context, start, end string) (*Report, error) {
	key, err := s.cache.BuildKey(ctx, keyReport(start, end)...)
	if err != nil {
		return nil, err
	}
	var rep Report
	err = s.cache.FetchJSON(ctx, key, &rep, func(ctx context.Context) (interface{}, error) {
		return s.generate(ctx, start, end)
	})
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

func (s *Service) generate(ctx context.Context, start, end string) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return nil, ErrNoTree
	}

	startAt, err := time.Parse(activity.DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("report: parse start date %q: %w", start, err)
	}
	endAt, err := time.Parse(activity.DateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("report: parse end date %q: %w", end, err)
	}
	if endAt.Before(startAt) {
		return nil, fmt.Errorf("report: period end %s before start %s", end, start)
	}

	agg := sales.NewAggregator(s.tree, s.client, sales.Config{
		Workers:     s.cfg.Workers,
		JoinTimeout: s.cfg.JoinTimeout,
		MaxFanout:   s.cfg.MaxFanout,
	}, s.logger)

	fetchStats, err := agg.FetchAndMerge(ctx, startAt, endAt, s.progress("sales"))
	if err != nil {
		return nil, err
	}
	actStats, err := s.inferrer.ClassifyAll(ctx, s.tree, start, end, s.progress("activity"))
	if err != nil {
		return nil, err
	}

	root, err := s.tree.FindRoot()
	if err != nil {
		return nil, err
	}
	rep := &Report{
		Start:       start,
		End:         end,
		GeneratedAt: time.Now().UTC(),
		Fetch:       fetchStats,
		Activity:    actStats,
	}
	if err := s.appendRows(rep, root, 0); err != nil {
		return nil, err
	}
	s.logger.Info("report generated",
		slog.String("start", start),
		slog.String("end", end),
		slog.Int("rows", len(rep.Rows)),
		slog.Int("fetch_failed", len(fetchStats.Failed)))
	return rep, nil
}

// appendRows walks the subtree depth first, sub-operators before the
// parent's machines, mirroring tree listing order.
func (s *Service) appendRows(rep *Report, actor hierarchy.Actor, depth int) error {
	row, err := s.buildRow(actor, depth)
	if err != nil {
		return err
	}
	rep.Rows = append(rep.Rows, row)
	for _, op := range s.tree.Operators(actor.ActorID(), false) {
		if err := s.appendRows(rep, op, depth+1); err != nil {
			return err
		}
	}
	for _, m := range s.tree.Machines(actor.ActorID(), false, false) {
		row, err := s.buildRow(m, depth+1)
		if err != nil {
			return err
		}
		rep.Rows = append(rep.Rows, row)
	}
	return nil
}

func (s *Service) buildRow(actor hierarchy.Actor, depth int) (Row, error) {
	row := Row{
		ActorID: actor.ActorID(),
		Name:    actor.DisplayName(),
		Kind:    actor.Kind(),
		Depth:   depth,
	}
	cash, card := sales.Rollup(s.tree, actor)
	if cash != nil {
		row.Cash = &Amounts{Count: cash.Count, Amount: cash.Amount}
	}
	if card != nil {
		row.Card = &Amounts{Count: card.Count, Amount: card.Amount}
	}

	var total float64
	var err error
	if actor.Kind() == hierarchy.KindOperator {
		total, err = s.fees.OperatorTotal(actor.ActorID())
	} else {
		total, err = s.fees.Calculate(actor.ActorID())
	}
	if err != nil {
		return Row{}, err
	}
	row.FeeTotal = total
	lines, err := s.fees.MergedSchedule(actor.ActorID())
	if err != nil {
		return Row{}, err
	}
	for _, f := range lines {
		row.Fees = append(row.Fees, FeeLine{Name: f.Name, Kind: f.Kind, Amount: f.Amount, Value: f.LastValue})
	}

	if m, ok := actor.(*hierarchy.Machine); ok {
		row.Activity = m.Activity
		if row.Activity == "" {
			row.Activity = hierarchy.ActivityUnknown
		}
		if m.Device != (hierarchy.DeviceMeta{}) {
			row.Device = &Device{
				DTUSerial:    m.Device.DTUSerial,
				VPOSSerial:   m.Device.VPOSSerial,
				SIMSerial:    m.Device.SIMSerial,
				Signal:       m.Device.SignalQuality(),
				DTUFirmware:  m.Device.DTUFirmware,
				VPOSFirmware: m.Device.VPOSFirmware,
			}
		}
	}
	return row, nil
}

func (s *Service) progress(phase string) pipeline.Progress {
	return func(remaining, total int) {
		s.logger.Debug("phase progress",
			slog.String("phase", phase),
			slog.Int("remaining", remaining),
			slog.Int("total", total))
	}
}
