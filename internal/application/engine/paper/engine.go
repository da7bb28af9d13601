// Package paper runs the simulated trading cycle: it evaluates signals,
// sizes and fills entries, drives the position lifecycle and records every
// decision in the audit log.
package paper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyedge/internal/application/engine"
	"github.com/alejandrodnm/polyedge/internal/application/ledger"
	"github.com/alejandrodnm/polyedge/internal/application/lifecycle"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/metrics"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

const (
	defaultCapital          = 1000
	defaultMaxOpenPositions = 30
	defaultMaxPerCityDate   = 1
	defaultMaxPerCity       = 3
	defaultDrawdownHalt     = 0.10
	defaultDrawdownSoft     = 0.05
)

// Config holds paper trading-specific settings.
type Config struct {
	InitialCapital   float64
	Edge             domain.EdgeConfig
	Sizing           domain.SizingParams
	Slippage         domain.SlippageConfig
	Lifecycle        lifecycle.Config
	ReconcileEpsilon float64
	MaxOpenPositions int
	MaxPerCityDate   int
	MaxPerCity       int
	DrawdownHalt     float64 // no new entries at or above this drawdown
	DrawdownSoft     float64 // sizes shrink linearly from here to DrawdownHalt
}

// Engine runs the paper trading simulation. EvaluateCycle calls are
// serialized; Status may be called concurrently.
type Engine struct {
	snapshots ports.SnapshotProvider
	audit     ports.AuditLog
	store     ports.ReportStorage
	cfg       Config
	now       func() time.Time

	edge      domain.EdgeModel
	fills     domain.FillModel
	ledger    *ledger.Ledger
	positions *lifecycle.Manager

	mu        sync.Mutex
	status    sync.RWMutex
	last      *domain.CycleReport
	openCount int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, for tests and replays.
func WithClock(now func() time.Time) Option {
	return func(pe *Engine) { pe.now = now }
}

// New creates a paper trading engine and restores its state from the audit
// log: the ledger is rebuilt from the trade records and the open positions
// from the reconstructed index. store may be nil.
func New(
	snapshots ports.SnapshotProvider,
	audit ports.AuditLog,
	store ports.ReportStorage,
	cfg Config,
	opts ...Option,
) (*Engine, error) {
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = defaultCapital
	}
	if cfg.ReconcileEpsilon <= 0 {
		cfg.ReconcileEpsilon = ledger.DefaultEpsilon
	}
	if cfg.MaxOpenPositions <= 0 {
		cfg.MaxOpenPositions = defaultMaxOpenPositions
	}
	if cfg.MaxPerCityDate <= 0 {
		cfg.MaxPerCityDate = defaultMaxPerCityDate
	}
	if cfg.MaxPerCity <= 0 {
		cfg.MaxPerCity = defaultMaxPerCity
	}
	if cfg.DrawdownHalt <= 0 {
		cfg.DrawdownHalt = defaultDrawdownHalt
	}
	if cfg.DrawdownSoft <= 0 {
		cfg.DrawdownSoft = math.Min(defaultDrawdownSoft, cfg.DrawdownHalt/2)
	}
	if cfg.Sizing.KellyFraction <= 0 {
		cfg.Sizing = domain.DefaultSizingParams()
	}

	pe := &Engine{
		snapshots: snapshots,
		audit:     audit,
		store:     store,
		cfg:       cfg,
		now:       time.Now,
		edge:      domain.NewEdgeModel(cfg.Edge),
		fills:     domain.NewFillModel(cfg.Slippage),
		positions: lifecycle.New(cfg.Lifecycle),
	}
	for _, opt := range opts {
		opt(pe)
	}

	if err := pe.restore(); err != nil {
		return nil, fmt.Errorf("paper.New: %w", err)
	}
	return pe, nil
}

func (pe *Engine) restore() error {
	records := pe.audit.Records()
	pe.ledger = ledger.Rebuild(pe.cfg.InitialCapital, records)

	if err := pe.positions.Restore(pe.audit.Positions()); err != nil {
		return fmt.Errorf("restore positions: %w", err)
	}
	rec := pe.ledger.Reconcile(pe.positions.CostBases(), pe.cfg.ReconcileEpsilon)
	pe.openCount = pe.positions.Count()

	st := pe.ledger.State()
	if last, ok := pe.audit.LastCapital(); ok {
		if last.Initial != st.Initial {
			slog.Warn("paper: initial capital differs from the audit log",
				"configured", fmt.Sprintf("$%.2f", st.Initial),
				"logged", fmt.Sprintf("$%.2f", last.Initial),
			)
		}
		if math.Abs(last.Available-st.Available) > pe.cfg.ReconcileEpsilon ||
			math.Abs(last.RealizedPnL-st.RealizedPnL) > pe.cfg.ReconcileEpsilon {
			slog.Warn("paper: rebuilt ledger differs from last capital snapshot",
				"err", domain.ErrLedgerInconsistency,
				"available", fmt.Sprintf("$%.2f", st.Available),
				"snapshot_available", fmt.Sprintf("$%.2f", last.Available),
				"realized", fmt.Sprintf("$%.2f", st.RealizedPnL),
				"snapshot_realized", fmt.Sprintf("$%.2f", last.RealizedPnL),
			)
		}
	}

	slog.Info("paper: state restored",
		"records", len(records),
		"open_positions", pe.positions.Count(),
		"available", fmt.Sprintf("$%.2f", st.Available),
		"allocated", fmt.Sprintf("$%.2f", st.Allocated),
		"realized_pnl", fmt.Sprintf("$%.2f", st.RealizedPnL),
		"drift", fmt.Sprintf("%.4f", rec.Drift),
	)
	return nil
}

// EvaluateCycle runs one cycle over the given signals. Recoverable
// conditions end up in the report; only invariant violations and audit log
// failures are returned as errors.
func (pe *Engine) EvaluateCycle(ctx context.Context, signals []domain.Signal) (*domain.CycleReport, error) {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	report, err := pe.evaluate(ctx, signals)
	if err != nil {
		metrics.ObserveFailedCycle()
		if errors.Is(err, domain.ErrInvariantViolation) {
			slog.Error("paper: cycle halted", "err", err)
		}
		return nil, err
	}
	metrics.ObserveCycle(*report)

	pe.status.Lock()
	pe.last = report
	pe.openCount = report.Capital.OpenPositions
	pe.status.Unlock()
	return report, nil
}

func (pe *Engine) evaluate(ctx context.Context, signals []domain.Signal) (*domain.CycleReport, error) {
	now := pe.now().UTC()
	report := &domain.CycleReport{
		CycleID:         uuid.NewString(),
		StartedAt:       now,
		SignalsReceived: len(signals),
	}

	latest, dropped := engine.LatestPerMarket(signals)
	report.Ignored += dropped
	candidates := pe.assess(latest, now)

	snaps := pe.fetchSnapshots(ctx, candidates, report)

	closed, err := pe.runLifecycle(candidates, snaps, now, report)
	if err != nil {
		return nil, fmt.Errorf("paper.EvaluateCycle: lifecycle: %w", err)
	}

	if err := pe.runEntries(candidates, snaps, closed, now, report); err != nil {
		return nil, fmt.Errorf("paper.EvaluateCycle: entries: %w", err)
	}

	report.Reconciliation = pe.ledger.Reconcile(pe.positions.CostBases(), pe.cfg.ReconcileEpsilon)
	if report.Reconciliation.Corrected {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("ledger drift %.4f corrected toward live positions", report.Reconciliation.Drift))
	}
	if !pe.ledger.Conserved() {
		return nil, fmt.Errorf("paper.EvaluateCycle: %w: capital not conserved", domain.ErrInvariantViolation)
	}

	report.Capital = pe.capitalState(now)
	if err := pe.audit.AppendCapital(report.Capital); err != nil {
		return nil, fmt.Errorf("paper.EvaluateCycle: capital snapshot: %w", err)
	}
	report.FinishedAt = pe.now().UTC()

	if pe.store != nil {
		if err := pe.store.SaveCycle(ctx, *report, closed); err != nil {
			slog.Warn("paper: error saving cycle report", "err", err)
			report.Warnings = append(report.Warnings, "report storage unavailable: "+err.Error())
		}
	}

	slog.Info("paper: cycle complete",
		"cycle", report.CycleID,
		"signals", report.SignalsReceived,
		"entries", len(report.Entries),
		"add_ons", len(report.AddOns),
		"exits", len(report.Exits),
		"skips", len(report.Skips),
		"duplicates", report.Duplicates,
		"available", fmt.Sprintf("$%.2f", report.Capital.Available),
		"allocated", fmt.Sprintf("$%.2f", report.Capital.Allocated),
		"realized_pnl", fmt.Sprintf("$%.2f", report.Capital.RealizedPnL),
	)
	return report, nil
}

// candidate is a signal with its validation already done.
type candidate struct {
	signal     domain.Signal
	confidence domain.Confidence
	edge       float64
	err        error
}

func (c candidate) valid() bool { return c.err == nil }

func (pe *Engine) assess(signals []domain.Signal, now time.Time) map[string]candidate {
	out := make(map[string]candidate, len(signals))
	for _, s := range signals {
		conf, err := pe.edge.Check(s, now)
		out[s.MarketID] = candidate{
			signal:     s,
			confidence: conf,
			edge:       pe.edge.NetEdge(s),
			err:        err,
		}
	}
	return out
}

// fetchSnapshots asks for the markets of open positions and signals. A
// provider failure does not abort the cycle: positions are held and entries
// are skipped.
func (pe *Engine) fetchSnapshots(ctx context.Context, candidates map[string]candidate, report *domain.CycleReport) map[string]domain.MarketSnapshot {
	seen := make(map[string]bool)
	var ids []string
	for _, p := range pe.positions.OpenPositions() {
		if !seen[p.MarketID] {
			seen[p.MarketID] = true
			ids = append(ids, p.MarketID)
		}
	}
	for id := range candidates {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return map[string]domain.MarketSnapshot{}
	}

	snaps, err := pe.snapshots.Snapshots(ctx, ids)
	if err != nil {
		slog.Warn("paper: error fetching snapshots", "markets", len(ids), "err", err)
		report.Warnings = append(report.Warnings, "snapshots unavailable: "+err.Error())
		return map[string]domain.MarketSnapshot{}
	}
	if snaps == nil {
		snaps = map[string]domain.MarketSnapshot{}
	}
	return snaps
}

func (pe *Engine) capitalState(now time.Time) domain.CapitalState {
	st := pe.ledger.State()
	st.OpenPositions = pe.positions.Count()
	st.At = now
	return st
}

// appendRecord writes r and reports whether it was new.
func (pe *Engine) appendRecord(r domain.TradeRecord, report *domain.CycleReport) (domain.TradeRecord, bool, error) {
	r = r.WithID()
	ok, err := pe.audit.AppendTrade(r)
	if err != nil {
		return r, false, err
	}
	if !ok {
		report.Duplicates++
		slog.Debug("paper: duplicate action discarded", "action", r.Action, "key", r.LogicalKey())
	}
	return r, ok, nil
}

// drawdownScale shrinks new allocations between the soft threshold and the halt.
func (pe *Engine) drawdownScale() float64 {
	return domain.DrawdownScale(pe.ledger.Drawdown(), pe.cfg.DrawdownSoft, pe.cfg.DrawdownHalt)
}

// Status returns the monitoring view.
func (pe *Engine) Status() domain.EngineStatus {
	st := pe.ledger.State()

	pe.status.RLock()
	last, open := pe.last, pe.openCount
	pe.status.RUnlock()

	out := domain.EngineStatus{
		OpenPositions: open,
		Available:     st.Available,
		Allocated:     st.Allocated,
		RealizedPnL:   st.RealizedPnL,
		Drawdown:      st.Drawdown(),
	}
	if last != nil {
		out.LastCycleID = last.CycleID
		out.LastCycle = last.FinishedAt
	} else if c, ok := pe.audit.LastCapital(); ok {
		out.LastCycle = c.At
	}
	return out
}

// OpenPositions returns the open positions in id order.
func (pe *Engine) OpenPositions() []domain.Position {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.positions.OpenPositions()
}
