// Package ledger owns the simulation's capital buckets. It is the only code
// that moves money between available, allocated and realized PnL.
//
// Amounts are kept as decimals so the conservation invariant
// available + allocated == initial + realized can be checked exactly.
package ledger

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// DefaultEpsilon is the reconcile tolerance in currency units.
const DefaultEpsilon = 0.01

// Ledger is safe for concurrent use, although the engine drives it from a
// single goroutine.
type Ledger struct {
	mu         sync.Mutex
	initial    decimal.Decimal
	available  decimal.Decimal
	allocated  decimal.Decimal
	realized   decimal.Decimal
	writtenOff decimal.Decimal
	peak       decimal.Decimal
}

// New creates a ledger with all capital available.
func New(initial float64) *Ledger {
	start := decimal.NewFromFloat(initial)
	return &Ledger{
		initial:   start,
		available: start,
		peak:      start,
	}
}

// Release describes what a release actually booked.
type Release struct {
	CostBasis  float64
	PnL        float64
	Booked     float64 // realized PnL recorded: max(pnl, -cost)
	Returned   float64 // added back to available: max(0, cost+pnl)
	WrittenOff float64 // loss beyond cost basis absorbed by the clamp
}

// Reserve moves amount from available to allocated. It fails without side
// effects when amount exceeds available.
func (l *Ledger) Reserve(amount float64) error {
	amt := decimal.NewFromFloat(amount)
	if !amt.IsPositive() {
		return fmt.Errorf("ledger.Reserve: amount must be positive, got %s", amt)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if amt.GreaterThan(l.available) {
		return fmt.Errorf("ledger.Reserve: %w: need %s, available %s",
			domain.ErrInsufficientCapital, amt.StringFixed(2), l.available.StringFixed(2))
	}
	l.available = l.available.Sub(amt)
	l.allocated = l.allocated.Add(amt)
	return nil
}

// Unreserve undoes a Reserve whose position was never recorded.
func (l *Ledger) Unreserve(amount float64) {
	amt := decimal.NewFromFloat(amount)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.allocated = l.allocated.Sub(amt)
	l.available = l.available.Add(amt)
}

// Release closes out a position's allocation. The full cost basis leaves
// allocated; max(0, cost+pnl) returns to available so a loss larger than
// the cost basis can never push available negative. The realized figure
// books max(pnl, -cost) so the conservation invariant stays exact; the
// excess is tracked as written off.
func (l *Ledger) Release(costBasis, pnl float64) Release {
	cost := decimal.NewFromFloat(costBasis)
	p := decimal.NewFromFloat(pnl)

	returned := decimal.Max(decimal.Zero, cost.Add(p))
	booked := decimal.Max(p, cost.Neg())
	written := booked.Sub(p)

	l.mu.Lock()
	l.allocated = l.allocated.Sub(cost)
	l.realized = l.realized.Add(booked)
	l.available = l.available.Add(returned)
	l.writtenOff = l.writtenOff.Add(written)
	if eq := l.available.Add(l.allocated); eq.GreaterThan(l.peak) {
		l.peak = eq
	}
	negative := l.allocated.IsNegative()
	l.mu.Unlock()

	if written.IsPositive() {
		slog.Warn("ledger: loss exceeds cost basis, clamped",
			"cost_basis", fmt.Sprintf("%.2f", costBasis),
			"pnl", fmt.Sprintf("%.2f", pnl),
			"written_off", written.StringFixed(2),
		)
	}
	if negative {
		slog.Warn("ledger: allocated went negative, reconcile will correct",
			"cost_basis", fmt.Sprintf("%.2f", costBasis))
	}

	return Release{
		CostBasis:  costBasis,
		PnL:        pnl,
		Booked:     booked.InexactFloat64(),
		Returned:   returned.InexactFloat64(),
		WrittenOff: written.InexactFloat64(),
	}
}

// Reconcile compares booked allocation with the sum of live cost bases.
// Drift beyond epsilon is logged and corrected toward the live figure; the
// difference moves to or from available so equity is preserved.
func (l *Ledger) Reconcile(liveCostBases []float64, epsilon float64) domain.Reconciliation {
	live := decimal.Zero
	for _, c := range liveCostBases {
		live = live.Add(decimal.NewFromFloat(c))
	}

	l.mu.Lock()
	booked := l.allocated
	drift := booked.Sub(live)
	corrected := drift.Abs().GreaterThan(decimal.NewFromFloat(epsilon))
	if corrected {
		l.allocated = live
		l.available = l.available.Add(drift)
	}
	l.mu.Unlock()

	rec := domain.Reconciliation{
		Booked:    booked.InexactFloat64(),
		Live:      live.InexactFloat64(),
		Drift:     drift.InexactFloat64(),
		Corrected: corrected,
	}
	if corrected {
		slog.Warn("ledger: drift between booked and live allocation",
			"err", domain.ErrLedgerInconsistency,
			"booked", booked.StringFixed(2),
			"live", live.StringFixed(2),
			"drift", drift.StringFixed(4),
		)
	}
	return rec
}

// State returns a snapshot. OpenPositions and At are filled by the caller,
// which owns the positions and the clock.
func (l *Ledger) State() domain.CapitalState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.CapitalState{
		Initial:     l.initial.InexactFloat64(),
		Available:   l.available.InexactFloat64(),
		Allocated:   l.allocated.InexactFloat64(),
		RealizedPnL: l.realized.InexactFloat64(),
		WrittenOff:  l.writtenOff.InexactFloat64(),
		PeakEquity:  l.peak.InexactFloat64(),
	}
}

// Available returns the currently available capital.
func (l *Ledger) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available.InexactFloat64()
}

// Drawdown is the fractional drop of equity from its peak.
func (l *Ledger) Drawdown() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.peak.IsPositive() {
		return 0
	}
	dd := l.peak.Sub(l.available.Add(l.allocated)).Div(l.peak)
	if dd.IsNegative() {
		return 0
	}
	return dd.InexactFloat64()
}

// Conserved reports whether available + allocated == initial + realized.
func (l *Ledger) Conserved() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available.Add(l.allocated).Equal(l.initial.Add(l.realized))
}

// Rebuild replays trade records into a fresh ledger. Reservations are
// applied without the availability check: the log is authoritative.
func Rebuild(initial float64, records []domain.TradeRecord) *Ledger {
	l := New(initial)
	for _, r := range records {
		switch r.Action {
		case domain.ActionEnter, domain.ActionAddOn:
			amt := decimal.NewFromFloat(r.Amount)
			l.available = l.available.Sub(amt)
			l.allocated = l.allocated.Add(amt)
		case domain.ActionExit:
			l.Release(r.CostBasis, r.RealizedPnL)
		}
	}
	return l
}
