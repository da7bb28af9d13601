// Package lifecycle owns simulated positions and decides, once per cycle,
// whether each open position resolves, takes profit, stops out, exits on
// edge reversal, or receives its single add-on.
package lifecycle

import (
	"fmt"
	"sort"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// maxAddOns is the hard cap of extra allocations per position.
const maxAddOns = 1

// Config holds the exit and add-on thresholds.
type Config struct {
	TakeProfitPct       float64
	StopLossPct         float64
	AddOnDropPct        float64
	AddOnMinImprovement float64 // fresh edge must beat entry edge by more than this
	MaxAddOns           int     // 0 takes the default, negative disables add-ons, capped at 1
	MinEdge             float64 // HIGH-confidence positions exit below this edge
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		TakeProfitPct: 0.15,
		StopLossPct:   0.25,
		AddOnDropPct:  0.10,
		MaxAddOns:     maxAddOns,
		MinEdge:       0.10,
	}
}

// Observation is what a cycle knows about a position's market.
type Observation struct {
	Snapshot   *domain.MarketSnapshot
	HasSignal  bool // a fresh, valid signal exists for the market
	Edge       float64
	Confidence domain.Confidence
}

// DecisionKind is the outcome of evaluating one position.
type DecisionKind string

const (
	DecisionHold  DecisionKind = "HOLD"
	DecisionExit  DecisionKind = "EXIT"
	DecisionAddOn DecisionKind = "ADD_ON"
)

// Decision is the result of Evaluate.
type Decision struct {
	Kind          DecisionKind
	Reason        domain.ExitReason // set when Kind is EXIT
	Mark          float64
	UnrealizedPct float64
	Detail        string
}

// Manager holds the open positions. It is not safe for concurrent use: the
// engine drives it from a single cycle at a time.
type Manager struct {
	cfg      Config
	open     map[string]*domain.Position
	byMarket map[string]string
	closed   map[string]domain.ExitReason
}

// New creates an empty manager. Zero thresholds take defaults.
func New(cfg Config) *Manager {
	d := DefaultConfig()
	if cfg.TakeProfitPct <= 0 {
		cfg.TakeProfitPct = d.TakeProfitPct
	}
	if cfg.StopLossPct <= 0 {
		cfg.StopLossPct = d.StopLossPct
	}
	if cfg.AddOnDropPct <= 0 {
		cfg.AddOnDropPct = d.AddOnDropPct
	}
	switch {
	case cfg.MaxAddOns < 0:
		cfg.MaxAddOns = 0
	case cfg.MaxAddOns == 0, cfg.MaxAddOns > maxAddOns:
		cfg.MaxAddOns = maxAddOns
	}
	if cfg.MinEdge <= 0 {
		cfg.MinEdge = d.MinEdge
	}
	return &Manager{
		cfg:      cfg,
		open:     make(map[string]*domain.Position),
		byMarket: make(map[string]string),
		closed:   make(map[string]domain.ExitReason),
	}
}

// Restore loads positions rebuilt from the audit log.
func (m *Manager) Restore(positions []domain.Position) error {
	for _, p := range positions {
		if p.IsOpen() {
			if err := m.Open(p); err != nil {
				return fmt.Errorf("lifecycle.Restore: %w", err)
			}
			continue
		}
		m.closed[p.ID] = p.ExitReason
	}
	return nil
}

// Open registers a newly entered position.
func (m *Manager) Open(p domain.Position) error {
	if reason, ok := m.closed[p.ID]; ok {
		return fmt.Errorf("lifecycle.Open: %w: position %s already CLOSED(%s)", domain.ErrInvariantViolation, p.ID, reason)
	}
	if _, ok := m.open[p.ID]; ok {
		return fmt.Errorf("lifecycle.Open: %w: position %s", domain.ErrDuplicateAction, p.ID)
	}
	if other, ok := m.byMarket[p.MarketID]; ok {
		return fmt.Errorf("lifecycle.Open: %w: market %s already held by %s", domain.ErrDuplicateAction, p.MarketID, other)
	}
	if p.Status != domain.PositionOpen {
		return fmt.Errorf("lifecycle.Open: %w: status %s", domain.ErrInvariantViolation, p.Status)
	}
	cp := p
	m.open[p.ID] = &cp
	m.byMarket[p.MarketID] = p.ID
	return nil
}

// Closed reports whether id belongs to a position that was already closed.
func (m *Manager) Closed(id string) (domain.ExitReason, bool) {
	reason, ok := m.closed[id]
	return reason, ok
}

// Get returns a copy of an open position.
func (m *Manager) Get(id string) (domain.Position, bool) {
	p, ok := m.open[id]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// HasOpen reports whether the market already has an open position.
func (m *Manager) HasOpen(marketID string) bool {
	_, ok := m.byMarket[marketID]
	return ok
}

// Count is the number of open positions.
func (m *Manager) Count() int { return len(m.open) }

// OpenPositions returns copies of the open positions in id order.
func (m *Manager) OpenPositions() []domain.Position {
	out := make([]domain.Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CostBases returns the live cost basis of every open position.
func (m *Manager) CostBases() []float64 {
	out := make([]float64, 0, len(m.open))
	for _, p := range m.OpenPositions() {
		out = append(out, p.CostBasis)
	}
	return out
}

// Evaluate applies the exit rules in priority order: resolution, take
// profit / stop loss, edge reversal, then add-on eligibility.
func (m *Manager) Evaluate(p domain.Position, obs Observation) Decision {
	if !p.IsOpen() {
		return Decision{Kind: DecisionHold, Detail: "not open"}
	}
	if obs.Snapshot == nil {
		return Decision{Kind: DecisionHold, Detail: "no snapshot"}
	}

	snap := *obs.Snapshot
	if snap.Resolved {
		if snap.Outcome != domain.SideYes && snap.Outcome != domain.SideNo {
			return Decision{Kind: DecisionHold, Detail: "resolved without outcome"}
		}
		return Decision{Kind: DecisionExit, Reason: domain.ExitResolution, Detail: "resolved " + string(snap.Outcome)}
	}

	mark := snap.QuoteFor(p.Side).Mark()
	if mark <= 0 {
		return Decision{Kind: DecisionHold, Detail: "no price"}
	}
	d := Decision{Kind: DecisionHold, Mark: mark, UnrealizedPct: p.UnrealizedPctAt(mark)}

	switch {
	case d.UnrealizedPct >= m.cfg.TakeProfitPct:
		d.Kind, d.Reason = DecisionExit, domain.ExitTakeProfit
		d.Detail = fmt.Sprintf("unrealized %+.1f%% >= %+.1f%%", d.UnrealizedPct*100, m.cfg.TakeProfitPct*100)
		return d
	case d.UnrealizedPct <= -m.cfg.StopLossPct:
		d.Kind, d.Reason = DecisionExit, domain.ExitStopLoss
		d.Detail = fmt.Sprintf("unrealized %+.1f%% <= -%.1f%%", d.UnrealizedPct*100, m.cfg.StopLossPct*100)
		return d
	}

	if !obs.HasSignal {
		return d
	}

	if obs.Edge <= 0 {
		d.Kind, d.Reason = DecisionExit, domain.ExitEdgeReversal
		d.Detail = fmt.Sprintf("edge %.3f <= 0", obs.Edge)
		return d
	}
	if obs.Confidence == domain.ConfidenceHigh && obs.Edge < m.cfg.MinEdge {
		d.Kind, d.Reason = DecisionExit, domain.ExitEdgeReversal
		d.Detail = fmt.Sprintf("edge %.3f < min %.3f at HIGH confidence", obs.Edge, m.cfg.MinEdge)
		return d
	}

	if p.AddOns < m.cfg.MaxAddOns &&
		p.DropFromEntry(mark) >= m.cfg.AddOnDropPct &&
		obs.Edge > p.EntryEdge+m.cfg.AddOnMinImprovement {
		d.Kind = DecisionAddOn
		d.Detail = fmt.Sprintf("price -%.1f%% from entry, edge %.3f > entry %.3f", p.DropFromEntry(mark)*100, obs.Edge, p.EntryEdge)
	}
	return d
}

// Mark updates the unrealized markers of an open position.
func (m *Manager) Mark(id string, mark float64, at time.Time) {
	p, ok := m.open[id]
	if !ok || mark <= 0 {
		return
	}
	p.LastMark = mark
	p.UnrealizedPct = p.UnrealizedPctAt(mark)
	p.MarkedAt = at
}

// Close moves an OPEN position to CLOSED with exactly one reason. Closing a
// position twice is an invariant violation.
func (m *Manager) Close(id string, fill domain.Fill, reason domain.ExitReason, at time.Time) (domain.Position, error) {
	if prev, ok := m.closed[id]; ok {
		return domain.Position{}, fmt.Errorf("lifecycle.Close: %w: %s already CLOSED(%s)", domain.ErrInvariantViolation, id, prev)
	}
	p, ok := m.open[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("lifecycle.Close: %w: unknown position %s", domain.ErrInvariantViolation, id)
	}

	exitAt := at
	p.Status = domain.PositionClosed
	p.ExitTime = &exitAt
	p.ExitPrice = fill.Price
	p.ExitReason = reason
	p.RealizedPnL = fill.Notional - p.CostBasis
	p.LastMark = fill.Price
	p.UnrealizedPct = 0
	p.MarkedAt = at

	delete(m.open, id)
	delete(m.byMarket, p.MarketID)
	m.closed[id] = reason
	return *p, nil
}

// AddOn applies the single permitted additional fill to an open position.
func (m *Manager) AddOn(id string, fill domain.Fill) (domain.Position, error) {
	p, ok := m.open[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("lifecycle.AddOn: %w: position %s is not open", domain.ErrInvariantViolation, id)
	}
	if p.AddOns >= m.cfg.MaxAddOns {
		return domain.Position{}, fmt.Errorf("lifecycle.AddOn: %w: add-on budget used for %s", domain.ErrInvariantViolation, id)
	}
	p.Contracts += fill.Contracts
	p.CostBasis += fill.Notional
	p.AddOns++
	return *p, nil
}
