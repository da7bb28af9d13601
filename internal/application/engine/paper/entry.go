package paper

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// runEntries walks the signals in market-id order and opens at most one
// position per market. Markets held or exited this cycle are left alone.
func (pe *Engine) runEntries(
	candidates map[string]candidate,
	snaps map[string]domain.MarketSnapshot,
	closed []domain.Position,
	now time.Time,
	report *domain.CycleReport,
) error {
	exited := make(map[string]bool, len(closed))
	for _, p := range closed {
		exited[p.MarketID] = true
	}

	markets := make([]string, 0, len(candidates))
	for id := range candidates {
		markets = append(markets, id)
	}
	sort.Strings(markets)

	div := pe.newDiversification()

	for _, id := range markets {
		if pe.positions.HasOpen(id) || exited[id] {
			continue
		}
		c := candidates[id]
		if c.valid() && c.signal.ID != "" && pe.audit.SignalExecuted(c.signal.ID) {
			report.Ignored++
			continue
		}

		reason, sizing, err := pe.enter(c, snaps, div, now, report)
		if err != nil {
			return err
		}
		if reason == "" {
			continue
		}

		s := c.signal
		if err := pe.recordSkip(domain.TradeRecord{
			Action:     domain.ActionSkip,
			MarketID:   s.MarketID,
			Question:   s.Question,
			Side:       s.Side,
			SignalID:   s.ID,
			Timestamp:  now,
			Edge:       c.edge,
			Confidence: c.confidence,
			Sizing:     sizing,
			Reason:     reason,
		}, report); err != nil {
			return err
		}
	}
	return nil
}

// enter applies the entry gates in order and opens the position when all
// pass. A non-empty reason means the signal was rejected.
func (pe *Engine) enter(
	c candidate,
	snaps map[string]domain.MarketSnapshot,
	div *diversification,
	now time.Time,
	report *domain.CycleReport,
) (string, *domain.SizingDecision, error) {
	s := c.signal
	if !c.valid() {
		return c.err.Error(), nil, nil
	}
	if !pe.edge.MeetsThreshold(c.edge, c.confidence) {
		return fmt.Sprintf("edge %.3f below %s threshold", c.edge, c.confidence), nil, nil
	}
	if pe.positions.Count() >= pe.cfg.MaxOpenPositions {
		return fmt.Sprintf("max open positions (%d)", pe.cfg.MaxOpenPositions), nil, nil
	}
	parsed := domain.ParseQuestion(s.Question)
	if reason := div.check(parsed); reason != "" {
		return reason, nil, nil
	}
	if dd := pe.ledger.Drawdown(); dd >= pe.cfg.DrawdownHalt {
		return fmt.Sprintf("drawdown %.1f%% >= halt %.1f%%", dd*100, pe.cfg.DrawdownHalt*100), nil, nil
	}

	snap, ok := snaps[s.MarketID]
	if !ok {
		return "no market snapshot", nil, nil
	}
	if snap.Resolved {
		return "market already resolved", nil, nil
	}

	q := snap.QuoteFor(s.Side)
	tier := snap.LiquidityTier()
	_, market := s.SideProbabilities()
	sizing := domain.Size(domain.SizingInput{
		Edge:              c.edge,
		MarketProbability: market,
		Confidence:        c.confidence,
		HoursToResolution: s.HoursToResolution,
		Disagreement:      s.Disagreement,
		Available:         pe.ledger.Available(),
		UnitPrice:         pe.fills.EntryBase(q) * (1 + pe.fills.Rate(tier)),
		DrawdownScale:     pe.drawdownScale(),
	}, pe.cfg.Sizing)
	if !sizing.Accepted() {
		return sizing.Rejection, &sizing, nil
	}

	fill, err := pe.fills.Entry(sizing.Amount, q, tier)
	if err != nil {
		return err.Error(), &sizing, nil
	}
	// ids are deterministic; a closed one must fail before any capital or record moves
	id := domain.NewPositionID(s.MarketID, s.Side, now)
	if reason, ok := pe.positions.Closed(id); ok {
		return "", nil, fmt.Errorf("enter %s: %w: position already CLOSED(%s)", id, domain.ErrInvariantViolation, reason)
	}
	if err := pe.ledger.Reserve(fill.Notional); err != nil {
		return domain.RejectInsufficientCapital, &sizing, nil
	}

	pos := domain.Position{
		ID:         id,
		MarketID:   s.MarketID,
		Question:   s.Question,
		Side:       s.Side,
		SignalID:   s.ID,
		EntryPrice: fill.Price,
		EntryEdge:  c.edge,
		EntryTime:  now,
		Contracts:  fill.Contracts,
		CostBasis:  fill.Notional,
		Status:     domain.PositionOpen,
	}
	rec, fresh, err := pe.appendRecord(domain.TradeRecord{
		Action:            domain.ActionEnter,
		PositionID:        pos.ID,
		MarketID:          pos.MarketID,
		Question:          pos.Question,
		Side:              pos.Side,
		SignalID:          pos.SignalID,
		Timestamp:         now,
		Price:             fill.Price,
		Contracts:         fill.Contracts,
		Amount:            fill.Notional,
		Slippage:          fill.Slippage,
		Tier:              fill.Tier,
		CostBasis:         fill.Notional,
		PositionContracts: fill.Contracts,
		Edge:              c.edge,
		Confidence:        c.confidence,
		Sizing:            &sizing,
	}, report)
	if err != nil {
		pe.ledger.Unreserve(fill.Notional)
		return "", nil, fmt.Errorf("append ENTER %s: %w", pos.ID, err)
	}
	if !fresh {
		pe.ledger.Unreserve(fill.Notional)
		return "", nil, nil
	}

	pos.EntryRecordID = rec.ID
	if err := pe.positions.Open(pos); err != nil {
		return "", nil, err
	}
	if err := pe.audit.AppendPosition(pos); err != nil {
		return "", nil, fmt.Errorf("append position %s: %w", pos.ID, err)
	}
	div.add(parsed)
	report.Entries = append(report.Entries, rec)

	slog.Info("paper: ENTER",
		"position", pos.ID,
		"market", pos.MarketID,
		"side", pos.Side,
		"edge", fmt.Sprintf("%.3f", c.edge),
		"confidence", c.confidence,
		"kelly", fmt.Sprintf("%.3f", sizing.RawKelly),
		"price", fmt.Sprintf("%.4f", fill.Price),
		"contracts", fill.Contracts,
		"cost_basis", fmt.Sprintf("$%.2f", fill.Notional),
	)
	return "", nil, nil
}

// diversification caps concentration on one city and one city+date.
// Titles without a city are not subject to the caps.
type diversification struct {
	perCity     map[string]int
	perCityDate map[string]int
	maxCity     int
	maxCityDate int
}

func (pe *Engine) newDiversification() *diversification {
	d := &diversification{
		perCity:     make(map[string]int),
		perCityDate: make(map[string]int),
		maxCity:     pe.cfg.MaxPerCity,
		maxCityDate: pe.cfg.MaxPerCityDate,
	}
	for _, p := range pe.positions.OpenPositions() {
		d.add(domain.ParseQuestion(p.Question))
	}
	return d
}

func (d *diversification) check(q domain.ParsedQuestion) string {
	if q.Unparseable || q.City == "" {
		return ""
	}
	if key, ok := q.CityDateKey(); ok && d.perCityDate[key] >= d.maxCityDate {
		return fmt.Sprintf("diversification: %d position(s) already on %s %s", d.perCityDate[key], q.City, q.Date)
	}
	if d.perCity[q.City] >= d.maxCity {
		return fmt.Sprintf("diversification: %d positions already on %s", d.perCity[q.City], q.City)
	}
	return ""
}

func (d *diversification) add(q domain.ParsedQuestion) {
	if q.Unparseable || q.City == "" {
		return
	}
	d.perCity[q.City]++
	if key, ok := q.CityDateKey(); ok {
		d.perCityDate[key]++
	}
}
