package paper

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyedge/internal/application/lifecycle"
	"github.com/alejandrodnm/polyedge/internal/domain"
)

// runLifecycle evaluates every open position in id order. It returns the
// positions closed during this cycle.
func (pe *Engine) runLifecycle(
	candidates map[string]candidate,
	snaps map[string]domain.MarketSnapshot,
	now time.Time,
	report *domain.CycleReport,
) ([]domain.Position, error) {
	var closed []domain.Position

	for _, p := range pe.positions.OpenPositions() {
		obs := lifecycle.Observation{}
		var snap domain.MarketSnapshot
		if s, ok := snaps[p.MarketID]; ok {
			snap = s
			obs.Snapshot = &snap
		}

		c, hasCandidate := candidates[p.MarketID]
		if hasCandidate {
			report.Ignored++
			if c.valid() {
				obs.HasSignal = true
				obs.Edge = pe.edge.NetEdge(onSide(c.signal, p.Side))
				obs.Confidence = c.confidence
			}
		}

		d := pe.positions.Evaluate(p, obs)
		switch d.Kind {
		case lifecycle.DecisionExit:
			pos, err := pe.exit(p, d, snap, now, report)
			if err != nil {
				return closed, err
			}
			if pos != nil {
				closed = append(closed, *pos)
			}
		case lifecycle.DecisionAddOn:
			if err := pe.addOn(p, c, obs.Edge, snap, now, report); err != nil {
				return closed, err
			}
		default:
			pe.positions.Mark(p.ID, d.Mark, now)
			if d.Mark <= 0 {
				slog.Debug("paper: holding without price", "position", p.ID, "detail", d.Detail)
			}
		}
	}
	return closed, nil
}

// exit fills and closes a position. A missing executable price defers the
// exit to a later cycle instead of failing it.
func (pe *Engine) exit(
	p domain.Position,
	d lifecycle.Decision,
	snap domain.MarketSnapshot,
	now time.Time,
	report *domain.CycleReport,
) (*domain.Position, error) {
	var fill domain.Fill
	if d.Reason == domain.ExitResolution {
		fill = pe.fills.Settle(p.Contracts, p.Side, snap.Outcome)
	} else {
		f, err := pe.fills.Exit(p.Contracts, snap.QuoteFor(p.Side), snap.LiquidityTier())
		if err != nil {
			slog.Warn("paper: exit deferred", "position", p.ID, "reason", d.Reason, "err", err)
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s: %s exit deferred: %v", p.ID, d.Reason, err))
			pe.positions.Mark(p.ID, d.Mark, now)
			return nil, nil
		}
		fill = f
	}

	pnl := fill.Notional - p.CostBasis
	rec, fresh, err := pe.appendRecord(domain.TradeRecord{
		RefID:       p.EntryRecordID,
		Action:      domain.ActionExit,
		PositionID:  p.ID,
		MarketID:    p.MarketID,
		Question:    p.Question,
		Side:        p.Side,
		SignalID:    p.SignalID,
		Timestamp:   now,
		Price:       fill.Price,
		Contracts:   fill.Contracts,
		Amount:      fill.Notional,
		Slippage:    fill.Slippage,
		Tier:        fill.Tier,
		CostBasis:   p.CostBasis,
		ExitReason:  d.Reason,
		RealizedPnL: pnl,
		Reason:      d.Detail,
	}, report)
	if err != nil {
		return nil, fmt.Errorf("append EXIT %s: %w", p.ID, err)
	}

	// a duplicate means the log already holds this exit; memory follows the log
	pos, err := pe.positions.Close(p.ID, fill, d.Reason, now)
	if err != nil {
		return nil, err
	}
	rel := pe.ledger.Release(p.CostBasis, pnl)
	if err := pe.audit.AppendPosition(pos); err != nil {
		return nil, fmt.Errorf("append position %s: %w", p.ID, err)
	}
	if fresh {
		report.Exits = append(report.Exits, rec)
	}

	slog.Info("paper: EXIT",
		"position", p.ID,
		"market", p.MarketID,
		"reason", d.Reason,
		"price", fmt.Sprintf("%.4f", fill.Price),
		"contracts", fill.Contracts,
		"cost_basis", fmt.Sprintf("$%.2f", p.CostBasis),
		"pnl", fmt.Sprintf("$%+.2f", pnl),
		"returned", fmt.Sprintf("$%.2f", rel.Returned),
	)
	return &pos, nil
}

// addOn sizes and fills the single extra allocation. Rejections are
// recorded as SKIP records against the position.
func (pe *Engine) addOn(
	p domain.Position,
	c candidate,
	edge float64,
	snap domain.MarketSnapshot,
	now time.Time,
	report *domain.CycleReport,
) error {
	sig := onSide(c.signal, p.Side)
	skip := domain.TradeRecord{
		RefID:      p.EntryRecordID,
		Action:     domain.ActionSkip,
		PositionID: p.ID,
		MarketID:   p.MarketID,
		Question:   p.Question,
		Side:       p.Side,
		SignalID:   sig.ID,
		Timestamp:  now,
		Edge:       edge,
		Confidence: c.confidence,
	}

	if dd := pe.ledger.Drawdown(); dd >= pe.cfg.DrawdownHalt {
		skip.Reason = fmt.Sprintf("add-on: drawdown %.1f%% >= halt %.1f%%", dd*100, pe.cfg.DrawdownHalt*100)
		return pe.recordSkip(skip, report)
	}

	q := snap.QuoteFor(p.Side)
	tier := snap.LiquidityTier()
	_, market := sig.SideProbabilities()
	sizing := domain.Size(domain.SizingInput{
		Edge:              edge,
		MarketProbability: market,
		Confidence:        c.confidence,
		HoursToResolution: sig.HoursToResolution,
		Disagreement:      sig.Disagreement,
		Available:         pe.ledger.Available(),
		UnitPrice:         pe.fills.EntryBase(q) * (1 + pe.fills.Rate(tier)),
		DrawdownScale:     pe.drawdownScale(),
	}, pe.cfg.Sizing)
	skip.Sizing = &sizing
	if !sizing.Accepted() {
		skip.Reason = "add-on: " + sizing.Rejection
		return pe.recordSkip(skip, report)
	}

	fill, err := pe.fills.Entry(sizing.Amount, q, tier)
	if err != nil {
		skip.Reason = "add-on: " + err.Error()
		return pe.recordSkip(skip, report)
	}
	if err := pe.ledger.Reserve(fill.Notional); err != nil {
		skip.Reason = "add-on: " + domain.RejectInsufficientCapital
		return pe.recordSkip(skip, report)
	}

	rec, fresh, err := pe.appendRecord(domain.TradeRecord{
		RefID:             p.EntryRecordID,
		Action:            domain.ActionAddOn,
		PositionID:        p.ID,
		MarketID:          p.MarketID,
		Question:          p.Question,
		Side:              p.Side,
		SignalID:          sig.ID,
		Timestamp:         now,
		Price:             fill.Price,
		Contracts:         fill.Contracts,
		Amount:            fill.Notional,
		Slippage:          fill.Slippage,
		Tier:              fill.Tier,
		CostBasis:         p.CostBasis + fill.Notional,
		PositionContracts: p.Contracts + fill.Contracts,
		Edge:              edge,
		Confidence:        c.confidence,
		Sizing:            &sizing,
	}, report)
	if err != nil {
		pe.ledger.Unreserve(fill.Notional)
		return fmt.Errorf("append ADD_ON %s: %w", p.ID, err)
	}
	if !fresh {
		pe.ledger.Unreserve(fill.Notional)
		return nil
	}

	pos, err := pe.positions.AddOn(p.ID, fill)
	if err != nil {
		return err
	}
	if err := pe.audit.AppendPosition(pos); err != nil {
		return fmt.Errorf("append position %s: %w", p.ID, err)
	}
	report.AddOns = append(report.AddOns, rec)

	slog.Info("paper: ADD_ON",
		"position", p.ID,
		"price", fmt.Sprintf("%.4f", fill.Price),
		"contracts", fill.Contracts,
		"amount", fmt.Sprintf("$%.2f", fill.Notional),
		"edge", fmt.Sprintf("%.3f", edge),
		"cost_basis", fmt.Sprintf("$%.2f", pos.CostBasis),
	)
	return nil
}

// recordSkip appends a SKIP record and adds it to the report when new.
func (pe *Engine) recordSkip(r domain.TradeRecord, report *domain.CycleReport) error {
	rec, fresh, err := pe.appendRecord(r, report)
	if err != nil {
		return fmt.Errorf("append SKIP %s: %w", r.MarketID, err)
	}
	if fresh {
		report.Skips = append(report.Skips, rec)
		slog.Debug("paper: SKIP", "market", r.MarketID, "position", r.PositionID, "reason", r.Reason)
	}
	return nil
}

// onSide re-expresses a signal for the given held side.
func onSide(s domain.Signal, side domain.Side) domain.Signal {
	s = s.Normalized()
	s.Side = side
	return s
}
