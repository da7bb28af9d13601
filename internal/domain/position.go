package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PositionStatus is the lifecycle state of a simulated position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// ExitReason records why a position was closed. Exactly one per position.
type ExitReason string

const (
	ExitTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitEdgeReversal ExitReason = "EDGE_REVERSAL"
	ExitResolution   ExitReason = "RESOLUTION"
)

// Position is a simulated holding of one outcome token.
type Position struct {
	ID            string         `json:"id"`
	MarketID      string         `json:"market_id"`
	Question      string         `json:"question,omitempty"`
	Side          Side           `json:"side"`
	SignalID      string         `json:"signal_id,omitempty"`
	EntryRecordID string         `json:"entry_record_id"`
	EntryPrice    float64        `json:"entry_price"`
	EntryEdge     float64        `json:"entry_edge"`
	EntryTime     time.Time      `json:"entry_time"`
	Contracts     float64        `json:"contracts"`
	CostBasis     float64        `json:"cost_basis"`
	Status        PositionStatus `json:"status"`
	AddOns        int            `json:"add_ons"`

	LastMark      float64   `json:"last_mark,omitempty"`
	UnrealizedPct float64   `json:"unrealized_pct,omitempty"`
	MarkedAt      time.Time `json:"marked_at,omitempty"`

	ExitTime    *time.Time `json:"exit_time,omitempty"`
	ExitPrice   float64    `json:"exit_price,omitempty"`
	ExitReason  ExitReason `json:"exit_reason,omitempty"`
	RealizedPnL float64    `json:"realized_pnl,omitempty"`
}

// IsOpen reports whether the position is still OPEN.
func (p Position) IsOpen() bool { return p.Status == PositionOpen }

// AvgPrice is cost basis per contract.
func (p Position) AvgPrice() float64 {
	if p.Contracts <= 0 {
		return 0
	}
	return p.CostBasis / p.Contracts
}

// UnrealizedPctAt returns the return on cost basis at the given mark of the
// held token. For a NO position the mark is the NO price, so a falling YES
// price shows as a gain.
func (p Position) UnrealizedPctAt(mark float64) float64 {
	avg := p.AvgPrice()
	if avg <= 0 {
		return 0
	}
	return (mark - avg) / avg
}

// DropFromEntry is how far mark sits below the first entry price, as a fraction.
func (p Position) DropFromEntry(mark float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (p.EntryPrice - mark) / p.EntryPrice
}

var positionNamespace = uuid.MustParse("6f1c2b1e-4a1d-4c35-9a8e-0d5d1c7e2f10")

// NewPositionID builds a PAPER-YYYYMMDD-xxxxxxxx id. It is derived from the
// market, side and entry minute so a retried cycle yields the same id.
func NewPositionID(marketID string, side Side, at time.Time) string {
	at = at.UTC().Truncate(time.Minute)
	seed := fmt.Sprintf("%s|%s|%s", marketID, side, at.Format(time.RFC3339))
	h := uuid.NewSHA1(positionNamespace, []byte(seed))
	return fmt.Sprintf("PAPER-%s-%s", at.Format("20060102"), strings.ReplaceAll(h.String(), "-", "")[:8])
}
