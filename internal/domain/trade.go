package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TradeAction is the kind of state-changing action a TradeRecord captures.
type TradeAction string

const (
	ActionEnter TradeAction = "ENTER"
	ActionAddOn TradeAction = "ADD_ON"
	ActionExit  TradeAction = "EXIT"
	ActionSkip  TradeAction = "SKIP"
)

// TradeRecord is one immutable fact in the audit trail. It carries enough
// to rebuild a position timeline from the log alone.
type TradeRecord struct {
	ID         string      `json:"id"`
	RefID      string      `json:"ref_id,omitempty"` // ENTER record this one follows
	Action     TradeAction `json:"action"`
	PositionID string      `json:"position_id,omitempty"`
	MarketID   string      `json:"market_id"`
	Question   string      `json:"question,omitempty"`
	Side       Side        `json:"side,omitempty"`
	SignalID   string      `json:"signal_id,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`

	Price     float64       `json:"price,omitempty"`
	Contracts float64       `json:"contracts,omitempty"`
	Amount    float64       `json:"amount,omitempty"` // cash out for ENTER/ADD_ON, proceeds for EXIT
	Slippage  float64       `json:"slippage,omitempty"`
	Tier      LiquidityTier `json:"tier,omitempty"`

	// Position totals after the action. For EXIT, CostBasis is the amount released.
	CostBasis         float64 `json:"cost_basis,omitempty"`
	PositionContracts float64 `json:"position_contracts,omitempty"`

	Edge       float64         `json:"edge,omitempty"`
	Confidence Confidence      `json:"confidence,omitempty"`
	Sizing     *SizingDecision `json:"sizing,omitempty"`

	ExitReason  ExitReason `json:"exit_reason,omitempty"`
	RealizedPnL float64    `json:"realized_pnl,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// LogicalKey identifies the action for deduplication: position (or market,
// for SKIP) + action + minute.
func (r TradeRecord) LogicalKey() string {
	subject := r.PositionID
	if subject == "" {
		subject = r.MarketID
	}
	return fmt.Sprintf("%s|%s|%s", subject, r.Action, r.Timestamp.UTC().Truncate(time.Minute).Format(time.RFC3339))
}

var recordNamespace = uuid.MustParse("b8e3f0a4-2f6e-4d8b-8c39-5e7a1f4d9c21")

// WithID stamps a deterministic id derived from the logical key.
func (r TradeRecord) WithID() TradeRecord {
	r.ID = uuid.NewSHA1(recordNamespace, []byte(r.LogicalKey())).String()
	return r
}
