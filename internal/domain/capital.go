package domain

import "time"

// CapitalState is a snapshot of the ledger.
// Invariant: Available + Allocated == Initial + RealizedPnL.
type CapitalState struct {
	Initial       float64   `json:"initial"`
	Available     float64   `json:"available"`
	Allocated     float64   `json:"allocated"`
	RealizedPnL   float64   `json:"realized_pnl"`
	WrittenOff    float64   `json:"written_off,omitempty"` // losses beyond cost basis the clamp absorbed
	PeakEquity    float64   `json:"peak_equity"`
	OpenPositions int       `json:"open_positions"`
	At            time.Time `json:"at"`
}

// Equity is available plus allocated capital.
func (c CapitalState) Equity() float64 { return c.Available + c.Allocated }

// Drawdown is the fractional drop of equity from its peak.
func (c CapitalState) Drawdown() float64 {
	if c.PeakEquity <= 0 {
		return 0
	}
	dd := (c.PeakEquity - c.Equity()) / c.PeakEquity
	if dd < 0 {
		return 0
	}
	return dd
}
