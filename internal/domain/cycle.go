package domain

import "time"

// Reconciliation is the outcome of comparing the ledger's booked allocation
// with the sum of live position cost bases.
type Reconciliation struct {
	Booked    float64 `json:"booked"`
	Live      float64 `json:"live"`
	Drift     float64 `json:"drift"`
	Corrected bool    `json:"corrected"`
}

// CycleReport is everything one EvaluateCycle call did.
type CycleReport struct {
	CycleID         string         `json:"cycle_id"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	SignalsReceived int            `json:"signals_received"`
	Entries         []TradeRecord  `json:"entries,omitempty"`
	AddOns          []TradeRecord  `json:"add_ons,omitempty"`
	Exits           []TradeRecord  `json:"exits,omitempty"`
	Skips           []TradeRecord  `json:"skips,omitempty"`
	Duplicates      int            `json:"duplicates"`
	Ignored         int            `json:"ignored"` // signals consumed by open positions
	Reconciliation  Reconciliation `json:"reconciliation"`
	Capital         CapitalState   `json:"capital"`
	Warnings        []string       `json:"warnings,omitempty"`
}

// ExitsByReason counts exits per reason.
func (r CycleReport) ExitsByReason() map[ExitReason]int {
	out := make(map[ExitReason]int, len(r.Exits))
	for _, e := range r.Exits {
		out[e.ExitReason]++
	}
	return out
}

// RealizedPnL sums the PnL of this cycle's exits.
func (r CycleReport) RealizedPnL() float64 {
	var total float64
	for _, e := range r.Exits {
		total += e.RealizedPnL
	}
	return total
}

// EngineStatus is the monitoring view returned by Status.
type EngineStatus struct {
	OpenPositions int       `json:"open_positions"`
	Available     float64   `json:"available"`
	Allocated     float64   `json:"allocated"`
	RealizedPnL   float64   `json:"realized_pnl"`
	Drawdown      float64   `json:"drawdown"`
	LastCycleID   string    `json:"last_cycle_id,omitempty"`
	LastCycle     time.Time `json:"last_cycle,omitempty"`
}

// ReasonStats aggregates closed positions sharing an exit reason.
type ReasonStats struct {
	Count int     `json:"count"`
	PnL   float64 `json:"pnl"`
}

// RunReport aggregates cycles and closed positions over a time range.
type RunReport struct {
	From        time.Time                  `json:"from"`
	To          time.Time                  `json:"to"`
	Cycles      int                        `json:"cycles"`
	Entries     int                        `json:"entries"`
	AddOns      int                        `json:"add_ons"`
	Exits       int                        `json:"exits"`
	Skips       int                        `json:"skips"`
	Wins        int                        `json:"wins"`
	Losses      int                        `json:"losses"`
	RealizedPnL float64                    `json:"realized_pnl"`
	ByReason    map[ExitReason]ReasonStats `json:"by_reason"`
	LastCapital *CapitalState              `json:"last_capital,omitempty"`
}

// WinRate is wins over closed positions, 0 when nothing closed.
func (r RunReport) WinRate() float64 {
	closed := r.Wins + r.Losses
	if closed == 0 {
		return 0
	}
	return float64(r.Wins) / float64(closed)
}
