package notify_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/polyedge/internal/adapters/notify"
	"github.com/alejandrodnm/polyedge/internal/domain"
)

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestConsole_PrintCycle_Table(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	c.PrintCycle(domain.CycleReport{
		FinishedAt:      t0,
		SignalsReceived: 2,
		Entries: []domain.TradeRecord{{
			Action: domain.ActionEnter, MarketID: "m1", Question: "Will Miami be above 90°F on October 21?",
			Side: domain.SideYes, Price: 0.5177, Contracts: 482, Amount: 249.51, Edge: 0.18, Confidence: domain.ConfidenceHigh,
		}},
		Exits: []domain.TradeRecord{{
			Action: domain.ActionExit, MarketID: "m2", Side: domain.SideNo, Price: 0.458, Contracts: 100,
			Amount: 45.80, ExitReason: domain.ExitTakeProfit, RealizedPnL: 5.8,
		}},
		Skips:    []domain.TradeRecord{{Action: domain.ActionSkip, MarketID: "m3", Reason: "insufficient capital"}},
		Capital:  domain.CapitalState{Available: 755.8, Allocated: 249.51, RealizedPnL: 5.8, OpenPositions: 1},
		Warnings: []string{"snapshots unavailable"},
	})

	out := buf.String()
	assert.Contains(t, out, "+1 enter")
	assert.Contains(t, out, "avail $755.80")
	assert.Contains(t, out, "Miami")
	assert.Contains(t, out, "TAKE_PROFIT")
	assert.Contains(t, out, "$+5.80")
	assert.Contains(t, out, "insufficient")
	assert.Contains(t, out, "!! snapshots unavailable")
}

func TestConsole_PrintCycle_Compact(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, false)

	c.PrintCycle(domain.CycleReport{FinishedAt: t0, Skips: []domain.TradeRecord{{Action: domain.ActionSkip, MarketID: "m3", Reason: "LOW confidence"}}})

	out := buf.String()
	assert.Contains(t, out, "[12:00:00][PAPER]")
	assert.Contains(t, out, "1 skip")
	assert.NotContains(t, out, "LOW confidence")
}

func TestConsole_PrintStatus(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	c.PrintStatus(domain.EngineStatus{OpenPositions: 1, Available: 960, Allocated: 40, LastCycle: t0}, []domain.Position{{
		ID: "PAPER-20261019-abcdef12", MarketID: "m1", Side: domain.SideYes, EntryPrice: 0.40,
		Contracts: 100, CostBasis: 40, LastMark: 0.44, UnrealizedPct: 0.10, EntryTime: t0.Add(-2 * time.Hour),
	}})

	out := buf.String()
	assert.Contains(t, out, "1 open")
	assert.Contains(t, out, "PAPER-20261019-abcdef12")
	assert.Contains(t, out, "+10.0%")
	assert.Contains(t, out, "2.0h")
}

func TestConsole_PrintStatus_NoPositions(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf, true).PrintStatus(domain.EngineStatus{Available: 1000}, nil)

	assert.Contains(t, buf.String(), "last cycle never")
	assert.Contains(t, buf.String(), "no open positions")
}

func TestConsole_PrintReport(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf, true)

	c.PrintReport(domain.RunReport{
		From:        t0.Add(-24 * time.Hour),
		To:          t0,
		Cycles:      24,
		Exits:       3,
		Wins:        2,
		Losses:      1,
		RealizedPnL: 2,
		ByReason: map[domain.ExitReason]domain.ReasonStats{
			domain.ExitTakeProfit: {Count: 2, PnL: 12},
			domain.ExitStopLoss:   {Count: 1, PnL: -10},
		},
		LastCapital: &domain.CapitalState{Initial: 1000, Available: 1002, PeakEquity: 1012},
	})

	out := buf.String()
	assert.Contains(t, out, "win rate 66.7%")
	assert.Contains(t, out, "TAKE_PROFIT")
	assert.Contains(t, out, "$+6.00")
	assert.Contains(t, out, "STOP_LOSS")
	assert.Contains(t, out, "equity $1002.00")
}
