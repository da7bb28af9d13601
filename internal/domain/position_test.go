package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPositionID_DeterministicPerMinute(t *testing.T) {
	a := NewPositionID("m1", SideYes, testNow)
	b := NewPositionID("m1", SideYes, testNow.Add(40*time.Second))
	c := NewPositionID("m1", SideNo, testNow)

	assert.Regexp(t, `^PAPER-20261019-[0-9a-f]{8}$`, a)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestPosition_Unrealized(t *testing.T) {
	p := Position{EntryPrice: 0.40, Contracts: 100, CostBasis: 40}
	assert.InDelta(t, 0.175, p.UnrealizedPctAt(0.47), 1e-9)
	assert.InDelta(t, -0.25, p.UnrealizedPctAt(0.30), 1e-9)
	assert.InDelta(t, 0.10, p.DropFromEntry(0.36), 1e-9)
}

func TestTradeRecord_LogicalKey(t *testing.T) {
	r1 := TradeRecord{PositionID: "P1", Action: ActionExit, Timestamp: testNow.Add(5 * time.Second)}
	r2 := TradeRecord{PositionID: "P1", Action: ActionExit, Timestamp: testNow.Add(50 * time.Second)}
	r3 := TradeRecord{PositionID: "P1", Action: ActionExit, Timestamp: testNow.Add(61 * time.Second)}
	assert.Equal(t, r1.LogicalKey(), r2.LogicalKey())
	assert.NotEqual(t, r1.LogicalKey(), r3.LogicalKey())
	assert.Equal(t, r1.WithID().ID, r2.WithID().ID)

	skip := TradeRecord{MarketID: "m9", Action: ActionSkip, Timestamp: testNow}
	assert.Contains(t, skip.LogicalKey(), "m9|SKIP|")
}

func TestSpreadTiers_Classify(t *testing.T) {
	tiers := DefaultSpreadTiers()
	assert.Equal(t, LiquidityHigh, tiers.Classify(0.495, 0.50))
	assert.Equal(t, LiquidityMedium, tiers.Classify(0.49, 0.50))
	assert.Equal(t, LiquidityLow, tiers.Classify(0.40, 0.50))
	assert.Equal(t, LiquidityUnknown, tiers.Classify(0, 0.50))
}

func TestSnapshot_QuoteForNo(t *testing.T) {
	s := MarketSnapshot{Bid: 0.40, Ask: 0.42}
	yes := s.QuoteFor(SideYes)
	assert.InDelta(t, 0.41, yes.Mark(), 1e-9)

	no := s.QuoteFor(SideNo)
	assert.InDelta(t, 0.58, no.Bid, 1e-9)
	assert.InDelta(t, 0.60, no.Ask, 1e-9)
	assert.InDelta(t, 0.59, no.Mark(), 1e-9)

	empty := MarketSnapshot{}.QuoteFor(SideNo)
	assert.Zero(t, empty.Bid)
	assert.Zero(t, empty.Mark())
}

func TestCapitalState_Drawdown(t *testing.T) {
	c := CapitalState{Available: 800, Allocated: 100, PeakEquity: 1000}
	assert.InDelta(t, 0.10, c.Drawdown(), 1e-9)
	assert.Zero(t, CapitalState{Available: 1100, PeakEquity: 1000}.Drawdown())
}
