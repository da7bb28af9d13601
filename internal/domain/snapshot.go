package domain

import (
	"strconv"
	"time"
)

// OrderBook is the order book of one token.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry is one price level of the book.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid is the highest bid, 0 on an empty book.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk is the lowest ask, 0 on an empty book.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint is halfway between best bid and best ask.
func (ob OrderBook) Midpoint() float64 {
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// ParsePrice converts an API price string to float64.
func ParsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// LiquidityTier buckets a market by spread for slippage purposes.
type LiquidityTier string

const (
	LiquidityHigh    LiquidityTier = "HIGH"
	LiquidityMedium  LiquidityTier = "MEDIUM"
	LiquidityLow     LiquidityTier = "LOW"
	LiquidityUnknown LiquidityTier = "UNKNOWN"
)

// SpreadTiers are spread thresholds in percent of the midpoint.
type SpreadTiers struct {
	HighBelowPct   float64
	MediumBelowPct float64
}

// DefaultSpreadTiers: <2% HIGH, <5% MEDIUM, otherwise LOW.
func DefaultSpreadTiers() SpreadTiers {
	return SpreadTiers{HighBelowPct: 2.0, MediumBelowPct: 5.0}
}

// Classify returns the tier for a bid/ask pair. A missing side is UNKNOWN.
func (t SpreadTiers) Classify(bid, ask float64) LiquidityTier {
	if bid <= 0 || ask <= 0 || ask < bid {
		return LiquidityUnknown
	}
	spreadPct := (ask - bid) / ((ask + bid) / 2) * 100
	switch {
	case spreadPct < t.HighBelowPct:
		return LiquidityHigh
	case spreadPct < t.MediumBelowPct:
		return LiquidityMedium
	default:
		return LiquidityLow
	}
}

// MarketSnapshot is a point-in-time view of a market's YES token plus its
// resolution status.
type MarketSnapshot struct {
	MarketID string        `json:"market_id" yaml:"market_id"`
	Bid      float64       `json:"best_bid,omitempty" yaml:"best_bid"`
	Ask      float64       `json:"best_ask,omitempty" yaml:"best_ask"`
	Mid      float64       `json:"mid_price,omitempty" yaml:"mid_price"`
	Tier     LiquidityTier `json:"liquidity_tier,omitempty" yaml:"liquidity_tier"`
	Resolved bool          `json:"resolved,omitempty" yaml:"resolved"`
	Outcome  Side          `json:"outcome,omitempty" yaml:"outcome"` // winning side once resolved
	At       time.Time     `json:"snapshot_time" yaml:"snapshot_time"`
}

// SnapshotFromBook builds a snapshot for the YES token book.
func SnapshotFromBook(marketID string, ob OrderBook, tiers SpreadTiers, at time.Time) MarketSnapshot {
	return MarketSnapshot{
		MarketID: marketID,
		Bid:      ob.BestBid(),
		Ask:      ob.BestAsk(),
		Mid:      ob.Midpoint(),
		Tier:     tiers.Classify(ob.BestBid(), ob.BestAsk()),
		At:       at,
	}
}

// LiquidityTier returns the tier, UNKNOWN when unset.
func (s MarketSnapshot) LiquidityTier() LiquidityTier {
	if s.Tier == "" {
		return LiquidityUnknown
	}
	return s.Tier
}

// Quote is a bid/ask/mid triple for one outcome token.
type Quote struct {
	Bid float64
	Ask float64
	Mid float64
}

// QuoteFor returns the quote of the given side. The NO book mirrors YES:
// NO bid = 1 - YES ask, NO ask = 1 - YES bid.
func (s MarketSnapshot) QuoteFor(side Side) Quote {
	q := Quote{Bid: s.Bid, Ask: s.Ask, Mid: s.Mid}
	if q.Mid == 0 && q.Bid > 0 && q.Ask > 0 {
		q.Mid = (q.Bid + q.Ask) / 2
	}
	if side != SideNo {
		return q
	}
	return Quote{Bid: complement(q.Ask), Ask: complement(q.Bid), Mid: complement(q.Mid)}
}

// Mark is the price used for unrealized PnL: mid, or whichever side exists.
func (q Quote) Mark() float64 {
	switch {
	case q.Mid > 0:
		return q.Mid
	case q.Bid > 0 && q.Ask > 0:
		return (q.Bid + q.Ask) / 2
	case q.Bid > 0:
		return q.Bid
	default:
		return q.Ask
	}
}

func complement(p float64) float64 {
	if p <= 0 {
		return 0
	}
	return 1 - p
}
