package domain

import (
	"fmt"
	"math"
)

// Price guards for simulated fills.
const (
	minFillPrice    = 0.01
	maxFillPrice    = 0.99
	midEntryMarkup  = 1.01
	midExitMarkdown = 0.99
)

// SlippageConfig holds per-tier slippage rates and the global caps.
type SlippageConfig struct {
	High         float64
	Medium       float64
	Low          float64
	Unknown      float64
	Min          float64
	Max          float64
	ContractStep float64
}

// DefaultSlippageConfig returns the conservative production rates.
func DefaultSlippageConfig() SlippageConfig {
	return SlippageConfig{
		High:         0.005,
		Medium:       0.015,
		Low:          0.03,
		Unknown:      0.05,
		Min:          0.002,
		Max:          0.10,
		ContractStep: 1,
	}
}

// Fill is a simulated execution.
type Fill struct {
	Price        float64       `json:"price"`
	Contracts    float64       `json:"contracts"`
	Notional     float64       `json:"notional"` // Price * Contracts
	Slippage     float64       `json:"slippage"` // per-contract adverse move actually applied
	SlippageRate float64       `json:"slippage_rate"`
	Tier         LiquidityTier `json:"tier"`
}

// FillModel simulates worst-case fills against a quote.
type FillModel struct {
	cfg SlippageConfig
}

// NewFillModel fills zero fields of cfg with defaults.
func NewFillModel(cfg SlippageConfig) FillModel {
	d := DefaultSlippageConfig()
	if cfg.High <= 0 {
		cfg.High = d.High
	}
	if cfg.Medium <= 0 {
		cfg.Medium = d.Medium
	}
	if cfg.Low <= 0 {
		cfg.Low = d.Low
	}
	if cfg.Unknown <= 0 {
		cfg.Unknown = d.Unknown
	}
	if cfg.Min <= 0 {
		cfg.Min = d.Min
	}
	if cfg.Max <= 0 {
		cfg.Max = d.Max
	}
	if cfg.ContractStep <= 0 {
		cfg.ContractStep = d.ContractStep
	}
	return FillModel{cfg: cfg}
}

// Rate returns the slippage rate for a tier. Unknown tiers get the worst rate.
func (f FillModel) Rate(tier LiquidityTier) float64 {
	switch tier {
	case LiquidityHigh:
		return f.cfg.High
	case LiquidityMedium:
		return f.cfg.Medium
	case LiquidityLow:
		return f.cfg.Low
	default:
		return f.cfg.Unknown
	}
}

// ContractStep is the smallest tradeable unit.
func (f FillModel) ContractStep() float64 { return f.cfg.ContractStep }

// EntryBase is the pre-slippage entry price: ask, or mid marked up when the
// ask side is empty. 0 means no price.
func (f FillModel) EntryBase(q Quote) float64 {
	if q.Ask > 0 {
		return q.Ask
	}
	if q.Mid > 0 {
		return q.Mid * midEntryMarkup
	}
	return 0
}

// Entry buys as many contracts as notional allows at ask + slippage.
func (f FillModel) Entry(notional float64, q Quote, tier LiquidityTier) (Fill, error) {
	base := f.EntryBase(q)
	if base <= 0 {
		return Fill{}, fmt.Errorf("fill.Entry: %w: no ask", ErrNonPositivePrice)
	}

	rate := f.Rate(tier)
	price := clampPrice(base + f.slippage(base, rate))
	if price <= 0 {
		return Fill{}, fmt.Errorf("fill.Entry: %w: %.4f", ErrNonPositivePrice, price)
	}

	contracts := f.floorContracts(notional / price)
	if contracts < f.cfg.ContractStep {
		return Fill{}, fmt.Errorf("fill.Entry: %w: %.2f buys no contract at %.4f", ErrInsufficientCapital, notional, price)
	}

	return Fill{
		Price:        price,
		Contracts:    contracts,
		Notional:     contracts * price,
		Slippage:     math.Abs(price - base),
		SlippageRate: rate,
		Tier:         tier,
	}, nil
}

// Exit sells contracts at bid - slippage.
func (f FillModel) Exit(contracts float64, q Quote, tier LiquidityTier) (Fill, error) {
	if contracts <= 0 {
		return Fill{}, fmt.Errorf("fill.Exit: no contracts to sell")
	}
	base := q.Bid
	if base <= 0 && q.Mid > 0 {
		base = q.Mid * midExitMarkdown
	}
	if base <= 0 {
		return Fill{}, fmt.Errorf("fill.Exit: %w: no bid", ErrNonPositivePrice)
	}

	rate := f.Rate(tier)
	price := clampPrice(base - f.slippage(base, rate))

	return Fill{
		Price:        price,
		Contracts:    contracts,
		Notional:     contracts * price,
		Slippage:     math.Abs(base - price),
		SlippageRate: rate,
		Tier:         tier,
	}, nil
}

// Settle pays 1.0 per contract on the winning side and 0.0 otherwise, with
// no slippage.
func (f FillModel) Settle(contracts float64, held, outcome Side) Fill {
	price := 0.0
	if held == outcome {
		price = 1.0
	}
	return Fill{Price: price, Contracts: contracts, Notional: contracts * price}
}

func (f FillModel) slippage(base, rate float64) float64 {
	s := base * rate
	s = math.Max(s, base*f.cfg.Min)
	return math.Min(s, base*f.cfg.Max)
}

func (f FillModel) floorContracts(n float64) float64 {
	step := f.cfg.ContractStep
	return math.Floor(n/step+1e-9) * step
}

func clampPrice(p float64) float64 {
	return math.Max(minFillPrice, math.Min(maxFillPrice, p))
}
