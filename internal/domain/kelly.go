package domain

import (
	"math"
	"sort"
)

// Rejection reasons reported by Size.
const (
	RejectInvalidEdge         = "invalid edge"
	RejectLowConfidence       = "LOW confidence"
	RejectNonPositiveEdge     = "non-positive edge"
	RejectInsufficientCapital = "insufficient capital"
	RejectNonPositivePrice    = "non-positive reference price"
	RejectBelowOneUnit        = "size below one tradeable unit"
)

// DecayStep applies Multiplier when hours to resolution is below MaxHours.
type DecayStep struct {
	MaxHours   float64 `yaml:"max_hours" json:"max_hours"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
}

// SizingParams are the static sizing policy parameters.
type SizingParams struct {
	KellyFraction     float64
	MinPosition       float64
	MaxPosition       float64
	ContractStep      float64
	TimeDecay         []DecayStep
	DisagreementK     float64
	DisagreementFloor float64
}

// DefaultSizingParams returns quarter-Kelly with the production bounds.
func DefaultSizingParams() SizingParams {
	return SizingParams{
		KellyFraction: 0.25,
		MinPosition:   10,
		MaxPosition:   250,
		ContractStep:  1,
		TimeDecay: []DecayStep{
			{MaxHours: 6, Multiplier: 0.25},
			{MaxHours: 24, Multiplier: 0.5},
			{MaxHours: 72, Multiplier: 0.75},
		},
		DisagreementK:     2.0,
		DisagreementFloor: 0.25,
	}
}

// SizingInput is everything Size looks at. MarketProbability and UnitPrice
// are for the held side.
type SizingInput struct {
	Edge              float64
	MarketProbability float64
	Confidence        Confidence
	HoursToResolution float64
	Disagreement      float64
	Available         float64
	UnitPrice         float64 // expected price per contract; 0 uses MarketProbability
	DrawdownScale     float64 // (0, 1]; 0 means no drawdown reduction
}

// SizingDecision is the outcome of Size. A zero Amount always carries a
// Rejection.
type SizingDecision struct {
	Amount            float64 `json:"amount"`
	RawKelly          float64 `json:"raw_kelly"`
	KellyFraction     float64 `json:"kelly_fraction"`
	TimeDecay         float64 `json:"time_decay"`
	DisagreementScale float64 `json:"disagreement_scale"`
	DrawdownScale     float64 `json:"drawdown_scale"`
	Rejection         string  `json:"rejection,omitempty"`
}

// Accepted reports whether the decision allows an allocation.
func (d SizingDecision) Accepted() bool {
	return d.Rejection == "" && d.Amount > 0
}

// TimeDecayMultiplier returns the step multiplier for hours to resolution.
func (p SizingParams) TimeDecayMultiplier(hours float64) float64 {
	steps := make([]DecayStep, len(p.TimeDecay))
	copy(steps, p.TimeDecay)
	sort.Slice(steps, func(i, j int) bool { return steps[i].MaxHours < steps[j].MaxHours })
	for _, s := range steps {
		if hours < s.MaxHours {
			return s.Multiplier
		}
	}
	return 1.0
}

// DisagreementScale returns max(floor, 1 - variance*k).
func (p SizingParams) DisagreementScale(variance float64) float64 {
	return math.Max(p.DisagreementFloor, 1-variance*p.DisagreementK)
}

// DrawdownScale reduces size as equity falls from its peak: full size below
// soft, shrinking linearly to 0 at halt.
func DrawdownScale(drawdown, soft, halt float64) float64 {
	switch {
	case math.IsNaN(drawdown) || drawdown < soft:
		return 1
	case drawdown >= halt || halt <= soft:
		return 0
	default:
		return 1 - (drawdown-soft)/(halt-soft)
	}
}

// Size computes a fractional-Kelly allocation. It is pure: the ledger is
// never touched, reservation is up to the caller.
func Size(in SizingInput, p SizingParams) SizingDecision {
	d := SizingDecision{KellyFraction: p.KellyFraction}

	if math.IsNaN(in.Edge) || math.IsInf(in.Edge, 0) || !validProbability(in.MarketProbability) || in.MarketProbability >= 1 {
		d.Rejection = RejectInvalidEdge
		return d
	}
	if in.Confidence != ConfidenceHigh && in.Confidence != ConfidenceMedium {
		d.Rejection = RejectLowConfidence
		return d
	}
	if in.Edge <= 0 {
		d.Rejection = RejectNonPositiveEdge
		return d
	}

	d.RawKelly = math.Max(0, math.Min(1, in.Edge/(1-in.MarketProbability)))
	d.TimeDecay = p.TimeDecayMultiplier(in.HoursToResolution)
	d.DisagreementScale = p.DisagreementScale(in.Disagreement)
	d.DrawdownScale = in.DrawdownScale
	if d.DrawdownScale <= 0 || d.DrawdownScale > 1 {
		d.DrawdownScale = 1
	}

	if in.Available < p.MinPosition || in.Available <= 0 {
		d.Rejection = RejectInsufficientCapital
		return d
	}

	amount := d.RawKelly * p.KellyFraction * d.TimeDecay * d.DisagreementScale * d.DrawdownScale * in.Available
	amount = math.Max(p.MinPosition, math.Min(p.MaxPosition, amount))

	price := in.UnitPrice
	if price == 0 {
		price = in.MarketProbability
	}
	if price <= 0 {
		d.Rejection = RejectNonPositivePrice
		return d
	}
	step := p.ContractStep
	if step <= 0 {
		step = 1
	}
	if math.Floor(amount/price/step)*step < step {
		d.Rejection = RejectBelowOneUnit
		return d
	}

	d.Amount = amount
	return d
}
