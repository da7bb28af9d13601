package domain

import "time"

// Confidence is the reliability tier of a signal, derived from forecast horizon.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Valid reports whether c is one of the known tiers.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// Side is the outcome token a position holds.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Signal is one immutable edge observation for a market, produced once per
// cycle. Probabilities are always expressed for the YES outcome; Side says
// which token the signal wants to hold.
type Signal struct {
	ID                string     `json:"id,omitempty" yaml:"id"`
	MarketID          string     `json:"market_id" yaml:"market_id"`
	Question          string     `json:"question,omitempty" yaml:"question"`
	Side              Side       `json:"side" yaml:"side"`
	FairProbability   float64    `json:"fair_probability" yaml:"fair_probability"`
	MarketProbability float64    `json:"market_probability" yaml:"market_probability"`
	Confidence        Confidence `json:"confidence" yaml:"confidence"`
	HoursToResolution float64    `json:"hours_to_resolution" yaml:"hours_to_resolution"`
	Disagreement      float64    `json:"disagreement" yaml:"disagreement"` // ensemble variance, probability units
	GeneratedAt       time.Time  `json:"generated_at" yaml:"generated_at"`
}

// SideProbabilities returns fair and market probabilities from the point of
// view of the held token.
func (s Signal) SideProbabilities() (fair, market float64) {
	if s.Side == SideNo {
		return 1 - s.FairProbability, 1 - s.MarketProbability
	}
	return s.FairProbability, s.MarketProbability
}

// Normalized returns a copy with the side defaulted to YES.
func (s Signal) Normalized() Signal {
	if s.Side == "" {
		s.Side = SideYes
	}
	return s
}
