package domain

import (
	"fmt"
	"math"
	"time"
)

// Direction is the comparison a market question makes against its threshold.
type Direction string

const (
	DirectionAbove   Direction = "ABOVE"
	DirectionBelow   Direction = "BELOW"
	DirectionBetween Direction = "BETWEEN"
)

// ForecastInput is the raw forecast the edge model turns into a Signal.
type ForecastInput struct {
	ID             string    `json:"id,omitempty" yaml:"id"`
	MarketID       string    `json:"market_id" yaml:"market_id"`
	Question       string    `json:"question,omitempty" yaml:"question"`
	Side           Side      `json:"side,omitempty" yaml:"side"`
	Mean           float64   `json:"mean" yaml:"mean"`
	Sigma          float64   `json:"sigma,omitempty" yaml:"sigma"` // 0 = horizon-scaled default
	Threshold      float64   `json:"threshold" yaml:"threshold"`
	UpperThreshold float64   `json:"upper_threshold,omitempty" yaml:"upper_threshold"` // BETWEEN only
	Direction      Direction `json:"direction" yaml:"direction"`
	Disagreement   float64   `json:"disagreement,omitempty" yaml:"disagreement"`
	ForecastTime   time.Time `json:"forecast_time" yaml:"forecast_time"`
	ResolutionTime time.Time `json:"resolution_time" yaml:"resolution_time"`
}

// EdgeConfig holds the edge model policy parameters.
type EdgeConfig struct {
	FeeRate          float64
	MinEdge          float64
	MediumMultiplier float64 // MEDIUM confidence needs MinEdge * MediumMultiplier
	HighMaxHours     float64
	MediumMaxHours   float64
	MaxHorizonHours  float64
	MaxForecastAge   time.Duration // 0 takes the default, negative disables the staleness check
	BaseSigma        float64
}

// DefaultEdgeConfig returns the production defaults.
func DefaultEdgeConfig() EdgeConfig {
	return EdgeConfig{
		FeeRate:          0.02,
		MinEdge:          0.10,
		MediumMultiplier: 1.25,
		HighMaxHours:     72,
		MediumMaxHours:   168,
		MaxHorizonHours:  240,
		MaxForecastAge:   12 * time.Hour,
		BaseSigma:        3.5,
	}
}

const (
	feeProbFloor = 0.001
	feeProbCeil  = 0.999
)

// sigmaScale widens the forecast distribution with horizon (days -> multiplier).
var sigmaScale = []struct {
	days  float64
	scale float64
}{
	{1, 0.8}, {2, 0.9}, {3, 1.0}, {5, 1.2}, {7, 1.5}, {10, 2.0},
}

// EdgeModel converts forecasts and quoted prices into fee-adjusted edges.
type EdgeModel struct {
	cfg EdgeConfig
}

// NewEdgeModel fills zero fields of cfg with defaults. A negative
// MaxForecastAge turns the staleness check off.
func NewEdgeModel(cfg EdgeConfig) EdgeModel {
	d := DefaultEdgeConfig()
	if cfg.FeeRate <= 0 {
		cfg.FeeRate = d.FeeRate
	}
	if cfg.MinEdge <= 0 {
		cfg.MinEdge = d.MinEdge
	}
	if cfg.MediumMultiplier <= 0 {
		cfg.MediumMultiplier = d.MediumMultiplier
	}
	if cfg.HighMaxHours <= 0 {
		cfg.HighMaxHours = d.HighMaxHours
	}
	if cfg.MediumMaxHours <= 0 {
		cfg.MediumMaxHours = d.MediumMaxHours
	}
	if cfg.MaxHorizonHours <= 0 {
		cfg.MaxHorizonHours = d.MaxHorizonHours
	}
	if cfg.MaxForecastAge == 0 {
		cfg.MaxForecastAge = d.MaxForecastAge
	}
	if cfg.BaseSigma <= 0 {
		cfg.BaseSigma = d.BaseSigma
	}
	return EdgeModel{cfg: cfg}
}

// Config returns the effective configuration.
func (m EdgeModel) Config() EdgeConfig { return m.cfg }

// Fee is the taker fee in probability units: FeeRate * p(1-p)/0.25.
// It peaks at p=0.5 and vanishes toward 0 and 1.
func (m EdgeModel) Fee(p float64) float64 {
	p = math.Max(feeProbFloor, math.Min(feeProbCeil, p))
	return m.cfg.FeeRate * p * (1 - p) / 0.25
}

// ConfidenceFor maps hours to resolution onto a confidence tier.
func (m EdgeModel) ConfidenceFor(hours float64) Confidence {
	switch {
	case hours <= m.cfg.HighMaxHours:
		return ConfidenceHigh
	case hours <= m.cfg.MediumMaxHours:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// SigmaFor returns the horizon-scaled forecast standard deviation.
func (m EdgeModel) SigmaFor(hours float64) float64 {
	days := hours / 24
	for _, s := range sigmaScale {
		if days <= s.days {
			return m.cfg.BaseSigma * s.scale
		}
	}
	return m.cfg.BaseSigma * sigmaScale[len(sigmaScale)-1].scale
}

// NormalCDF is the standard normal cumulative distribution.
func NormalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// FairProbability is the probability of the YES outcome under a normal
// forecast distribution.
func (m EdgeModel) FairProbability(in ForecastInput, hours float64) (float64, error) {
	sigma := in.Sigma
	if sigma == 0 {
		sigma = m.SigmaFor(hours)
	}
	if sigma < 0 || math.IsNaN(sigma) || math.IsNaN(in.Mean) || math.IsNaN(in.Threshold) {
		return 0, fmt.Errorf("%w: bad distribution parameters", ErrInvalidSignal)
	}

	z := func(x float64) float64 { return (x - in.Mean) / sigma }

	var p float64
	switch in.Direction {
	case DirectionAbove:
		p = 1 - NormalCDF(z(in.Threshold))
	case DirectionBelow:
		p = NormalCDF(z(in.Threshold))
	case DirectionBetween:
		if in.UpperThreshold <= in.Threshold {
			return 0, fmt.Errorf("%w: empty range [%.2f, %.2f]", ErrInvalidSignal, in.Threshold, in.UpperThreshold)
		}
		p = NormalCDF(z(in.UpperThreshold)) - NormalCDF(z(in.Threshold))
	default:
		return 0, fmt.Errorf("%w: unknown direction %q", ErrInvalidSignal, in.Direction)
	}
	return math.Max(0, math.Min(1, p)), nil
}

// Evaluate builds a Signal from a forecast and the quoted YES probability.
// Any missing, out-of-domain or stale input returns an error wrapping
// ErrInvalidSignal instead of a guessed number.
func (m EdgeModel) Evaluate(in ForecastInput, marketProb float64, now time.Time) (Signal, error) {
	if in.MarketID == "" {
		return Signal{}, fmt.Errorf("%w: missing market id", ErrInvalidSignal)
	}
	if !validProbability(marketProb) {
		return Signal{}, fmt.Errorf("%w: market probability %v out of [0,1]", ErrInvalidSignal, marketProb)
	}
	if in.ForecastTime.IsZero() || in.ResolutionTime.IsZero() {
		return Signal{}, fmt.Errorf("%w: missing forecast or resolution time", ErrInvalidSignal)
	}
	if err := m.checkFreshness(in.ForecastTime, now); err != nil {
		return Signal{}, err
	}

	hours := in.ResolutionTime.Sub(now).Hours()
	if err := m.checkHorizon(hours); err != nil {
		return Signal{}, err
	}

	fair, err := m.FairProbability(in, hours)
	if err != nil {
		return Signal{}, err
	}

	sig := Signal{
		ID:                in.ID,
		MarketID:          in.MarketID,
		Question:          in.Question,
		Side:              in.Side,
		FairProbability:   fair,
		MarketProbability: marketProb,
		Confidence:        m.ConfidenceFor(hours),
		HoursToResolution: hours,
		Disagreement:      in.Disagreement,
		GeneratedAt:       in.ForecastTime,
	}
	return sig.Normalized(), nil
}

// NetEdge is fair - market - fee(market) for the held side.
func (m EdgeModel) NetEdge(s Signal) float64 {
	fair, market := s.Normalized().SideProbabilities()
	return fair - market - m.Fee(market)
}

// Check validates an already-built signal and returns its effective
// confidence: the lower of the declared tier and the horizon-derived tier.
// LOW confidence is always rejected.
func (m EdgeModel) Check(s Signal, now time.Time) (Confidence, error) {
	if s.MarketID == "" {
		return ConfidenceLow, fmt.Errorf("%w: missing market id", ErrInvalidSignal)
	}
	if !validProbability(s.FairProbability) || !validProbability(s.MarketProbability) {
		return ConfidenceLow, fmt.Errorf("%w: probability out of [0,1]", ErrInvalidSignal)
	}
	if s.Side != "" && s.Side != SideYes && s.Side != SideNo {
		return ConfidenceLow, fmt.Errorf("%w: unknown side %q", ErrInvalidSignal, s.Side)
	}
	if !s.Confidence.Valid() {
		return ConfidenceLow, fmt.Errorf("%w: unknown confidence %q", ErrInvalidSignal, s.Confidence)
	}
	if err := m.checkHorizon(s.HoursToResolution); err != nil {
		return ConfidenceLow, err
	}
	if err := m.checkFreshness(s.GeneratedAt, now); err != nil {
		return ConfidenceLow, err
	}
	if s.Disagreement < 0 || math.IsNaN(s.Disagreement) {
		return ConfidenceLow, fmt.Errorf("%w: negative disagreement", ErrInvalidSignal)
	}

	conf := lowerConfidence(s.Confidence, m.ConfidenceFor(s.HoursToResolution))
	if conf == ConfidenceLow {
		return conf, fmt.Errorf("%w: LOW confidence", ErrInvalidSignal)
	}
	return conf, nil
}

// MeetsThreshold reports whether edge is large enough to act on at the
// given confidence.
func (m EdgeModel) MeetsThreshold(edge float64, conf Confidence) bool {
	switch conf {
	case ConfidenceHigh:
		return edge >= m.cfg.MinEdge
	case ConfidenceMedium:
		return edge >= m.cfg.MinEdge*m.cfg.MediumMultiplier
	default:
		return false
	}
}

func (m EdgeModel) checkHorizon(hours float64) error {
	if math.IsNaN(hours) || hours <= 0 {
		return fmt.Errorf("%w: market at or past resolution", ErrInvalidSignal)
	}
	if hours > m.cfg.MaxHorizonHours {
		return fmt.Errorf("%w: horizon %.0fh exceeds max %.0fh", ErrInvalidSignal, hours, m.cfg.MaxHorizonHours)
	}
	return nil
}

func (m EdgeModel) checkFreshness(generated, now time.Time) error {
	if m.cfg.MaxForecastAge <= 0 {
		return nil
	}
	if generated.IsZero() {
		return fmt.Errorf("%w: missing forecast timestamp", ErrInvalidSignal)
	}
	if age := now.Sub(generated); age > m.cfg.MaxForecastAge {
		return fmt.Errorf("%w: forecast is %s old (max %s)", ErrInvalidSignal, age.Round(time.Minute), m.cfg.MaxForecastAge)
	}
	return nil
}

func validProbability(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

var confidenceRank = map[Confidence]int{
	ConfidenceLow:    0,
	ConfidenceMedium: 1,
	ConfidenceHigh:   2,
}

func lowerConfidence(a, b Confidence) Confidence {
	if confidenceRank[a] <= confidenceRank[b] {
		return a
	}
	return b
}
