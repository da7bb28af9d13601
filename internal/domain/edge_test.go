package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestFee_PeaksAtHalf(t *testing.T) {
	m := NewEdgeModel(EdgeConfig{})
	assert.InDelta(t, 0.02, m.Fee(0.5), 1e-9)
	for p := 0.0; p <= 1.0; p += 0.05 {
		assert.LessOrEqual(t, m.Fee(p), m.Fee(0.5)+1e-12, "p=%.2f", p)
	}
}

func TestFee_VanishesAtExtremes(t *testing.T) {
	m := NewEdgeModel(EdgeConfig{})
	assert.Less(t, m.Fee(0), 1e-4)
	assert.Less(t, m.Fee(1), 1e-4)
	assert.Less(t, m.Fee(0.999), 1e-4)
	assert.InDelta(t, m.Fee(0.3), m.Fee(0.7), 1e-12)
}

func TestNetEdge_YesAndNo(t *testing.T) {
	m := NewEdgeModel(EdgeConfig{})

	yes := Signal{FairProbability: 0.70, MarketProbability: 0.50}
	assert.InDelta(t, 0.18, m.NetEdge(yes), 1e-9)

	no := Signal{Side: SideNo, FairProbability: 0.30, MarketProbability: 0.60}
	assert.InDelta(t, 0.7-0.4-0.0192, m.NetEdge(no), 1e-9)
}

func TestConfidenceFor(t *testing.T) {
	m := NewEdgeModel(EdgeConfig{})
	assert.Equal(t, ConfidenceHigh, m.ConfidenceFor(48))
	assert.Equal(t, ConfidenceHigh, m.ConfidenceFor(72))
	assert.Equal(t, ConfidenceMedium, m.ConfidenceFor(100))
	assert.Equal(t, ConfidenceLow, m.ConfidenceFor(200))
}

func TestNormalCDF(t *testing.T) {
	assert.InDelta(t, 0.5, NormalCDF(0), 1e-12)
	assert.InDelta(t, 0.8413, NormalCDF(1), 1e-4)
	assert.InDelta(t, 0.0228, NormalCDF(-2), 1e-4)
}

func TestEvaluate_AboveThreshold(t *testing.T) {
	m := NewEdgeModel(EdgeConfig{})
	in := ForecastInput{
		MarketID:       "m1",
		Mean:           80,
		Threshold:      75,
		Direction:      DirectionAbove,
		ForecastTime:   testNow.Add(-time.Hour),
		ResolutionTime: testNow.Add(48 * time.Hour),
	}

	sig, err := m.Evaluate(in, 0.60, testNow)
	require.NoError(t, err)

	// 2 days out: sigma = 3.5 * 0.9
	assert.InDelta(t, NormalCDF(5/3.15), sig.FairProbability, 1e-9)
	assert.Equal(t, ConfidenceHigh, sig.Confidence)
	assert.Equal(t, SideYes, sig.Side)
	assert.InDelta(t, 48, sig.HoursToResolution, 1e-9)
}

func TestEvaluate_Between(t *testing.T) {
	m := NewEdgeModel(EdgeConfig{})
	in := ForecastInput{
		MarketID:       "m1",
		Mean:           70,
		Sigma:          2,
		Threshold:      68,
		UpperThreshold: 72,
		Direction:      DirectionBetween,
		ForecastTime:   testNow,
		ResolutionTime: testNow.Add(24 * time.Hour),
	}
	sig, err := m.Evaluate(in, 0.5, testNow)
	require.NoError(t, err)
	assert.InDelta(t, NormalCDF(1)-NormalCDF(-1), sig.FairProbability, 1e-9)
}

func TestEvaluate_NoSignal(t *testing.T) {
	m := NewEdgeModel(EdgeConfig{})
	base := ForecastInput{
		MarketID:       "m1",
		Mean:           80,
		Threshold:      75,
		Direction:      DirectionAbove,
		ForecastTime:   testNow,
		ResolutionTime: testNow.Add(48 * time.Hour),
	}

	tests := []struct {
		name   string
		mutate func(*ForecastInput)
		market float64
	}{
		{"market out of range", func(*ForecastInput) {}, 1.2},
		{"missing market id", func(in *ForecastInput) { in.MarketID = "" }, 0.5},
		{"horizon too far", func(in *ForecastInput) { in.ResolutionTime = testNow.Add(300 * time.Hour) }, 0.5},
		{"already resolved", func(in *ForecastInput) { in.ResolutionTime = testNow.Add(-time.Hour) }, 0.5},
		{"stale forecast", func(in *ForecastInput) { in.ForecastTime = testNow.Add(-13 * time.Hour) }, 0.5},
		{"unknown direction", func(in *ForecastInput) { in.Direction = "SIDEWAYS" }, 0.5},
		{"missing times", func(in *ForecastInput) { in.ForecastTime = time.Time{} }, 0.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := m.Evaluate(in, tc.market, testNow)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSignal))
		})
	}
}

func TestNewEdgeModel_ForecastAgeDefault(t *testing.T) {
	old := Signal{
		MarketID:          "m1",
		FairProbability:   0.70,
		MarketProbability: 0.50,
		Confidence:        ConfidenceHigh,
		HoursToResolution: 24,
		GeneratedAt:       testNow.Add(-30 * 24 * time.Hour),
	}

	m := NewEdgeModel(EdgeConfig{})
	assert.Equal(t, 12*time.Hour, m.Config().MaxForecastAge)
	_, err := m.Check(old, testNow)
	assert.ErrorIs(t, err, ErrInvalidSignal)

	off := NewEdgeModel(EdgeConfig{MaxForecastAge: -1})
	conf, err := off.Check(old, testNow)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceHigh, conf)
}

func TestCheck_LowConfidenceFailsClosed(t *testing.T) {
	m := NewEdgeModel(EdgeConfig{})
	sig := Signal{
		MarketID:          "m1",
		FairProbability:   0.95,
		MarketProbability: 0.10,
		Confidence:        ConfidenceLow,
		HoursToResolution: 24,
		GeneratedAt:       testNow,
	}
	_, err := m.Check(sig, testNow)
	assert.ErrorIs(t, err, ErrInvalidSignal)
}

func TestCheck_HorizonCapsDeclaredConfidence(t *testing.T) {
	m := NewEdgeModel(EdgeConfig{})
	sig := Signal{
		MarketID:          "m1",
		FairProbability:   0.7,
		MarketProbability: 0.5,
		Confidence:        ConfidenceHigh,
		HoursToResolution: 100,
		GeneratedAt:       testNow,
	}
	conf, err := m.Check(sig, testNow)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceMedium, conf)

	sig.HoursToResolution = 200
	_, err = m.Check(sig, testNow)
	assert.ErrorIs(t, err, ErrInvalidSignal)
}

func TestMeetsThreshold(t *testing.T) {
	m := NewEdgeModel(EdgeConfig{MinEdge: 0.10})
	assert.True(t, m.MeetsThreshold(0.10, ConfidenceHigh))
	assert.False(t, m.MeetsThreshold(0.09, ConfidenceHigh))
	assert.False(t, m.MeetsThreshold(0.11, ConfidenceMedium))
	assert.True(t, m.MeetsThreshold(0.13, ConfidenceMedium))
	assert.False(t, m.MeetsThreshold(0.90, ConfidenceLow))
}
