package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseQuestion(t *testing.T) {
	tests := []struct {
		q         string
		city      string
		date      string
		threshold float64
		upper     float64
		dir       Direction
	}{
		{
			q:         "Will the highest temperature in New York City be 75°F or higher on January 15?",
			city:      "New York",
			date:      "01-15",
			threshold: 75,
			dir:       DirectionAbove,
		},
		{
			q:         "Highest temperature in London on Mar 3, 2026: between 10-12°C?",
			city:      "London",
			date:      "2026-03-03",
			threshold: 50,
			upper:     53.6,
			dir:       DirectionBetween,
		},
		{
			q:         "Will Seoul be below 0°C on 2026-01-20?",
			city:      "Seoul",
			date:      "2026-01-20",
			threshold: 32,
			dir:       DirectionBelow,
		},
		{
			q:         "Will LA hit 90°F on July 4?",
			city:      "Los Angeles",
			date:      "07-04",
			threshold: 90,
			dir:       DirectionAbove,
		},
	}
	for _, tc := range tests {
		t.Run(tc.city, func(t *testing.T) {
			p := ParseQuestion(tc.q)
			assert.False(t, p.Unparseable)
			assert.Equal(t, tc.city, p.City)
			assert.Equal(t, tc.date, p.Date)
			assert.True(t, p.HasThreshold)
			assert.InDelta(t, tc.threshold, p.ThresholdF, 1e-9)
			assert.InDelta(t, tc.upper, p.UpperF, 1e-9)
			assert.Equal(t, tc.dir, p.Direction)
		})
	}
}

func TestParseQuestion_Unparseable(t *testing.T) {
	for _, q := range []string{"", "Will Bitcoin hit $100k by December?", "Will it rain in Atlantis on May 2?"} {
		p := ParseQuestion(q)
		assert.True(t, p.Unparseable, q)
		assert.NotEmpty(t, p.Reason)
		_, ok := p.CityDateKey()
		assert.False(t, ok)
	}
}

func TestParseQuestion_CityWithoutDate(t *testing.T) {
	p := ParseQuestion("Will Chicago see snow this winter?")
	assert.False(t, p.Unparseable)
	assert.Equal(t, "Chicago", p.City)
	assert.False(t, p.HasThreshold)
	_, ok := p.CityDateKey()
	assert.False(t, ok)
}

func TestCityDateKey(t *testing.T) {
	p := ParseQuestion("Will Miami be 90°F or higher on Aug 2?")
	key, ok := p.CityDateKey()
	assert.True(t, ok)
	assert.Equal(t, "Miami|08-02", key)
}
