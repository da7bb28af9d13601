package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/polyedge/internal/application/engine"
	"github.com/alejandrodnm/polyedge/internal/domain"
)

func TestLatestPerMarket(t *testing.T) {
	t0 := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	signals := []domain.Signal{
		{ID: "b-old", MarketID: "b", GeneratedAt: t0},
		{ID: "a", MarketID: "a", GeneratedAt: t0},
		{ID: "b-new", MarketID: "b", GeneratedAt: t0.Add(time.Minute)},
	}

	out, dropped := engine.LatestPerMarket(signals)

	assert.Equal(t, 1, dropped)
	if assert.Len(t, out, 2) {
		assert.Equal(t, "a", out[0].ID)
		assert.Equal(t, "b-new", out[1].ID)
		assert.Equal(t, domain.SideYes, out[0].Side)
	}
}

func TestTruncateStr(t *testing.T) {
	assert.Equal(t, "short", engine.TruncateStr("short", 10))
	assert.Equal(t, "Will it...", engine.TruncateStr("Will it be hot in Miami?", 10))
	assert.Equal(t, "Seúl", engine.TruncateStr("Seúl", 4))
}
