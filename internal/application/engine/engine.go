package engine

import (
	"context"
	"sort"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// CycleRunner is what the CLI and the HTTP API need from an engine.
type CycleRunner interface {
	EvaluateCycle(ctx context.Context, signals []domain.Signal) (*domain.CycleReport, error)
	Status() domain.EngineStatus
}

// LatestPerMarket keeps the most recent signal per market, sorted by market
// id, and returns how many were dropped.
func LatestPerMarket(signals []domain.Signal) ([]domain.Signal, int) {
	latest := make(map[string]domain.Signal, len(signals))
	for _, s := range signals {
		s = s.Normalized()
		prev, ok := latest[s.MarketID]
		if !ok || s.GeneratedAt.After(prev.GeneratedAt) ||
			(s.GeneratedAt.Equal(prev.GeneratedAt) && s.ID > prev.ID) {
			latest[s.MarketID] = s
		}
	}

	out := make([]domain.Signal, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, len(signals) - len(out)
}

// TruncateStr cuts s to maxLen runes, ending in "..." when truncated.
func TruncateStr(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
