package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// SnapshotFile sirve snapshots desde un fichero JSONL. Implementa
// ports.SnapshotProvider para replays y ejecuciones offline.
type SnapshotFile struct {
	path  string
	tiers domain.SpreadTiers
	now   func() time.Time
}

// NewSnapshotFile crea el provider. tiers vacío usa DefaultSpreadTiers.
func NewSnapshotFile(path string, tiers domain.SpreadTiers) *SnapshotFile {
	if tiers.HighBelowPct <= 0 || tiers.MediumBelowPct <= 0 {
		tiers = domain.DefaultSpreadTiers()
	}
	return &SnapshotFile{path: path, tiers: tiers, now: time.Now}
}

// Snapshots devuelve los snapshots pedidos. Si un mercado aparece varias
// veces gana la última línea. Sin tier explícito se clasifica por spread.
func (f *SnapshotFile) Snapshots(_ context.Context, marketIDs []string) (map[string]domain.MarketSnapshot, error) {
	all, err := decodeFile[domain.MarketSnapshot](f.path)
	if err != nil {
		return nil, fmt.Errorf("feed.SnapshotFile: %w", err)
	}

	want := make(map[string]bool, len(marketIDs))
	for _, id := range marketIDs {
		want[id] = true
	}

	now := f.now().UTC()
	result := make(map[string]domain.MarketSnapshot, len(marketIDs))
	for _, s := range all {
		if !want[s.MarketID] {
			continue
		}
		if s.Tier == "" && !s.Resolved {
			s.Tier = f.tiers.Classify(s.Bid, s.Ask)
		}
		if s.At.IsZero() {
			s.At = now
		}
		result[s.MarketID] = s
	}
	return result, nil
}
