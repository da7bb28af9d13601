package ports

import (
	"context"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// SnapshotProvider returns the current state of each requested market.
type SnapshotProvider interface {
	// Snapshots returns one snapshot per market id. Markets that could not be
	// fetched are missing from the map; the error is for failures that
	// invalidate the whole request.
	Snapshots(ctx context.Context, marketIDs []string) (map[string]domain.MarketSnapshot, error)
}
