package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

// SignalFile lee señales ya calculadas. Implementa ports.SignalSource.
type SignalFile struct {
	path string
}

// NewSignalFile crea la fuente. El fichero se relee en cada llamada.
func NewSignalFile(path string) *SignalFile {
	return &SignalFile{path: path}
}

// Signals devuelve las señales del fichero tal cual; la validación es del engine.
func (f *SignalFile) Signals(_ context.Context) ([]domain.Signal, error) {
	signals, err := decodeFile[domain.Signal](f.path)
	if err != nil {
		return nil, fmt.Errorf("feed.SignalFile: %w", err)
	}
	slog.Debug("feed: signals loaded", "file", f.path, "count", len(signals))
	return signals, nil
}

// ForecastFile convierte forecasts crudos en señales con el EdgeModel,
// usando como probabilidad de mercado el mid YES del snapshot actual.
type ForecastFile struct {
	path      string
	model     domain.EdgeModel
	snapshots ports.SnapshotProvider
	now       func() time.Time
}

// NewForecastFile crea la fuente de forecasts.
func NewForecastFile(path string, model domain.EdgeModel, snapshots ports.SnapshotProvider) *ForecastFile {
	return &ForecastFile{path: path, model: model, snapshots: snapshots, now: time.Now}
}

// WithClock fija el reloj. Solo para tests.
func (f *ForecastFile) WithClock(now func() time.Time) *ForecastFile {
	f.now = now
	return f
}

// Signals evalúa cada forecast. Los que el modelo rechaza, o cuyo mercado no
// tiene precio, se descartan con un warning.
func (f *ForecastFile) Signals(ctx context.Context) ([]domain.Signal, error) {
	inputs, err := decodeFile[domain.ForecastInput](f.path)
	if err != nil {
		return nil, fmt.Errorf("feed.ForecastFile: %w", err)
	}

	ids := make([]string, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if in.MarketID != "" && !seen[in.MarketID] {
			seen[in.MarketID] = true
			ids = append(ids, in.MarketID)
		}
	}
	snaps, err := f.snapshots.Snapshots(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("feed.ForecastFile: snapshots: %w", err)
	}

	now := f.now()
	signals := make([]domain.Signal, 0, len(inputs))
	for _, in := range inputs {
		snap, ok := snaps[in.MarketID]
		if !ok || snap.Resolved {
			slog.Warn("feed: forecast without market price", "market", in.MarketID)
			continue
		}
		prob := snap.QuoteFor(domain.SideYes).Mark()
		if prob <= 0 {
			slog.Warn("feed: forecast without market price", "market", in.MarketID)
			continue
		}
		sig, err := f.model.Evaluate(in, prob, now)
		if err != nil {
			slog.Warn("feed: forecast rejected", "market", in.MarketID, "err", err)
			continue
		}
		signals = append(signals, sig)
	}

	slog.Debug("feed: forecasts evaluated", "inputs", len(inputs), "signals", len(signals))
	return signals, nil
}
