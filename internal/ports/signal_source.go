package ports

import (
	"context"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// SignalSource produces the signals of one cycle.
type SignalSource interface {
	Signals(ctx context.Context) ([]domain.Signal, error)
}
