package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// ReportStorage is the read model of cycles. It can be rebuilt from the
// audit log and is never the source of truth.
type ReportStorage interface {
	// SaveCycle stores the cycle summary and the positions closed in it.
	SaveCycle(ctx context.Context, report domain.CycleReport, closed []domain.Position) error

	// GetReport aggregates cycles and closes within [from, to].
	GetReport(ctx context.Context, from, to time.Time) (domain.RunReport, error)

	// Close closes the database connection.
	Close() error
}
