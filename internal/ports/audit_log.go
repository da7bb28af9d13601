package ports

import "github.com/alejandrodnm/polyedge/internal/domain"

// AuditLog is the append-only record the engine writes every decision to.
type AuditLog interface {
	// AppendTrade returns false, without error, when the logical action is
	// already recorded.
	AppendTrade(r domain.TradeRecord) (bool, error)
	AppendPosition(p domain.Position) error
	AppendCapital(c domain.CapitalState) error
	LastCapital() (domain.CapitalState, bool)

	// Records returns every applied trade record in log order.
	Records() []domain.TradeRecord
	// Positions returns the positions reconstructed from the trade log.
	Positions() []domain.Position
	SignalExecuted(signalID string) bool
}
