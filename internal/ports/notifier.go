package ports

import "github.com/alejandrodnm/polyedge/internal/domain"

// Reporter shows cycle results to the user.
type Reporter interface {
	PrintCycle(report domain.CycleReport)
	PrintStatus(status domain.EngineStatus, open []domain.Position)
	PrintReport(report domain.RunReport)
}
