package audit

import (
	"log/slog"
	"sort"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Index se deriva entero del trade log: reproducir el log sobre un Index
// vacío siempre da el mismo resultado, así que descartarlo y reconstruirlo
// es una recuperación válida.
type Index struct {
	all       []domain.TradeRecord
	byPos     map[string][]domain.TradeRecord
	keys      map[string]struct{}
	counts    map[domain.TradeAction]int
	positions map[string]*domain.Position
	signals   map[string]string // signal id -> position id
}

// NewIndex devuelve un índice vacío.
func NewIndex() *Index {
	return &Index{
		byPos:     make(map[string][]domain.TradeRecord),
		keys:      make(map[string]struct{}),
		counts:    make(map[domain.TradeAction]int),
		positions: make(map[string]*domain.Position),
		signals:   make(map[string]string),
	}
}

// Has indica si ya se aplicó un registro con esa clave lógica.
func (ix *Index) Has(key string) bool {
	_, ok := ix.keys[key]
	return ok
}

// Apply incorpora un registro al índice. Si la clave lógica ya existe el
// registro se descarta y Apply devuelve false.
func (ix *Index) Apply(r domain.TradeRecord) bool {
	key := r.LogicalKey()
	if ix.Has(key) {
		return false
	}
	ix.keys[key] = struct{}{}
	ix.all = append(ix.all, r)
	ix.counts[r.Action]++
	if r.PositionID != "" {
		ix.byPos[r.PositionID] = append(ix.byPos[r.PositionID], r)
	}

	switch r.Action {
	case domain.ActionEnter:
		if _, exists := ix.positions[r.PositionID]; exists {
			slog.Warn("audit: second ENTER for position", "position", r.PositionID, "record", r.ID)
			break
		}
		ix.positions[r.PositionID] = &domain.Position{
			ID:            r.PositionID,
			MarketID:      r.MarketID,
			Question:      r.Question,
			Side:          r.Side,
			SignalID:      r.SignalID,
			EntryRecordID: r.ID,
			EntryPrice:    r.Price,
			EntryEdge:     r.Edge,
			EntryTime:     r.Timestamp,
			Contracts:     r.PositionContracts,
			CostBasis:     r.CostBasis,
			Status:        domain.PositionOpen,
		}
		if r.SignalID != "" {
			ix.signals[r.SignalID] = r.PositionID
		}
	case domain.ActionAddOn:
		if p, ok := ix.positions[r.PositionID]; ok {
			p.Contracts = r.PositionContracts
			p.CostBasis = r.CostBasis
			p.AddOns++
		}
	case domain.ActionExit:
		if p, ok := ix.positions[r.PositionID]; ok {
			exitAt := r.Timestamp
			p.Status = domain.PositionClosed
			p.ExitTime = &exitAt
			p.ExitPrice = r.Price
			p.ExitReason = r.ExitReason
			p.RealizedPnL = r.RealizedPnL
		}
	}
	return true
}

// All devuelve todos los registros aplicados en orden de log.
func (ix *Index) All() []domain.TradeRecord {
	out := make([]domain.TradeRecord, len(ix.all))
	copy(out, ix.all)
	return out
}

// Records devuelve los registros de una posición, en orden.
func (ix *Index) Records(positionID string) []domain.TradeRecord {
	recs := ix.byPos[positionID]
	out := make([]domain.TradeRecord, len(recs))
	copy(out, recs)
	return out
}

// Counts devuelve el número de registros por acción.
func (ix *Index) Counts() map[domain.TradeAction]int {
	out := make(map[domain.TradeAction]int, len(ix.counts))
	for k, v := range ix.counts {
		out[k] = v
	}
	return out
}

// Len es el número de registros aplicados.
func (ix *Index) Len() int { return len(ix.all) }

// Position devuelve una posición reconstruida.
func (ix *Index) Position(id string) (domain.Position, bool) {
	p, ok := ix.positions[id]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Positions devuelve todas las posiciones reconstruidas, ordenadas por id.
func (ix *Index) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(ix.positions))
	for _, p := range ix.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SignalExecuted indica si un signal id ya produjo una entrada.
func (ix *Index) SignalExecuted(signalID string) bool {
	if signalID == "" {
		return false
	}
	_, ok := ix.signals[signalID]
	return ok
}
