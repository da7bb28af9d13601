package storage

// sqlite.go: read model de los ciclos del paper engine.
//
// Estrategia:
//   - `cycles`: una fila por ciclo con los conteos y el snapshot de capital.
//   - `closed_positions`: una fila por posición cerrada, con motivo y PnL.
//   - Ambas tablas son idempotentes por clave (cycle_id / position id): el
//     audit log es la fuente de verdad y esta DB se puede reconstruir.
//   - Prune automático al arrancar: ciclos con más de 90 días.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

const schema = `
-- Resumen por ciclo
CREATE TABLE IF NOT EXISTS cycles (
    cycle_id       TEXT PRIMARY KEY,
    started_at     TEXT    NOT NULL,
    finished_at    TEXT    NOT NULL,
    signals        INTEGER NOT NULL DEFAULT 0,
    entries        INTEGER NOT NULL DEFAULT 0,
    add_ons        INTEGER NOT NULL DEFAULT 0,
    exits          INTEGER NOT NULL DEFAULT 0,
    skips          INTEGER NOT NULL DEFAULT 0,
    duplicates     INTEGER NOT NULL DEFAULT 0,
    drift          REAL    NOT NULL DEFAULT 0,
    initial        REAL    NOT NULL DEFAULT 0,
    available      REAL    NOT NULL DEFAULT 0,
    allocated      REAL    NOT NULL DEFAULT 0,
    realized_pnl   REAL    NOT NULL DEFAULT 0,
    written_off    REAL    NOT NULL DEFAULT 0,
    peak_equity    REAL    NOT NULL DEFAULT 0,
    open_positions INTEGER NOT NULL DEFAULT 0
);

-- Una fila por posición cerrada
CREATE TABLE IF NOT EXISTS closed_positions (
    id           TEXT PRIMARY KEY,
    cycle_id     TEXT NOT NULL,
    market_id    TEXT NOT NULL,
    question     TEXT,
    side         TEXT NOT NULL,
    entry_price  REAL NOT NULL DEFAULT 0,
    exit_price   REAL NOT NULL DEFAULT 0,
    contracts    REAL NOT NULL DEFAULT 0,
    cost_basis   REAL NOT NULL DEFAULT 0,
    add_ons      INTEGER NOT NULL DEFAULT 0,
    exit_reason  TEXT NOT NULL,
    realized_pnl REAL NOT NULL DEFAULT 0,
    entry_time   TEXT NOT NULL,
    exit_time    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cycles_finished ON cycles(finished_at DESC);
CREATE INDEX IF NOT EXISTS idx_closed_exit     ON closed_positions(exit_time DESC);
CREATE INDEX IF NOT EXISTS idx_closed_reason   ON closed_positions(exit_reason);
`

const (
	retentionCycles = 90 * 24 * time.Hour // ciclos: 90 días
	// ancho fijo para que el orden lexicográfico sea el cronológico
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

// SQLiteStorage implementa ports.ReportStorage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveCycle persiste el resumen del ciclo y las posiciones cerradas en él.
// Repetir la llamada con el mismo ciclo no duplica filas.
func (s *SQLiteStorage) SaveCycle(ctx context.Context, r domain.CycleReport, closed []domain.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveCycle: begin tx: %w", err)
	}
	defer tx.Rollback()

	c := r.Capital
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cycles
			(cycle_id, started_at, finished_at, signals, entries, add_ons, exits, skips,
			 duplicates, drift, initial, available, allocated, realized_pnl, written_off,
			 peak_equity, open_positions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cycle_id) DO NOTHING`,
		r.CycleID, formatTime(r.StartedAt), formatTime(r.FinishedAt), r.SignalsReceived,
		len(r.Entries), len(r.AddOns), len(r.Exits), len(r.Skips),
		r.Duplicates, r.Reconciliation.Drift,
		c.Initial, c.Available, c.Allocated, c.RealizedPnL, c.WrittenOff, c.PeakEquity, c.OpenPositions,
	); err != nil {
		return fmt.Errorf("storage.SaveCycle: insert cycle: %w", err)
	}

	if len(closed) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO closed_positions
				(id, cycle_id, market_id, question, side, entry_price, exit_price, contracts,
				 cost_basis, add_ons, exit_reason, realized_pnl, entry_time, exit_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("storage.SaveCycle: prepare: %w", err)
		}
		defer stmt.Close()

		for _, p := range closed {
			exitAt := r.FinishedAt
			if p.ExitTime != nil {
				exitAt = *p.ExitTime
			}
			if _, err := stmt.ExecContext(ctx,
				p.ID, r.CycleID, p.MarketID, p.Question, string(p.Side),
				p.EntryPrice, p.ExitPrice, p.Contracts, p.CostBasis, p.AddOns,
				string(p.ExitReason), p.RealizedPnL,
				formatTime(p.EntryTime), formatTime(exitAt),
			); err != nil {
				return fmt.Errorf("storage.SaveCycle: insert position %s: %w", p.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveCycle: commit: %w", err)
	}
	return nil
}

// GetReport agrega los ciclos terminados y las posiciones cerradas en el
// rango dado.
func (s *SQLiteStorage) GetReport(ctx context.Context, from, to time.Time) (domain.RunReport, error) {
	report := domain.RunReport{
		From:     from.UTC(),
		To:       to.UTC(),
		ByReason: make(map[domain.ExitReason]domain.ReasonStats),
	}
	lo, hi := formatTime(from), formatTime(to)

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(entries), 0), COALESCE(SUM(add_ons), 0),
		       COALESCE(SUM(exits), 0),   COALESCE(SUM(skips), 0)
		FROM cycles
		WHERE finished_at BETWEEN ? AND ?`, lo, hi,
	).Scan(&report.Cycles, &report.Entries, &report.AddOns, &report.Exits, &report.Skips); err != nil {
		return report, fmt.Errorf("storage.GetReport: cycles: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT exit_reason, COUNT(*), COALESCE(SUM(realized_pnl), 0),
		       COALESCE(SUM(CASE WHEN realized_pnl > 0 THEN 1 ELSE 0 END), 0)
		FROM closed_positions
		WHERE exit_time BETWEEN ? AND ?
		GROUP BY exit_reason`, lo, hi)
	if err != nil {
		return report, fmt.Errorf("storage.GetReport: closed positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reason string
		var count, wins int
		var pnl float64
		if err := rows.Scan(&reason, &count, &pnl, &wins); err != nil {
			return report, fmt.Errorf("storage.GetReport: scan row: %w", err)
		}
		report.ByReason[domain.ExitReason(reason)] = domain.ReasonStats{Count: count, PnL: pnl}
		report.Wins += wins
		report.Losses += count - wins
		report.RealizedPnL += pnl
	}
	if err := rows.Err(); err != nil {
		return report, fmt.Errorf("storage.GetReport: rows: %w", err)
	}

	var c domain.CapitalState
	var at string
	err = s.db.QueryRowContext(ctx, `
		SELECT finished_at, initial, available, allocated, realized_pnl, written_off,
		       peak_equity, open_positions
		FROM cycles
		WHERE finished_at BETWEEN ? AND ?
		ORDER BY finished_at DESC
		LIMIT 1`, lo, hi,
	).Scan(&at, &c.Initial, &c.Available, &c.Allocated, &c.RealizedPnL, &c.WrittenOff, &c.PeakEquity, &c.OpenPositions)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return report, fmt.Errorf("storage.GetReport: last capital: %w", err)
	default:
		c.At, _ = time.Parse(timeLayout, at)
		report.LastCapital = &c
	}
	return report, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// pruneOld elimina ciclos antiguos para mantener la DB ligera. Las
// posiciones cerradas se conservan: son el histórico del report.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := formatTime(time.Now().Add(-retentionCycles))
	s.db.ExecContext(ctx, `DELETE FROM cycles WHERE finished_at < ?`, cutoff)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
