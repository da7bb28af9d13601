package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/alejandrodnm/polyedge/config"
	"github.com/alejandrodnm/polyedge/internal/adapters/audit"
	"github.com/alejandrodnm/polyedge/internal/adapters/notify"
	"github.com/alejandrodnm/polyedge/internal/adapters/storage"
	"github.com/alejandrodnm/polyedge/internal/domain"
)

// runVerify revisa cada fichero del audit log. Devuelve false si hay corrupción.
func runVerify(dir string) bool {
	ok := true
	for _, name := range []string{audit.TradesFile, audit.PositionsFile, audit.CapitalFile} {
		rep, err := audit.Verify(filepath.Join(dir, name))
		if err != nil {
			slog.Error("verify failed", "file", name, "err", err)
			ok = false
			continue
		}
		fmt.Printf("%-16s lines=%d ok=%d corrupt=%d\n", name, rep.Lines, rep.Applied, rep.Corrupt)
		if rep.Corrupt > 0 {
			fmt.Printf("  !! corrupt lines: %v\n", rep.CorruptLines)
			ok = false
		}
	}
	return ok
}

// runRebuild descarta el índice en memoria y lo reconstruye desde disco.
func runRebuild(l *audit.Log) error {
	rep, err := l.Rebuild()
	if err != nil {
		return err
	}
	counts := l.Index().Counts()
	actions := make([]string, 0, len(counts))
	for a := range counts {
		actions = append(actions, string(a))
	}
	sort.Strings(actions)

	fmt.Printf("trades: lines=%d applied=%d duplicates=%d corrupt=%d\n",
		rep.Lines, rep.Applied, rep.Duplicates, rep.Corrupt)
	for _, a := range actions {
		fmt.Printf("  %-7s %d\n", a, counts[domain.TradeAction(a)])
	}

	open := 0
	for _, p := range l.Positions() {
		if p.Status == domain.PositionOpen {
			open++
		}
	}
	fmt.Printf("positions: %d (%d open)\n", len(l.Positions()), open)
	if c, ok := l.LastCapital(); ok {
		fmt.Printf("last capital: available $%.2f allocated $%.2f realized $%+.2f at %s\n",
			c.Available, c.Allocated, c.RealizedPnL, c.At.Format(time.RFC3339))
	}
	return nil
}

func runReport(cfg *config.Config, console *notify.Console, days int) {
	if !cfg.StorageEnabled() {
		slog.Error("report needs storage; storage.dsn is off")
		os.Exit(1)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)
	r, err := store.GetReport(context.Background(), from, to)
	if err != nil {
		slog.Error("failed to build report", "err", err)
		os.Exit(1)
	}
	console.PrintReport(r)
}
