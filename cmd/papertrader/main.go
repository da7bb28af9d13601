package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polyedge/config"
	"github.com/alejandrodnm/polyedge/internal/adapters/audit"
	"github.com/alejandrodnm/polyedge/internal/adapters/feed"
	"github.com/alejandrodnm/polyedge/internal/adapters/notify"
	"github.com/alejandrodnm/polyedge/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyedge/internal/adapters/storage"
	"github.com/alejandrodnm/polyedge/internal/application/engine/paper"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/metrics"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	signalsPath := flag.String("signals", "", "signals file (JSONL/YAML), overrides config")
	forecastsPath := flag.String("forecasts", "", "forecasts file evaluated with the edge model, overrides config")
	snapshotsPath := flag.String("snapshots", "", "snapshot fixture instead of Polymarket, overrides config")
	once := flag.Bool("once", false, "run one cycle and exit")
	status := flag.Bool("status", false, "print status and open positions, then exit")
	report := flag.Bool("report", false, "print the run report from SQLite, then exit")
	days := flag.Int("days", 7, "report window in days")
	rebuild := flag.Bool("rebuild", false, "replay the audit log from scratch and print the summary")
	verify := flag.Bool("verify", false, "verify every audit file line and exit non-zero on corruption")
	serve := flag.String("serve", "", "HTTP address for /api/v1/status and /metrics, overrides config")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print action tables (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *signalsPath != "" {
		cfg.Feed.Signals = *signalsPath
	}
	if *forecastsPath != "" {
		cfg.Feed.Forecasts = *forecastsPath
	}
	if *snapshotsPath != "" {
		cfg.Feed.Snapshots = *snapshotsPath
	}
	if *serve != "" {
		cfg.Server.Addr = *serve
	}
	setupLogger(cfg.Log)

	console := notify.NewConsole(*table)

	// Modos que no necesitan engine
	switch {
	case *verify:
		if !runVerify(cfg.Audit.Dir) {
			os.Exit(1)
		}
		return
	case *report:
		runReport(cfg, console, *days)
		return
	}

	auditLog, err := openAudit(cfg.Audit.Dir)
	if err != nil {
		slog.Error("failed to open audit log", "err", err, "dir", cfg.Audit.Dir)
		os.Exit(1)
	}
	defer auditLog.Close()

	if *rebuild {
		if err := runRebuild(auditLog); err != nil {
			slog.Error("rebuild failed", "err", err)
			os.Exit(1)
		}
		return
	}

	snapshots := newSnapshotProvider(cfg)

	var store ports.ReportStorage
	if cfg.StorageEnabled() && !*status {
		s, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer s.Close()
		store = s
	}

	pe, err := paper.New(snapshots, auditLog, store, cfg.Engine())
	if err != nil {
		slog.Error("failed to start engine", "err", err)
		os.Exit(1)
	}

	if *status {
		console.PrintStatus(pe.Status(), pe.OpenPositions())
		return
	}

	source, err := newSignalSource(cfg, snapshots)
	if err != nil {
		slog.Error("no signal source", "err", err)
		os.Exit(1)
	}

	slog.Info("polyedge starting",
		"config", *configPath,
		"audit_dir", cfg.Audit.Dir,
		"interval", cfg.Interval(),
		"once", *once,
		"serve", cfg.Server.Addr,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, runOptions{
		engine:   pe,
		source:   source,
		reporter: console,
		interval: cfg.Interval(),
		once:     *once,
		addr:     cfg.Server.Addr,
	}); err != nil {
		slog.Error("papertrader exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("polyedge stopped cleanly")
}

// openAudit abre el log y publica cuántas líneas corruptas se saltaron.
func openAudit(dir string) (*audit.Log, error) {
	l, rep, err := audit.Open(dir)
	if err != nil {
		return nil, err
	}
	if rep.Corrupt > 0 {
		metrics.CorruptRecords.Add(float64(rep.Corrupt))
		slog.Warn("audit: corrupt lines skipped on open",
			"err", domain.ErrCorruptRecord,
			"count", rep.Corrupt,
			"lines", rep.CorruptLines,
		)
	}
	return l, nil
}

func newSnapshotProvider(cfg *config.Config) ports.SnapshotProvider {
	if cfg.Feed.Snapshots != "" {
		return feed.NewSnapshotFile(cfg.Feed.Snapshots, cfg.SpreadTiers())
	}
	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)
	return polymarket.NewSnapshotProvider(client, cfg.SpreadTiers())
}

func newSignalSource(cfg *config.Config, snapshots ports.SnapshotProvider) (ports.SignalSource, error) {
	switch {
	case cfg.Feed.Forecasts != "":
		model := domain.NewEdgeModel(cfg.EdgeModelConfig())
		return feed.NewForecastFile(cfg.Feed.Forecasts, model, snapshots), nil
	case cfg.Feed.Signals != "":
		return feed.NewSignalFile(cfg.Feed.Signals), nil
	default:
		return nil, errNoSource
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
