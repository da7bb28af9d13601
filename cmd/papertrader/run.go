package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/polyedge/internal/adapters/httpapi"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

const stopFile = "STOP"

var errNoSource = errors.New("configure feed.signals or feed.forecasts (or pass -signals/-forecasts)")

type runOptions struct {
	engine   httpapi.Engine
	source   ports.SignalSource
	reporter ports.Reporter
	interval time.Duration
	once     bool
	addr     string
}

// run ejecuta un ciclo inmediato y, si hay intervalo, sigue en bucle hasta
// Ctrl+C o hasta que aparezca el fichero STOP. Con addr también sirve la API.
func run(ctx context.Context, o runOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	if o.addr != "" && !o.once {
		srv := httpapi.NewServer(o.engine, o.source)
		go func() {
			serveErr <- srv.ListenAndServe(ctx, o.addr)
		}()
	} else {
		close(serveErr)
	}

	if err := runCycle(ctx, o); err != nil {
		return err
	}
	if o.once || (o.interval <= 0 && o.addr == "") {
		return nil
	}

	var tick <-chan time.Time
	if o.interval > 0 {
		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()
		tick = ticker.C
		slog.Info("paper trading started, press Ctrl+C or create STOP file to exit", "interval", o.interval)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("paper trading stopped (signal)")
			return waitServer(cancel, serveErr)
		case err, ok := <-serveErr:
			if ok && err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			serveErr = nil
		case <-tick:
			if _, err := os.Stat(stopFile); err == nil {
				slog.Info("STOP file detected, shutting down paper trading")
				os.Remove(stopFile)
				return waitServer(cancel, serveErr)
			}
			if err := runCycle(ctx, o); err != nil {
				return err
			}
		}
	}
}

// runCycle pide señales y evalúa un ciclo. Un fallo de la fuente se salta;
// un error del engine detiene el proceso.
func runCycle(ctx context.Context, o runOptions) error {
	signals, err := o.source.Signals(ctx)
	if err != nil {
		slog.Warn("signal source failed, skipping cycle", "err", err)
		return nil
	}

	report, err := o.engine.EvaluateCycle(ctx, signals)
	if err != nil {
		return fmt.Errorf("cycle: %w", err)
	}
	o.reporter.PrintCycle(*report)
	return nil
}

func waitServer(cancel context.CancelFunc, serveErr <-chan error) error {
	cancel()
	if serveErr == nil {
		return nil
	}
	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
