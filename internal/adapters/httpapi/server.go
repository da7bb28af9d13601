package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/polyedge/internal/application/engine"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/metrics"
	"github.com/alejandrodnm/polyedge/internal/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 4 << 20

// Engine es lo que la API necesita del engine de simulación.
type Engine interface {
	engine.CycleRunner
	OpenPositions() []domain.Position
}

// Server expone el estado del engine por HTTP.
type Server struct {
	engine  Engine
	signals ports.SignalSource // opcional: POST /cycles sin body la usa
}

// NewServer crea el server. signals puede ser nil.
func NewServer(e Engine, signals ports.SignalSource) *Server {
	return &Server{engine: e, signals: signals}
}

// Router monta las rutas.
//
//	GET  /healthz
//	GET  /metrics
//	GET  /api/v1/status
//	GET  /api/v1/positions
//	GET  /api/v1/positions/{positionID}
//	POST /api/v1/cycles   body opcional: []Signal
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/positions", s.positions)
		r.Get("/positions/{positionID}", s.position)
		r.Post("/cycles", s.runCycle)
	})
	return r
}

// ListenAndServe sirve hasta que ctx se cancela y luego cierra con gracia.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("httpapi: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("httpapi: shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) positions(w http.ResponseWriter, r *http.Request) {
	open := s.engine.OpenPositions()
	if open == nil {
		open = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, open)
}

func (s *Server) position(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "positionID")
	for _, p := range s.engine.OpenPositions() {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeError(w, "position not found", http.StatusNotFound)
}

func (s *Server) runCycle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var signals []domain.Signal
	switch {
	case len(body) > 0:
		if err := json.Unmarshal(body, &signals); err != nil {
			writeError(w, "invalid signals: "+err.Error(), http.StatusBadRequest)
			return
		}
	case s.signals != nil:
		signals, err = s.signals.Signals(r.Context())
		if err != nil {
			writeError(w, "signal source: "+err.Error(), http.StatusBadGateway)
			return
		}
	default:
		writeError(w, "no signals in body and no signal source configured", http.StatusBadRequest)
		return
	}

	report, err := s.engine.EvaluateCycle(r.Context(), signals)
	if err != nil {
		slog.Error("httpapi: cycle failed", "err", err)
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError escribe una respuesta de error en JSON.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
