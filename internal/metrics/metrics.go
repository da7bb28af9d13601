// Package metrics provides Prometheus instrumentation for the paper engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

var (
	// CyclesTotal counts evaluated cycles, partitioned by outcome.
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyedge_cycles_total",
		Help: "Total number of evaluated cycles",
	}, []string{"outcome"})

	// CycleDuration tracks how long a cycle takes end to end.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polyedge_cycle_duration_seconds",
		Help:    "Cycle duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// ActionsTotal counts audit records written, by action.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyedge_actions_total",
		Help: "Trade records appended to the audit log",
	}, []string{"action"})

	// ExitsTotal counts closed positions by exit reason.
	ExitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyedge_exits_total",
		Help: "Closed positions by exit reason",
	}, []string{"reason"})

	// DuplicatesTotal counts actions discarded as duplicates.
	DuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyedge_duplicate_actions_total",
		Help: "Actions discarded because the logical action was already recorded",
	})

	// CorruptRecords counts audit lines skipped during replay.
	CorruptRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyedge_corrupt_records_total",
		Help: "Audit log lines skipped during replay",
	})

	// Capital tracks the ledger buckets.
	Capital = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "polyedge_capital",
		Help: "Ledger capital by bucket",
	}, []string{"bucket"})

	// OpenPositions tracks the number of open positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polyedge_open_positions",
		Help: "Number of currently open positions",
	})

	// Drawdown tracks the fractional drop from peak equity.
	Drawdown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polyedge_drawdown_ratio",
		Help: "Fractional drawdown from peak equity",
	})

	// LedgerDrift tracks the last reconciliation drift.
	LedgerDrift = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polyedge_ledger_drift",
		Help: "Booked minus live allocation at the last reconciliation",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyedge_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polyedge_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveCycle records one finished cycle.
func ObserveCycle(r domain.CycleReport) {
	CyclesTotal.WithLabelValues("ok").Inc()
	CycleDuration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())

	ActionsTotal.WithLabelValues(string(domain.ActionEnter)).Add(float64(len(r.Entries)))
	ActionsTotal.WithLabelValues(string(domain.ActionAddOn)).Add(float64(len(r.AddOns)))
	ActionsTotal.WithLabelValues(string(domain.ActionExit)).Add(float64(len(r.Exits)))
	ActionsTotal.WithLabelValues(string(domain.ActionSkip)).Add(float64(len(r.Skips)))
	for reason, n := range r.ExitsByReason() {
		ExitsTotal.WithLabelValues(string(reason)).Add(float64(n))
	}
	DuplicatesTotal.Add(float64(r.Duplicates))
	LedgerDrift.Set(r.Reconciliation.Drift)
	SetCapital(r.Capital)
}

// ObserveFailedCycle records a cycle that returned an error.
func ObserveFailedCycle() {
	CyclesTotal.WithLabelValues("error").Inc()
}

// SetCapital publishes a capital snapshot.
func SetCapital(c domain.CapitalState) {
	Capital.WithLabelValues("available").Set(c.Available)
	Capital.WithLabelValues("allocated").Set(c.Allocated)
	Capital.WithLabelValues("realized_pnl").Set(c.RealizedPnL)
	Capital.WithLabelValues("written_off").Set(c.WrittenOff)
	OpenPositions.Set(float64(c.OpenPositions))
	Drawdown.Set(c.Drawdown())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// unmatchedRoute labels requests no route matched.
const unmatchedRoute = "unmatched"

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		// route pattern, never the raw path
		path := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
