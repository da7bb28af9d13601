package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/metrics"
)

func TestObserveCycle(t *testing.T) {
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	before := testutil.ToFloat64(metrics.ExitsTotal.WithLabelValues(string(domain.ExitTakeProfit)))

	metrics.ObserveCycle(domain.CycleReport{
		StartedAt:  start,
		FinishedAt: start.Add(200 * time.Millisecond),
		Entries:    []domain.TradeRecord{{Action: domain.ActionEnter}},
		Exits: []domain.TradeRecord{
			{Action: domain.ActionExit, ExitReason: domain.ExitTakeProfit},
			{Action: domain.ActionExit, ExitReason: domain.ExitTakeProfit},
		},
		Reconciliation: domain.Reconciliation{Drift: 0.5},
		Capital:        domain.CapitalState{Available: 900, Allocated: 100, PeakEquity: 1000, OpenPositions: 1},
	})

	assert.Equal(t, before+2, testutil.ToFloat64(metrics.ExitsTotal.WithLabelValues(string(domain.ExitTakeProfit))))
	assert.Equal(t, 900.0, testutil.ToFloat64(metrics.Capital.WithLabelValues("available")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OpenPositions))
	assert.Equal(t, 0.5, testutil.ToFloat64(metrics.LedgerDrift))
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/api/v1/positions/{positionID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	routed := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/positions/{positionID}", "200")
	unmatched := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")
	beforeRouted := testutil.ToFloat64(routed)
	beforeUnmatched := testutil.ToFloat64(unmatched)

	for _, path := range []string{"/api/v1/positions/PAPER-1", "/scan/a1", "/scan/b2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, beforeRouted+1, testutil.ToFloat64(routed))
	assert.Equal(t, beforeUnmatched+2, testutil.ToFloat64(unmatched))
	assert.Zero(t, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/scan/a1", "404")))
}
