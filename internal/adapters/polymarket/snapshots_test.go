package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alejandrodnm/polyedge/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshots_QuotesOpenAndSettlesResolved(t *testing.T) {
	gamma := serveFile(t, "testdata/gamma_markets.json")
	clob := serveFile(t, "testdata/books.json")
	provider := polymarket.NewSnapshotProvider(newTestClient(clob, gamma), domain.SpreadTiers{})

	snaps, err := provider.Snapshots(context.Background(), []string{"0xopen", "0xresolved", "0xunknown"})
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	open := snaps["0xopen"]
	assert.Equal(t, "0xopen", open.MarketID)
	assert.InDelta(t, 0.40, open.Bid, 1e-9)
	assert.InDelta(t, 0.41, open.Ask, 1e-9)
	assert.False(t, open.Resolved)
	// spread 0.01 / mid 0.405 ≈ 2.5% → MEDIUM
	assert.Equal(t, domain.LiquidityMedium, open.Tier)
	assert.False(t, open.At.IsZero())

	res := snaps["0xresolved"]
	assert.True(t, res.Resolved)
	assert.Equal(t, domain.SideNo, res.Outcome)
}

func TestSnapshots_EmptyRequestMakesNoCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	}))
	defer srv.Close()

	provider := polymarket.NewSnapshotProvider(newTestClient(srv, srv), domain.DefaultSpreadTiers())
	snaps, err := provider.Snapshots(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestSnapshots_GammaDownIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	provider := polymarket.NewSnapshotProvider(newTestClient(srv, srv), domain.DefaultSpreadTiers())
	_, err := provider.Snapshots(context.Background(), []string{"0xopen"})
	assert.Error(t, err)
}
