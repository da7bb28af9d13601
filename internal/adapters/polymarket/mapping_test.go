package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchMarkets_DecodesTokensAndResolution(t *testing.T) {
	gamma := serveFile(t, "testdata/gamma_markets.json")
	client := newTestClient(nil, gamma)

	infos, err := client.FetchMarkets(context.Background(), []string{"0xopen", "0xresolved"})
	require.NoError(t, err)
	require.Len(t, infos, 2)

	open := infos["0xopen"]
	assert.Equal(t, "tok_open_yes", open.YesTokenID)
	assert.Equal(t, "tok_open_no", open.NoTokenID)
	assert.False(t, open.Resolved)
	assert.InDelta(t, 15230.5, open.Volume24h, 0.01)
	assert.Equal(t, time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC), open.EndDate)

	res := infos["0xresolved"]
	assert.True(t, res.Closed)
	assert.True(t, res.Resolved)
	assert.Equal(t, domain.SideNo, res.Outcome)
}

func TestFetchMarkets_ReversedOutcomeOrder(t *testing.T) {
	fixture := `[{
		"conditionId": "0xrev",
		"outcomes": "[\"No\", \"Yes\"]",
		"outcomePrices": "[\"0\", \"1\"]",
		"clobTokenIds": "[\"tid_no\", \"tid_yes\"]",
		"closed": true
	}]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xrev", r.URL.Query().Get("condition_ids"))
		w.Write([]byte(fixture))
	}))
	defer srv.Close()

	infos, err := newTestClient(nil, srv).FetchMarkets(context.Background(), []string{"0xrev"})
	require.NoError(t, err)

	info := infos["0xrev"]
	assert.Equal(t, "tid_yes", info.YesTokenID)
	assert.True(t, info.Resolved)
	assert.Equal(t, domain.SideYes, info.Outcome)
}

func TestFetchMarkets_SkipsNonBinary(t *testing.T) {
	fixture := `[{
		"conditionId": "0xmulti",
		"outcomes": "[\"A\", \"B\", \"C\"]",
		"clobTokenIds": "[\"a\", \"b\", \"c\"]"
	}]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fixture))
	}))
	defer srv.Close()

	infos, err := newTestClient(nil, srv).FetchMarkets(context.Background(), []string{"0xmulti"})
	require.NoError(t, err)
	assert.Empty(t, infos)
}
