package polymarket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/polyedge/internal/adapters/polymarket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(clobSrv, gammaSrv *httptest.Server) *polymarket.Client {
	clobURL := ""
	gammaURL := ""
	if clobSrv != nil {
		clobURL = clobSrv.URL
	}
	if gammaSrv != nil {
		gammaURL = gammaSrv.URL
	}
	return polymarket.NewClient(clobURL, gammaURL).WithRetryWait(time.Millisecond)
}

func serveFile(t *testing.T, path string) *httptest.Server {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchOrderBooks_Batch(t *testing.T) {
	data, err := os.ReadFile("testdata/books.json")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/books", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	books, err := client.FetchOrderBooks(context.Background(), []string{"tok_open_yes"})
	require.NoError(t, err)
	require.Len(t, books, 1)

	book := books["tok_open_yes"]
	assert.Equal(t, "tok_open_yes", book.TokenID)
	assert.InDelta(t, 0.40, book.BestBid(), 0.001)
	assert.InDelta(t, 0.41, book.BestAsk(), 0.001)

	// Bids: mayor a menor. Asks: menor a mayor
	require.Len(t, book.Bids, 2)
	assert.Greater(t, book.Bids[0].Price, book.Bids[1].Price)
	require.Len(t, book.Asks, 2)
	assert.Less(t, book.Asks[0].Price, book.Asks[1].Price)
}

func TestFetchOrderBooks_BatchSplitting(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]any{})
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)

	// 25 token_ids → 2 requests (batch de 20 + batch de 5)
	tokenIDs := make([]string, 25)
	for i := range tokenIDs {
		tokenIDs[i] = "token_" + string(rune('a'+i))
	}

	_, err := client.FetchOrderBooks(context.Background(), tokenIDs)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchOrderBooks_ServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	_, err := client.FetchOrderBooks(context.Background(), []string{"tok"})
	assert.Error(t, err)
	assert.Equal(t, int32(4), calls.Load(), "1 intento + 3 retries")
}

func TestFetchOrderBooks_RetriesAfterRateLimit(t *testing.T) {
	data, err := os.ReadFile("testdata/books.json")
	require.NoError(t, err)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	books, err := newTestClient(srv, nil).FetchOrderBooks(context.Background(), []string{"tok_open_yes"})
	require.NoError(t, err)
	assert.Len(t, books, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchOrderBooks_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad token", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, nil).FetchOrderBooks(context.Background(), []string{"tok"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchOrderBooks_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "abc") // no numérico: se ignora
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, nil).FetchOrderBooks(context.Background(), []string{"tok"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(4), calls.Load())
}

func TestFetchOrderBooks_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cancel()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	// backoff largo: solo el contexto puede cortarlo
	client := polymarket.NewClient(srv.URL, "").WithRetryWait(time.Hour)
	_, err := client.FetchOrderBooks(ctx, []string{"tok"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}
