package kraken

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-arb-bot/internal/config"
	"spread-arb-bot/internal/exchange"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ExchangeConfig{BaseURL: srv.URL})
}

func TestPair(t *testing.T) {
	assert.Equal(t, "XBTUSDT", Pair("BTC/USDT"))
	assert.Equal(t, "ETHUSD", Pair("eth/usd"))
}

func TestFetchTicker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/Ticker", r.URL.Path)
		assert.Equal(t, "XBTUSDT", r.URL.Query().Get("pair"))
		_, _ = w.Write([]byte(`{"error":[],"result":{"XBTUSDT":{"a":["64120.1","1","1.000"],"c":["64118.40000","0.00150000"]}}}`))
	})

	ticker, err := c.FetchTicker(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.InDelta(t, 64118.4, ticker.Last, 1e-9)
	assert.Equal(t, Venue, c.ID())
}

func TestFetchTickerFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"api error", http.StatusOK, `{"error":["EQuery:Unknown asset pair"],"result":{}}`},
		{"empty result", http.StatusOK, `{"error":[],"result":{}}`},
		{"bad price", http.StatusOK, `{"error":[],"result":{"XBTUSDT":{"c":["abc","1"]}}}`},
		{"http error", http.StatusBadGateway, `bad gateway`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.FetchTicker(context.Background(), "BTC/USDT")
			require.Error(t, err)
		})
	}
}

func TestFetchTickerAPIErrorIsExchangeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":["EQuery:Unknown asset pair"],"result":{}}`))
	})
	_, err := c.FetchTicker(context.Background(), "NOPE/USD")

	var exErr *exchange.ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, "EQuery:Unknown asset pair", exErr.Message)
}

func TestPlaceOrderNotSupported(t *testing.T) {
	c := NewClient(config.ExchangeConfig{})
	_, err := c.PlaceOrder(context.Background(), &exchange.OrderRequest{Symbol: "BTC/USDT", Side: exchange.SideBuy, Size: 1})
	assert.ErrorIs(t, err, exchange.ErrNotSupported)
}
