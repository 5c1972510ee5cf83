package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"spread-arb-bot/internal/config"
	"spread-arb-bot/internal/exchange"
)

type stubExchange struct{ venue string }

func (s stubExchange) ID() string { return s.venue }

func (s stubExchange) FetchTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	return &exchange.Ticker{Symbol: symbol, Last: 1}, nil
}

func (s stubExchange) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.OrderResponse, error) {
	return nil, exchange.ErrNotSupported
}

func TestSupported(t *testing.T) {
	assert.Subset(t, Supported(), []string{"binance", "bybit", "edgex", "hyperliquid", "kraken"})
}

func TestNewBuildsRestClients(t *testing.T) {
	logger := zaptest.NewLogger(t)

	b, err := New(config.ExchangeConfig{Venue: "Binance"}, logger)
	require.NoError(t, err)
	assert.Equal(t, "binance", b.ID())

	y, err := New(config.ExchangeConfig{Venue: "bybit"}, logger)
	require.NoError(t, err)
	assert.Equal(t, "bybit", y.ID())

	k, err := New(config.ExchangeConfig{Venue: "kraken"}, logger)
	require.NoError(t, err)
	assert.Equal(t, "kraken", k.ID())

	_, err = New(config.ExchangeConfig{Venue: "mtgox"}, logger)
	assert.Error(t, err)
}

func TestBuildSkipsFailures(t *testing.T) {
	Register("stub", func(cfg config.ExchangeConfig, _ *zap.Logger) (exchange.Exchange, error) {
		return stubExchange{venue: "stub"}, nil
	})

	cfgs := map[string]config.ExchangeConfig{
		"binance": {Venue: "binance"},
		"paper":   {Venue: "stub"},
		"mtgox":   {Venue: "mtgox"},
	}
	clients := Build(cfgs, []string{"binance", "paper", "mtgox", "missing"}, zaptest.NewLogger(t))

	require.Len(t, clients, 2)
	assert.Equal(t, "binance", clients["binance"].ID())
	assert.Equal(t, "stub", clients["paper"].ID())
}
