package pricefeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"spread-arb-bot/internal/exchange"
	"spread-arb-bot/internal/metrics"
)

type panicExchange struct{}

func (panicExchange) ID() string { return "broken" }

func (panicExchange) FetchTicker(context.Context, string) (*exchange.Ticker, error) {
	panic("boom")
}

func (panicExchange) PlaceOrder(context.Context, *exchange.OrderRequest) (*exchange.OrderResponse, error) {
	return nil, exchange.ErrNotSupported
}

func TestCollectSkipsFailures(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := NewCollector(NewSource(), []Handle{
		{Name: "a", Exchange: &fakeExchange{venue: "a", price: 100}},
		{Name: "b", Exchange: &fakeExchange{venue: "b", err: errors.New("timeout")}},
		{Name: "c", Exchange: &fakeExchange{venue: "c", price: 101}},
	}, zaptest.NewLogger(t), m)

	prices := c.Collect(context.Background(), "BTC/USDT")
	assert.Equal(t, map[string]float64{"a": 100, "c": 101}, prices)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchErrors.WithLabelValues("b")))
	assert.Equal(t, 101.0, testutil.ToFloat64(m.LastPrice.WithLabelValues("c")))
}

func TestCollectAllFail(t *testing.T) {
	c := NewCollector(NewSource(), []Handle{
		{Name: "a", Exchange: &fakeExchange{venue: "a", err: errors.New("down")}},
		{Name: "b", Exchange: &fakeExchange{venue: "b", price: -3}},
	}, zaptest.NewLogger(t), nil)

	assert.Empty(t, c.Collect(context.Background(), "BTC/USDT"))
}

func TestCollectQuotesOrderAndErrors(t *testing.T) {
	c := NewCollector(NewSource(), []Handle{
		{Name: "zeta", Exchange: &fakeExchange{venue: "z", price: 3}},
		{Name: "alpha", Exchange: &fakeExchange{venue: "a", err: errors.New("down")}},
		{Name: "mid", Exchange: panicExchange{}},
	}, zaptest.NewLogger(t), nil)

	quotes := c.CollectQuotes(context.Background(), "BTC/USDT")
	require.Len(t, quotes, 3)
	assert.Equal(t, "alpha", quotes[0].Exchange)
	assert.Equal(t, "mid", quotes[1].Exchange)
	assert.Equal(t, "zeta", quotes[2].Exchange)

	var fe *FetchError
	require.ErrorAs(t, quotes[0].Err, &fe)
	assert.Equal(t, "alpha", fe.Exchange)
	require.ErrorAs(t, quotes[1].Err, &fe)
	assert.Equal(t, "broken", fe.Venue)
	assert.NoError(t, quotes[2].Err)
	assert.Equal(t, 3.0, quotes[2].Price)
	assert.False(t, quotes[2].At.IsZero())
}

func TestCollectRunsConcurrently(t *testing.T) {
	const delay = 200 * time.Millisecond
	handles := make([]Handle, 0, 5)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		handles = append(handles, Handle{Name: name, Exchange: &fakeExchange{venue: name, price: 10, delay: delay}})
	}
	c := NewCollector(NewSource(), handles, zaptest.NewLogger(t), nil)

	start := time.Now()
	prices := c.Collect(context.Background(), "BTC/USDT")
	elapsed := time.Since(start)

	assert.Len(t, prices, 5)
	assert.Less(t, elapsed, 3*delay)
}

func TestCollectCanceledContext(t *testing.T) {
	c := NewCollector(NewSource(), []Handle{
		{Name: "a", Exchange: &fakeExchange{venue: "a", price: 1, delay: time.Second}},
		{Name: "b", Exchange: &fakeExchange{venue: "b", price: 1, delay: time.Second}},
	}, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.Empty(t, c.Collect(ctx, "BTC/USDT"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestNewCollectorDeduplicatesNames(t *testing.T) {
	c := NewCollector(nil, []Handle{
		{Name: "a", Exchange: &fakeExchange{venue: "a", price: 1}},
		{Name: "a", Exchange: &fakeExchange{venue: "a", price: 2}},
	}, nil, nil)

	require.Len(t, c.Handles(), 1)
	assert.Equal(t, map[string]float64{"a": 2}, c.Collect(context.Background(), "BTC/USDT"))
}
