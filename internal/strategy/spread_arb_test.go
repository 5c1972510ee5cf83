package strategy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"spread-arb-bot/internal/config"
	"spread-arb-bot/internal/exchange"
	"spread-arb-bot/internal/metrics"
	"spread-arb-bot/internal/spread"
)

type mockExchange struct {
	venue string

	mu    sync.Mutex
	price float64
	err   error
}

func (m *mockExchange) ID() string { return m.venue }

func (m *mockExchange) set(price float64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.price, m.err = price, err
}

func (m *mockExchange) FetchTicker(_ context.Context, symbol string) (*exchange.Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &exchange.Ticker{Symbol: symbol, Last: m.price}, nil
}

func (m *mockExchange) PlaceOrder(context.Context, *exchange.OrderRequest) (*exchange.OrderResponse, error) {
	return nil, exchange.ErrNotSupported
}

type signal struct {
	low, high string
	spread    float64
}

type recorder struct {
	mu      sync.Mutex
	signals []signal
	err     error
	panics  bool
}

func (r *recorder) callback(_ context.Context, low, high string, spreadPercent float64) error {
	r.mu.Lock()
	r.signals = append(r.signals, signal{low, high, spreadPercent})
	err, panics := r.err, r.panics
	r.mu.Unlock()
	if panics {
		panic("callback exploded")
	}
	return err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}

func testConfig() config.SpreadArbConfig {
	return config.SpreadArbConfig{
		Symbol:         "BTC/USDT",
		ThresholdOpen:  0.2,
		ThresholdClose: 0.1,
		PollInterval:   0.01,
	}
}

func newTestStrategy(t *testing.T, exchanges map[string]exchange.Exchange, onOpen, onClose Callback, opts ...Option) *SpreadArbStrategy {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return NewSpreadArbStrategy(testConfig(), exchanges, onOpen, onClose, opts...)
}

func TestTickOpensAndClosesOnOpenedPair(t *testing.T) {
	a := &mockExchange{venue: "a", price: 100}
	b := &mockExchange{venue: "b", price: 102}
	opens, closes := &recorder{}, &recorder{}
	s := newTestStrategy(t, map[string]exchange.Exchange{"A": a, "B": b}, opens.callback, closes.callback)

	tr := s.tick(context.Background())
	assert.Equal(t, spread.Open, tr.Kind)
	require.Len(t, opens.signals, 1)
	assert.Equal(t, "A", opens.signals[0].low)
	assert.Equal(t, "B", opens.signals[0].high)
	assert.InDelta(t, 2.0, opens.signals[0].spread, 1e-9)

	b.set(100.05, nil)
	tr = s.tick(context.Background())
	assert.Equal(t, spread.Close, tr.Kind)
	require.Len(t, closes.signals, 1)
	assert.Equal(t, signal{"A", "B", closes.signals[0].spread}, closes.signals[0])
	assert.InDelta(t, 0.05, closes.signals[0].spread, 1e-9)
	assert.False(t, s.Position().Open)
}

func TestTickIdleBetweenThresholds(t *testing.T) {
	opens, closes := &recorder{}, &recorder{}
	s := newTestStrategy(t, map[string]exchange.Exchange{
		"A": &mockExchange{venue: "a", price: 100},
		"B": &mockExchange{venue: "b", price: 100.15},
	}, opens.callback, closes.callback)

	for i := 0; i < 5; i++ {
		assert.Equal(t, spread.None, s.tick(context.Background()).Kind)
	}
	assert.Zero(t, opens.count())
	assert.Zero(t, closes.count())
}

func TestTickEvaluatesRemainingQuotes(t *testing.T) {
	opens := &recorder{}
	s := newTestStrategy(t, map[string]exchange.Exchange{
		"A": &mockExchange{venue: "a", price: 100},
		"B": &mockExchange{venue: "b", err: errors.New("connection reset")},
		"C": &mockExchange{venue: "c", price: 101},
	}, opens.callback, nil)

	assert.Equal(t, spread.Open, s.tick(context.Background()).Kind)
	require.Len(t, opens.signals, 1)
	assert.Equal(t, "A", opens.signals[0].low)
	assert.Equal(t, "C", opens.signals[0].high)
}

func TestTickSkipsWithOneQuote(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	opens := &recorder{}
	s := newTestStrategy(t, map[string]exchange.Exchange{
		"A": &mockExchange{venue: "a", price: 100},
		"B": &mockExchange{venue: "b", err: errors.New("down")},
	}, opens.callback, nil, WithMetrics(m))

	assert.Equal(t, spread.None, s.tick(context.Background()).Kind)
	assert.Zero(t, opens.count())
	assert.False(t, s.Position().Open)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedTicks))
}

func TestCallbackFailureKeepsTransition(t *testing.T) {
	tests := []struct {
		name string
		rec  *recorder
	}{
		{"error", &recorder{err: errors.New("order rejected")}},
		{"panic", &recorder{panics: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New(prometheus.NewRegistry())
			b := &mockExchange{venue: "b", price: 102}
			s := newTestStrategy(t, map[string]exchange.Exchange{
				"A": &mockExchange{venue: "a", price: 100},
				"B": b,
			}, tt.rec.callback, tt.rec.callback, WithMetrics(m))

			assert.Equal(t, spread.Open, s.tick(context.Background()).Kind)
			assert.True(t, s.Position().Open)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.CallbackErrors.WithLabelValues("open")))

			b.set(100, nil)
			assert.Equal(t, spread.Close, s.tick(context.Background()).Kind)
			assert.False(t, s.Position().Open)
			assert.Equal(t, 2, tt.rec.count())
		})
	}
}

func TestRunRefusesSingleExchange(t *testing.T) {
	s := newTestStrategy(t, map[string]exchange.Exchange{"A": &mockExchange{venue: "a", price: 1}}, nil, nil)
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrInsufficientExchanges)
}

func TestRunStopsOnCancel(t *testing.T) {
	opens := &recorder{}
	s := newTestStrategy(t, map[string]exchange.Exchange{
		"A": &mockExchange{venue: "a", price: 100},
		"B": &mockExchange{venue: "b", price: 102},
	}, opens.callback, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return opens.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, opens.count(), "open fires once while the spread stays wide")
}

func TestTickAbandonedAfterCancel(t *testing.T) {
	opens := &recorder{}
	s := newTestStrategy(t, map[string]exchange.Exchange{
		"A": &mockExchange{venue: "a", price: 100},
		"B": &mockExchange{venue: "b", price: 102},
	}, opens.callback, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, spread.None, s.tick(ctx).Kind)
	assert.Zero(t, opens.count())
	assert.False(t, s.Position().Open)
}

func TestDefaultPollInterval(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = 0
	s := NewSpreadArbStrategy(cfg, nil, nil, nil)
	assert.Equal(t, time.Second, s.interval)

	cfg.PollInterval = 2.5
	s = NewSpreadArbStrategy(cfg, nil, nil, nil)
	assert.Equal(t, 2500*time.Millisecond, s.interval)
}

func TestChain(t *testing.T) {
	first := &recorder{err: errors.New("first failed")}
	second := &recorder{panics: true}
	third := &recorder{}

	err := Chain(first.callback, nil, second.callback, third.callback)(context.Background(), "A", "B", 1.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")
	assert.Contains(t, err.Error(), "callback exploded")
	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, second.count())
	assert.Equal(t, []signal{{"A", "B", 1.5}}, third.signals)

	assert.NoError(t, Chain()(context.Background(), "A", "B", 1))
}

func TestCallbackErrorUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := error(&CallbackError{Kind: spread.Close, Err: base})
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "close callback: boom", err.Error())
}

func TestRunStartsWithClosedPosition(t *testing.T) {
	opens := &recorder{}
	s := newTestStrategy(t, map[string]exchange.Exchange{
		"A": &mockExchange{venue: "a", price: 100},
		"B": &mockExchange{venue: "b", price: 102},
	}, opens.callback, nil)

	runUntil := func(want int) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()

		require.Eventually(t, func() bool { return opens.count() == want }, 2*time.Second, 5*time.Millisecond)
		cancel()
		require.NoError(t, <-done)
	}

	runUntil(1)
	require.True(t, s.Position().Open)

	runUntil(2)
	assert.Equal(t, []signal{{"A", "B", opens.signals[0].spread}, {"A", "B", opens.signals[1].spread}}, opens.signals)
}
