// Package pricefeed fetches last prices from heterogeneous venues and gathers
// one concurrent round of quotes per polling tick.
package pricefeed

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"spread-arb-bot/internal/exchange"
)

// DefaultTimeout bounds every single price fetch.
const DefaultTimeout = 5 * time.Second

// Handle is one monitored exchange: the name it is configured under and the
// client whose venue tag selects the fetch strategy.
type Handle struct {
	Name     string
	Exchange exchange.Exchange
}

func (h Handle) Venue() string {
	if h.Exchange == nil {
		return ""
	}
	return h.Exchange.ID()
}

// Strategy fetches the last price of symbol ("BTC/USDT") for one venue.
type Strategy interface {
	FetchPrice(ctx context.Context, ex exchange.Exchange, symbol string) (float64, error)
}

type StrategyFunc func(ctx context.Context, ex exchange.Exchange, symbol string) (float64, error)

func (f StrategyFunc) FetchPrice(ctx context.Context, ex exchange.Exchange, symbol string) (float64, error) {
	return f(ctx, ex, symbol)
}

// TickerStrategy reads the last price through the client's generic ticker
// capability. It is the fallback for venues without a dedicated strategy.
type TickerStrategy struct{}

func (TickerStrategy) FetchPrice(ctx context.Context, ex exchange.Exchange, symbol string) (float64, error) {
	ticker, err := ex.FetchTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if ticker == nil {
		return 0, fmt.Errorf("empty ticker")
	}
	return ticker.Last, nil
}

// Source dispatches price fetches on the venue tag. Strategies can be added
// with Register without touching the dispatcher.
type Source struct {
	strategies map[string]Strategy
	fallback   Strategy
	timeout    time.Duration
}

type Option func(*Source)

func WithStrategy(venue string, s Strategy) Option {
	return func(src *Source) { src.Register(venue, s) }
}

func WithFallback(s Strategy) Option {
	return func(src *Source) { src.fallback = s }
}

func WithTimeout(d time.Duration) Option {
	return func(src *Source) {
		if d > 0 {
			src.timeout = d
		}
	}
}

// NewSource returns a source with the direct REST strategies for binance and
// bybit and the ticker fallback for everything else.
func NewSource(opts ...Option) *Source {
	s := &Source{
		strategies: map[string]Strategy{
			"binance": NewBinanceStrategy(""),
			"bybit":   NewBybitStrategy(""),
		},
		fallback: TickerStrategy{},
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source) Register(venue string, st Strategy) {
	s.strategies[strings.ToLower(venue)] = st
}

func (s *Source) strategyFor(venue string) Strategy {
	if st, ok := s.strategies[strings.ToLower(venue)]; ok {
		return st
	}
	return s.fallback
}

// FetchPrice returns the last price of symbol on h. Every failure, including
// a non-finite or non-positive price, comes back as a *FetchError.
func (s *Source) FetchPrice(ctx context.Context, h Handle, symbol string) (float64, error) {
	fail := func(err error) (float64, error) {
		return 0, &FetchError{Exchange: h.Name, Venue: h.Venue(), Err: err}
	}
	if h.Exchange == nil {
		return fail(fmt.Errorf("nil exchange handle"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	price, err := s.strategyFor(h.Venue()).FetchPrice(ctx, h.Exchange, symbol)
	if err != nil {
		return fail(err)
	}
	if !ValidPrice(price) {
		return fail(fmt.Errorf("%w: %v", ErrInvalidPrice, price))
	}
	return price, nil
}

// ValidPrice reports whether p is finite and strictly positive.
func ValidPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
