package exchange

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange is the handle the spread monitor holds for one venue.
type Exchange interface {
	// ID is the venue tag ("binance", "bybit", "hyperliquid", ...). It selects
	// the price fetch strategy.
	ID() string

	// Market Data
	FetchTicker(ctx context.Context, symbol string) (*Ticker, error)

	// Trading
	PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error)
}

// MarketLoader is implemented by venues that need market metadata refreshed
// before orders can be placed.
type MarketLoader interface {
	LoadMarkets(ctx context.Context) error
}

type Ticker struct {
	Symbol    string
	Last      float64
	Timestamp time.Time
}

type OrderRequest struct {
	Symbol     string
	Side       string // "buy" or "sell"
	Size       float64
	Price      float64 // ignored for market orders on venues that support them
	Type       string  // "limit" or "market"
	ReduceOnly bool
}

type OrderResponse struct {
	OrderID string
	Status  string
}

const (
	SideBuy  = "buy"
	SideSell = "sell"

	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

var ErrNotSupported = errors.New("operation not supported by venue")

// ExchangeError is an API-level rejection reported by a venue.
type ExchangeError struct {
	Exchange string
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	msg := e.Exchange + ": " + e.Message
	if e.Code != "" {
		msg += " (code " + e.Code + ")"
	}
	return msg
}

func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// CompactSymbol turns slash notation into the venue pair form: BTC/USDT -> BTCUSDT.
func CompactSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

// BaseAsset returns the base currency of a pair: BTC/USDT -> BTC, ETH-USD -> ETH.
func BaseAsset(symbol string) string {
	s := strings.ToUpper(symbol)
	if i := strings.IndexAny(s, "/-"); i >= 0 {
		return s[:i]
	}
	return s
}

// ParseDecimal converts a venue decimal string ("64210.15000000") to float64.
func ParseDecimal(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// FormatDecimal renders a quantity or price without float noise.
func FormatDecimal(v float64) string {
	return decimal.NewFromFloat(v).String()
}
