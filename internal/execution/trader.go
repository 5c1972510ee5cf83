// Package execution turns spread signals into market orders on both legs.
package execution

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spread-arb-bot/internal/exchange"
)

type leg struct {
	exchange string
	side     string
}

// Trader places a fixed-size market order on each leg of a signal. Open buys
// on the low exchange and sells on the high one; Close reverses both.
type Trader struct {
	exchanges map[string]exchange.Exchange
	symbol    string
	amount    float64
	dryRun    bool
	logger    *zap.Logger
}

func NewTrader(exchanges map[string]exchange.Exchange, symbol string, amount float64, dryRun bool, logger *zap.Logger) *Trader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trader{
		exchanges: exchanges,
		symbol:    symbol,
		amount:    amount,
		dryRun:    dryRun,
		logger:    logger.With(zap.String("component", "trader")),
	}
}

func (t *Trader) Open(ctx context.Context, low, high string, spreadPercent float64) error {
	t.logger.Info("opening arbitrage",
		zap.String("buy_on", low),
		zap.String("sell_on", high),
		zap.Float64("spread_pct", spreadPercent))
	return t.execute(ctx, leg{low, exchange.SideBuy}, leg{high, exchange.SideSell})
}

func (t *Trader) Close(ctx context.Context, low, high string, spreadPercent float64) error {
	t.logger.Info("closing arbitrage",
		zap.String("sell_on", low),
		zap.String("buy_on", high),
		zap.Float64("spread_pct", spreadPercent))
	return t.execute(ctx, leg{low, exchange.SideSell}, leg{high, exchange.SideBuy})
}

// execute sends both legs at once. A failing leg never cancels the other.
func (t *Trader) execute(ctx context.Context, legs ...leg) error {
	errs := make([]error, len(legs))

	var g errgroup.Group
	for i, l := range legs {
		g.Go(func() error {
			errs[i] = t.place(ctx, l)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (t *Trader) place(ctx context.Context, l leg) error {
	exc, ok := t.exchanges[l.exchange]
	if !ok {
		return fmt.Errorf("%s %s: unknown exchange", l.side, l.exchange)
	}

	req := &exchange.OrderRequest{
		Symbol: t.symbol,
		Side:   l.side,
		Size:   t.amount,
		Type:   exchange.OrderTypeMarket,
	}
	fields := []zap.Field{
		zap.String("exchange", l.exchange),
		zap.String("side", l.side),
		zap.String("symbol", t.symbol),
		zap.String("amount", exchange.FormatDecimal(t.amount)),
	}

	if t.dryRun {
		t.logger.Info("dry run, order not sent", fields...)
		return nil
	}

	if loader, ok := exc.(exchange.MarketLoader); ok {
		if err := loader.LoadMarkets(ctx); err != nil {
			t.logger.Warn("failed to refresh markets", append(fields, zap.Error(err))...)
		}
	}

	resp, err := exc.PlaceOrder(ctx, req)
	if err != nil {
		t.logger.Error("order failed", append(fields, zap.Error(err))...)
		return fmt.Errorf("%s %s: %w", l.side, l.exchange, err)
	}
	t.logger.Info("order placed", append(fields,
		zap.String("order_id", resp.OrderID),
		zap.String("status", resp.Status))...)
	return nil
}
