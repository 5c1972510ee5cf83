// Command pricecheck collects one round of prices from the configured
// exchanges, prints every quote and the widest spread, and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"spread-arb-bot/internal/config"
	"spread-arb-bot/internal/exchange"
	"spread-arb-bot/internal/exchange/factory"
	"spread-arb-bot/internal/logging"
	"spread-arb-bot/internal/pricefeed"
	"spread-arb-bot/internal/spread"
)

func main() {
	os.Exit(run())
}

func run() int {
	configDir := flag.String("config", "config", "directory containing config.yaml")
	symbol := flag.String("symbol", "", "symbol to price (defaults to strategies.spread_arb.symbol)")
	warmup := flag.Duration("warmup", 0, "wait this long for quote streams before collecting")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	level := cfg.App.LogLevel
	if level == "" || level == "info" {
		level = "warn"
	}
	logger, err := logging.New(level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	arb := cfg.Strategies.SpreadArb
	if *symbol != "" {
		arb.Symbol = *symbol
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exchanges := factory.Build(cfg.Exchanges, arb.Exchanges, logger)
	defer func() {
		for _, exc := range exchanges {
			if c, ok := exc.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}()

	if *warmup > 0 {
		for name, exc := range exchanges {
			s, ok := exc.(interface {
				StartStream(context.Context, string) error
			})
			if !ok {
				continue
			}
			if err := s.StartStream(ctx, arb.Symbol); err != nil {
				logger.Warn("failed to start quote stream", zap.String("exchange", name), zap.Error(err))
			}
		}
		select {
		case <-time.After(*warmup):
		case <-ctx.Done():
			return 1
		}
	}

	handles := make([]pricefeed.Handle, 0, len(exchanges))
	for name, exc := range exchanges {
		handles = append(handles, pricefeed.Handle{Name: name, Exchange: exc})
	}
	collector := pricefeed.NewCollector(pricefeed.NewSource(), handles, logger, nil)

	quotes := collector.CollectQuotes(ctx, arb.Symbol)
	return report(os.Stdout, arb.Symbol, quotes)
}

// report prints quotes and the best pair; the return value is the exit code.
func report(w io.Writer, symbol string, quotes []pricefeed.Quote) int {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "EXCHANGE\tVENUE\tPRICE\tLATENCY\n")

	prices := make(map[string]float64, len(quotes))
	for _, q := range quotes {
		if q.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\terror: %v\t%s\n", q.Exchange, q.Venue, q.Err, q.Latency.Round(time.Millisecond))
			continue
		}
		prices[q.Exchange] = q.Price
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", q.Exchange, q.Venue, exchange.FormatDecimal(q.Price), q.Latency.Round(time.Millisecond))
	}
	_ = tw.Flush()

	best, ok := spread.Evaluate(prices)
	if !ok {
		fmt.Fprintf(w, "\n%s: need at least 2 quotes, got %d\n", symbol, len(prices))
		return 1
	}
	fmt.Fprintf(w, "\n%s best spread: buy %s, sell %s, %.4f%%\n", symbol, best.Low, best.High, best.SpreadPercent)
	return 0
}
