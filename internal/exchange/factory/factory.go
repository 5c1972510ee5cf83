// Package factory builds exchange clients from configuration by venue tag.
package factory

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"spread-arb-bot/internal/config"
	"spread-arb-bot/internal/exchange"
	"spread-arb-bot/internal/exchange/binance"
	"spread-arb-bot/internal/exchange/bybit"
	"spread-arb-bot/internal/exchange/edgex"
	"spread-arb-bot/internal/exchange/hyperliquid"
	"spread-arb-bot/internal/exchange/kraken"
)

// Constructor creates a client for one configured exchange.
type Constructor func(cfg config.ExchangeConfig, logger *zap.Logger) (exchange.Exchange, error)

var constructors = map[string]Constructor{
	binance.Venue: func(cfg config.ExchangeConfig, _ *zap.Logger) (exchange.Exchange, error) {
		return binance.NewClient(cfg), nil
	},
	bybit.Venue: func(cfg config.ExchangeConfig, _ *zap.Logger) (exchange.Exchange, error) {
		return bybit.NewClient(cfg), nil
	},
	hyperliquid.Venue: func(cfg config.ExchangeConfig, logger *zap.Logger) (exchange.Exchange, error) {
		return hyperliquid.NewClient(cfg, logger), nil
	},
	edgex.Venue: func(cfg config.ExchangeConfig, logger *zap.Logger) (exchange.Exchange, error) {
		return edgex.NewClient(cfg, logger), nil
	},
	kraken.Venue: func(cfg config.ExchangeConfig, _ *zap.Logger) (exchange.Exchange, error) {
		return kraken.NewClient(cfg), nil
	},
}

// Register adds or replaces the constructor for a venue.
func Register(venue string, ctor Constructor) {
	constructors[strings.ToLower(venue)] = ctor
}

// Supported lists the venues with a constructor, sorted.
func Supported() []string {
	venues := make([]string, 0, len(constructors))
	for v := range constructors {
		venues = append(venues, v)
	}
	sort.Strings(venues)
	return venues
}

func New(cfg config.ExchangeConfig, logger *zap.Logger) (exchange.Exchange, error) {
	ctor, ok := constructors[strings.ToLower(cfg.Venue)]
	if !ok {
		return nil, fmt.Errorf("unsupported exchange venue: %q", cfg.Venue)
	}
	return ctor(cfg, logger)
}

// Build creates clients for the given exchange names. Unknown venues and
// construction failures are logged and skipped; the caller decides whether
// what is left is enough to run.
func Build(cfgs map[string]config.ExchangeConfig, names []string, logger *zap.Logger) map[string]exchange.Exchange {
	clients := make(map[string]exchange.Exchange, len(names))
	for _, name := range names {
		cfg, ok := cfgs[name]
		if !ok {
			logger.Error("no configuration for exchange", zap.String("exchange", name))
			continue
		}
		if cfg.Venue == "" {
			cfg.Venue = name
		}

		client, err := New(cfg, logger)
		if err != nil {
			logger.Error("failed to initialize client", zap.String("exchange", name), zap.Error(err))
			continue
		}
		clients[name] = client
		logger.Info("initialized client", zap.String("exchange", name), zap.String("venue", client.ID()))
	}
	return clients
}
