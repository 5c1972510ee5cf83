package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"spread-arb-bot/internal/config"
	"spread-arb-bot/internal/exchange"
	"spread-arb-bot/internal/exchange/factory"
	"spread-arb-bot/internal/execution"
	"spread-arb-bot/internal/logging"
	"spread-arb-bot/internal/metrics"
	"spread-arb-bot/internal/notify"
	"spread-arb-bot/internal/strategy"
)

// streamer is implemented by clients that can keep a live quote feed.
type streamer interface {
	StartStream(ctx context.Context, symbol string) error
}

func main() {
	configDir := flag.String("config", "config", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("spread bot exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("spread bot stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	arb := cfg.Strategies.SpreadArb
	if !arb.Enabled {
		logger.Info("spread arbitrage strategy disabled")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exchanges := factory.Build(cfg.Exchanges, arb.Exchanges, logger)
	defer closeExchanges(exchanges, logger)

	for name, exc := range exchanges {
		if s, ok := exc.(streamer); ok {
			if err := s.StartStream(ctx, arb.Symbol); err != nil {
				logger.Warn("quote stream unavailable, using REST", zap.String("exchange", name), zap.Error(err))
			}
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	if cfg.App.Port > 0 {
		srv := serveMetrics(cfg.App.Port, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	trader := execution.NewTrader(exchanges, arb.Symbol, arb.TradeAmount, !arb.ExecuteTrades, logger)
	onOpen, onClose := strategy.Callback(trader.Open), strategy.Callback(trader.Close)
	if !arb.ExecuteTrades {
		logger.Info("execute_trades is off, signals are logged only")
	}

	if cfg.Redis.Addr != "" {
		rdb, err := notify.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("signal publishing disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			pub := notify.NewRedisPublisher(rdb, cfg.Redis.Channel, arb.Symbol, logger)
			onOpen = strategy.Chain(onOpen, pub.PublishOpen)
			onClose = strategy.Chain(onClose, pub.PublishClose)
			logger.Info("publishing signals", zap.String("addr", cfg.Redis.Addr), zap.String("channel", cfg.Redis.Channel))
		}
	}

	s := strategy.NewSpreadArbStrategy(arb, exchanges, onOpen, onClose,
		strategy.WithLogger(logger),
		strategy.WithMetrics(m),
	)
	return s.Run(ctx)
}

func serveMetrics(port int, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func closeExchanges(exchanges map[string]exchange.Exchange, logger *zap.Logger) {
	for name, exc := range exchanges {
		if c, ok := exc.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("failed to close client", zap.String("exchange", name), zap.Error(err))
			}
		}
	}
}
