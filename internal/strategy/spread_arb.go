package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"spread-arb-bot/internal/config"
	"spread-arb-bot/internal/exchange"
	"spread-arb-bot/internal/metrics"
	"spread-arb-bot/internal/pricefeed"
	"spread-arb-bot/internal/spread"
)

// ErrInsufficientExchanges is returned by Run when fewer than two exchanges
// are monitored.
var ErrInsufficientExchanges = errors.New("at least 2 exchanges are required")

const defaultPollInterval = time.Second

// Callback receives the pair and spread of a signal. A returned error or a
// panic is logged and never stops the loop.
type Callback func(ctx context.Context, low, high string, spreadPercent float64) error

// CallbackError wraps a failed open or close callback.
type CallbackError struct {
	Kind spread.Kind
	Err  error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("%s callback: %v", e.Kind, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

type SpreadArbStrategy struct {
	cfg       config.SpreadArbConfig
	collector *pricefeed.Collector
	machine   *spread.Machine
	onOpen    Callback
	onClose   Callback
	interval  time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics
	source    *pricefeed.Source
}

type Option func(*SpreadArbStrategy)

func WithLogger(l *zap.Logger) Option {
	return func(s *SpreadArbStrategy) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SpreadArbStrategy) { s.metrics = m }
}

// WithSource replaces the default venue strategy table.
func WithSource(src *pricefeed.Source) Option {
	return func(s *SpreadArbStrategy) { s.source = src }
}

// NewSpreadArbStrategy monitors every exchange in exchanges. Nil callbacks
// are treated as no-ops.
func NewSpreadArbStrategy(cfg config.SpreadArbConfig, exchanges map[string]exchange.Exchange, onOpen, onClose Callback, opts ...Option) *SpreadArbStrategy {
	s := &SpreadArbStrategy{
		cfg:      cfg,
		machine:  spread.NewMachine(cfg.ThresholdOpen, cfg.ThresholdClose),
		onOpen:   onOpen,
		onClose:  onClose,
		interval: time.Duration(cfg.PollInterval * float64(time.Second)),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		s.interval = defaultPollInterval
	}

	handles := make([]pricefeed.Handle, 0, len(exchanges))
	for name, exc := range exchanges {
		handles = append(handles, pricefeed.Handle{Name: name, Exchange: exc})
	}
	s.collector = pricefeed.NewCollector(s.source, handles, s.logger, s.metrics)
	return s
}

func (s *SpreadArbStrategy) Position() spread.Position {
	return s.machine.Position()
}

// Run polls until ctx is cancelled. Every run starts with no open position.
// The first round starts immediately and each following one pollInterval
// after the previous round finished.
func (s *SpreadArbStrategy) Run(ctx context.Context) error {
	handles := s.collector.Handles()
	if len(handles) < 2 {
		return fmt.Errorf("%w: got %d", ErrInsufficientExchanges, len(handles))
	}
	s.machine.Reset()

	names := make([]string, 0, len(handles))
	for _, h := range handles {
		names = append(names, h.Name)
	}
	s.logger.Info("starting spread arbitrage monitor",
		zap.String("symbol", s.cfg.Symbol),
		zap.Strings("exchanges", names),
		zap.Float64("threshold_open", s.cfg.ThresholdOpen),
		zap.Float64("threshold_close", s.cfg.ThresholdClose),
		zap.Duration("poll_interval", s.interval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping spread arbitrage monitor")
			return nil
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.interval)
		}
	}
}

func (s *SpreadArbStrategy) tick(ctx context.Context) spread.Transition {
	prices := s.collector.Collect(ctx, s.cfg.Symbol)
	if ctx.Err() != nil {
		return spread.Transition{}
	}

	best, ok := spread.Evaluate(prices)
	s.metrics.ObserveTick(ok)
	if !ok {
		s.logger.Debug("not enough quotes, skipping tick", zap.Int("quotes", len(prices)))
		return spread.Transition{}
	}
	s.metrics.ObserveSpread(best.SpreadPercent)
	s.logger.Debug("best spread",
		zap.String("low", best.Low),
		zap.String("high", best.High),
		zap.Float64("spread_pct", best.SpreadPercent))

	tr := s.machine.Observe(best)
	switch tr.Kind {
	case spread.Open:
		s.fire(ctx, tr, s.onOpen)
	case spread.Close:
		s.fire(ctx, tr, s.onClose)
	}
	return tr
}

func (s *SpreadArbStrategy) fire(ctx context.Context, tr spread.Transition, cb Callback) {
	s.metrics.ObserveSignal(tr.Kind.String(), tr.Kind == spread.Open)
	s.logger.Info("spread signal",
		zap.Stringer("kind", tr.Kind),
		zap.String("symbol", s.cfg.Symbol),
		zap.String("low", tr.Low),
		zap.String("high", tr.High),
		zap.Float64("spread_pct", tr.SpreadPercent))

	if err := safeCall(ctx, cb, tr.Low, tr.High, tr.SpreadPercent); err != nil {
		s.metrics.ObserveCallbackError(tr.Kind.String())
		s.logger.Error("signal callback failed", zap.Error(&CallbackError{Kind: tr.Kind, Err: err}))
	}
}

func safeCall(ctx context.Context, cb Callback, low, high string, spreadPercent float64) (err error) {
	if cb == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return cb(ctx, low, high, spreadPercent)
}

// Chain runs every callback in order, even after one fails, and joins their
// errors.
func Chain(cbs ...Callback) Callback {
	return func(ctx context.Context, low, high string, spreadPercent float64) error {
		var errs []error
		for _, cb := range cbs {
			if err := safeCall(ctx, cb, low, high, spreadPercent); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
