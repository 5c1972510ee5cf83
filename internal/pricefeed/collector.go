package pricefeed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spread-arb-bot/internal/metrics"
)

// Quote is the outcome of one fetch in a collection round.
type Quote struct {
	Exchange string
	Venue    string
	Price    float64
	At       time.Time
	Latency  time.Duration
	Err      error
}

// Collector fetches one price per handle concurrently. A failing exchange
// never aborts the round; it is simply missing from the result.
type Collector struct {
	source  *Source
	handles []Handle
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewCollector orders handles by name so every round logs them in the same
// order. Duplicate names keep the last handle.
func NewCollector(source *Source, handles []Handle, logger *zap.Logger, m *metrics.Metrics) *Collector {
	if source == nil {
		source = NewSource()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	byName := make(map[string]Handle, len(handles))
	for _, h := range handles {
		byName[h.Name] = h
	}
	sorted := make([]Handle, 0, len(byName))
	for _, h := range byName {
		sorted = append(sorted, h)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	return &Collector{source: source, handles: sorted, logger: logger, metrics: m}
}

func (c *Collector) Handles() []Handle {
	return append([]Handle(nil), c.handles...)
}

// CollectQuotes runs every fetch at once and waits for all of them. The
// result has one entry per handle, in handle order.
func (c *Collector) CollectQuotes(ctx context.Context, symbol string) []Quote {
	quotes := make([]Quote, len(c.handles))

	var g errgroup.Group
	for i, h := range c.handles {
		g.Go(func() error {
			quotes[i] = c.fetch(ctx, h, symbol)
			return nil
		})
	}
	_ = g.Wait()

	return quotes
}

// Collect returns the successfully fetched prices keyed by exchange name.
func (c *Collector) Collect(ctx context.Context, symbol string) map[string]float64 {
	prices := make(map[string]float64, len(c.handles))
	for _, q := range c.CollectQuotes(ctx, symbol) {
		if q.Err != nil {
			continue
		}
		prices[q.Exchange] = q.Price
	}
	return prices
}

func (c *Collector) fetch(ctx context.Context, h Handle, symbol string) (q Quote) {
	start := time.Now()
	q = Quote{Exchange: h.Name, Venue: h.Venue()}

	defer func() {
		if r := recover(); r != nil {
			q.Price = 0
			q.Err = &FetchError{Exchange: h.Name, Venue: q.Venue, Err: fmt.Errorf("panic: %v", r)}
		}
		q.At = time.Now()
		q.Latency = q.At.Sub(start)
		c.metrics.ObserveFetch(h.Name, q.Latency, q.Price, q.Err)
		if q.Err != nil {
			c.logger.Warn("price fetch failed",
				zap.String("exchange", h.Name),
				zap.String("symbol", symbol),
				zap.Error(q.Err))
			return
		}
		c.logger.Debug("price fetched",
			zap.String("exchange", h.Name),
			zap.String("symbol", symbol),
			zap.Float64("price", q.Price),
			zap.Duration("latency", q.Latency))
	}()

	q.Price, q.Err = c.source.FetchPrice(ctx, h, symbol)
	return q
}
