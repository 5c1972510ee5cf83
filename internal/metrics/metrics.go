// Package metrics holds the Prometheus collectors of the spread monitor.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "spreadbot"

// Metrics is safe to use through a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	Ticks          prometheus.Counter
	SkippedTicks   prometheus.Counter
	FetchErrors    *prometheus.CounterVec
	FetchLatency   *prometheus.HistogramVec
	LastPrice      *prometheus.GaugeVec
	BestSpread     prometheus.Gauge
	PositionOpen   prometheus.Gauge
	Signals        *prometheus.CounterVec
	CallbackErrors *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Polling ticks started.",
		}),
		SkippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_ticks_total",
			Help:      "Ticks skipped because fewer than two quotes arrived.",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed price fetches per exchange.",
		}, []string{"exchange"}),
		FetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Price fetch latency per exchange.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"exchange"}),
		LastPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_price",
			Help:      "Last price observed per exchange.",
		}, []string{"exchange"}),
		BestSpread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_spread_percent",
			Help:      "Widest signed spread of the last evaluated tick.",
		}),
		PositionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "position_open",
			Help:      "1 while an arbitrage position is open.",
		}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Open/close signals fired.",
		}, []string{"kind"}),
		CallbackErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_errors_total",
			Help:      "Failed open/close callbacks.",
		}, []string{"kind"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Ticks, m.SkippedTicks, m.FetchErrors, m.FetchLatency,
			m.LastPrice, m.BestSpread, m.PositionOpen, m.Signals, m.CallbackErrors,
		)
	}
	return m
}

func (m *Metrics) ObserveFetch(exchange string, d time.Duration, price float64, err error) {
	if m == nil {
		return
	}
	m.FetchLatency.WithLabelValues(exchange).Observe(d.Seconds())
	if err != nil {
		m.FetchErrors.WithLabelValues(exchange).Inc()
		return
	}
	m.LastPrice.WithLabelValues(exchange).Set(price)
}

func (m *Metrics) ObserveTick(evaluated bool) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	if !evaluated {
		m.SkippedTicks.Inc()
	}
}

func (m *Metrics) ObserveSpread(percent float64) {
	if m == nil {
		return
	}
	m.BestSpread.Set(percent)
}

func (m *Metrics) ObserveSignal(kind string, open bool) {
	if m == nil {
		return
	}
	m.Signals.WithLabelValues(kind).Inc()
	if open {
		m.PositionOpen.Set(1)
	} else {
		m.PositionOpen.Set(0)
	}
}

func (m *Metrics) ObserveCallbackError(kind string) {
	if m == nil {
		return
	}
	m.CallbackErrors.WithLabelValues(kind).Inc()
}
