package infra

import (
	"net/http"
	"time"

	"ladder_go/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of the depth service on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	EventsTotal    *prometheus.CounterVec
	RejectsTotal   *prometheus.CounterVec
	ReanchorsTotal *prometheus.CounterVec
	DroppedLevels  *prometheus.CounterVec
	ResyncsTotal   *prometheus.CounterVec
	SnapshotsTotal *prometheus.CounterVec
	WSReconnects   *prometheus.CounterVec
	SequenceGaps   prometheus.Counter
	BookStale      *prometheus.GaugeVec
	BookLevels     *prometheus.GaugeVec
	SpreadTicks    *prometheus.GaugeVec
	ApplyLatencyUs prometheus.Histogram
}

// NewMetrics creates and registers every collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_events_total", Help: "Depth events applied by symbol",
		}, []string{"symbol"}),
		RejectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_rejects_total", Help: "Ladder updates rejected by symbol and reason",
		}, []string{"symbol", "reason"}),
		ReanchorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_reanchors_total", Help: "Window moves by symbol and side",
		}, []string{"symbol", "side"}),
		DroppedLevels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_dropped_levels_total", Help: "Levels dropped by re-anchoring by symbol and side",
		}, []string{"symbol", "side"}),
		ResyncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_resyncs_total", Help: "Snapshot resync requests by symbol",
		}, []string{"symbol"}),
		SnapshotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_snapshots_total", Help: "Full snapshots loaded by symbol",
		}, []string{"symbol"}),
		WSReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_ws_reconnects_total", Help: "WS reconnects by feed",
		}, []string{"feed"}),
		SequenceGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ladder_sequence_gaps_total", Help: "Tolerated inbox sequence gaps",
		}),
		BookStale: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ladder_book_stale", Help: "1 while a book waits for a snapshot",
		}, []string{"symbol"}),
		BookLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ladder_book_levels", Help: "Live levels by symbol and side",
		}, []string{"symbol", "side"}),
		SpreadTicks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ladder_spread_ticks", Help: "Best ask minus best bid in ticks",
		}, []string{"symbol"}),
		ApplyLatencyUs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "ladder_apply_latency_us", Help: "Time to apply one depth event",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
		}),
	}

	m.reg.MustRegister(
		m.EventsTotal, m.RejectsTotal, m.ReanchorsTotal, m.DroppedLevels,
		m.ResyncsTotal, m.SnapshotsTotal, m.WSReconnects, m.SequenceGaps,
		m.BookStale, m.BookLevels, m.SpreadTicks, m.ApplyLatencyUs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Reconnected counts a WS reconnect of feed.
func (m *Metrics) Reconnected(feed string) {
	if m == nil {
		return
	}
	m.WSReconnects.WithLabelValues(feed).Inc()
}

// Applied records one applied depth event.
func (m *Metrics) Applied(symbol string, d time.Duration) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(symbol).Inc()
	m.ApplyLatencyUs.Observe(float64(d) / float64(time.Microsecond))
}

// Rejected counts a rejected ladder update.
func (m *Metrics) Rejected(symbol, reason string) {
	if m == nil {
		return
	}
	m.RejectsTotal.WithLabelValues(symbol, reason).Inc()
}

// Reanchored adds window moves and dropped levels of one side.
func (m *Metrics) Reanchored(symbol, side string, moves, dropped uint64) {
	if m == nil {
		return
	}
	if moves > 0 {
		m.ReanchorsTotal.WithLabelValues(symbol, side).Add(float64(moves))
	}
	if dropped > 0 {
		m.DroppedLevels.WithLabelValues(symbol, side).Add(float64(dropped))
	}
}

// Snapshot counts a full snapshot load.
func (m *Metrics) Snapshot(symbol string) {
	if m == nil {
		return
	}
	m.SnapshotsTotal.WithLabelValues(symbol).Inc()
}

// Resync counts a resync request.
func (m *Metrics) Resync(symbol string) {
	if m == nil {
		return
	}
	m.ResyncsTotal.WithLabelValues(symbol).Inc()
}

// Gap counts a tolerated sequence gap.
func (m *Metrics) Gap() {
	if m == nil {
		return
	}
	m.SequenceGaps.Inc()
}

// Stale sets the stale gauge of a book.
func (m *Metrics) Stale(symbol string, stale bool) {
	if m == nil {
		return
	}
	v := 0.0
	if stale {
		v = 1
	}
	m.BookStale.WithLabelValues(symbol).Set(v)
}

// Top refreshes the level and spread gauges from a published top.
func (m *Metrics) Top(top domain.BookTop) {
	if m == nil {
		return
	}
	m.BookLevels.WithLabelValues(top.Symbol, "BID").Set(float64(top.BidLevels))
	m.BookLevels.WithLabelValues(top.Symbol, "ASK").Set(float64(top.AskLevels))
	if s, ok := top.Spread(); ok {
		m.SpreadTicks.WithLabelValues(top.Symbol).Set(float64(s))
	}
}
