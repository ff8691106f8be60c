// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gauges are sampled on every scrape.
type Gauges struct {
	Connections func() int
	Rooms       func() int
	Matches     func() int
}

type Metrics struct {
	EventsReceived  *prometheus.CounterVec
	StartLatency    prometheus.Histogram
	StartFailures   prometheus.Counter
	MatchesFinished *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers the server's collectors on reg. Passing a fresh
// prometheus.NewRegistry keeps tests independent of the default registry.
func NewMetrics(namespace string, reg *prometheus.Registry, gauges Gauges) *Metrics {
	m := &Metrics{
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Client events received, by event name",
		}, []string{"event"}),
		StartLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_start_seconds",
			Help:      "Time spent starting a match, factory call included",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		StartFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_start_failures_total",
			Help:      "Match starts that failed after reaching the factory",
		}),
		MatchesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_finished_total",
			Help:      "Finished matches, by outcome reason",
		}, []string{"reason"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.EventsReceived,
		m.StartLatency,
		m.StartFailures,
		m.MatchesFinished,
	)
	registerGauge(reg, namespace, "online_connections", "Number of open client connections", gauges.Connections)
	registerGauge(reg, namespace, "active_rooms", "Number of rooms", gauges.Rooms)
	registerGauge(reg, namespace, "active_matches", "Number of live matches", gauges.Matches)

	return m
}

func registerGauge(reg prometheus.Registerer, namespace, name, help string, fn func() int) {
	if fn == nil {
		return
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) }))
}

func (m *Metrics) IncEvent(event string) {
	m.EventsReceived.WithLabelValues(event).Inc()
}

// ObserveStart records one start attempt that reached the factory.
func (m *Metrics) ObserveStart(duration time.Duration, failed bool) {
	m.StartLatency.Observe(duration.Seconds())
	if failed {
		m.StartFailures.Inc()
	}
}

func (m *Metrics) MatchFinished(reason string) {
	m.MatchesFinished.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
