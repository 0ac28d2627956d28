package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes engine statistics as Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry
}

// NewMetrics registers collectors reading from e.
func NewMetrics(e *Engine) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	gauges := []struct {
		name string
		help string
		fn   func(Stats) float64
	}{
		{"relay_endpoints", "Connected endpoints", func(s Stats) float64 { return float64(s.Endpoints) }},
		{"relay_mobiles", "Registered mobile endpoints", func(s Stats) float64 { return float64(s.Mobiles) }},
		{"relay_laptops", "Registered laptop endpoints", func(s Stats) float64 { return float64(s.Laptops) }},
		{"relay_pairs", "Active pairing links", func(s Stats) float64 { return float64(s.Pairs) }},
	}
	for _, g := range gauges {
		fn := g.fn
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return fn(e.GetStats()) },
		))
	}

	counters := []struct {
		name string
		help string
		fn   func() uint64
	}{
		{"relay_messages_received_total", "Frames received from endpoints", e.messagesReceived.Load},
		{"relay_messages_routed_total", "Data messages forwarded to a paired peer", e.messagesRouted.Load},
		{"relay_messages_dropped_total", "Messages dropped by routing rules", e.messagesDropped.Load},
		{"relay_messages_malformed_total", "Frames that failed to decode", e.messagesMalformed.Load},
		{"relay_messages_sent_total", "Frames written to endpoints", e.messagesSent.Load},
		{"relay_send_errors_total", "Failed writes to endpoints", e.sendErrors.Load},
		{"relay_pairings_total", "Pairings established", e.pairings.Load},
	}
	for _, c := range counters {
		fn := c.fn
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(fn()) },
		))
	}

	return m
}

// Registry returns the underlying registry so transports can add their own
// collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
