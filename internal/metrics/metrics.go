// Package metrics exposes chat pipeline counters in Prometheus format.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's collectors on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	messages     *prometheus.CounterVec
	sends        *prometheus.CounterVec
	markRead     *prometheus.CounterVec
	resubscribes prometheus.Counter
	unread       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridechat_messages_total",
			Help: "Incoming store messages by reconciliation outcome.",
		}, []string{"outcome"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridechat_sends_total",
			Help: "Outgoing message appends by result.",
		}, []string{"result"}),
		markRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ridechat_mark_read_total",
			Help: "Mark-read requests by result.",
		}, []string{"result"}),
		resubscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridechat_resubscribes_total",
			Help: "Live channel resubscribe attempts.",
		}),
		unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ridechat_unread",
			Help: "Unread counterparty messages in the active ride.",
		}),
	}
	m.registry.MustRegister(m.messages, m.sends, m.markRead, m.resubscribes, m.unread)
	return m
}

// Message counts an incoming record. outcome is appended, duplicate,
// echo_matched or stale.
func (m *Metrics) Message(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

// Send counts an append attempt with result ok or failed.
func (m *Metrics) Send(result string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(result).Inc()
}

func (m *Metrics) MarkRead(result string) {
	if m == nil {
		return
	}
	m.markRead.WithLabelValues(result).Inc()
}

func (m *Metrics) Resubscribe() {
	if m == nil {
		return
	}
	m.resubscribes.Inc()
}

func (m *Metrics) SetUnread(n int) {
	if m == nil {
		return
	}
	m.unread.Set(float64(n))
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
