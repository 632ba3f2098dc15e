// Package metrics exposes Prometheus instruments for the chat client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics methods are safe to call on a nil receiver so the client can run
// without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	subscriptions   *prometheus.GaugeVec
	deliveries      *prometheus.CounterVec
	staleDeliveries *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	messagesSent    prometheus.Counter
	pushFailures    prometheus.Counter
	signedIn        prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		subscriptions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livechat_subscriptions",
			Help: "Live backend subscriptions currently held, by slot",
		}, []string{"slot"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livechat_snapshot_deliveries_total",
			Help: "Snapshots applied to client state, by slot",
		}, []string{"slot"}),
		staleDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livechat_stale_deliveries_total",
			Help: "Snapshots dropped because their subscription had been replaced",
		}, []string{"slot"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livechat_notifications_total",
			Help: "One-shot notifications published to the UI, by kind",
		}, []string{"kind"}),
		messagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "livechat_messages_sent_total",
			Help: "Chat messages written to the backend",
		}),
		pushFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "livechat_push_failures_total",
			Help: "Push notifications that could not be delivered",
		}),
		signedIn: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livechat_signed_in",
			Help: "1 while a user is signed in",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SubscriptionOpened(slot string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(slot).Inc()
}

func (m *Metrics) SubscriptionClosed(slot string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(slot).Dec()
}

func (m *Metrics) Delivered(slot string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(slot).Inc()
}

func (m *Metrics) DroppedStale(slot string) {
	if m == nil {
		return
	}
	m.staleDeliveries.WithLabelValues(slot).Inc()
}

func (m *Metrics) Notified(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

func (m *Metrics) PushFailed() {
	if m == nil {
		return
	}
	m.pushFailures.Inc()
}

func (m *Metrics) SetSignedIn(signedIn bool) {
	if m == nil {
		return
	}
	if signedIn {
		m.signedIn.Set(1)
	} else {
		m.signedIn.Set(0)
	}
}
