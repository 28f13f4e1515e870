package metrics

import "github.com/prometheus/client_golang/prometheus"

// MessageMetrics exposes counters/histograms for the webhook-to-reply
// pipeline. A nil receiver is a no-op so callers never need guards.
type MessageMetrics struct {
	webhookTotal  *prometheus.CounterVec
	turnsTotal    *prometheus.CounterVec
	turnLatency   *prometheus.HistogramVec
	outboundTotal *prometheus.CounterVec
}

func NewMessageMetrics(reg prometheus.Registerer) *MessageMetrics {
	m := &MessageMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citaflow",
			Subsystem: "gateway",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound Meta webhook message units",
		}, []string{"channel", "status"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citaflow",
			Subsystem: "engine",
			Name:      "turns_total",
			Help:      "Total conversation turns processed",
		}, []string{"channel", "outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "citaflow",
			Subsystem: "engine",
			Name:      "turn_latency_seconds",
			Help:      "Latency of one conversation turn including booking calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citaflow",
			Subsystem: "channels",
			Name:      "outbound_total",
			Help:      "Total outbound channel sends",
		}, []string{"channel", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookTotal, m.turnsTotal, m.turnLatency, m.outboundTotal)
	return m
}

func (m *MessageMetrics) ObserveWebhook(channel, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(channel, status).Inc()
}

func (m *MessageMetrics) ObserveTurn(channel, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *MessageMetrics) ObserveTurnLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(channel).Observe(seconds)
}

func (m *MessageMetrics) ObserveOutbound(channel, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(channel, status).Inc()
}
