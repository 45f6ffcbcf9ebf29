// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gateway"

// GatewayMetrics implements the observer hooks of the coalescer, queue
// worker, webhook handler, workflow engine, extractor and dispatcher.
// A nil *GatewayMetrics is a valid no-op.
type GatewayMetrics struct {
	enqueued       prometheus.Counter
	scheduled      prometheus.Counter
	guardHits      prometheus.Counter
	batches        *prometheus.CounterVec
	batchSize      prometheus.Histogram
	dropped        *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	externalCalls  *prometheus.CounterVec
	outbound       *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

// New registers the collectors with reg, or the default registerer when nil.
func New(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "debounce",
			Name:      "enqueued_total",
			Help:      "Inbound messages appended to a pending batch",
		}),
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "debounce",
			Name:      "scheduled_total",
			Help:      "Deferred processing passes scheduled",
		}),
		guardHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "debounce",
			Name:      "guard_hits_total",
			Help:      "Enqueues that found a pass already scheduled",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "debounce",
			Name:      "batches_total",
			Help:      "Processed batches by outcome",
		}, []string{"outcome"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "debounce",
			Name:      "batch_size",
			Help:      "Messages per processed batch",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbound",
			Name:      "dropped_total",
			Help:      "Inbound payloads dropped before reaching the coalescer",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Workflow state transitions per handled turn",
		}, []string{"from", "to"}),
		externalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "external_calls_total",
			Help:      "Calls to classifiers, extractors and the booking API by outcome",
		}, []string{"capability", "outcome"}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Outbound WhatsApp sends",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of WhatsApp webhook handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.enqueued, m.scheduled, m.guardHits, m.batches, m.batchSize,
		m.dropped, m.transitions, m.externalCalls, m.outbound, m.webhookLatency,
	)
	return m
}

func (m *GatewayMetrics) ObserveEnqueued() {
	if m == nil {
		return
	}
	m.enqueued.Inc()
}

func (m *GatewayMetrics) ObserveScheduled() {
	if m == nil {
		return
	}
	m.scheduled.Inc()
}

func (m *GatewayMetrics) ObserveGuardHit() {
	if m == nil {
		return
	}
	m.guardHits.Inc()
}

func (m *GatewayMetrics) ObserveBatch(size int, outcome string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(outcome).Inc()
	if size > 0 {
		m.batchSize.Observe(float64(size))
	}
}

// ObserveDropped counts malformed, invalid or unsupported inbound payloads.
func (m *GatewayMetrics) ObserveDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *GatewayMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *GatewayMetrics) ObserveExternalCall(capability, outcome string) {
	if m == nil {
		return
	}
	m.externalCalls.WithLabelValues(capability, outcome).Inc()
}

func (m *GatewayMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outbound.WithLabelValues(status).Inc()
}

func (m *GatewayMetrics) ObserveWebhookLatency(status int, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(strconv.Itoa(status)).Observe(seconds)
}
