// Package metrics exposes Prometheus instruments for the monitor loop,
// classifier, alert channels and HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gaswatch/internal/types"
)

const namespace = "gaswatch"

// Metrics groups every instrument. Build one per process with New.
type Metrics struct {
	gatherer prometheus.Gatherer

	ClassificationsTotal *prometheus.CounterVec
	DispatchTotal        *prometheus.CounterVec
	CyclesTotal          *prometheus.CounterVec
	CycleDuration        prometheus.Histogram
	LastLabel            *prometheus.GaugeVec
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
}

// New registers all instruments on reg. Pass prometheus.NewRegistry() in
// tests to avoid collisions with the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		ClassificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifications_total",
				Help:      "Classifications produced, by label and whether the safe fallback was used",
			},
			[]string{"label", "fallback"},
		),
		DispatchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alert_dispatch_total",
				Help:      "Alert channel attempts by channel and result",
			},
			[]string{"channel", "result"},
		),
		CyclesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "monitor_cycles_total",
				Help:      "Monitor loop cycles by outcome",
			},
			[]string{"outcome"}, // classified, no_data, error
		),
		CycleDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "monitor_cycle_duration_seconds",
				Help:      "Wall time of one monitor cycle",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		LastLabel: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_label",
				Help:      "1 for the label of the most recent monitor classification, 0 otherwise",
			},
			[]string{"label"},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
	}
}

// RecordClassification implements inference.MetricsRecorder.
func (m *Metrics) RecordClassification(label types.Label, fallback bool) {
	m.ClassificationsTotal.WithLabelValues(string(label), strconv.FormatBool(fallback)).Inc()
}

// RecordDispatch implements core.Metrics.
func (m *Metrics) RecordDispatch(channel, result string) {
	m.DispatchTotal.WithLabelValues(channel, result).Inc()
}

// RecordCycle records a finished monitor cycle. label is empty unless the
// cycle classified a reading.
func (m *Metrics) RecordCycle(outcome string, label types.Label, d time.Duration) {
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(d.Seconds())
	if label == "" {
		return
	}
	for _, l := range []types.Label{types.LabelAman, types.LabelWaspada, types.LabelBahaya} {
		v := 0.0
		if l == label {
			v = 1
		}
		m.LastLabel.WithLabelValues(string(l)).Set(v)
	}
}

// RecordHTTP records one served request.
func (m *Metrics) RecordHTTP(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
