// Package telemetry exposes Prometheus metrics for transfers and HTTP.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"ledgertx/internal/domain/transfer"
)

// Metrics holds the collectors. Register them once per registry.
type Metrics struct {
	TransfersTotal      *prometheus.CounterVec
	TransferAmount      *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransfersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgertx_transfers_total",
				Help: "Total number of transfer attempts by outcome",
			},
			[]string{"outcome"}, // committed, rolled_back
		),
		TransferAmount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledgertx_transfer_amount",
				Help:    "Transfer amount distribution (minor units)",
				Buckets: []float64{10, 100, 1000, 5000, 10000, 50000, 100000},
			},
			[]string{"outcome"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgertx_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledgertx_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(m.TransfersTotal, m.TransferAmount, m.HTTPRequestsTotal, m.HTTPRequestDuration)
	return m
}

var _ transfer.Observer = (*Metrics)(nil)

// TransferFinished implements transfer.Observer.
func (m *Metrics) TransferFinished(ctx context.Context, req transfer.Request, outcome transfer.Outcome, err error) {
	m.TransfersTotal.WithLabelValues(string(outcome)).Inc()
	m.TransferAmount.WithLabelValues(string(outcome)).Observe(float64(req.Amount))
}
