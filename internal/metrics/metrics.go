// Package metrics exposes Prometheus counters for the polling pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline instruments.
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal    prometheus.Counter
	TicksSkipped  prometheus.Counter
	TicksRejected prometheus.Counter

	RepliesSent     prometheus.Counter
	RepliesFailed   prometheus.Counter
	MessagesSkipped prometheus.Counter

	AccountErrors *prometheus.CounterVec
	ProbeFailures *prometheus.CounterVec
}

// New registers the instruments on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "replykit_poll_ticks_total",
			Help: "Number of completed polling ticks",
		}),
		TicksSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "replykit_poll_ticks_skipped_total",
			Help: "Scheduled fires skipped because they arrived past the misfire grace window",
		}),
		TicksRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "replykit_poll_ticks_rejected_total",
			Help: "Fires rejected because a tick was already in flight",
		}),
		RepliesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "replykit_replies_sent_total",
			Help: "Replies sent successfully",
		}),
		RepliesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "replykit_replies_failed_total",
			Help: "Reply attempts that failed at generation or send",
		}),
		MessagesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "replykit_messages_skipped_total",
			Help: "Messages skipped because their identifier was already in the ledger",
		}),
		AccountErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "replykit_account_errors_total",
			Help: "Account-level failures during polling",
		}, []string{"account"}),
		ProbeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "replykit_probe_failures_total",
			Help: "Health probe failures by direction",
		}, []string{"direction"}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
