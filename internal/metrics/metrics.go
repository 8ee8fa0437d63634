// Package metrics exposes reconciliation counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

const namespace = "walletsync"

// Collector implements the metric sinks of the loop, resolver and price updater.
type Collector struct {
	registry *prometheus.Registry

	cycles       *prometheus.CounterVec
	cycleSeconds *prometheus.HistogramVec
	skippedTicks *prometheus.CounterVec
	sources      *prometheus.CounterVec
	prices       *prometheus.CounterVec
	installs     *prometheus.CounterVec
}

// NewCollector registers all metrics in a dedicated registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Reconciliation cycles by chain, initiator and outcome.",
		}, []string{"chain", "initiator", "outcome"}),
		cycleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of reconciliation cycles.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"chain", "initiator"}),
		skippedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_ticks_total",
			Help:      "Scheduled ticks skipped because a manual action was in progress.",
		}, []string{"chain"}),
		sources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_source_requests_total",
			Help:      "Balance source queries by chain, source and result.",
		}, []string{"chain", "source", "result"}),
		prices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_fetches_total",
			Help:      "Price feed fetches by chain, feed and result.",
		}, []string{"chain", "feed", "result"}),
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "install_prompts_total",
			Help:      "Connect requests for a chain whose wallet is not installed.",
		}, []string{"chain"}),
	}

	c.registry.MustRegister(
		c.cycles,
		c.cycleSeconds,
		c.skippedTicks,
		c.sources,
		c.prices,
		c.installs,
		collectors.NewGoCollector(),
	)

	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveCycle(chain domain.Chain, initiator domain.Initiator, outcome domain.Outcome, took time.Duration) {
	c.cycles.WithLabelValues(chain.String(), string(initiator), string(outcome)).Inc()
	c.cycleSeconds.WithLabelValues(chain.String(), string(initiator)).Observe(took.Seconds())
}

func (c *Collector) ObserveSkippedTick(chain domain.Chain) {
	c.skippedTicks.WithLabelValues(chain.String()).Inc()
}

func (c *Collector) ObserveSource(chain domain.Chain, source domain.BalanceSource, err error) {
	c.sources.WithLabelValues(chain.String(), source.String(), result(err)).Inc()
}

func (c *Collector) ObservePrice(chain domain.Chain, feed string, err error) {
	c.prices.WithLabelValues(chain.String(), feed, result(err)).Inc()
}

// PromptInstall counts install prompts. The link itself reaches the UI on the attempt.
func (c *Collector) PromptInstall(chain domain.Chain, _ string) {
	c.installs.WithLabelValues(chain.String()).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
