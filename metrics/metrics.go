// Package metrics exports Prometheus counters for model calls and chat turn
// outcomes. The Collector satisfies both the pipeline's and the turn
// coordinator's observer contracts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PAIR-code/deliberate-lab-sub006/chat"
	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
	"github.com/PAIR-code/deliberate-lab-sub006/model"
)

// Collector aggregates engine counters. Safe for concurrent use; the
// underlying Prometheus vectors handle synchronization.
type Collector struct {
	registry *prometheus.Registry

	modelCalls   *prometheus.CounterVec
	modelRetries *prometheus.CounterVec
	turnOutcomes *prometheus.CounterVec
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deliberatelab_model_calls_total",
			Help: "Model calls by provider and final status.",
		}, []string{"provider", "status"}),
		modelRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deliberatelab_model_retries_total",
			Help: "Retry attempts beyond the first, by provider.",
		}, []string{"provider"}),
		turnOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deliberatelab_chat_turns_total",
			Help: "Chat turn attempts by outcome.",
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(c.modelCalls, c.modelRetries, c.turnOutcomes)
	return c
}

// CallCompleted implements model.Observer.
func (c *Collector) CallCompleted(apiType experiment.APIKeyType, status model.Status, attempts int) {
	c.modelCalls.WithLabelValues(string(apiType), string(status)).Inc()
	if attempts > 1 {
		c.modelRetries.WithLabelValues(string(apiType)).Add(float64(attempts - 1))
	}
}

// TurnCompleted implements chat.Observer.
func (c *Collector) TurnCompleted(outcome chat.Outcome) {
	c.turnOutcomes.WithLabelValues(string(outcome)).Inc()
}

// Handler returns the HTTP handler serving the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for callers that register
// additional collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
