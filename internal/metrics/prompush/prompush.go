// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// Series live in a private registry and are pushed on Flush. The job acts as
// the Pushgateway grouping key, so no collector carries a job label.
package prompush

import (
	"fmt"

	"warehouse/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob groups pushes when the pipeline names no job.
const DefaultJob = "warehouse"

// series pairs a collector with the label keys it is partitioned by, in
// collector order.
type series[T any] struct {
	vec  T
	keys []string
}

func (s series[T]) values(l metrics.Labels) []string {
	out := make([]string, len(s.keys))
	for i, k := range s.keys {
		out[i] = l[k]
	}
	return out
}

// Backend pushes warehouse metrics to a Pushgateway.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	counters  map[string]series[*prometheus.CounterVec]
	summaries map[string]series[*prometheus.SummaryVec]
}

var _ metrics.Backend = (*Backend)(nil)

// NewBackend registers the warehouse collectors and targets the gateway at
// gatewayURL, e.g. http://pushgateway:9091.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = DefaultJob
	}
	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		counters:   map[string]series[*prometheus.CounterVec]{},
		summaries:  map[string]series[*prometheus.SummaryVec]{},
	}

	counters := []struct {
		name, help string
		keys       []string
	}{
		{metrics.NodeTotal, "Graph node executions by node and status.", []string{"node", "status"}},
		{metrics.RowsTotal, "Rows written by entity and layer.", []string{"entity", "layer"}},
		{metrics.RunTotal, "Finished pipeline runs by status.", []string{"status"}},
	}
	for _, c := range counters {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: c.name, Help: c.help}, c.keys)
		if err := b.reg.Register(vec); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", c.name, err)
		}
		b.counters[c.name] = series[*prometheus.CounterVec]{vec: vec, keys: c.keys}
	}

	keys := []string{"node", "status"}
	dur := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name:       metrics.NodeDurationSeconds,
		Help:       "Graph node duration in seconds by node and status.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, keys)
	if err := b.reg.Register(dur); err != nil {
		return nil, fmt.Errorf("prompush: register %s: %w", metrics.NodeDurationSeconds, err)
	}
	b.summaries[metrics.NodeDurationSeconds] = series[*prometheus.SummaryVec]{vec: dur, keys: keys}
	return b, nil
}

// IncCounter adds delta to a known counter. Unknown names are dropped.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if s, ok := b.counters[name]; ok {
		s.vec.WithLabelValues(s.values(labels)...).Add(delta)
	}
}

// ObserveHistogram records value on a known summary. Unknown names are dropped.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if s, ok := b.summaries[name]; ok {
		s.vec.WithLabelValues(s.values(labels)...).Observe(value)
	}
}

// Flush replaces the job's group on the Pushgateway with the registry.
func (b *Backend) Flush() error {
	if err := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push(); err != nil {
		return fmt.Errorf("prompush: push %s: %w", b.jobName, err)
	}
	return nil
}
