// Package datadog forwards warehouse metrics to a DogStatsD agent. Labels
// are sent as sorted "key:value" tags.
package datadog

import (
	"fmt"
	"maps"
	"slices"

	"warehouse/internal/metrics"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// sampleRate is fixed at 1; the agent sees every sample.
const sampleRate = 1

// Config selects the agent and the tags shared by every sample.
type Config struct {
	// Addr is host:port or unix:///path/to/socket.
	Addr       string
	Namespace  string // e.g. "warehouse."
	GlobalTags []string
}

type statter interface {
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Flush() error
	Close() error
}

// Backend implements metrics.Backend over DogStatsD.
type Backend struct {
	client statter
}

var _ metrics.Backend = (*Backend)(nil)

// NewBackend dials the agent at cfg.Addr.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: agent address is required")
	}
	opts := []statsd.Option{statsd.WithNamespace(cfg.Namespace)}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}
	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: dial %s: %w", cfg.Addr, err)
	}
	return &Backend{client: c}, nil
}

// IncCounter sends delta as a Count, truncated to an integer.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client != nil {
		_ = b.client.Count(name, int64(delta), tags(labels), sampleRate)
	}
}

// ObserveHistogram sends value as a Histogram sample.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client != nil {
		_ = b.client.Histogram(name, value, tags(labels), sampleRate)
	}
}

// Flush sends buffered samples and keeps the client open.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	return b.client.Flush()
}

// Close flushes and releases the client.
func (b *Backend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

func tags(l metrics.Labels) []string {
	if len(l) == 0 {
		return nil
	}
	out := make([]string, 0, len(l))
	for _, k := range slices.Sorted(maps.Keys(l)) {
		out = append(out, k+":"+l[k])
	}
	return out
}
