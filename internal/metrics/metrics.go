// Package metrics records run, node and row metrics for the warehouse.
//
// Recording goes through a process-wide Backend installed with SetBackend.
// Until one is installed every call is a no-op. Concrete backends live in
// the prompush and datadog subpackages.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metric names.
const (
	NodeTotal           = "warehouse_node_total"
	NodeDurationSeconds = "warehouse_node_duration_seconds"
	RowsTotal           = "warehouse_rows_total"
	RunTotal            = "warehouse_run_total"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Labels are string key/value pairs attached to a sample.
type Labels map[string]string

// Backend receives samples. Flush is called after each run and at shutdown.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Nop discards every sample.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }

type holder struct{ b Backend }

var active atomic.Pointer[holder]

func init() { active.Store(&holder{Nop{}}) }

// SetBackend installs b for all later recordings. A nil b is ignored.
func SetBackend(b Backend) {
	if b != nil {
		active.Store(&holder{b})
	}
}

func current() Backend { return active.Load().b }

// Flush flushes the installed backend.
func Flush() error { return current().Flush() }

func statusOf(err error) string {
	if err == nil {
		return StatusSuccess
	}
	return StatusFailure
}

// RecordStep counts one node execution and observes how long it took.
func RecordStep(job, node string, err error, d time.Duration) {
	lbls := Labels{"job": job, "node": node, "status": statusOf(err)}
	b := current()
	b.IncCounter(NodeTotal, 1, lbls)
	b.ObserveHistogram(NodeDurationSeconds, d.Seconds(), lbls)
}

// RecordRows adds n rows that entity wrote into layer. Empty writes are not
// counted.
func RecordRows(job, entity, layer string, n int64) {
	if n > 0 {
		current().IncCounter(RowsTotal, float64(n), Labels{"job": job, "entity": entity, "layer": layer})
	}
}

// RecordRun counts a finished run.
func RecordRun(job string, err error) {
	current().IncCounter(RunTotal, 1, Labels{"job": job, "status": statusOf(err)})
}
