package datadog

import (
	"reflect"
	"testing"

	"warehouse/internal/metrics"
)

type sample struct {
	kind  string
	name  string
	value float64
	tags  []string
}

type fakeStatter struct {
	samples []sample
	flushed int
	closed  int
}

func (f *fakeStatter) Count(name string, value int64, tags []string, rate float64) error {
	f.samples = append(f.samples, sample{"count", name, float64(value), tags})
	return nil
}

func (f *fakeStatter) Histogram(name string, value float64, tags []string, rate float64) error {
	f.samples = append(f.samples, sample{"histogram", name, value, tags})
	return nil
}

func (f *fakeStatter) Flush() error {
	f.flushed++
	return nil
}

func (f *fakeStatter) Close() error {
	f.closed++
	return nil
}

func TestNewBackendRequiresAddr(t *testing.T) {
	if _, err := NewBackend(Config{Namespace: "warehouse."}); err == nil {
		t.Fatal("expected error for empty Addr")
	}
}

func TestTagsAreSorted(t *testing.T) {
	got := tags(metrics.Labels{"status": "failure", "job": "assignment", "node": "goals_base"})
	want := []string{"job:assignment", "node:goals_base", "status:failure"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
}

func TestBackendForwardsWithSortedTags(t *testing.T) {
	fs := &fakeStatter{}
	b := &Backend{client: fs}
	metrics.SetBackend(b)
	t.Cleanup(func() { metrics.SetBackend(metrics.Nop{}) })

	metrics.RecordRows("assignment", "customers", "raw", 4)
	b.ObserveHistogram(metrics.NodeDurationSeconds, 0.25, metrics.Labels{"status": "success", "node": "customers_raw"})

	if len(fs.samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(fs.samples))
	}
	want := sample{"count", metrics.RowsTotal, 4, []string{"entity:customers", "job:assignment", "layer:raw"}}
	if !reflect.DeepEqual(fs.samples[0], want) {
		t.Fatalf("count sample = %+v, want %+v", fs.samples[0], want)
	}
	if got := fs.samples[1].tags; !reflect.DeepEqual(got, []string{"node:customers_raw", "status:success"}) {
		t.Fatalf("histogram tags = %v", got)
	}

	if err := b.Flush(); err != nil || fs.flushed != 1 || fs.closed != 0 {
		t.Fatalf("Flush err=%v flushed=%d closed=%d", err, fs.flushed, fs.closed)
	}
	if err := b.Close(); err != nil || fs.closed != 1 {
		t.Fatalf("Close err=%v closed=%d", err, fs.closed)
	}
}

func TestNilClientIsNoop(t *testing.T) {
	b := &Backend{}
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if tags(nil) != nil {
		t.Fatal("tags(nil) should be nil")
	}
}
