package dag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Func is the unit of work behind a node. inputs[i] is the value produced by
// the node's i-th declared upstream, in declaration order.
type Func func(ctx context.Context, inputs []any) (any, error)

type sentinel struct{}

func (sentinel) String() string { return "<empty>" }

// Empty is the value produced by nodes that have nothing to hand downstream
// (loaders, transforms). Dependents still receive it positionally.
var Empty any = sentinel{}

// ErrUnknownNode is returned when a node declares an upstream that was never
// added to the graph.
var ErrUnknownNode = errors.New("dag: unknown node")

// Status is the per-run state of a node.
type Status int

const (
	Pending Status = iota
	Succeeded
	Failed
	// Skipped nodes are transitive dependents of a failed node.
	Skipped
	// Halted nodes were not started because the run stopped for an
	// unrelated reason (failure elsewhere, cancellation).
	Halted
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case Halted:
		return "halted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// CycleError reports a dependency cycle. Nodes lists the cycle path with the
// first node repeated at the end, e.g. [a b a].
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return "dag: cycle detected: " + strings.Join(e.Nodes, " -> ")
}

// NodeError wraps the error returned by the first failing node of a run.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q failed: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Result is the outcome of a single node in one run.
type Result struct {
	Node     string
	Status   Status
	Value    any
	Err      error
	Duration time.Duration
}

// Report summarizes one run. Results follow execution order.
type Report struct {
	Order   []string
	Results []Result
	Err     error
}

// Result returns the result recorded for name.
func (r *Report) Result(name string) (Result, bool) {
	for _, res := range r.Results {
		if res.Node == name {
			return res, true
		}
	}
	return Result{}, false
}

// Failed returns the originating failure of the run, if any.
func (r *Report) Failed() (*NodeError, bool) {
	var ne *NodeError
	if errors.As(r.Err, &ne) {
		return ne, true
	}
	return nil, false
}

// Count returns how many nodes ended with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Observer is notified around every node execution. It is used for logging
// and metrics; it cannot alter the run.
type Observer interface {
	NodeStarted(ctx context.Context, node string)
	NodeFinished(ctx context.Context, res Result)
}

// Option configures a run.
type Option func(*runOptions)

type runOptions struct {
	observers []Observer
}

// WithObserver registers o for the run.
func WithObserver(o Observer) Option {
	return func(ro *runOptions) {
		if o != nil {
			ro.observers = append(ro.observers, o)
		}
	}
}
