package dag

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Run resolves the topological order and executes every node exactly once,
// strictly one after another. A cycle or unknown upstream fails the run before
// any node executes.
//
// Each node receives the memoized values of its declared upstreams. When a
// node fails, its transitive dependents are marked Skipped, every other
// unstarted node is marked Halted, and Run returns a *NodeError naming the
// failing node. Cancellation of ctx is observed between nodes.
func (g *Graph) Run(ctx context.Context, opts ...Option) (*Report, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	order, err := g.Order()
	if err != nil {
		return nil, err
	}

	report := &Report{Order: order, Results: make([]Result, len(order))}
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
		report.Results[i] = Result{Node: name, Status: Pending}
	}

	log.Printf("dag: run nodes=%d order=%v", len(order), order)

	values := make(map[string]any, len(order))
	for i, name := range order {
		if err := ctx.Err(); err != nil {
			haltRemaining(report, i)
			report.Err = fmt.Errorf("dag: run canceled before %q: %w", name, err)
			log.Printf("dag: canceled before node=%s: %v", name, err)
			return report, report.Err
		}

		n := g.nodes[name]
		inputs := make([]any, len(n.deps))
		for j, d := range n.deps {
			inputs[j] = values[d]
		}

		for _, o := range ro.observers {
			o.NodeStarted(ctx, name)
		}

		start := time.Now()
		v, runErr := invoke(ctx, n.run, inputs)
		res := Result{Node: name, Value: v, Err: runErr, Duration: time.Since(start)}

		if runErr != nil {
			res.Status = Failed
			res.Value = nil
			report.Results[i] = res
			notifyFinished(ctx, ro.observers, res)

			nodeErr := &NodeError{Node: name, Err: runErr}
			report.Err = nodeErr
			log.Printf("dag: node=%s status=%s duration=%s err=%v", name, res.Status, res.Duration.Truncate(time.Millisecond), runErr)

			for _, d := range g.Downstream(name) {
				j := pos[d]
				report.Results[j].Status = Skipped
				report.Results[j].Err = fmt.Errorf("skipped due to upstream failure of %q", name)
				log.Printf("dag: node=%s status=%s upstream=%s", d, Skipped, name)
			}
			haltRemaining(report, i+1)
			return report, nodeErr
		}

		res.Status = Succeeded
		values[name] = v
		report.Results[i] = res
		notifyFinished(ctx, ro.observers, res)
		log.Printf("dag: node=%s status=%s duration=%s", name, res.Status, res.Duration.Truncate(time.Millisecond))
	}

	return report, nil
}

// haltRemaining marks every still-pending result from index i on as Halted.
func haltRemaining(r *Report, i int) {
	for ; i < len(r.Results); i++ {
		if r.Results[i].Status == Pending {
			r.Results[i].Status = Halted
		}
	}
}

func notifyFinished(ctx context.Context, obs []Observer, res Result) {
	for _, o := range obs {
		o.NodeFinished(ctx, res)
	}
}

// invoke runs fn, converting a panic into an error so the engine can record
// the failure against the node.
func invoke(ctx context.Context, fn Func, inputs []any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, inputs)
}
