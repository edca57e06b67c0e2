package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"warehouse/internal/config"
	"warehouse/internal/dag"
	"warehouse/internal/metrics"
	"warehouse/internal/staging"
	"warehouse/internal/storage"
)

// Options tune a single run.
type Options struct {
	// Select restricts the run to these nodes and their upstreams.
	Select []string

	// Mirror overrides the staging mirror built from the config.
	Mirror staging.Mirror

	// Now supplies the lineage timestamp; time.Now when nil.
	Now func() time.Time
}

// Run executes one full pass of p. All artifacts of the run share one run id
// and one lineage timestamp.
func Run(ctx context.Context, p config.Pipeline, opts Options) (*dag.Report, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	env := Env{
		RunID:     uuid.NewString(),
		Timestamp: staging.LineageValue(now()),
		Warehouse: storage.FromStore(p.Warehouse),
	}

	mirror := opts.Mirror
	if mirror == nil && p.Staging.Mirror != nil {
		m, err := staging.NewMinIOMirror(*p.Staging.Mirror)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		mirror = m
	}
	env.Writer = &staging.Writer{
		Dir:    p.Staging.Dir,
		Comma:  delimiter(p.Staging.Delimiter),
		Mirror: mirror,
		RunID:  env.RunID,
	}

	g, err := Build(p, env)
	if err != nil {
		return nil, err
	}
	if len(opts.Select) > 0 {
		if g, err = g.Subgraph(opts.Select...); err != nil {
			return nil, fmt.Errorf("pipeline: select: %w", err)
		}
	}

	log.Printf("pipeline: job=%s run_id=%s etl_timestamp=%s nodes=%d",
		p.Job, env.RunID, env.Timestamp.Format(staging.TimestampLayout), g.Len())

	start := time.Now()
	report, runErr := g.Run(ctx, dag.WithObserver(observer{job: p.Job}))
	metrics.RecordRun(p.Job, runErr)
	if report != nil {
		log.Printf("pipeline: job=%s run_id=%s succeeded=%d failed=%d skipped=%d halted=%d elapsed=%s",
			p.Job, env.RunID,
			report.Count(dag.Succeeded), report.Count(dag.Failed),
			report.Count(dag.Skipped), report.Count(dag.Halted),
			time.Since(start).Truncate(time.Millisecond))
	}
	return report, runErr
}

// Plan returns the execution order for p without running anything.
func Plan(p config.Pipeline, selectNodes ...string) ([]string, error) {
	g, err := Build(p, Env{Writer: &staging.Writer{Dir: p.Staging.Dir}})
	if err != nil {
		return nil, err
	}
	if len(selectNodes) > 0 {
		if g, err = g.Subgraph(selectNodes...); err != nil {
			return nil, err
		}
	}
	return g.Order()
}

// observer reports node outcomes to the metrics backend.
type observer struct {
	job string
}

func (o observer) NodeStarted(ctx context.Context, node string) {
	log.Printf("pipeline: job=%s node=%s started", o.job, node)
}

func (o observer) NodeFinished(ctx context.Context, res dag.Result) {
	metrics.RecordStep(o.job, res.Node, res.Err, res.Duration)
}
