// This file keeps the CLI layer thin: it resolves environment overrides,
// installs the metrics backend and drives pipeline runs, once or on a cron
// schedule. It never imports backend-specific storage packages.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"

	"warehouse/internal/config"
	"warehouse/internal/metrics"
	"warehouse/internal/metrics/datadog"
	"warehouse/internal/metrics/prompush"
	"warehouse/internal/pipeline"
)

// Environment overrides, 12-factor style. DSNs from the environment win over
// the file so credentials can stay out of it.
const (
	envSourceDSN  = "WAREHOUSE_SOURCE_DSN"
	envDSN        = "WAREHOUSE_DSN"
	envStagingDir = "WAREHOUSE_STAGING_DIR"
	envBatchSize  = "WAREHOUSE_BATCH_SIZE"
)

const defaultBatchSize = 10000

// runPipeline is a seam for tests.
var runPipeline = pipeline.Run

// applyEnv folds environment overrides into p.
func applyEnv(p *config.Pipeline) {
	if v := os.Getenv(envSourceDSN); v != "" {
		p.Source.DSN = v
	}
	if v := os.Getenv(envDSN); v != "" {
		p.Warehouse.DSN = v
	}
	if v := os.Getenv(envStagingDir); v != "" {
		p.Staging.Dir = v
	}
	p.Runtime.BatchSize = pickInt(getenvInt(envBatchSize, 0), pickInt(p.Runtime.BatchSize, defaultBatchSize))
}

// runOnce executes one full pass and reports the failing node, if any.
func runOnce(ctx context.Context, p config.Pipeline, sel []string) error {
	report, err := runPipeline(ctx, p, pipeline.Options{Select: sel})
	if err != nil {
		if report != nil {
			if ne, ok := report.Failed(); ok {
				return fmt.Errorf("run failed at node %s: %w", ne.Node, ne.Err)
			}
		}
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

// printPlan writes the execution order, one node per line.
func printPlan(w io.Writer, p config.Pipeline, sel []string) error {
	order, err := pipeline.Plan(p, sel...)
	if err != nil {
		return err
	}
	for i, n := range order {
		if _, err := fmt.Fprintf(w, "%2d  %s\n", i+1, n); err != nil {
			return err
		}
	}
	return nil
}

// newScheduler registers job under spec. Runs that would overlap a still
// running one are skipped.
func newScheduler(ctx context.Context, spec string, job func(context.Context) error) (*cron.Cron, error) {
	logger := cron.VerbosePrintfLogger(log.Default())
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	_, err := c.AddFunc(spec, func() {
		if err := job(ctx); err != nil {
			log.Printf("schedule: run error: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", spec, err)
	}
	return c, nil
}

// runScheduled blocks until ctx is done, running job on spec. In-flight runs
// are awaited before returning.
func runScheduled(ctx context.Context, spec string, job func(context.Context) error) error {
	c, err := newScheduler(ctx, spec, job)
	if err != nil {
		return err
	}
	log.Printf("schedule: spec=%q started", spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	log.Printf("schedule: stopped")
	return nil
}

type metricsConfig struct {
	backend    string
	gatewayURL string
	ddAddr     string
	job        string
	verbose    bool
}

// setupMetrics installs the selected backend and returns the shutdown hook.
// Init failures fall back to the nop backend.
func setupMetrics(cfg metricsConfig) func() {
	jobName := cfg.job
	if jobName == "" {
		jobName = "warehouse"
	}

	switch strings.ToLower(cfg.backend) {
	case "pushgateway":
		b, err := prompush.NewBackend(jobName, cfg.gatewayURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", cfg.gatewayURL, cfg.backend, jobName)
		metrics.SetBackend(b)
		return func() {
			if err := flushMetrics(); err != nil {
				log.Printf("metrics: flush error: %v", err)
			}
		}

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       cfg.ddAddr,
			Namespace:  "warehouse.",
			GlobalTags: []string{"job:" + jobName},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: addr=%v, backend=%v, job_name=%v", cfg.ddAddr, cfg.backend, jobName)
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				log.Printf("metrics: close error: %v", err)
			}
		}

	case "", "none":
		if cfg.verbose {
			log.Printf("metrics: disabled (backend=%q)", cfg.backend)
		}
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", cfg.backend)
	}
	return func() {}
}

func flushMetrics() error { return metrics.Flush() }

// ----------------------------------------------------------------------------
// Small helpers
// ----------------------------------------------------------------------------

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
