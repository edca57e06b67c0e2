package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"warehouse/internal/config"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "warehouse/internal/storage/all"
)

// main is the entry point for the warehouse binary. It loads the pipeline
// config, optionally initializes a metrics backend, and materializes the
// graph once or on a cron schedule.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		datadogAddrFlg    string
		scheduleFlg       string
		selectFlg         string
		validate          bool
		plan              bool
		once              bool
	)

	flag.StringVar(&cfgPath, "config", "configs/pipelines/assignment.json", "pipeline config path (.json, .yaml)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (pushgateway, datadog, none); env METRICS_BACKEND")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&datadogAddrFlg, "datadog-addr", "", "DogStatsD address (overrides env DD_DOGSTATSD_ADDR)")
	flag.StringVar(&scheduleFlg, "schedule", "", "cron expression; overrides runtime.schedule")
	flag.StringVar(&selectFlg, "select", "", "comma-separated nodes to run, with their upstreams")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.BoolVar(&plan, "plan", false, "print the execution order and exit")
	flag.BoolVar(&once, "once", false, "run once even when a schedule is configured")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	applyEnv(&p)

	hasError := false
	for _, iss := range config.ValidatePipeline(p) {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	sel := parseSelect(selectFlg)
	if plan {
		if err := printPlan(os.Stdout, p, sel); err != nil {
			fatalf("plan: %v", err)
		}
		return
	}

	flush := setupMetrics(metricsConfig{
		backend:    firstNonEmpty(metricsBackendFlg, os.Getenv("METRICS_BACKEND")),
		gatewayURL: firstNonEmpty(pushGatewayURLFlg, os.Getenv("PUSHGATEWAY_URL"), "http://localhost:9091"),
		ddAddr:     firstNonEmpty(datadogAddrFlg, os.Getenv("DD_DOGSTATSD_ADDR"), "127.0.0.1:8125"),
		job:        p.Job,
		verbose:    *verbose,
	})
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *verbose {
		log.Printf("pipeline: job=%s source=%s warehouse=%s staging=%s entities=%d",
			p.Job, p.Source.Kind, p.Warehouse.Kind, p.Staging.Dir, len(p.Entities))
	}

	schedule := firstNonEmpty(scheduleFlg, p.Runtime.Schedule)
	if schedule == "" || once {
		start := time.Now()
		if err := runOnce(ctx, p, sel); err != nil {
			flush()
			log.Fatalf("%v", err)
		}
		if *verbose {
			log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
		}
		return
	}

	if err := runScheduled(ctx, schedule, func(ctx context.Context) error {
		err := runOnce(ctx, p, sel)
		if ferr := flushMetrics(); ferr != nil {
			log.Printf("metrics: flush error: %v", ferr)
		}
		return err
	}); err != nil {
		fatalf("schedule: %v", err)
	}
}

func parseSelect(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
