// Command scribe runs the world-builder dataset pipeline.
//
// A run names a project and the step instances to drive:
//
//	scribe --project worlds \
//	    --step Scenario/max=500 \
//	    --step IdeaPrompt \
//	    --step "GenIdea/model=gemma-2-9b/parallel=4/model_max=250" \
//	    --step "Clean/model=gemma-2-9b/schema_mode=vllm" \
//	    --step Export/file=worlds.jsonl
//
// The store is a SQLite file named after the project (or a MySQL DSN via
// --dsn), so killing and restarting the same command resumes where the
// previous run stopped. The process exits when the pipeline reaches
// quiescence or on interrupt; both are clean exits because a later run
// picks up whatever is left.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/worldforge/scribe/pipeline"
	"github.com/worldforge/scribe/pipeline/emit"
	"github.com/worldforge/scribe/pipeline/store"
)

type runFlags struct {
	project     string
	dsn         string
	steps       []string
	logJSON     bool
	sweepAge    time.Duration
	smallDelay  time.Duration
	bigDelay    time.Duration
	metricsAddr string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:           "scribe",
		Short:         "Durable, resumable dataset construction pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.project, "project", "", "project name; the SQLite store lives in <project>.db")
	cmd.Flags().StringVar(&flags.dsn, "dsn", "", "MySQL DSN to use instead of the project SQLite file")
	cmd.Flags().StringArrayVar(&flags.steps, "step", nil, "step instance to run, as NAME[/k=v]... (repeatable)")
	cmd.Flags().BoolVar(&flags.logJSON, "log-json", false, "emit events as JSON lines instead of text")
	cmd.Flags().DurationVar(&flags.sweepAge, "sweep-age", time.Hour, "remove unfinished claims older than this at startup (0 disables)")
	cmd.Flags().DurationVar(&flags.smallDelay, "small-delay", 0, "pause between scan passes that submitted work")
	cmd.Flags().DurationVar(&flags.bigDelay, "big-delay", 0, "pause while waiting on in-flight work")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func run(ctx context.Context, flags *runFlags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	emitter := emit.NewLogEmitter(os.Stderr, flags.logJSON)

	st, err := openStore(flags)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if flags.sweepAge > 0 {
		removed, err := st.Sweep(ctx, flags.sweepAge)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		if removed > 0 {
			emitter.Emit(emit.Event{Msg: "sweep", Meta: map[string]any{"removed": removed}})
		}
	}

	var metrics *pipeline.Metrics
	if flags.metricsAddr != "" {
		registry := prometheus.NewRegistry()
		metrics = pipeline.NewMetrics(registry)
		go serveMetrics(flags.metricsAddr, registry)
	}

	reg, err := worldBuilderRegistry()
	if err != nil {
		return err
	}

	d := pipeline.NewDispatcher(st, emitter, pipeline.Options{
		SmallDelay: flags.smallDelay,
		BigDelay:   flags.bigDelay,
		Metrics:    metrics,
	})
	if len(flags.steps) == 0 {
		return fmt.Errorf("at least one --step is required (available: %s)", strings.Join(reg.Names(), ", "))
	}
	for _, spec := range flags.steps {
		step, err := reg.Instantiate(spec)
		if err != nil {
			return err
		}
		if err := d.Register(step); err != nil {
			return err
		}
	}

	err = d.Run(ctx)
	if errors.Is(err, context.Canceled) {
		// Interrupted runs are resumable, so an interrupt is a clean stop.
		return nil
	}
	return err
}

func openStore(flags *runFlags) (store.Store, error) {
	if flags.dsn != "" {
		return store.OpenMySQL(flags.dsn)
	}
	return store.OpenSQLite(flags.project + ".db")
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
	}
}
