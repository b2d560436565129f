package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/kpool"
	"github.com/hupe1980/kpool/promcollector"
	"github.com/hupe1980/kpool/resource"
	"github.com/hupe1980/kpool/statdump"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a pool workload",
		Long: `Run builds the pools described in a workload file and drives them with
worker goroutines doing random gets and puts. Idle pages are reclaimed in the
background, metrics are served on /metrics and statistics are dumped to the
configured sink.

Example:
  kpoolstat run --workload workload.yaml --duration 1m --dump-sink local`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorkload(ctx, cfg)
		},
	}
	addRunFlags(cmd)
	return cmd
}

func runWorkload(ctx context.Context, cfg *Config) error {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := kpool.NewTextLogger(level)

	compression, err := statdump.ParseCompression(cfg.Dump.Compression)
	if err != nil {
		return err
	}

	w, err := loadWorkload(cfg.Workload)
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	reg := kpool.NewRegistry()
	promReg.MustRegister(
		promcollector.NewCollector(reg),
		collectors.NewGoCollector(),
	)
	metrics := promcollector.NewMetricsCollector(promReg)

	pools, err := buildPools(w,
		kpool.WithRegistry(reg),
		kpool.WithLogger(log),
		kpool.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	defer destroyPools(pools)

	store, err := openSink(ctx, cfg.Dump)
	if err != nil {
		return err
	}

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		srv := &http.Server{
			Addr:              cfg.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		log.Info("serving metrics", "addr", cfg.Listen)
	}

	reclaimer := kpool.NewReclaimer(reg,
		kpool.WithReclaimInterval(cfg.Reclaim.Interval),
		kpool.WithReclaimWait(cfg.Reclaim.Wait),
		kpool.WithReclaimController(resource.NewController(resource.Config{
			ReclaimPagesPerSec: cfg.Reclaim.PagesPerSec,
		})),
		kpool.WithReclaimLogger(log),
	)
	g.Go(func() error { return reclaimer.Run(gctx) })

	var dumper *statdump.Dumper
	if store != nil {
		dumper = statdump.NewDumper(reg, store,
			statdump.WithInterval(cfg.Dump.Interval),
			statdump.WithRetention(cfg.Dump.Keep),
			statdump.WithCompression(compression),
			statdump.WithLogger(log),
		)
		g.Go(func() error { return dumper.Run(gctx) })
	}

	var (
		mu    sync.Mutex
		total workerStats
	)
	for id := range cfg.Workers {
		g.Go(func() error {
			st, err := worker(gctx, id, pools, w.Pools)
			mu.Lock()
			total.gets += st.gets
			total.puts += st.puts
			total.failures += st.failures
			mu.Unlock()
			return err
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	log.Info("workload finished",
		"gets", total.gets,
		"puts", total.puts,
		"failures", total.failures,
	)

	if dumper != nil {
		// The run context is done; give the final dump its own deadline.
		dumpCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if name, derr := dumper.DumpOnce(dumpCtx); derr != nil {
			err = errors.Join(err, derr)
		} else {
			log.Info("final stat dump written", "name", name)
		}
	}
	return err
}
