package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/cardlead/internal/app"
	"github.com/joseph-ayodele/cardlead/internal/async"
	"github.com/joseph-ayodele/cardlead/internal/common"
	"github.com/joseph-ayodele/cardlead/internal/inbox"
	"github.com/joseph-ayodele/cardlead/internal/server"
)

const shutdownGrace = 30 * time.Second

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "cardleadd",
		Short:         "Business card intake daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "cardlead.toml", "Configuration file path")

	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := common.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := common.NewLogger(os.Stdout, cfg.Logging.Format, cfg.Logging.Level)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("config.invalid", "error", err)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Server.LockPath), 0o755); err != nil {
		return fmt.Errorf("lock dir: %w", err)
	}
	lock := flock.New(cfg.Server.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another cardleadd instance holds %s", cfg.Server.LockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("daemon.lock.release_failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("daemon.build.failed", "error", err)
		return err
	}
	defer a.Close()

	if a.Ledger != nil {
		if err := a.Ledger.Ping(ctx, 5*time.Second); err != nil {
			logger.Error("ledger.ping.failed", "error", err)
			return err
		}
		// Runs left QUEUED or RUNNING by a previous process will never finish.
		n, err := a.Ledger.MarkAbandoned(ctx, time.Now())
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Warn("ledger.runs.abandoned", "count", n)
		}
	}

	pool := async.NewPool(logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithJobTimeout(cfg.Pipeline.JobTimeout.Duration),
	)
	a.Metrics.TrackQueue(pool.Depth, pool.Capacity)

	orch, err := a.Orchestrator(pool)
	if err != nil {
		return err
	}
	intake, err := server.NewIntakeService(orch, cfg.Server.SpoolDir, logger)
	if err != nil {
		return err
	}
	grpcServer, healthServer := server.NewGRPCServer(intake, logger)

	var drop *inbox.Inbox
	if cfg.Server.InboxDir != "" {
		if drop, err = inbox.New(cfg.Server.InboxDir, orch, cfg.Server.InboxDebounce.Duration, logger); err != nil {
			return err
		}
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("grpc.listen.failed", "addr", cfg.Server.GRPCAddr, "error", err)
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if a.Ledger != nil {
			if err := a.Ledger.Ping(r.Context(), 2*time.Second); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stopped := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("grpc.listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("metrics.listening", "addr", cfg.Server.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		supervise(pool.Errors(), stopped, logger)
		return nil
	})
	if drop != nil {
		g.Go(func() error {
			return drop.Run(gctx)
		})
	}
	g.Go(func() error {
		defer close(stopped)
		<-gctx.Done()
		logger.Info("daemon.shutdown.begin")
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics.shutdown.failed", "error", err)
		}
		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.Warn("async.shutdown.timeout", "error", err)
		}
		logger.Info("daemon.shutdown.done")
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("daemon.failed", "error", err)
		return err
	}
	return nil
}

// supervise drains pool failures until the pool closes the channel or
// shutdown gives up waiting on it. Run outcomes are already in the ledger.
func supervise(errs <-chan async.JobError, stopped <-chan struct{}, logger *slog.Logger) {
	for {
		var e async.JobError
		select {
		case <-stopped:
			return
		case je, ok := <-errs:
			if !ok {
				return
			}
			e = je
		}
		if e.Panic != nil {
			logger.Error("daemon.job.panic", "job_id", e.JobID, "panic", fmt.Sprint(e.Panic))
			continue
		}
		logger.Warn("daemon.job.failed", "job_id", e.JobID, "error", e.Err)
	}
}
