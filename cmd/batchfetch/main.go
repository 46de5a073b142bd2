package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/batchfetch/pkg/backoff"
	"github.com/Sternrassler/batchfetch/pkg/batch"
	"github.com/Sternrassler/batchfetch/pkg/checkpoint"
	"github.com/Sternrassler/batchfetch/pkg/config"
	"github.com/Sternrassler/batchfetch/pkg/fetch"
	"github.com/Sternrassler/batchfetch/pkg/logging"
	"github.com/Sternrassler/batchfetch/pkg/metrics"
	"github.com/Sternrassler/batchfetch/pkg/normalize"
	"github.com/Sternrassler/batchfetch/pkg/observe"
	"github.com/Sternrassler/batchfetch/pkg/pool"
	"github.com/Sternrassler/batchfetch/pkg/ratelimit"
	"github.com/Sternrassler/batchfetch/pkg/runner"
	"github.com/Sternrassler/batchfetch/pkg/sink"
	"github.com/Sternrassler/batchfetch/pkg/source"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const usage = `Usage: batchfetch [command] [flags]

Commands:
  run            fetch every identifier, resuming from the checkpoint (default)
  status         print the checkpoint
  reset          delete the checkpoint
  export-failed  write the failed-identifier CSV from the checkpoint

Flags:
  -config path        YAML configuration file
  -metrics-addr addr  serve /metrics and /health while running (run only)
  -out path           export destination (export-failed only)
`

// Exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitUsage       = 2
	exitInterrupted = 130
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := "run"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", getEnv("BATCHFETCH_CONFIG", ""), "YAML configuration file")
	metricsAddr := fs.String("metrics-addr", "", "serve /metrics and /health on this address")
	out := fs.String("out", "", "export destination")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "batchfetch: %v\n", err)
		return exitError
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Format: logging.Format(cfg.Log.Format),
		Output: stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open checkpoint store")
		return exitError
	}
	defer closeStore()

	switch cmd {
	case "run":
		return runCommand(ctx, cfg, store, logger)
	case "status":
		return statusCommand(ctx, cfg, store, stdout, logger)
	case "reset":
		if err := store.Reset(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to reset checkpoint")
			return exitError
		}
		logger.Info().Msg("Checkpoint removed")
		return exitOK
	case "export-failed":
		return exportCommand(ctx, cfg, store, *out, stdout, logger)
	default:
		fmt.Fprintf(stderr, "batchfetch: unknown command %q\n\n%s", cmd, usage)
		return exitUsage
	}
}

// newStore opens the configured checkpoint backend.
func newStore(ctx context.Context, cfg *config.Config) (checkpoint.Store, func(), error) {
	storeLogger := logging.NewLogger("checkpoint")

	if cfg.Checkpoint.Backend != config.BackendRedis {
		return checkpoint.NewFileStore(cfg.Checkpoint.Path, storeLogger), func() {}, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Checkpoint.Redis.Addr,
		Password: cfg.Checkpoint.Redis.Password,
		DB:       cfg.Checkpoint.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("connect to Redis at %s: %w", cfg.Checkpoint.Redis.Addr, err)
	}
	storeLogger.Info().Str("addr", cfg.Checkpoint.Redis.Addr).Msg("Connected to Redis")

	return checkpoint.NewRedisStore(redisClient, cfg.Checkpoint.Name, storeLogger), func() { redisClient.Close() }, nil
}

func runCommand(ctx context.Context, cfg *config.Config, store checkpoint.Store, logger zerolog.Logger) int {
	// Input errors are fatal before any batch.
	ids, err := source.ReadFile(cfg.Input.Path)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.Input.Path).Msg("Failed to read identifier source")
		return exitError
	}

	logger.Info().
		Int("total_ids", len(ids)).
		Int("total_batches", batch.TotalBatches(len(ids), cfg.Batch.Size)).
		Int("batch_size", cfg.Batch.Size).
		Int("max_workers", cfg.Fetch.MaxWorkers).
		Msg("Identifiers loaded")

	ctrl, err := newController(cfg, store)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build pipeline")
		return exitError
	}

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	report, err := ctrl.Run(ctx, ids)
	switch {
	case errors.Is(err, batch.ErrInterrupted):
		logger.Warn().
			Int("completed_batches", report.CompletedBatches).
			Msg("Run interrupted - checkpoint saved, rerun to resume")
		return exitInterrupted
	case err != nil:
		logger.Error().Err(err).Msg("Run failed")
		return exitError
	}

	logger.Info().
		Str("run_id", report.RunID).
		Str("status", string(report.Status)).
		Int("total_ids", report.TotalIDs).
		Int("total_success", report.TotalSuccess).
		Int("total_failed", report.TotalFailed).
		Int("completed_batches", report.CompletedBatches).
		Str("success_rate", fmt.Sprintf("%.2f%%", report.SuccessRate())).
		Str("failure_rate", fmt.Sprintf("%.2f%%", report.FailureRate())).
		Str("failed_export", report.FailedExport).
		Dur("duration", report.Duration).
		Msg("Final report")

	return exitOK
}

// newController wires fetch unit, pool, coordinator and controller.
func newController(cfg *config.Config, store checkpoint.Store) (*runner.Controller, error) {
	events := observe.Multi{
		observe.NewLogSink(logging.NewLogger("batchfetch")),
		observe.MetricsSink{},
	}

	client, err := fetch.NewClient(fetch.ClientConfig{
		URLTemplate:  cfg.Fetch.URLTemplate,
		Headers:      cfg.Fetch.Headers,
		Timeout:      cfg.Fetch.Timeout,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
	})
	if err != nil {
		return nil, err
	}

	retryPolicy, err := backoff.New(cfg.Fetch.RetryBackoff)
	if err != nil {
		return nil, fmt.Errorf("retry backoff: %w", err)
	}
	pacing, err := backoff.New(cfg.Batch.Delay)
	if err != nil {
		return nil, fmt.Errorf("batch delay: %w", err)
	}

	// Always armed for Retry-After; RPS 0 leaves the steady rate unlimited.
	limiter := ratelimit.New(cfg.Fetch.RateLimit, logging.NewLogger("ratelimit"))

	unit, err := fetch.NewUnit(client, normalize.ProductNormalizer{}, fetch.UnitConfig{
		RetryLimit: cfg.Fetch.RetryLimit,
		Backoff:    retryPolicy,
		Limiter:    limiter,
		Events:     events,
	}, logging.NewLogger("fetch"))
	if err != nil {
		return nil, err
	}

	workers := pool.New(unit, pool.Config{
		MaxWorkers:    cfg.Fetch.MaxWorkers,
		ProgressEvery: cfg.Batch.ProgressEvery,
	}, events, logging.NewLogger("pool"))

	coord, err := batch.NewCoordinator(workers, sink.NewBatchWriter(cfg.Output.Dir), store, batch.Config{
		BatchSize: cfg.Batch.Size,
		Pacing:    pacing,
	}, events, logging.NewLogger("batch-coordinator"))
	if err != nil {
		return nil, err
	}

	return runner.New(coord, store, runner.Config{
		BatchSize:  cfg.Batch.Size,
		FailedPath: sink.FailedPath(cfg.Output.Dir),
	}, events, logging.NewLogger("runner")), nil
}

func startMetricsServer(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving /metrics and /health")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// statusView is the YAML shape printed by the status command.
type statusView struct {
	Status             string     `yaml:"status"`
	RunID              string     `yaml:"run_id,omitempty"`
	Timestamp          time.Time  `yaml:"timestamp"`
	CompletedTimestamp *time.Time `yaml:"completed_timestamp,omitempty"`
	LastCompletedBatch int        `yaml:"last_completed_batch"`
	CompletedBatches   int        `yaml:"completed_batches"`
	TotalBatches       int        `yaml:"total_batches,omitempty"`
	ResumeFrom         int        `yaml:"resume_from"`
	TotalIDs           int        `yaml:"total_ids,omitempty"`
	BatchSize          int        `yaml:"batch_size,omitempty"`
	TotalSuccess       int        `yaml:"total_success"`
	TotalFailed        int        `yaml:"total_failed"`
}

func newStatusView(s *checkpoint.State, batchSize int) statusView {
	size := s.BatchSize
	if size == 0 {
		size = batchSize
	}
	total := batch.TotalBatches(s.TotalIDs, size)

	return statusView{
		Status:             string(s.Status),
		RunID:              s.RunID,
		Timestamp:          s.Timestamp,
		CompletedTimestamp: s.CompletedTimestamp,
		LastCompletedBatch: s.LastCompletedBatch,
		CompletedBatches:   len(s.CompletedBatches),
		TotalBatches:       total,
		ResumeFrom:         s.ResumeFrom(total),
		TotalIDs:           s.TotalIDs,
		BatchSize:          s.BatchSize,
		TotalSuccess:       s.TotalSuccess,
		TotalFailed:        s.TotalFailed,
	}
}

func statusCommand(ctx context.Context, cfg *config.Config, store checkpoint.Store, stdout io.Writer, logger zerolog.Logger) int {
	s, err := store.Load(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load checkpoint")
		return exitError
	}
	if s == nil {
		fmt.Fprintln(stdout, "status: none")
		return exitOK
	}

	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(newStatusView(s, cfg.Batch.Size)); err != nil {
		logger.Error().Err(err).Msg("Failed to encode status")
		return exitError
	}
	_ = enc.Close()
	return exitOK
}

func exportCommand(ctx context.Context, cfg *config.Config, store checkpoint.Store, out string, stdout io.Writer, logger zerolog.Logger) int {
	s, err := store.Load(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load checkpoint")
		return exitError
	}
	if s == nil {
		logger.Error().Msg("No checkpoint to export from")
		return exitError
	}

	if out == "" {
		out = sink.FailedPath(cfg.Output.Dir)
	}
	if err := sink.WriteFailedCSV(out, s.FailedIDs); err != nil {
		logger.Error().Err(err).Msg("Failed to export failed identifiers")
		return exitError
	}

	fmt.Fprintf(stdout, "%d failed identifiers written to %s\n", len(s.FailedIDs), out)
	return exitOK
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
