package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"ammVault/internal/config"
	"ammVault/internal/host"
	"ammVault/internal/metrics"
	"ammVault/internal/scenario"
	"ammVault/internal/storage"
	"ammVault/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "ammvault",
		Short:        "Constant-product vault engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-file", "", "also write logs to this rotating file")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Apply a scenario of contract operations",
		RunE:  runScenario,
	}

	runCmd.Flags().String("scenario", "", "scenario JSONL path")
	runCmd.Flags().String("store", config.StoreMemory, "state backend (memory, postgres)")
	runCmd.Flags().String("journal", "./data/events.jsonl", "event journal JSONL path, empty disables")
	runCmd.Flags().Uint64("batch-size", 50, "operations per checkpoint")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing (postgres store only)")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Int("max-depth", host.DefaultMaxDepth, "maximum message dispatch depth")
	runCmd.Flags().String("metrics-out", "", "write prometheus metrics to this file")
	runCmd.Flags().StringSlice("label", nil, "known addresses as name=0x... (comma-separated)")

	root.AddCommand(runCmd)
	root.AddCommand(newPoolCmd())
	root.AddCommand(newQuoteCmd())
	root.AddCommand(newAggregateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScenario(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ops, err := scenario.ReadOps(cfg.Scenario)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, closeStore, err := openKV(ctx, cfg.Store, cfg.Postgres)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.Store == config.StoreMemory && cfg.CheckpointEnabled {
		// a checkpoint would skip operations whose state died with the process
		logger.Warn("checkpoint disabled for the memory store")
		cfg.CheckpointEnabled = false
	}

	var journal storage.Journal
	if cfg.Journal != "" {
		journal = storage.NewJsonlJournal(cfg.Journal)
	}
	h := host.New(kv, host.Options{Journal: journal, MaxDepth: cfg.MaxDepth}, logger.Named("host"))
	workflows := metrics.NewWorkflows()
	codes := scenario.RegisterCodes(h, logger, workflows)

	runner := scenario.NewRunner(scenario.RunConfig{
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		Retryable:         postgres.Retryable,
	}, h, codes, logger.Named("scenario"))
	for name, addr := range cfg.Labels {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("label %s: invalid address %s", name, addr)
		}
		runner.Resolver().Bind(name, common.HexToAddress(addr))
	}

	logger.Info("scenario start",
		zap.String("scenario", cfg.Scenario),
		zap.Int("ops", len(ops)),
		zap.String("store", cfg.Store),
		zap.String("journal", cfg.Journal),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	summary, runErr := runner.Run(ctx, ops)
	if err := workflows.WriteTextfile(cfg.MetricsOut); err != nil {
		logger.Warn("metrics not written", zap.Error(err))
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("scenario done",
		zap.Int("applied", summary.Applied),
		zap.Int("expected_failures", summary.Expected),
		zap.Uint64("skipped", summary.Skipped),
		zap.Uint64("height", summary.Height),
	)
	return printJSON(cmd, summary)
}

// openKV opens the contract state backend. The returned close func is never nil.
func openKV(ctx context.Context, backend string, pg config.Postgres) (storage.KV, func(), error) {
	if backend != config.StorePostgres {
		return storage.NewMemoryKV(), func() {}, nil
	}
	store, err := openPostgres(ctx, pg)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func openPostgres(ctx context.Context, pg config.Postgres) (*postgres.Store, error) {
	store, err := postgres.Connect(ctx, pg.DSN, pg.Attempts, pg.AttemptDelay)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// openHost reopens the contracts kept in a postgres store for queries.
func openHost(store *postgres.Store, logger *zap.Logger) *host.Host {
	h := host.New(store, host.Options{}, logger.Named("host"))
	scenario.RegisterCodes(h, logger, nil)
	return h
}

func newLogger(cfg config.Logging) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevel()
	if err := zcfg.Level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.File == "" {
		return zcfg.Build()
	}
	rotating := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zcfg.EncoderConfig), rotating, zcfg.Level)
	return zcfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
