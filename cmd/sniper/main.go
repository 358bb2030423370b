// Package main runs the sniper: stream → detector → intents → position manager.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"solana-sniper/internal/config"
	"solana-sniper/internal/discovery"
	"solana-sniper/internal/execution"
	"solana-sniper/internal/intent"
	"solana-sniper/internal/logging"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/pipeline"
	"solana-sniper/internal/position"
	"solana-sniper/internal/solana"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	logLevel := flag.String("log-level", "", "Override log level (trace, debug, info, warn, error)")
	executorMode := flag.String("executor", "", "Override executor mode (paper, pumpportal)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *executorMode != "" {
		cfg.Executor.Mode = *executorMode
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	runID := uuid.NewString()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	grace := cfg.ShutdownGrace()
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	controls := make(chan os.Signal, 1)
	if len(controlSignals) > 0 {
		signal.Notify(controls, controlSignals...)
	}
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("received signal, initiating graceful shutdown")
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("received second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(grace):
			logger.Error().Dur("grace", grace).Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, runID, controls, logger)
	close(done)
	if err != nil {
		logger.Error().Err(err).Msg("sniper stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, runID string, controls <-chan os.Signal, logger zerolog.Logger) error {
	journal, closeStores, err := openJournal(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	rpc := solana.NewHTTPClient(cfg.Stream.RPCEndpoint, solana.WithTimeout(cfg.Stream.RPCTimeout.Duration))
	checkRPC(ctx, rpc, cfg.Stream.RPCEndpoint, logger)
	prices := execution.NewBondingCurvePriceSource(rpc)

	executor, err := newExecutor(cfg.Executor, rpc, prices, logger)
	if err != nil {
		return err
	}

	seen, err := discovery.NewSeenSet(cfg.Detector.DedupWindow)
	if err != nil {
		return fmt.Errorf("create dedup set: %w", err)
	}
	detectorOpts := discovery.DetectorOptions{
		ProgramID: cfg.Detector.ProgramID,
		Marker:    cfg.Detector.Marker,
		Seen:      seen,
		Logger:    logger,
	}
	if cfg.Detector.ResolveMint {
		detectorOpts.Transactions = rpc
	}
	if cfg.Detector.Redis.Addr != "" {
		r := cfg.Detector.Redis
		shared, err := discovery.NewRedisSet(ctx, discovery.RedisConfig{
			Addr:      r.Addr,
			Password:  r.Password,
			DB:        r.DB,
			KeyPrefix: r.KeyPrefix,
			TTL:       r.TTL.Duration,
		}, runID)
		if err != nil {
			return fmt.Errorf("connect shared dedup: %w", err)
		}
		defer shared.Close()
		detectorOpts.Shared = shared
		logger.Info().Str("addr", r.Addr).Msg("shared mint dedup enabled")
	}

	streamCfg := cfg.StreamClient()
	stream, err := solana.NewStreamClient(cfg.Stream.WSEndpoint, &streamCfg, logger)
	if err != nil {
		return err
	}

	manager, err := position.NewManager(position.Options{
		Config:   cfg.PositionManager(),
		RunID:    runID,
		Executor: executor,
		Prices:   prices,
		Journal:  journal,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.Options{
		Stream: stream,
		Filter: solana.LogsFilter{
			Mentions:   []string{cfg.Detector.ProgramID},
			Commitment: cfg.Stream.Commitment,
		},
		Classifier: discovery.NewDetector(detectorOpts),
		Intents:    intent.New(cfg.Intent.Capacity),
		Supervisor: manager,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	go forwardControls(ctx, controls, manager, logger)

	if cfg.Metrics.Addr != "" {
		srv := observability.NewServer(cfg.Metrics.Addr, runID, manager, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error().Err(err).Msg("HTTP server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().
		Str("run_id", runID).
		Str("ws_endpoint", cfg.Stream.WSEndpoint).
		Str("program", cfg.Detector.ProgramID).
		Str("executor", cfg.Executor.Mode).
		Str("storage", cfg.Storage.Backend).
		Float64("buy_amount_sol", cfg.Position.BuyAmountSOL).
		Float64("take_profit_pct", cfg.Position.TakeProfitPct).
		Float64("stop_loss_pct", cfg.Position.StopLossPct).
		Msg("sniper starting")

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newExecutor(cfg config.ExecutorConfig, rpc *solana.HTTPClient, prices execution.PriceSource, logger zerolog.Logger) (execution.Executor, error) {
	switch strings.ToLower(cfg.Mode) {
	case "paper":
		logger.Info().Float64("balance_sol", cfg.PaperBalanceSOL).Msg("paper trading enabled")
		return execution.NewInstrumented(execution.NewPaperExecutor(prices, cfg.PaperBalanceSOL, cfg.PaperSlippageBps)), nil
	case "pumpportal":
		pp := cfg.PumpPortal
		return execution.NewInstrumented(execution.NewPumpPortalExecutor(execution.PumpPortalConfig{
			APIURL:          pp.APIURL,
			APIKey:          pp.APIKey,
			SlippagePct:     pp.SlippagePct,
			PriorityFee:     pp.PriorityFee,
			Pool:            pp.Pool,
			Wallet:          pp.Wallet,
			ConfirmInterval: pp.ConfirmInterval.Duration,
		}, rpc, prices, logger)), nil
	default:
		return nil, fmt.Errorf("unknown executor mode %q", cfg.Mode)
	}
}

// checkRPC logs whether the RPC endpoint answers. An unreachable endpoint is not
// fatal: the client retries every call.
func checkRPC(ctx context.Context, rpc *solana.HTTPClient, endpoint string, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slot, err := rpc.GetSlot(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("rpc_endpoint", endpoint).Msg("rpc endpoint unreachable at startup")
		return
	}
	logger.Info().Str("rpc_endpoint", endpoint).Int64("slot", slot).Msg("rpc endpoint reachable")
}
