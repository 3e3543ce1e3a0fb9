package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/likwid-fi/likwid-margin-bot/internal/arbitrage"
	"github.com/likwid-fi/likwid-margin-bot/internal/chain"
	"github.com/likwid-fi/likwid-margin-bot/internal/config"
	"github.com/likwid-fi/likwid-margin-bot/internal/contracts"
	"github.com/likwid-fi/likwid-margin-bot/internal/liquidator"
	"github.com/likwid-fi/likwid-margin-bot/internal/metrics"
	"github.com/likwid-fi/likwid-margin-bot/internal/store"
	"github.com/likwid-fi/likwid-margin-bot/internal/store/postgres"
	"github.com/likwid-fi/likwid-margin-bot/internal/syncer"
)

func main() {
	root := &cobra.Command{
		Use:          "marginbot",
		Short:        "Likwid margin protocol operations bot",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().Uint64("chain-id", 0, "target chain id")
	root.PersistentFlags().String("rpc", "", "RPC URL override")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN (empty uses an in-memory ledger)")
	root.PersistentFlags().String("metrics-addr", ":9090", "Prometheus listen address (empty disables)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the position ledger sync loop",
		RunE:  runSync,
	}
	syncCmd.Flags().Uint64("batch-size", 1000, "blocks per getLogs batch")
	syncCmd.Flags().Duration("sync-interval", 10*time.Second, "delay between sync cycles")
	syncCmd.Flags().Int("max-retries", 5, "maximum getLogs retry attempts")
	syncCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	root.AddCommand(syncCmd)

	liquidateCmd := &cobra.Command{
		Use:   "liquidate",
		Short: "Run the liquidation loop against the current ledger",
		RunE:  runLiquidate,
	}
	liquidateCmd.Flags().String("recipient", "", "profit withdrawal recipient (defaults to the bot wallet)")
	liquidateCmd.Flags().Bool("single", false, "liquidate positions one by one instead of batched per group")
	root.AddCommand(liquidateCmd)

	arbitrageCmd := &cobra.Command{
		Use:   "arbitrage",
		Short: "Run the cross-venue arbitrage loop",
		RunE:  runArbitrage,
	}
	arbitrageCmd.Flags().Duration("cooldown", 10*time.Second, "delay before the second quote of the staleness guard")
	arbitrageCmd.Flags().Uint64("internal-swap-gas", 1_000_000, "fixed gas constant for the internal swap leg")
	root.AddCommand(arbitrageCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run sync, liquidation and arbitrage together",
		RunE:  runAll,
	}
	runCmd.Flags().Uint64("batch-size", 1000, "blocks per getLogs batch")
	runCmd.Flags().Duration("sync-interval", 10*time.Second, "delay between sync cycles")
	runCmd.Flags().Int("max-retries", 5, "maximum getLogs retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("recipient", "", "profit withdrawal recipient (defaults to the bot wallet)")
	runCmd.Flags().Bool("single", false, "liquidate positions one by one instead of batched per group")
	runCmd.Flags().Duration("cooldown", 10*time.Second, "delay before the second quote of the staleness guard")
	runCmd.Flags().Uint64("internal-swap-gas", 1_000_000, "fixed gas constant for the internal swap leg")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles everything every subcommand needs.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	client *chain.Client
	ledger store.Store
	close  func()
}

func buildApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	chainID, _ := cmd.Flags().GetUint64("chain-id")
	if chainID == 0 {
		return nil, fmt.Errorf("chain-id is required")
	}

	cfg, err := config.Load(cfgFile, chainID, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("PRIVATE_KEY is required")
	}

	client, err := chain.NewClient(ctx, cfg.Network.RPCURL, cfg.Network.ChainID, cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	var (
		ledger  store.Store
		closers = []func(){client.Close}
	)
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		ledger = pg
		closers = append(closers, pg.Close)
	} else {
		logger.Warn("no pg-dsn configured, ledger is in-memory and rebuilt from start-block on restart")
		ledger = store.NewMemory()
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		client: client,
		ledger: ledger,
		close: func() {
			for _, fn := range closers {
				fn()
			}
			_ = logger.Sync()
		},
	}, nil
}

// serveMetrics exposes /metrics until the context is cancelled.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		a.logger.Info("metrics listening", zap.String("addr", a.cfg.MetricsAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server", zap.Error(err))
		}
	}()
}

func (a *app) newSyncer() (*syncer.Syncer, error) {
	decoder, err := contracts.NewEventDecoder(a.cfg.Network.MarginHookManager, a.cfg.Network.MarginPositionManager)
	if err != nil {
		return nil, err
	}
	positions, err := contracts.NewPositionManager(a.cfg.Network.MarginPositionManager, a.client)
	if err != nil {
		return nil, err
	}

	return syncer.New(syncer.Config{
		Network:      a.cfg.Network,
		BatchSize:    a.cfg.BatchSize,
		Interval:     a.cfg.SyncInterval,
		MaxRetries:   a.cfg.MaxRetries,
		RetryBackoff: a.cfg.RetryBackoff,
	}, a.client, positions, decoder, a.ledger, a.logger.Named("sync")), nil
}

func (a *app) newLiquidator(cmd *cobra.Command) (*liquidator.Liquidator, error) {
	checker, err := contracts.NewMarginChecker(a.cfg.Network.MarginChecker, a.client)
	if err != nil {
		return nil, err
	}
	positions, err := contracts.NewPositionManager(a.cfg.Network.MarginPositionManager, a.client)
	if err != nil {
		return nil, err
	}
	hook, err := contracts.NewHookManager(a.cfg.Network.MarginHookManager, a.client)
	if err != nil {
		return nil, err
	}

	recipient := a.client.Sender()
	if raw, _ := cmd.Flags().GetString("recipient"); raw != "" {
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("invalid recipient address: %q", raw)
		}
		recipient = common.HexToAddress(raw)
	}
	single, _ := cmd.Flags().GetBool("single")

	return liquidator.New(liquidator.Config{
		Network:   a.cfg.Network,
		Recipient: recipient,
		Batched:   !single,
	}, a.ledger, checker, positions, hook, a.client, a.logger.Named("liquidate")), nil
}

func (a *app) newArbitrage(cmd *cobra.Command) (*arbitrage.Engine, error) {
	if len(a.cfg.Network.ArbTasks) == 0 {
		return nil, fmt.Errorf("no arb-tasks configured for chain %d", a.cfg.Network.ChainID)
	}
	if (a.cfg.Network.SwapHelper == common.Address{}) {
		return nil, fmt.Errorf("swap-helper address is required for arbitrage")
	}
	if (a.cfg.Network.ExternalQuoter == common.Address{}) {
		return nil, fmt.Errorf("external-quoter address is required for arbitrage")
	}
	if (a.cfg.Network.WrappedNative == common.Address{}) {
		return nil, fmt.Errorf("wrapped-native address is required for arbitrage")
	}

	hook, err := contracts.NewHookManager(a.cfg.Network.MarginHookManager, a.client)
	if err != nil {
		return nil, err
	}
	quoter, err := contracts.NewQuoter(a.cfg.Network.ExternalQuoter, a.client)
	if err != nil {
		return nil, err
	}
	helper, err := contracts.NewSwapHelper(a.cfg.Network.SwapHelper, a.client)
	if err != nil {
		return nil, err
	}

	cooldown, _ := cmd.Flags().GetDuration("cooldown")
	internalSwapGas, _ := cmd.Flags().GetUint64("internal-swap-gas")

	return arbitrage.New(arbitrage.Config{
		Tasks:           a.cfg.Network.ArbTasks,
		WrappedNative:   a.cfg.Network.WrappedNative,
		InternalSwapGas: internalSwapGas,
		Cooldown:        cooldown,
	}, hook, quoter, helper, a.client, a.logger.Named("arb")), nil
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()
	a.serveMetrics(ctx)

	s, err := a.newSyncer()
	if err != nil {
		return err
	}

	a.logger.Info("sync start",
		zap.Uint64("chain_id", a.cfg.Network.ChainID),
		zap.Uint64("start_block", a.cfg.Network.StartBlock),
		zap.Uint64("batch_size", a.cfg.BatchSize),
		zap.Duration("interval", a.cfg.SyncInterval),
	)

	return s.Run(ctx)
}

func runLiquidate(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()
	a.serveMetrics(ctx)

	l, err := a.newLiquidator(cmd)
	if err != nil {
		return err
	}

	a.logger.Info("liquidator start",
		zap.Uint64("chain_id", a.cfg.Network.ChainID),
		zap.String("wallet", a.client.Sender().Hex()),
	)

	return l.Run(ctx)
}

func runArbitrage(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()
	a.serveMetrics(ctx)

	e, err := a.newArbitrage(cmd)
	if err != nil {
		return err
	}

	a.logger.Info("arbitrage start",
		zap.Uint64("chain_id", a.cfg.Network.ChainID),
		zap.Int("tasks", len(a.cfg.Network.ArbTasks)),
	)

	return e.Run(ctx)
}

func runAll(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()
	a.serveMetrics(ctx)

	s, err := a.newSyncer()
	if err != nil {
		return err
	}
	l, err := a.newLiquidator(cmd)
	if err != nil {
		return err
	}

	// Arbitrage is optional; chains without tasks run sync and
	// liquidation only.
	var e *arbitrage.Engine
	if len(a.cfg.Network.ArbTasks) > 0 {
		if e, err = a.newArbitrage(cmd); err != nil {
			return err
		}
	} else {
		a.logger.Info("no arb-tasks configured, arbitrage disabled")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = s.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = l.Run(ctx)
	}()
	if e != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Run(ctx)
		}()
	}

	a.logger.Info("bot start",
		zap.Uint64("chain_id", a.cfg.Network.ChainID),
		zap.String("wallet", a.client.Sender().Hex()),
	)

	wg.Wait()
	return ctx.Err()
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
