package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/likwid-fi/likwid-margin-bot/internal/config"
	"github.com/likwid-fi/likwid-margin-bot/internal/contracts"
	"github.com/likwid-fi/likwid-margin-bot/internal/metrics"
)

// InternalQuoter quotes the protocol's internal pools.
type InternalQuoter interface {
	GetAmountOut(ctx context.Context, poolID common.Hash, zeroForOne bool, amountIn *big.Int) (*big.Int, error)
}

// ExternalQuoter quotes the external AMM. Its gas estimate covers that
// venue's execution path.
type ExternalQuoter interface {
	QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, amountIn, fee *big.Int) (contracts.Quote, error)
}

// Helper is the on-chain cross-venue swap executor.
type Helper interface {
	Balance(ctx context.Context) (*big.Int, error)
	LikwidToExternal(ctx context.Context, poolID common.Hash, tokenIn, tokenOut common.Address, fee, payValue, swapOutMin, returnAmountMin, sendValue *big.Int) (*types.Transaction, error)
	ExternalToLikwid(ctx context.Context, tokenIn, tokenOut common.Address, fee *big.Int, poolID common.Hash, payValue, swapOutMin, returnAmountMin, sendValue *big.Int) (*types.Transaction, error)
}

// TxBackend provides gas pricing and receipt confirmation.
type TxBackend interface {
	GasPrice(ctx context.Context) (*big.Int, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Config holds the arbitrage engine settings.
type Config struct {
	Tasks []config.ArbTask
	// WrappedNative is the external venue's wrapped gas token; the
	// internal pools trade the native currency directly (zero address).
	WrappedNative common.Address
	// InternalSwapGas is the fixed gas constant for the internal leg.
	InternalSwapGas uint64
	// Cooldown between the two phases of the staleness-guarded re-quote.
	Cooldown     time.Duration
	Interval     time.Duration
	ErrorBackoff time.Duration
}

// Engine compares internal-pool and external-AMM quotes per configured
// pair and executes cross-venue swaps through the helper contract when
// the spread covers gas plus the safety buffer.
type Engine struct {
	cfg      Config
	internal InternalQuoter
	external ExternalQuoter
	helper   Helper
	backend  TxBackend
	logger   *zap.Logger
}

// New builds an Engine with its dependencies.
func New(cfg Config, internal InternalQuoter, external ExternalQuoter, helper Helper, backend TxBackend, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InternalSwapGas == 0 {
		cfg.InternalSwapGas = 1_000_000
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 30 * time.Second
	}
	return &Engine{
		cfg:      cfg,
		internal: internal,
		external: external,
		helper:   helper,
		backend:  backend,
		logger:   logger,
	}
}

// Run evaluates every task each cycle until the context is cancelled.
// Task errors extend the delay before the next cycle; nothing escapes the
// loop.
func (e *Engine) Run(ctx context.Context) error {
	for {
		delay := e.cfg.Interval
		for _, task := range e.cfg.Tasks {
			if err := e.RunTask(ctx, task); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				e.logger.Error("arbitrage task failed",
					zap.String("pool_id", task.PoolID.Hex()),
					zap.String("token", task.Token.Hex()),
					zap.Error(err),
				)
				delay = e.cfg.ErrorBackoff
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// RunTask evaluates and possibly executes one configured pair.
func (e *Engine) RunTask(ctx context.Context, task config.ArbTask) error {
	probe := task.ProbeAmount

	var (
		wg            sync.WaitGroup
		internalOut   *big.Int
		internalErr   error
		externalQuote contracts.Quote
		externalErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		internalOut, internalErr = e.internal.GetAmountOut(ctx, task.PoolID, true, probe)
	}()
	go func() {
		defer wg.Done()
		externalQuote, externalErr = e.external.QuoteExactInputSingle(ctx, e.cfg.WrappedNative, task.Token, probe, task.Fee)
	}()
	wg.Wait()
	if internalErr != nil {
		return fmt.Errorf("internal quote: %w", internalErr)
	}
	if externalErr != nil {
		return fmt.Errorf("external quote: %w", externalErr)
	}

	gasPrice, err := e.backend.GasPrice(ctx)
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}
	totalGas := new(big.Int).Add(new(big.Int).SetUint64(e.cfg.InternalSwapGas), externalQuote.GasEstimate)
	gasCost := new(big.Int).Mul(totalGas, gasPrice)
	costPPM := CostPPM(gasCost, probe)

	helperBalance, err := e.helper.Balance(ctx)
	if err != nil {
		return fmt.Errorf("helper balance: %w", err)
	}
	sendValue := SendValue(probe, helperBalance)
	returnMin := new(big.Int).Add(probe, gasCost)

	direction := Decide(internalOut, externalQuote.AmountOut, costPPM)
	metrics.ArbCycles.WithLabelValues(direction.String()).Inc()
	e.logger.Info("arbitrage quotes",
		zap.String("pool_id", task.PoolID.Hex()),
		zap.String("internal_out", internalOut.String()),
		zap.String("external_out", externalQuote.AmountOut.String()),
		zap.String("cost_ppm", costPPM.String()),
		zap.String("direction", direction.String()),
	)

	switch direction {
	case InternalToExternal:
		return e.executeInternalToExternal(ctx, task, internalOut, probe, returnMin, sendValue)
	case ExternalToInternal:
		return e.executeExternalToInternal(ctx, task, externalQuote.AmountOut, probe, returnMin, sendValue)
	default:
		return nil
	}
}

// executeInternalToExternal quotes the external reverse leg twice with a
// deliberate cooldown in between; a single quote can decay into
// unprofitability before the transaction lands.
func (e *Engine) executeInternalToExternal(ctx context.Context, task config.ArbTask, internalOut, probe, returnMin, sendValue *big.Int) error {
	swapOutMin := SlippageMin(internalOut)

	reverse, err := e.external.QuoteExactInputSingle(ctx, task.Token, e.cfg.WrappedNative, swapOutMin, task.Fee)
	if err != nil {
		return fmt.Errorf("external reverse quote: %w", err)
	}
	if reverse.AmountOut.Cmp(returnMin) <= 0 {
		e.logReverseShortfall(task, "external", reverse.AmountOut, returnMin)
		return nil
	}

	if err := e.sleep(ctx, e.cfg.Cooldown); err != nil {
		return err
	}

	reverse, err = e.external.QuoteExactInputSingle(ctx, task.Token, e.cfg.WrappedNative, swapOutMin, task.Fee)
	if err != nil {
		return fmt.Errorf("external re-quote: %w", err)
	}
	if reverse.AmountOut.Cmp(returnMin) < 0 {
		metrics.ArbCycles.WithLabelValues("stale_quote").Inc()
		e.logReverseShortfall(task, "external re-quote", reverse.AmountOut, returnMin)
		return nil
	}

	tx, err := e.helper.LikwidToExternal(ctx, task.PoolID, common.Address{}, task.Token, task.Fee, probe, swapOutMin, returnMin, sendValue)
	if err != nil {
		metrics.ArbTrades.WithLabelValues("submit_error").Inc()
		return fmt.Errorf("likwid to external: %w", err)
	}
	return e.confirm(ctx, task, tx, InternalToExternal)
}

// executeExternalToInternal mirrors the other direction: the reverse leg
// re-quotes the internal pool after the cooldown.
func (e *Engine) executeExternalToInternal(ctx context.Context, task config.ArbTask, externalOut, probe, returnMin, sendValue *big.Int) error {
	swapOutMin := SlippageMin(externalOut)

	reverse, err := e.internal.GetAmountOut(ctx, task.PoolID, false, swapOutMin)
	if err != nil {
		return fmt.Errorf("internal reverse quote: %w", err)
	}
	if reverse.Cmp(returnMin) <= 0 {
		e.logReverseShortfall(task, "internal", reverse, returnMin)
		return nil
	}

	if err := e.sleep(ctx, e.cfg.Cooldown); err != nil {
		return err
	}

	reverse, err = e.internal.GetAmountOut(ctx, task.PoolID, false, swapOutMin)
	if err != nil {
		return fmt.Errorf("internal re-quote: %w", err)
	}
	if reverse.Cmp(returnMin) < 0 {
		metrics.ArbCycles.WithLabelValues("stale_quote").Inc()
		e.logReverseShortfall(task, "internal re-quote", reverse, returnMin)
		return nil
	}

	tx, err := e.helper.ExternalToLikwid(ctx, common.Address{}, task.Token, task.Fee, task.PoolID, probe, swapOutMin, returnMin, sendValue)
	if err != nil {
		metrics.ArbTrades.WithLabelValues("submit_error").Inc()
		return fmt.Errorf("external to likwid: %w", err)
	}
	return e.confirm(ctx, task, tx, ExternalToInternal)
}

func (e *Engine) confirm(ctx context.Context, task config.ArbTask, tx *types.Transaction, direction Direction) error {
	e.logger.Info("arbitrage submitted",
		zap.String("pool_id", task.PoolID.Hex()),
		zap.String("direction", direction.String()),
		zap.String("tx", tx.Hash().Hex()),
	)
	receipt, err := e.backend.WaitMined(ctx, tx)
	if err != nil {
		metrics.ArbTrades.WithLabelValues("receipt_error").Inc()
		return fmt.Errorf("wait arbitrage receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		metrics.ArbTrades.WithLabelValues("reverted").Inc()
		e.logger.Error("arbitrage transaction reverted",
			zap.String("pool_id", task.PoolID.Hex()),
			zap.String("tx", tx.Hash().Hex()),
		)
		return nil
	}
	metrics.ArbTrades.WithLabelValues("success").Inc()
	e.logger.Info("arbitrage confirmed",
		zap.String("pool_id", task.PoolID.Hex()),
		zap.String("tx", tx.Hash().Hex()),
	)
	return nil
}

func (e *Engine) logReverseShortfall(task config.ArbTask, leg string, got, want *big.Int) {
	e.logger.Info("reverse leg below minimum return, no trade",
		zap.String("pool_id", task.PoolID.Hex()),
		zap.String("leg", leg),
		zap.String("quoted", got.String()),
		zap.String("return_min", want.String()),
	)
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
