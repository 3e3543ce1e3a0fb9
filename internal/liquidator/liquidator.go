package liquidator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/likwid-fi/likwid-margin-bot/internal/config"
	"github.com/likwid-fi/likwid-margin-bot/internal/contracts"
	"github.com/likwid-fi/likwid-margin-bot/internal/metrics"
	"github.com/likwid-fi/likwid-margin-bot/internal/model"
	"github.com/likwid-fi/likwid-margin-bot/internal/store"
)

// Checker is the margin checker read surface.
type Checker interface {
	CheckLiquidateByIds(ctx context.Context, manager common.Address, positionIDs []uint64) ([]bool, []*big.Int, error)
	GetLiquidateRepayAmount(ctx context.Context, manager common.Address, positionID uint64) (*big.Int, error)
}

// Burner is the position manager write surface.
type Burner interface {
	LiquidateBurn(ctx context.Context, params contracts.ReleaseParams) (*types.Transaction, error)
	EstimateLiquidateBurn(ctx context.Context, params contracts.ReleaseParams) (uint64, error)
	LiquidateCall(ctx context.Context, positionID uint64, payValue *big.Int) (*types.Transaction, error)
	EstimateLiquidateCall(ctx context.Context, positionID uint64, payValue *big.Int) (uint64, error)
}

// Treasury withdraws protocol proceeds after a confirmed liquidation.
type Treasury interface {
	Withdraw(ctx context.Context, recipient common.Address, poolID common.Hash, token common.Address, amount *big.Int) (*types.Transaction, error)
}

// TxBackend provides gas pricing and receipt confirmation.
type TxBackend interface {
	GasPrice(ctx context.Context) (*big.Int, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Config holds the liquidation engine settings.
type Config struct {
	Network      config.Network
	Recipient    common.Address
	Interval     time.Duration
	ErrorBackoff time.Duration
	// Batched disabled falls back to per-position liquidateCall.
	Batched bool
}

// Liquidator scans tracked position groups, asks the margin checker which
// positions are liquidatable, and submits liquidations when proceeds cover
// gas. Ledger rows are deleted only after a confirmed success receipt; the
// contract stays the authority on whether a position is still open.
type Liquidator struct {
	cfg      Config
	ledger   store.Store
	checker  Checker
	burner   Burner
	treasury Treasury
	backend  TxBackend
	logger   *zap.Logger
}

// New builds a Liquidator with its dependencies.
func New(cfg Config, ledger store.Store, checker Checker, burner Burner, treasury Treasury, backend TxBackend, logger *zap.Logger) *Liquidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 30 * time.Second
	}
	return &Liquidator{
		cfg:      cfg,
		ledger:   ledger,
		checker:  checker,
		burner:   burner,
		treasury: treasury,
		backend:  backend,
		logger:   logger,
	}
}

// Run executes scan cycles until the context is cancelled. An error inside
// a cycle extends the delay before the next one; nothing escapes the loop.
func (l *Liquidator) Run(ctx context.Context) error {
	for {
		delay := l.cfg.Interval
		if err := l.RunCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			l.logger.Error("liquidation cycle failed", zap.Error(err))
			delay = l.cfg.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// RunCycle scans every position group once. A failure in one group is
// logged and does not stop the others.
func (l *Liquidator) RunCycle(ctx context.Context) error {
	chainID := l.cfg.Network.ChainID
	groups, err := l.ledger.PositionGroups(ctx, chainID)
	if err != nil {
		return fmt.Errorf("load position groups: %w", err)
	}

	for _, group := range groups {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := l.processGroup(ctx, group); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			l.logger.Error("group check failed",
				zap.String("pool_id", group.PoolID),
				zap.Bool("margin_for_one", group.MarginForOne),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (l *Liquidator) processGroup(ctx context.Context, group model.PositionGroup) error {
	chainID := l.cfg.Network.ChainID
	manager := l.cfg.Network.MarginPositionManager

	positions, err := l.ledger.PositionsInGroup(ctx, chainID, group.PoolID, group.MarginForOne)
	if err != nil {
		return fmt.Errorf("load group positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	ids := make([]uint64, len(positions))
	for i, position := range positions {
		ids[i] = position.PositionID
	}

	liquidated, releases, err := l.checker.CheckLiquidateByIds(ctx, manager, ids)
	if err != nil {
		return fmt.Errorf("check liquidate: %w", err)
	}

	liquidatable, obtainable := SelectLiquidatable(positions, liquidated, releases)
	if len(liquidatable) == 0 {
		return nil
	}

	l.logger.Info("liquidatable positions found",
		zap.String("pool_id", group.PoolID),
		zap.Bool("margin_for_one", group.MarginForOne),
		zap.Int("count", len(liquidatable)),
		zap.String("obtainable", obtainable.String()),
	)

	if !l.cfg.Batched {
		return l.liquidateEach(ctx, positions, liquidated)
	}
	return l.liquidateGroup(ctx, group, positions[0].MarginToken, liquidatable, obtainable)
}

func (l *Liquidator) liquidateGroup(ctx context.Context, group model.PositionGroup, marginToken string, liquidatable []uint64, obtainable *big.Int) error {
	minEtherPrice, ok := l.cfg.Network.MinEtherPrice(common.HexToAddress(marginToken))
	if !ok {
		// without a floor price the proceeds cannot be priced in gas terms;
		// submitting anyway could liquidate at a net loss
		l.logger.Warn("no floor price configured for margin token, skipping group",
			zap.String("margin_token", marginToken),
			zap.String("pool_id", group.PoolID),
		)
		return nil
	}
	obtainAmount := ToGasToken(minEtherPrice, obtainable)

	params := contracts.ReleaseParams{
		PoolId:       common.HexToHash(group.PoolID),
		MarginForOne: group.MarginForOne,
		PositionIds:  toBigInts(liquidatable),
		Signature:    []byte{},
	}

	estimate, err := l.burner.EstimateLiquidateBurn(ctx, params)
	if err != nil {
		return fmt.Errorf("estimate liquidate burn: %w", err)
	}
	gasPrice, err := l.backend.GasPrice(ctx)
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}
	cost := GasCost(estimate, gasPrice)

	if cost.Cmp(obtainAmount) > 0 {
		metrics.LiquidationsSkipped.Inc()
		l.logger.Info("skip group, gas cost exceeds proceeds",
			zap.String("pool_id", group.PoolID),
			zap.String("gas_cost", cost.String()),
			zap.String("obtain_amount", obtainAmount.String()),
		)
		return nil
	}

	tx, err := l.burner.LiquidateBurn(ctx, params)
	if err != nil {
		metrics.LiquidationsSubmitted.WithLabelValues("submit_error").Inc()
		return fmt.Errorf("liquidate burn: %w", err)
	}
	l.logger.Info("liquidation submitted",
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64s("position_ids", liquidatable),
	)

	receipt, err := l.backend.WaitMined(ctx, tx)
	if err != nil {
		metrics.LiquidationsSubmitted.WithLabelValues("receipt_error").Inc()
		return fmt.Errorf("wait liquidation receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		metrics.LiquidationsSubmitted.WithLabelValues("reverted").Inc()
		l.logger.Error("liquidation transaction reverted, positions stay tracked",
			zap.String("tx", tx.Hash().Hex()),
			zap.String("pool_id", group.PoolID),
		)
		return nil
	}

	metrics.LiquidationsSubmitted.WithLabelValues("success").Inc()
	if err := l.ledger.DeletePositions(ctx, l.cfg.Network.ChainID, l.cfg.Network.MarginPositionManager.Hex(), liquidatable); err != nil {
		return fmt.Errorf("delete liquidated positions: %w", err)
	}
	l.logger.Info("positions liquidated",
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64s("position_ids", liquidatable),
	)

	l.withdrawProfit(ctx, group.PoolID, marginToken, obtainable)
	return nil
}

// liquidateEach is the non-batched path: each position passes the same
// gas-versus-proceeds gate individually and is liquidated via
// liquidateCall, paying the repay amount in native currency when the
// borrow side is native.
func (l *Liquidator) liquidateEach(ctx context.Context, positions []model.Position, liquidated []bool) error {
	manager := l.cfg.Network.MarginPositionManager
	for i, position := range positions {
		if i >= len(liquidated) || !liquidated[i] {
			continue
		}
		if err := l.liquidateOne(ctx, manager, position); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			l.logger.Error("single liquidation failed",
				zap.Uint64("position_id", position.PositionID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (l *Liquidator) liquidateOne(ctx context.Context, manager common.Address, position model.Position) error {
	minEtherPrice, ok := l.cfg.Network.MinEtherPrice(common.HexToAddress(position.MarginToken))
	if !ok {
		l.logger.Warn("no floor price configured for margin token, skipping position",
			zap.Uint64("position_id", position.PositionID),
			zap.String("margin_token", position.MarginToken),
		)
		return nil
	}

	proceeds := new(big.Int).Add(position.MarginAmount, position.MarginTotal)
	obtainAmount := ToGasToken(minEtherPrice, proceeds)

	repayAmount, err := l.checker.GetLiquidateRepayAmount(ctx, manager, position.PositionID)
	if err != nil {
		return fmt.Errorf("liquidate repay amount: %w", err)
	}
	// padded 1% to absorb interest accrued between quote and execution
	repayAmount = new(big.Int).Div(new(big.Int).Mul(repayAmount, big.NewInt(101)), big.NewInt(100))

	payValue := big.NewInt(0)
	if l.borrowTokenIsNative(ctx, position) {
		payValue = repayAmount
	}

	estimate, err := l.burner.EstimateLiquidateCall(ctx, position.PositionID, payValue)
	if err != nil {
		return fmt.Errorf("estimate liquidate call: %w", err)
	}
	gasPrice, err := l.backend.GasPrice(ctx)
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}
	cost := GasCost(estimate, gasPrice)

	if cost.Cmp(obtainAmount) > 0 {
		metrics.LiquidationsSkipped.Inc()
		l.logger.Info("skip position, gas cost exceeds proceeds",
			zap.Uint64("position_id", position.PositionID),
			zap.String("gas_cost", cost.String()),
			zap.String("obtain_amount", obtainAmount.String()),
		)
		return nil
	}

	tx, err := l.burner.LiquidateCall(ctx, position.PositionID, payValue)
	if err != nil {
		metrics.LiquidationsSubmitted.WithLabelValues("submit_error").Inc()
		return fmt.Errorf("liquidate call: %w", err)
	}

	receipt, err := l.backend.WaitMined(ctx, tx)
	if err != nil {
		metrics.LiquidationsSubmitted.WithLabelValues("receipt_error").Inc()
		return fmt.Errorf("wait liquidation receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		metrics.LiquidationsSubmitted.WithLabelValues("reverted").Inc()
		l.logger.Error("single liquidation reverted, position stays tracked",
			zap.Uint64("position_id", position.PositionID),
			zap.String("tx", tx.Hash().Hex()),
		)
		return nil
	}

	metrics.LiquidationsSubmitted.WithLabelValues("success").Inc()
	if err := l.ledger.DeletePosition(ctx, position.ChainID, position.ManagerAddress, position.PositionID); err != nil {
		return fmt.Errorf("delete liquidated position: %w", err)
	}
	l.logger.Info("position liquidated",
		zap.Uint64("position_id", position.PositionID),
		zap.String("tx", tx.Hash().Hex()),
	)

	l.withdrawProfit(ctx, position.PoolID, position.MarginToken, proceeds)
	return nil
}

func (l *Liquidator) borrowTokenIsNative(ctx context.Context, position model.Position) bool {
	pool, found, err := l.ledger.GetPool(ctx, position.ChainID, position.PoolID)
	if err != nil || !found {
		return false
	}
	borrowToken := pool.Currency0
	if !position.MarginForOne {
		borrowToken = pool.Currency1
	}
	return common.HexToAddress(borrowToken) == (common.Address{})
}

// withdrawProfit is fire and forget: a failed withdrawal never reverses
// the liquidation bookkeeping. The amount and pool are logged so an
// operator can reconcile manually.
func (l *Liquidator) withdrawProfit(ctx context.Context, poolID, marginToken string, amount *big.Int) {
	if l.treasury == nil || l.cfg.Recipient == (common.Address{}) || amount.Sign() <= 0 {
		return
	}
	tx, err := l.treasury.Withdraw(ctx, l.cfg.Recipient, common.HexToHash(poolID), common.HexToAddress(marginToken), amount)
	if err != nil {
		l.logger.Error("profit withdrawal failed",
			zap.String("pool_id", poolID),
			zap.String("amount", amount.String()),
			zap.Error(err),
		)
		return
	}
	if receipt, err := l.backend.WaitMined(ctx, tx); err != nil || receipt.Status != types.ReceiptStatusSuccessful {
		l.logger.Error("profit withdrawal not confirmed",
			zap.String("pool_id", poolID),
			zap.String("tx", tx.Hash().Hex()),
			zap.Error(err),
		)
	}
}

func toBigInts(ids []uint64) []*big.Int {
	out := make([]*big.Int, len(ids))
	for i, id := range ids {
		out[i] = new(big.Int).SetUint64(id)
	}
	return out
}
