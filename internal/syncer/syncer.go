package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
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

// Gateway is the read surface the sync engine needs from the chain.
type Gateway interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// PositionReader re-fetches authoritative position state after modify and
// repay events, which do not carry the full state in their payload.
type PositionReader interface {
	GetPosition(ctx context.Context, positionID uint64) (contracts.PositionState, error)
}

// Decoder converts raw logs into the closed event variant set.
type Decoder interface {
	Addresses() []common.Address
	Topics() []common.Hash
	Decode(log types.Log) (model.Event, bool, error)
}

// Config holds the sync engine settings.
type Config struct {
	Network      config.Network
	BatchSize    uint64
	Interval     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Syncer keeps the position ledger eventually consistent with on-chain
// protocol state via batched historical catch-up.
type Syncer struct {
	cfg       Config
	gateway   Gateway
	positions PositionReader
	decoder   Decoder
	store     store.Store
	logger    *zap.Logger

	inFlight atomic.Bool
}

// New builds a Syncer with its dependencies.
func New(cfg Config, gateway Gateway, positions PositionReader, decoder Decoder, ledger store.Store, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Syncer{
		cfg:       cfg,
		gateway:   gateway,
		positions: positions,
		decoder:   decoder,
		store:     ledger,
		logger:    logger,
	}
}

// Run performs a pass immediately and then on every tick. A tick fired
// while a pass is still in flight is skipped; overlapping passes against
// the same checkpoint are a correctness hazard, not just wasted work.
func (s *Syncer) Run(ctx context.Context) error {
	s.trySync(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.trySync(ctx)
		}
	}
}

func (s *Syncer) trySync(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("sync pass already in flight, skipping tick")
		return
	}
	defer s.inFlight.Store(false)

	if err := s.SyncOnce(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		metrics.SyncErrors.Inc()
		s.logger.Error("sync pass failed", zap.Error(err))
	}
}

// SyncOnce catches the ledger up to the current chain head. The checkpoint
// only advances past a range after its mutations are committed, so an
// aborted pass resumes from the last complete range.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	chainID := s.cfg.Network.ChainID

	lastSynced, err := s.store.LastSyncedBlock(ctx, chainID)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if s.cfg.Network.StartBlock > lastSynced {
		lastSynced = s.cfg.Network.StartBlock
	}

	head, err := s.gateway.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get chain head: %w", err)
	}
	if lastSynced >= head {
		return nil
	}

	ranges, err := SplitRange(lastSynced+1, head, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		logs, err := s.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return fmt.Errorf("filter logs [%d, %d]: %w", blockRange.From, blockRange.To, err)
		}

		mutations, err := s.buildMutations(ctx, logs)
		if err != nil {
			return fmt.Errorf("process logs [%d, %d]: %w", blockRange.From, blockRange.To, err)
		}

		if err := s.store.ApplyRange(ctx, chainID, mutations, blockRange.To); err != nil {
			return fmt.Errorf("commit range [%d, %d]: %w", blockRange.From, blockRange.To, err)
		}

		metrics.LastSyncedBlock.WithLabelValues(strconv.FormatUint(chainID, 10)).Set(float64(blockRange.To))
		s.logger.Info("range synced",
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Int("logs", len(logs)),
			zap.Int("mutations", len(mutations)),
		)
	}

	return nil
}

// buildMutations decodes a range's logs into ledger mutations. Pools
// initialized earlier in the same range are visible to later margin events
// through a range-local overlay, since nothing is committed until
// ApplyRange.
func (s *Syncer) buildMutations(ctx context.Context, logs []types.Log) ([]store.Mutation, error) {
	chainID := s.cfg.Network.ChainID
	manager := s.cfg.Network.MarginPositionManager.Hex()

	mutations := make([]store.Mutation, 0, len(logs))
	rangePools := make(map[string]model.Pool)

	for _, log := range logs {
		event, ok, err := s.decoder.Decode(log)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		switch ev := event.(type) {
		case model.PoolInitialized:
			pool := model.Pool{
				ChainID:   chainID,
				PoolID:    ev.PoolID,
				Currency0: ev.Currency0,
				Currency1: ev.Currency1,
			}
			rangePools[pool.PoolID] = pool
			mutations = append(mutations, store.PutPool{Pool: pool})

		case model.MarginOpened:
			pool, found, err := s.resolvePool(ctx, rangePools, ev.PoolID)
			if err != nil {
				return nil, err
			}
			if !found {
				metrics.PositionsSkipped.WithLabelValues("pool_not_found").Inc()
				s.logger.Warn("margin event for unknown pool", zap.String("pool_id", ev.PoolID), zap.Uint64("position_id", ev.PositionID))
				continue
			}
			marginToken := model.MarginToken(pool, ev.MarginForOne)
			if !s.cfg.Network.AllowsCurrency(common.HexToAddress(marginToken)) {
				metrics.PositionsSkipped.WithLabelValues("currency_not_allowed").Inc()
				s.logger.Info("skip position in disallowed currency",
					zap.Uint64("position_id", ev.PositionID),
					zap.String("margin_token", marginToken),
				)
				continue
			}
			mutations = append(mutations, store.PutPosition{Position: model.Position{
				ChainID:        chainID,
				ManagerAddress: manager,
				PositionID:     ev.PositionID,
				PoolID:         ev.PoolID,
				OwnerAddress:   ev.Owner,
				MarginAmount:   ev.MarginAmount,
				MarginTotal:    ev.MarginTotal,
				BorrowAmount:   ev.BorrowAmount,
				MarginForOne:   ev.MarginForOne,
				MarginToken:    marginToken,
			}})

		case model.PositionClosed:
			mutations = append(mutations, store.DropPosition{
				ChainID:        chainID,
				ManagerAddress: manager,
				PositionID:     ev.PositionID,
			})

		case model.PositionModified:
			state, err := s.positions.GetPosition(ctx, ev.PositionID)
			if err != nil {
				return nil, fmt.Errorf("refetch position %d: %w", ev.PositionID, err)
			}
			mutations = append(mutations, store.RefreshPosition{
				ChainID:        chainID,
				ManagerAddress: manager,
				PositionID:     ev.PositionID,
				MarginAmount:   state.MarginAmount,
				MarginTotal:    state.MarginTotal,
				BorrowAmount:   state.BorrowAmount,
			})
		}
	}

	return mutations, nil
}

func (s *Syncer) resolvePool(ctx context.Context, rangePools map[string]model.Pool, poolID string) (model.Pool, bool, error) {
	if pool, ok := rangePools[poolID]; ok {
		return pool, true, nil
	}
	return s.store.GetPool(ctx, s.cfg.Network.ChainID, poolID)
}

func (s *Syncer) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = s.gateway.FilterLogs(ctx, fromBlock, toBlock, s.decoder.Addresses(), s.decoder.Topics())
		if err != nil {
			s.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}
