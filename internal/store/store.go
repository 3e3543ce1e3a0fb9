package store

import (
	"context"
	"math/big"

	"github.com/likwid-fi/likwid-margin-bot/internal/model"
)

// Mutation is one ledger write derived from a protocol event. All
// mutations of a block range are applied atomically together with the
// checkpoint advance, so a crash mid-range re-processes the whole range.
type Mutation interface {
	mutationVariant()
}

// PutPool inserts or refreshes pool reference data.
type PutPool struct {
	Pool model.Pool
}

// PutPosition inserts a position; on conflict only the mutable numeric
// fields are updated.
type PutPosition struct {
	Position model.Position
}

// RefreshPosition overwrites the numeric fields of an existing position.
// A missing row is a silent no-op.
type RefreshPosition struct {
	ChainID        uint64
	ManagerAddress string
	PositionID     uint64
	MarginAmount   *big.Int
	MarginTotal    *big.Int
	BorrowAmount   *big.Int
}

// DropPosition removes a position. Idempotent.
type DropPosition struct {
	ChainID        uint64
	ManagerAddress string
	PositionID     uint64
}

func (PutPool) mutationVariant()         {}
func (PutPosition) mutationVariant()     {}
func (RefreshPosition) mutationVariant() {}
func (DropPosition) mutationVariant()    {}

// Store is the position ledger: pools, open positions, and per-chain sync
// checkpoints. All writes are idempotent and keyed by immutable identity.
type Store interface {
	UpsertPool(ctx context.Context, pool model.Pool) error
	GetPool(ctx context.Context, chainID uint64, poolID string) (model.Pool, bool, error)

	UpsertPosition(ctx context.Context, position model.Position) error
	UpdatePosition(ctx context.Context, chainID uint64, managerAddress string, positionID uint64, marginAmount, marginTotal, borrowAmount *big.Int) error
	DeletePosition(ctx context.Context, chainID uint64, managerAddress string, positionID uint64) error
	DeletePositions(ctx context.Context, chainID uint64, managerAddress string, positionIDs []uint64) error

	PositionGroups(ctx context.Context, chainID uint64) ([]model.PositionGroup, error)
	PositionsInGroup(ctx context.Context, chainID uint64, poolID string, marginForOne bool) ([]model.Position, error)

	LastSyncedBlock(ctx context.Context, chainID uint64) (uint64, error)
	SetLastSyncedBlock(ctx context.Context, chainID uint64, blockNumber uint64) error

	// ApplyRange commits the mutations of one block range and advances the
	// checkpoint to toBlock in a single transaction.
	ApplyRange(ctx context.Context, chainID uint64, mutations []Mutation, toBlock uint64) error
}
