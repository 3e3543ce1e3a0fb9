package store

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/likwid-fi/likwid-margin-bot/internal/model"
)

type poolKey struct {
	chainID uint64
	poolID  string
}

type positionKey struct {
	chainID    uint64
	manager    string
	positionID uint64
}

// Memory is an in-process ledger with the same semantics as the Postgres
// store. It backs tests and ephemeral single-run invocations.
type Memory struct {
	mu        sync.Mutex
	pools     map[poolKey]model.Pool
	positions map[positionKey]model.Position
	synced    map[uint64]uint64
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		pools:     make(map[poolKey]model.Pool),
		positions: make(map[positionKey]model.Position),
		synced:    make(map[uint64]uint64),
	}
}

func (m *Memory) UpsertPool(_ context.Context, pool model.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertPoolLocked(pool)
	return nil
}

func (m *Memory) upsertPoolLocked(pool model.Pool) {
	m.pools[poolKey{pool.ChainID, pool.PoolID}] = pool
}

func (m *Memory) GetPool(_ context.Context, chainID uint64, poolID string) (model.Pool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool, ok := m.pools[poolKey{chainID, poolID}]
	return pool, ok, nil
}

func (m *Memory) UpsertPosition(_ context.Context, position model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertPositionLocked(position)
	return nil
}

func (m *Memory) upsertPositionLocked(position model.Position) {
	key := positionKey{position.ChainID, position.ManagerAddress, position.PositionID}
	if existing, ok := m.positions[key]; ok {
		// identity fields are immutable on conflict
		existing.MarginAmount = cloneBig(position.MarginAmount)
		existing.MarginTotal = cloneBig(position.MarginTotal)
		existing.BorrowAmount = cloneBig(position.BorrowAmount)
		m.positions[key] = existing
		return
	}
	position.MarginAmount = cloneBig(position.MarginAmount)
	position.MarginTotal = cloneBig(position.MarginTotal)
	position.BorrowAmount = cloneBig(position.BorrowAmount)
	m.positions[key] = position
}

func (m *Memory) UpdatePosition(_ context.Context, chainID uint64, managerAddress string, positionID uint64, marginAmount, marginTotal, borrowAmount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatePositionLocked(chainID, managerAddress, positionID, marginAmount, marginTotal, borrowAmount)
	return nil
}

func (m *Memory) updatePositionLocked(chainID uint64, managerAddress string, positionID uint64, marginAmount, marginTotal, borrowAmount *big.Int) {
	key := positionKey{chainID, managerAddress, positionID}
	existing, ok := m.positions[key]
	if !ok {
		return
	}
	existing.MarginAmount = cloneBig(marginAmount)
	existing.MarginTotal = cloneBig(marginTotal)
	existing.BorrowAmount = cloneBig(borrowAmount)
	m.positions[key] = existing
}

func (m *Memory) DeletePosition(_ context.Context, chainID uint64, managerAddress string, positionID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, positionKey{chainID, managerAddress, positionID})
	return nil
}

func (m *Memory) DeletePositions(_ context.Context, chainID uint64, managerAddress string, positionIDs []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range positionIDs {
		delete(m.positions, positionKey{chainID, managerAddress, id})
	}
	return nil
}

func (m *Memory) PositionGroups(_ context.Context, chainID uint64) ([]model.PositionGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[model.PositionGroup]struct{})
	for _, position := range m.positions {
		if position.ChainID != chainID {
			continue
		}
		seen[model.PositionGroup{PoolID: position.PoolID, MarginForOne: position.MarginForOne}] = struct{}{}
	}
	groups := make([]model.PositionGroup, 0, len(seen))
	for group := range seen {
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].PoolID != groups[j].PoolID {
			return groups[i].PoolID < groups[j].PoolID
		}
		return !groups[i].MarginForOne && groups[j].MarginForOne
	})
	return groups, nil
}

func (m *Memory) PositionsInGroup(_ context.Context, chainID uint64, poolID string, marginForOne bool) ([]model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	positions := make([]model.Position, 0)
	for _, position := range m.positions {
		if position.ChainID == chainID && position.PoolID == poolID && position.MarginForOne == marginForOne {
			positions = append(positions, position)
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].PositionID < positions[j].PositionID
	})
	return positions, nil
}

func (m *Memory) LastSyncedBlock(_ context.Context, chainID uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.synced[chainID], nil
}

func (m *Memory) SetLastSyncedBlock(_ context.Context, chainID uint64, blockNumber uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLastSyncedBlockLocked(chainID, blockNumber)
	return nil
}

func (m *Memory) setLastSyncedBlockLocked(chainID uint64, blockNumber uint64) {
	if blockNumber > m.synced[chainID] {
		m.synced[chainID] = blockNumber
	}
}

func (m *Memory) ApplyRange(_ context.Context, chainID uint64, mutations []Mutation, toBlock uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mutation := range mutations {
		switch mut := mutation.(type) {
		case PutPool:
			m.upsertPoolLocked(mut.Pool)
		case PutPosition:
			m.upsertPositionLocked(mut.Position)
		case RefreshPosition:
			m.updatePositionLocked(mut.ChainID, mut.ManagerAddress, mut.PositionID, mut.MarginAmount, mut.MarginTotal, mut.BorrowAmount)
		case DropPosition:
			delete(m.positions, positionKey{mut.ChainID, mut.ManagerAddress, mut.PositionID})
		default:
			return fmt.Errorf("unknown mutation type %T", mutation)
		}
	}
	m.setLastSyncedBlockLocked(chainID, toBlock)
	return nil
}

func cloneBig(value *big.Int) *big.Int {
	if value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(value)
}
