package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/likwid-fi/likwid-margin-bot/internal/model"
	"github.com/likwid-fi/likwid-margin-bot/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_state (
	chain_id BIGINT PRIMARY KEY,
	last_synced_block BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS margin_pools (
	chain_id BIGINT NOT NULL,
	pool_id TEXT NOT NULL,
	currency0 TEXT NOT NULL,
	currency1 TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_id)
);

CREATE TABLE IF NOT EXISTS margin_positions (
	chain_id BIGINT NOT NULL,
	manager_address TEXT NOT NULL,
	position_id BIGINT NOT NULL,
	pool_id TEXT NOT NULL,
	owner_address TEXT NOT NULL,
	margin_amount TEXT NOT NULL,
	margin_total TEXT NOT NULL,
	borrow_amount TEXT NOT NULL,
	margin_for_one BOOLEAN NOT NULL,
	margin_token TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, manager_address, position_id)
);

CREATE INDEX IF NOT EXISTS idx_margin_positions_pool_id
	ON margin_positions (pool_id);

CREATE INDEX IF NOT EXISTS idx_margin_positions_margin_token
	ON margin_positions (margin_token);
`

// Store is the Postgres position ledger.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to Postgres and ensures the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) UpsertPool(ctx context.Context, pool model.Pool) error {
	_, err := s.pool.Exec(ctx, upsertPoolSQL, int64(pool.ChainID), pool.PoolID, pool.Currency0, pool.Currency1)
	return err
}

const upsertPoolSQL = `
	INSERT INTO margin_pools (chain_id, pool_id, currency0, currency1)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (chain_id, pool_id)
	DO UPDATE SET
		currency0 = EXCLUDED.currency0,
		currency1 = EXCLUDED.currency1
`

func (s *Store) GetPool(ctx context.Context, chainID uint64, poolID string) (model.Pool, bool, error) {
	var pool model.Pool
	var storedChainID int64
	row := s.pool.QueryRow(ctx, `
		SELECT chain_id, pool_id, currency0, currency1
		FROM margin_pools
		WHERE chain_id = $1 AND pool_id = $2
	`, int64(chainID), poolID)
	if err := row.Scan(&storedChainID, &pool.PoolID, &pool.Currency0, &pool.Currency1); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, false, nil
		}
		return model.Pool{}, false, err
	}
	pool.ChainID = uint64(storedChainID)
	return pool, true, nil
}

func (s *Store) UpsertPosition(ctx context.Context, position model.Position) error {
	_, err := s.pool.Exec(ctx, upsertPositionSQL, upsertPositionArgs(position)...)
	return err
}

const upsertPositionSQL = `
	INSERT INTO margin_positions (
		chain_id, manager_address, position_id, pool_id, owner_address,
		margin_amount, margin_total, borrow_amount, margin_for_one, margin_token
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (chain_id, manager_address, position_id)
	DO UPDATE SET
		margin_amount = EXCLUDED.margin_amount,
		margin_total = EXCLUDED.margin_total,
		borrow_amount = EXCLUDED.borrow_amount,
		updated_at = now()
`

func upsertPositionArgs(position model.Position) []any {
	return []any{
		int64(position.ChainID),
		position.ManagerAddress,
		int64(position.PositionID),
		position.PoolID,
		position.OwnerAddress,
		bigString(position.MarginAmount),
		bigString(position.MarginTotal),
		bigString(position.BorrowAmount),
		position.MarginForOne,
		position.MarginToken,
	}
}

func (s *Store) UpdatePosition(ctx context.Context, chainID uint64, managerAddress string, positionID uint64, marginAmount, marginTotal, borrowAmount *big.Int) error {
	_, err := s.pool.Exec(ctx, updatePositionSQL,
		bigString(marginAmount), bigString(marginTotal), bigString(borrowAmount),
		int64(chainID), managerAddress, int64(positionID))
	return err
}

const updatePositionSQL = `
	UPDATE margin_positions
	SET margin_amount = $1, margin_total = $2, borrow_amount = $3, updated_at = now()
	WHERE chain_id = $4 AND manager_address = $5 AND position_id = $6
`

func (s *Store) DeletePosition(ctx context.Context, chainID uint64, managerAddress string, positionID uint64) error {
	_, err := s.pool.Exec(ctx, deletePositionSQL, int64(chainID), managerAddress, int64(positionID))
	return err
}

const deletePositionSQL = `
	DELETE FROM margin_positions
	WHERE chain_id = $1 AND manager_address = $2 AND position_id = $3
`

func (s *Store) DeletePositions(ctx context.Context, chainID uint64, managerAddress string, positionIDs []uint64) error {
	if len(positionIDs) == 0 {
		return nil
	}
	ids := make([]int64, len(positionIDs))
	for i, id := range positionIDs {
		ids[i] = int64(id)
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM margin_positions
		WHERE chain_id = $1 AND manager_address = $2 AND position_id = ANY($3)
	`, int64(chainID), managerAddress, ids)
	return err
}

func (s *Store) PositionGroups(ctx context.Context, chainID uint64) ([]model.PositionGroup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT pool_id, margin_for_one
		FROM margin_positions
		WHERE chain_id = $1
		ORDER BY pool_id, margin_for_one
	`, int64(chainID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make([]model.PositionGroup, 0)
	for rows.Next() {
		var group model.PositionGroup
		if err := rows.Scan(&group.PoolID, &group.MarginForOne); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func (s *Store) PositionsInGroup(ctx context.Context, chainID uint64, poolID string, marginForOne bool) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, manager_address, position_id, pool_id, owner_address,
			margin_amount, margin_total, borrow_amount, margin_for_one, margin_token
		FROM margin_positions
		WHERE chain_id = $1 AND pool_id = $2 AND margin_for_one = $3
		ORDER BY position_id
	`, int64(chainID), poolID, marginForOne)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := make([]model.Position, 0)
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, position)
	}
	return positions, rows.Err()
}

func scanPosition(rows pgx.Rows) (model.Position, error) {
	var position model.Position
	var storedChainID, storedPositionID int64
	var marginAmount, marginTotal, borrowAmount string
	err := rows.Scan(
		&storedChainID, &position.ManagerAddress, &storedPositionID,
		&position.PoolID, &position.OwnerAddress,
		&marginAmount, &marginTotal, &borrowAmount,
		&position.MarginForOne, &position.MarginToken,
	)
	if err != nil {
		return model.Position{}, err
	}
	position.ChainID = uint64(storedChainID)
	position.PositionID = uint64(storedPositionID)
	if position.MarginAmount, err = parseBig(marginAmount); err != nil {
		return model.Position{}, fmt.Errorf("margin_amount: %w", err)
	}
	if position.MarginTotal, err = parseBig(marginTotal); err != nil {
		return model.Position{}, fmt.Errorf("margin_total: %w", err)
	}
	if position.BorrowAmount, err = parseBig(borrowAmount); err != nil {
		return model.Position{}, fmt.Errorf("borrow_amount: %w", err)
	}
	return position, nil
}

func (s *Store) LastSyncedBlock(ctx context.Context, chainID uint64) (uint64, error) {
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_synced_block FROM sync_state WHERE chain_id = $1`, int64(chainID))
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(block), nil
}

func (s *Store) SetLastSyncedBlock(ctx context.Context, chainID uint64, blockNumber uint64) error {
	_, err := s.pool.Exec(ctx, setLastSyncedBlockSQL, int64(chainID), int64(blockNumber))
	return err
}

const setLastSyncedBlockSQL = `
	INSERT INTO sync_state (chain_id, last_synced_block)
	VALUES ($1, $2)
	ON CONFLICT (chain_id) DO UPDATE
	SET last_synced_block = GREATEST(sync_state.last_synced_block, EXCLUDED.last_synced_block),
		updated_at = now()
`

// ApplyRange commits the mutations of one block range and the checkpoint
// advance in a single transaction, so a crash never leaves the checkpoint
// ahead of the rows.
func (s *Store) ApplyRange(ctx context.Context, chainID uint64, mutations []store.Mutation, toBlock uint64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, mutation := range mutations {
		switch mut := mutation.(type) {
		case store.PutPool:
			_, err = tx.Exec(ctx, upsertPoolSQL, int64(mut.Pool.ChainID), mut.Pool.PoolID, mut.Pool.Currency0, mut.Pool.Currency1)
		case store.PutPosition:
			_, err = tx.Exec(ctx, upsertPositionSQL, upsertPositionArgs(mut.Position)...)
		case store.RefreshPosition:
			_, err = tx.Exec(ctx, updatePositionSQL,
				bigString(mut.MarginAmount), bigString(mut.MarginTotal), bigString(mut.BorrowAmount),
				int64(mut.ChainID), mut.ManagerAddress, int64(mut.PositionID))
		case store.DropPosition:
			_, err = tx.Exec(ctx, deletePositionSQL, int64(mut.ChainID), mut.ManagerAddress, int64(mut.PositionID))
		default:
			return fmt.Errorf("unknown mutation type %T", mutation)
		}
		if err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, setLastSyncedBlockSQL, int64(chainID), int64(toBlock)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func bigString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func parseBig(input string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(input, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal string: %q", input)
	}
	return value, nil
}
