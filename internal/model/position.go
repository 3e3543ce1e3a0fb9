package model

import "math/big"

// Pool is the reference record for a margin liquidity pool. The
// currency0/currency1 pairing is immutable once observed; re-insertion may
// refresh the addresses but never the key.
type Pool struct {
	ChainID   uint64 `json:"chain_id"`
	PoolID    string `json:"pool_id"`
	Currency0 string `json:"currency0"`
	Currency1 string `json:"currency1"`
}

// Position tracks one open leveraged margin position. Amounts are wei-scale
// unsigned integers; they are persisted as decimal strings to avoid
// precision loss.
type Position struct {
	ChainID        uint64   `json:"chain_id"`
	ManagerAddress string   `json:"manager_address"`
	PositionID     uint64   `json:"position_id"`
	PoolID         string   `json:"pool_id"`
	OwnerAddress   string   `json:"owner_address"`
	MarginAmount   *big.Int `json:"margin_amount"`
	MarginTotal    *big.Int `json:"margin_total"`
	BorrowAmount   *big.Int `json:"borrow_amount"`
	MarginForOne   bool     `json:"margin_for_one"`
	MarginToken    string   `json:"margin_token"`
}

// PositionGroup is the liquidation batching key: all positions of one pool
// collateralized in the same direction are checked together.
type PositionGroup struct {
	PoolID       string `json:"pool_id"`
	MarginForOne bool   `json:"margin_for_one"`
}

// MarginToken resolves the collateral token of a position from its pool.
func MarginToken(pool Pool, marginForOne bool) string {
	if marginForOne {
		return pool.Currency1
	}
	return pool.Currency0
}
