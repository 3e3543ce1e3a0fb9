package model

import "math/big"

// Event is the closed set of protocol events the sync engine consumes.
// Decoding from raw logs happens at the chain gateway boundary; everything
// past that point switches over these variants.
type Event interface {
	eventVariant()
}

// PoolInitialized is emitted by the hook manager when a margin pool is
// created.
type PoolInitialized struct {
	PoolID    string
	Currency0 string
	Currency1 string
}

// MarginOpened is emitted by the position manager when a leveraged position
// is opened or topped up. It carries the full position state.
type MarginOpened struct {
	PoolID       string
	Owner        string
	PositionID   uint64
	MarginAmount *big.Int
	MarginTotal  *big.Int
	BorrowAmount *big.Int
	MarginForOne bool
}

// PositionClosed is emitted when a position is burned, either by its owner
// or through liquidation.
type PositionClosed struct {
	PoolID     string
	Sender     string
	PositionID uint64
	BurnType   uint8
}

// PositionModified covers repay and modify events. The event payload does
// not carry full position state; the current state must be re-read from the
// position manager.
type PositionModified struct {
	PoolID     string
	Sender     string
	PositionID uint64
}

func (PoolInitialized) eventVariant()  {}
func (MarginOpened) eventVariant()     {}
func (PositionClosed) eventVariant()   {}
func (PositionModified) eventVariant() {}
