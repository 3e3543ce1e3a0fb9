package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/likwid-fi/likwid-margin-bot/internal/chain"
)

// ReleaseParams is the batched liquidation call payload: all liquidatable
// positions of one (pool, direction) group burned in a single transaction.
type ReleaseParams struct {
	PoolId       [32]byte
	MarginForOne bool
	PositionIds  []*big.Int
	Signature    []byte
}

// PositionState is the authoritative on-chain state of a position, used to
// refresh the ledger after modify/repay events.
type PositionState struct {
	PoolID       common.Hash
	MarginForOne bool
	MarginAmount *big.Int
	MarginTotal  *big.Int
	BorrowAmount *big.Int
}

// PositionManager wraps the margin position manager contract.
type PositionManager struct {
	address  common.Address
	client   *chain.Client
	contract *bind.BoundContract
}

// NewPositionManager binds the position manager at the given address.
func NewPositionManager(address common.Address, client *chain.Client) (*PositionManager, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse position manager abi: %w", err)
	}
	backend := client.Backend()
	return &PositionManager{
		address:  address,
		client:   client,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Address returns the bound contract address.
func (p *PositionManager) Address() common.Address {
	return p.address
}

// GetPosition reads the current on-chain state of a position.
func (p *PositionManager) GetPosition(ctx context.Context, positionID uint64) (PositionState, error) {
	var out []interface{}
	err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPosition", new(big.Int).SetUint64(positionID))
	if err != nil {
		return PositionState{}, fmt.Errorf("getPosition %d: %w", positionID, err)
	}
	return PositionState{
		PoolID:       common.Hash(out[0].([32]byte)),
		MarginForOne: out[1].(bool),
		MarginAmount: out[2].(*big.Int),
		MarginTotal:  out[3].(*big.Int),
		BorrowAmount: out[4].(*big.Int),
	}, nil
}

// LiquidateBurn submits the batched liquidation for a position group.
func (p *PositionManager) LiquidateBurn(ctx context.Context, params ReleaseParams) (*types.Transaction, error) {
	opts, err := p.client.Transactor(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := p.contract.Transact(opts, "liquidateBurn", params)
	if err != nil {
		return nil, fmt.Errorf("liquidateBurn: %w", err)
	}
	return tx, nil
}

// EstimateLiquidateBurn estimates gas for the batched liquidation without
// submitting it.
func (p *PositionManager) EstimateLiquidateBurn(ctx context.Context, params ReleaseParams) (uint64, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return 0, err
	}
	data, err := parsed.Pack("liquidateBurn", params)
	if err != nil {
		return 0, fmt.Errorf("pack liquidateBurn: %w", err)
	}
	return p.client.EstimateGas(ctx, p.address, data, nil)
}

// LiquidateCall submits a single-position liquidation, attaching payValue
// when the borrow token is the native currency.
func (p *PositionManager) LiquidateCall(ctx context.Context, positionID uint64, payValue *big.Int) (*types.Transaction, error) {
	opts, err := p.client.Transactor(ctx)
	if err != nil {
		return nil, err
	}
	opts.Value = payValue
	tx, err := p.contract.Transact(opts, "liquidateCall", new(big.Int).SetUint64(positionID))
	if err != nil {
		return nil, fmt.Errorf("liquidateCall %d: %w", positionID, err)
	}
	return tx, nil
}

// EstimateLiquidateCall estimates gas for a single-position liquidation.
func (p *PositionManager) EstimateLiquidateCall(ctx context.Context, positionID uint64, payValue *big.Int) (uint64, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return 0, err
	}
	data, err := parsed.Pack("liquidateCall", new(big.Int).SetUint64(positionID))
	if err != nil {
		return 0, fmt.Errorf("pack liquidateCall: %w", err)
	}
	return p.client.EstimateGas(ctx, p.address, data, payValue)
}
