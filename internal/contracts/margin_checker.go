package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/likwid-fi/likwid-margin-bot/internal/chain"
)

// MarginChecker wraps the protocol's liquidation eligibility contract. It
// is the ultimate authority on whether a position can be liquidated.
type MarginChecker struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewMarginChecker binds the margin checker at the given address.
func NewMarginChecker(address common.Address, client *chain.Client) (*MarginChecker, error) {
	parsed, err := MarginCheckerABI()
	if err != nil {
		return nil, fmt.Errorf("parse margin checker abi: %w", err)
	}
	backend := client.Backend()
	return &MarginChecker{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// CheckLiquidateByIds returns, per position id, whether it is liquidatable
// and the release amount deducted from the liquidator's proceeds.
func (m *MarginChecker) CheckLiquidateByIds(ctx context.Context, manager common.Address, positionIDs []uint64) ([]bool, []*big.Int, error) {
	ids := make([]*big.Int, len(positionIDs))
	for i, id := range positionIDs {
		ids[i] = new(big.Int).SetUint64(id)
	}
	var out []interface{}
	err := m.contract.Call(&bind.CallOpts{Context: ctx}, &out, "checkLiquidateByIds", manager, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("checkLiquidateByIds: %w", err)
	}
	liquidated := out[0].([]bool)
	releases := out[1].([]*big.Int)
	if len(liquidated) != len(positionIDs) || len(releases) != len(positionIDs) {
		return nil, nil, fmt.Errorf("checkLiquidateByIds: result length %d/%d for %d ids", len(liquidated), len(releases), len(positionIDs))
	}
	return liquidated, releases, nil
}

// CheckLiquidate checks a single position.
func (m *MarginChecker) CheckLiquidate(ctx context.Context, manager common.Address, positionID uint64) (bool, *big.Int, error) {
	var out []interface{}
	err := m.contract.Call(&bind.CallOpts{Context: ctx}, &out, "checkLiquidate", manager, new(big.Int).SetUint64(positionID))
	if err != nil {
		return false, nil, fmt.Errorf("checkLiquidate %d: %w", positionID, err)
	}
	return out[0].(bool), out[1].(*big.Int), nil
}

// GetLiquidateRepayAmount returns the borrow amount that must be repaid to
// liquidate via liquidateCall.
func (m *MarginChecker) GetLiquidateRepayAmount(ctx context.Context, manager common.Address, positionID uint64) (*big.Int, error) {
	var out []interface{}
	err := m.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getLiquidateRepayAmount", manager, new(big.Int).SetUint64(positionID))
	if err != nil {
		return nil, fmt.Errorf("getLiquidateRepayAmount %d: %w", positionID, err)
	}
	return out[0].(*big.Int), nil
}

// LiquidationMarginLevel returns the protocol liquidation ratio in
// millionths.
func (m *MarginChecker) LiquidationMarginLevel(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	err := m.contract.Call(&bind.CallOpts{Context: ctx}, &out, "liquidationMarginLevel")
	if err != nil {
		return nil, fmt.Errorf("liquidationMarginLevel: %w", err)
	}
	return out[0].(*big.Int), nil
}
