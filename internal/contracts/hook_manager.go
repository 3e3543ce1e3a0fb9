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

// HookManager wraps the margin hook manager contract: the protocol's
// internal AMM pools and the profit withdrawal entry point.
type HookManager struct {
	address  common.Address
	client   *chain.Client
	contract *bind.BoundContract
}

// NewHookManager binds the hook manager at the given address.
func NewHookManager(address common.Address, client *chain.Client) (*HookManager, error) {
	parsed, err := HookManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse hook manager abi: %w", err)
	}
	backend := client.Backend()
	return &HookManager{
		address:  address,
		client:   client,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Address returns the bound contract address.
func (h *HookManager) Address() common.Address {
	return h.address
}

// GetAmountOut quotes the internal pool output for an exact input.
func (h *HookManager) GetAmountOut(ctx context.Context, poolID common.Hash, zeroForOne bool, amountIn *big.Int) (*big.Int, error) {
	var out []interface{}
	err := h.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAmountOut", [32]byte(poolID), zeroForOne, amountIn)
	if err != nil {
		return nil, fmt.Errorf("getAmountOut: %w", err)
	}
	return out[0].(*big.Int), nil
}

// GetAmountIn quotes the internal pool input required for an exact output.
func (h *HookManager) GetAmountIn(ctx context.Context, poolID common.Hash, zeroForOne bool, amountOut *big.Int) (*big.Int, error) {
	var out []interface{}
	err := h.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAmountIn", [32]byte(poolID), zeroForOne, amountOut)
	if err != nil {
		return nil, fmt.Errorf("getAmountIn: %w", err)
	}
	return out[0].(*big.Int), nil
}

// GetReserves returns the current pool reserves.
func (h *HookManager) GetReserves(ctx context.Context, poolID common.Hash) (*big.Int, *big.Int, error) {
	var out []interface{}
	err := h.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getReserves", [32]byte(poolID))
	if err != nil {
		return nil, nil, fmt.Errorf("getReserves: %w", err)
	}
	return out[0].(*big.Int), out[1].(*big.Int), nil
}

// Withdraw transfers accrued protocol proceeds for a pool to the recipient.
func (h *HookManager) Withdraw(ctx context.Context, recipient common.Address, poolID common.Hash, token common.Address, amount *big.Int) (*types.Transaction, error) {
	opts, err := h.client.Transactor(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := h.contract.Transact(opts, "withdraw", recipient, [32]byte(poolID), token, amount)
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}
	return tx, nil
}
