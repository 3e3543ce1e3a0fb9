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

// SwapHelper wraps the on-chain helper that executes a cross-venue round
// trip atomically given pre-computed minimums. The helper may hold a
// native-token float, so callers only attach the shortfall.
type SwapHelper struct {
	address  common.Address
	client   *chain.Client
	contract *bind.BoundContract
}

// NewSwapHelper binds the swap helper at the given address.
func NewSwapHelper(address common.Address, client *chain.Client) (*SwapHelper, error) {
	parsed, err := SwapHelperABI()
	if err != nil {
		return nil, fmt.Errorf("parse swap helper abi: %w", err)
	}
	backend := client.Backend()
	return &SwapHelper{
		address:  address,
		client:   client,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Address returns the helper contract address.
func (s *SwapHelper) Address() common.Address {
	return s.address
}

// Balance returns the helper's native token float.
func (s *SwapHelper) Balance(ctx context.Context) (*big.Int, error) {
	return s.client.Balance(ctx, s.address)
}

// LikwidToExternal buys tokenOut on the internal pool and sells it back on
// the external AMM.
func (s *SwapHelper) LikwidToExternal(ctx context.Context, poolID common.Hash, tokenIn, tokenOut common.Address, fee, payValue, swapOutMin, returnAmountMin, sendValue *big.Int) (*types.Transaction, error) {
	opts, err := s.client.Transactor(ctx)
	if err != nil {
		return nil, err
	}
	opts.Value = sendValue
	tx, err := s.contract.Transact(opts, "likwidToExternal", [32]byte(poolID), tokenIn, tokenOut, fee, payValue, swapOutMin, returnAmountMin)
	if err != nil {
		return nil, fmt.Errorf("likwidToExternal: %w", err)
	}
	return tx, nil
}

// ExternalToLikwid buys tokenOut on the external AMM and sells it back on
// the internal pool.
func (s *SwapHelper) ExternalToLikwid(ctx context.Context, tokenIn, tokenOut common.Address, fee *big.Int, poolID common.Hash, payValue, swapOutMin, returnAmountMin, sendValue *big.Int) (*types.Transaction, error) {
	opts, err := s.client.Transactor(ctx)
	if err != nil {
		return nil, err
	}
	opts.Value = sendValue
	tx, err := s.contract.Transact(opts, "externalToLikwid", tokenIn, tokenOut, fee, [32]byte(poolID), payValue, swapOutMin, returnAmountMin)
	if err != nil {
		return nil, fmt.Errorf("externalToLikwid: %w", err)
	}
	return tx, nil
}
