package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/likwid-fi/likwid-margin-bot/internal/chain"
)

// Quote is the external AMM quoter result. GasEstimate reflects the gas
// the quoter predicts for executing the quoted path.
type Quote struct {
	AmountOut   *big.Int
	GasEstimate *big.Int
}

// Quoter wraps the external AMM's QuoterV2-style quoting contract.
// quoteExactInputSingle is declared nonpayable but is always executed as
// an eth_call.
type Quoter struct {
	address  common.Address
	contract *bind.BoundContract
}

type quoteExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// NewQuoter binds the quoter at the given address.
func NewQuoter(address common.Address, client *chain.Client) (*Quoter, error) {
	parsed, err := QuoterABI()
	if err != nil {
		return nil, fmt.Errorf("parse quoter abi: %w", err)
	}
	backend := client.Backend()
	return &Quoter{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// QuoteExactInputSingle quotes a single-hop exact-input swap.
func (q *Quoter) QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, amountIn, fee *big.Int) (Quote, error) {
	params := quoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               fee,
		SqrtPriceLimitX96: big.NewInt(0),
	}
	var out []interface{}
	err := q.contract.Call(&bind.CallOpts{Context: ctx}, &out, "quoteExactInputSingle", params)
	if err != nil {
		return Quote{}, fmt.Errorf("quoteExactInputSingle: %w", err)
	}
	return Quote{
		AmountOut:   out[0].(*big.Int),
		GasEstimate: out[3].(*big.Int),
	}, nil
}
