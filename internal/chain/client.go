package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client wraps go-ethereum RPC and provides the read/write surface the
// engines consume: logs, gas, balances, and signed transaction submission.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	chainID *big.Int
	key     *ecdsa.PrivateKey
	sender  common.Address
}

// NewClient dials the RPC URL and verifies the endpoint serves the expected
// chain. privateKeyHex may be empty for read-only use.
func NewClient(ctx context.Context, rpcURL string, expectedChainID uint64, privateKeyHex string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	ethClient := ethclient.NewClient(rpcClient)

	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if expectedChainID != 0 && chainID.Uint64() != expectedChainID {
		rpcClient.Close()
		return nil, fmt.Errorf("rpc serves chain %s, want %d", chainID, expectedChainID)
	}

	c := &Client{
		rpcClient: rpcClient,
		ethClient: ethClient,
		chainID:   chainID,
	}

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		c.key = key
		c.sender = crypto.PubkeyToAddress(key.PublicKey)
	}

	return c, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID the client is connected to.
func (c *Client) ChainID() uint64 {
	return c.chainID.Uint64()
}

// Sender returns the transaction sender address, zero if read-only.
func (c *Client) Sender() common.Address {
	return c.sender
}

// BlockNumber returns the current chain head.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// FilterLogs returns logs in the given range for addresses and topic0
// filters.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	return c.ethClient.FilterLogs(ctx, query)
}

// GasPrice returns the suggested gas price, falling back to 1 wei when the
// endpoint cannot provide one.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.ethClient.SuggestGasPrice(ctx)
	if err != nil || price == nil || price.Sign() == 0 {
		return big.NewInt(1), nil
	}
	return price, nil
}

// Balance returns the native token balance of an address at the head.
func (c *Client) Balance(ctx context.Context, address common.Address) (*big.Int, error) {
	return c.ethClient.BalanceAt(ctx, address, nil)
}

// Transactor builds signed transact opts bound to ctx. Fails when the
// client was constructed without a private key.
func (c *Client) Transactor(ctx context.Context) (*bind.TransactOpts, error) {
	if c.key == nil {
		return nil, fmt.Errorf("client has no signing key")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

// WaitMined blocks until the transaction is mined and returns its receipt.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, c.ethClient, tx)
}

// EstimateGas estimates gas for a call from the signing account.
func (c *Client) EstimateGas(ctx context.Context, to common.Address, data []byte, value *big.Int) (uint64, error) {
	msg := ethereum.CallMsg{
		From:  c.sender,
		To:    &to,
		Data:  data,
		Value: value,
	}
	return c.ethClient.EstimateGas(ctx, msg)
}

// Backend exposes the bind.ContractBackend for contract wrappers.
func (c *Client) Backend() bind.ContractBackend {
	return c.ethClient
}
