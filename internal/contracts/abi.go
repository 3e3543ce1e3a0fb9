package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const hookManagerABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "id", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "currency0", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "currency1", "type": "address"},
      {"indexed": false, "internalType": "uint24", "name": "fee", "type": "uint24"}
    ],
    "name": "Initialize",
    "type": "event"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"internalType": "bool", "name": "zeroForOne", "type": "bool"},
      {"internalType": "uint256", "name": "amountIn", "type": "uint256"}
    ],
    "name": "getAmountOut",
    "outputs": [{"internalType": "uint256", "name": "amountOut", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"internalType": "bool", "name": "zeroForOne", "type": "bool"},
      {"internalType": "uint256", "name": "amountOut", "type": "uint256"}
    ],
    "name": "getAmountIn",
    "outputs": [{"internalType": "uint256", "name": "amountIn", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "bytes32", "name": "poolId", "type": "bytes32"}],
    "name": "getReserves",
    "outputs": [
      {"internalType": "uint256", "name": "reserve0", "type": "uint256"},
      {"internalType": "uint256", "name": "reserve1", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "recipient", "type": "address"},
      {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"internalType": "address", "name": "token", "type": "address"},
      {"internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "withdraw",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

const positionManagerABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "positionId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "marginAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "marginTotal", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "borrowAmount", "type": "uint256"},
      {"indexed": false, "internalType": "bool", "name": "marginForOne", "type": "bool"}
    ],
    "name": "Margin",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "positionId", "type": "uint256"},
      {"indexed": false, "internalType": "uint8", "name": "burnType", "type": "uint8"}
    ],
    "name": "Burn",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "positionId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "repayAmount", "type": "uint256"}
    ],
    "name": "RepayClose",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "positionId", "type": "uint256"},
      {"indexed": false, "internalType": "int256", "name": "changeAmount", "type": "int256"}
    ],
    "name": "Modify",
    "type": "event"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "positionId", "type": "uint256"}],
    "name": "getPosition",
    "outputs": [
      {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"internalType": "bool", "name": "marginForOne", "type": "bool"},
      {"internalType": "uint256", "name": "marginAmount", "type": "uint256"},
      {"internalType": "uint256", "name": "marginTotal", "type": "uint256"},
      {"internalType": "uint256", "name": "borrowAmount", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {
        "components": [
          {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
          {"internalType": "bool", "name": "marginForOne", "type": "bool"},
          {"internalType": "uint256[]", "name": "positionIds", "type": "uint256[]"},
          {"internalType": "bytes", "name": "signature", "type": "bytes"}
        ],
        "internalType": "struct ReleaseParams",
        "name": "params",
        "type": "tuple"
      }
    ],
    "name": "liquidateBurn",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "positionId", "type": "uint256"}],
    "name": "liquidateCall",
    "outputs": [],
    "stateMutability": "payable",
    "type": "function"
  }
]`

const marginCheckerABIJSON = `[
  {
    "inputs": [
      {"internalType": "address", "name": "manager", "type": "address"},
      {"internalType": "uint256", "name": "positionId", "type": "uint256"}
    ],
    "name": "checkLiquidate",
    "outputs": [
      {"internalType": "bool", "name": "liquidated", "type": "bool"},
      {"internalType": "uint256", "name": "releaseAmount", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "manager", "type": "address"},
      {"internalType": "uint256[]", "name": "positionIds", "type": "uint256[]"}
    ],
    "name": "checkLiquidateByIds",
    "outputs": [
      {"internalType": "bool[]", "name": "liquidatedList", "type": "bool[]"},
      {"internalType": "uint256[]", "name": "releaseAmountList", "type": "uint256[]"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "manager", "type": "address"},
      {"internalType": "uint256", "name": "positionId", "type": "uint256"}
    ],
    "name": "getLiquidateRepayAmount",
    "outputs": [{"internalType": "uint256", "name": "repayAmount", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "liquidationMarginLevel",
    "outputs": [{"internalType": "uint24", "name": "", "type": "uint24"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const quoterABIJSON = `[
  {
    "inputs": [
      {
        "components": [
          {"internalType": "address", "name": "tokenIn", "type": "address"},
          {"internalType": "address", "name": "tokenOut", "type": "address"},
          {"internalType": "uint256", "name": "amountIn", "type": "uint256"},
          {"internalType": "uint24", "name": "fee", "type": "uint24"},
          {"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
        ],
        "internalType": "struct IQuoterV2.QuoteExactInputSingleParams",
        "name": "params",
        "type": "tuple"
      }
    ],
    "name": "quoteExactInputSingle",
    "outputs": [
      {"internalType": "uint256", "name": "amountOut", "type": "uint256"},
      {"internalType": "uint160", "name": "sqrtPriceX96After", "type": "uint160"},
      {"internalType": "uint32", "name": "initializedTicksCrossed", "type": "uint32"},
      {"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
    ],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

const swapHelperABIJSON = `[
  {
    "inputs": [
      {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"internalType": "address", "name": "tokenIn", "type": "address"},
      {"internalType": "address", "name": "tokenOut", "type": "address"},
      {"internalType": "uint24", "name": "fee", "type": "uint24"},
      {"internalType": "uint256", "name": "payValue", "type": "uint256"},
      {"internalType": "uint256", "name": "swapOutMin", "type": "uint256"},
      {"internalType": "uint256", "name": "returnAmountMin", "type": "uint256"}
    ],
    "name": "likwidToExternal",
    "outputs": [],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "tokenIn", "type": "address"},
      {"internalType": "address", "name": "tokenOut", "type": "address"},
      {"internalType": "uint24", "name": "fee", "type": "uint24"},
      {"internalType": "bytes32", "name": "poolId", "type": "bytes32"},
      {"internalType": "uint256", "name": "payValue", "type": "uint256"},
      {"internalType": "uint256", "name": "swapOutMin", "type": "uint256"},
      {"internalType": "uint256", "name": "returnAmountMin", "type": "uint256"}
    ],
    "name": "externalToLikwid",
    "outputs": [],
    "stateMutability": "payable",
    "type": "function"
  }
]`

var (
	hookManagerABI     abi.ABI
	hookManagerOnce    sync.Once
	hookManagerErr     error
	positionManagerABI abi.ABI
	positionManagerOnce sync.Once
	positionManagerErr error
	marginCheckerABI   abi.ABI
	marginCheckerOnce  sync.Once
	marginCheckerErr   error
	quoterABI          abi.ABI
	quoterOnce         sync.Once
	quoterErr          error
	swapHelperABI      abi.ABI
	swapHelperOnce     sync.Once
	swapHelperErr      error
)

// HookManagerABI returns the parsed margin hook manager ABI.
func HookManagerABI() (abi.ABI, error) {
	hookManagerOnce.Do(func() {
		hookManagerABI, hookManagerErr = abi.JSON(strings.NewReader(hookManagerABIJSON))
	})
	return hookManagerABI, hookManagerErr
}

// PositionManagerABI returns the parsed margin position manager ABI.
func PositionManagerABI() (abi.ABI, error) {
	positionManagerOnce.Do(func() {
		positionManagerABI, positionManagerErr = abi.JSON(strings.NewReader(positionManagerABIJSON))
	})
	return positionManagerABI, positionManagerErr
}

// MarginCheckerABI returns the parsed margin checker ABI.
func MarginCheckerABI() (abi.ABI, error) {
	marginCheckerOnce.Do(func() {
		marginCheckerABI, marginCheckerErr = abi.JSON(strings.NewReader(marginCheckerABIJSON))
	})
	return marginCheckerABI, marginCheckerErr
}

// QuoterABI returns the parsed external AMM quoter ABI.
func QuoterABI() (abi.ABI, error) {
	quoterOnce.Do(func() {
		quoterABI, quoterErr = abi.JSON(strings.NewReader(quoterABIJSON))
	})
	return quoterABI, quoterErr
}

// SwapHelperABI returns the parsed cross-venue swap helper ABI.
func SwapHelperABI() (abi.ABI, error) {
	swapHelperOnce.Do(func() {
		swapHelperABI, swapHelperErr = abi.JSON(strings.NewReader(swapHelperABIJSON))
	})
	return swapHelperABI, swapHelperErr
}
