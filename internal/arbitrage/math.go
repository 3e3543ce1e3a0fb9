package arbitrage

import "math/big"

var oneMillion = big.NewInt(1_000_000)

const (
	// costBufferPPM is the fixed 1.2% safety buffer added on top of the
	// raw gas cost ratio.
	costBufferPPM = 12_000
	// slippagePPM is the 0.3% haircut applied to the first swap leg's
	// quoted output.
	slippagePPM = 3_000
)

// Direction is the arbitrage execution decision.
type Direction int

const (
	NoTrade Direction = iota
	// InternalToExternal buys on the internal pool, sells on the AMM.
	InternalToExternal
	// ExternalToInternal buys on the AMM, sells on the internal pool.
	ExternalToInternal
)

func (d Direction) String() string {
	switch d {
	case InternalToExternal:
		return "internal_to_external"
	case ExternalToInternal:
		return "external_to_internal"
	default:
		return "no_trade"
	}
}

// CostPPM expresses the total gas cost as millionths of the probe amount,
// plus the fixed safety buffer. Multiply before divide, truncating.
func CostPPM(gasCost, probeAmount *big.Int) *big.Int {
	ppm := new(big.Int).Mul(gasCost, oneMillion)
	ppm.Quo(ppm, probeAmount)
	return ppm.Add(ppm, big.NewInt(costBufferPPM))
}

// CutCost discounts an output amount by the cost ratio. A ratio at or
// above 100% zeroes the amount.
func CutCost(amount, costPPM *big.Int) *big.Int {
	remaining := new(big.Int).Sub(oneMillion, costPPM)
	if remaining.Sign() <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, remaining)
	return out.Quo(out, oneMillion)
}

// SlippageMin is the minimum acceptable output for the first swap leg.
func SlippageMin(amount *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(1_000_000-slippagePPM))
	return out.Quo(out, oneMillion)
}

// SendValue is the native amount to attach: the probe shortfall not
// already covered by the helper's float.
func SendValue(probeAmount, helperBalance *big.Int) *big.Int {
	if probeAmount.Cmp(helperBalance) > 0 {
		return new(big.Int).Sub(probeAmount, helperBalance)
	}
	return new(big.Int)
}

// Decide picks the execution direction: the richer venue's output must
// still beat the other venue after the cost discount, otherwise no trade.
func Decide(internalOut, externalOut, costPPM *big.Int) Direction {
	if internalOut.Cmp(externalOut) > 0 {
		if CutCost(internalOut, costPPM).Cmp(externalOut) > 0 {
			return InternalToExternal
		}
		return NoTrade
	}
	if CutCost(externalOut, costPPM).Cmp(internalOut) >= 0 {
		return ExternalToInternal
	}
	return NoTrade
}
