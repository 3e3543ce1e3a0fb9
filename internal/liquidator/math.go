package liquidator

import (
	"math/big"

	"github.com/likwid-fi/likwid-margin-bot/internal/model"
)

var (
	weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	oneMillion  = big.NewInt(1_000_000)
)

// SelectLiquidatable filters a position group by the checker's verdict and
// sums the obtainable value: for each liquidatable position,
// max(0, marginAmount + marginTotal - releaseAmount).
func SelectLiquidatable(positions []model.Position, liquidated []bool, releases []*big.Int) ([]uint64, *big.Int) {
	ids := make([]uint64, 0, len(positions))
	obtainable := new(big.Int)
	for i, position := range positions {
		if i >= len(liquidated) || !liquidated[i] {
			continue
		}
		ids = append(ids, position.PositionID)

		value := new(big.Int).Add(position.MarginAmount, position.MarginTotal)
		if i < len(releases) && releases[i] != nil {
			value.Sub(value, releases[i])
		}
		if value.Sign() > 0 {
			obtainable.Add(obtainable, value)
		}
	}
	return ids, obtainable
}

// ToGasToken converts a margin-token value into the native gas token using
// the configured floor price. Evaluation order is fixed: multiply first,
// then divide by 1e18, truncating toward zero.
func ToGasToken(minEtherPrice, value *big.Int) *big.Int {
	out := new(big.Int).Mul(minEtherPrice, value)
	return out.Quo(out, weiPerEther)
}

// MarginLevelValue is the simpler proceeds estimate: marginAmount scaled by
// the protocol liquidation margin level, expressed in millionths.
func MarginLevelValue(marginAmount, marginLevel *big.Int) *big.Int {
	out := new(big.Int).Mul(marginAmount, marginLevel)
	return out.Quo(out, oneMillion)
}

// GasCost prices a gas estimate at the current gas price.
func GasCost(gasLimit uint64, gasPrice *big.Int) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), gasPrice)
}
