package liquidator

import (
	"math/big"
	"reflect"
	"testing"

	"github.com/likwid-fi/likwid-margin-bot/internal/model"
)

func position(id uint64, margin, total int64) model.Position {
	return model.Position{
		PositionID:   id,
		MarginAmount: big.NewInt(margin),
		MarginTotal:  big.NewInt(total),
		BorrowAmount: big.NewInt(0),
	}
}

func TestSelectLiquidatable(t *testing.T) {
	positions := []model.Position{
		position(1, 100, 10),
		position(2, 200, 20),
		position(3, 300, 30),
	}
	liquidated := []bool{true, false, true}
	releases := []*big.Int{big.NewInt(5), big.NewInt(0), big.NewInt(15)}

	ids, obtainable := SelectLiquidatable(positions, liquidated, releases)

	if !reflect.DeepEqual(ids, []uint64{1, 3}) {
		t.Fatalf("ids mismatch: %v", ids)
	}
	// (100+10-5) + (300+30-15)
	if obtainable.Cmp(big.NewInt(420)) != 0 {
		t.Fatalf("obtainable mismatch: %s", obtainable)
	}
}

func TestSelectLiquidatableClampsNegativeValue(t *testing.T) {
	positions := []model.Position{position(1, 10, 5)}
	liquidated := []bool{true}
	releases := []*big.Int{big.NewInt(100)}

	ids, obtainable := SelectLiquidatable(positions, liquidated, releases)

	if !reflect.DeepEqual(ids, []uint64{1}) {
		t.Fatalf("ids mismatch: %v", ids)
	}
	if obtainable.Sign() != 0 {
		t.Fatalf("underwater position must contribute zero, got %s", obtainable)
	}
}

func TestToGasToken(t *testing.T) {
	price := new(big.Int).Mul(big.NewInt(2), weiPerEther)
	if got := ToGasToken(price, big.NewInt(10)); got.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("conversion mismatch: %s", got)
	}

	// truncates toward zero after the multiply
	half := new(big.Int).Div(weiPerEther, big.NewInt(2))
	if got := ToGasToken(half, big.NewInt(3)); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("truncation mismatch: %s", got)
	}
}

func TestMarginLevelValue(t *testing.T) {
	if got := MarginLevelValue(big.NewInt(1000), big.NewInt(1_100_000)); got.Cmp(big.NewInt(1100)) != 0 {
		t.Fatalf("margin level value mismatch: %s", got)
	}
}

func TestGasCost(t *testing.T) {
	if got := GasCost(21000, big.NewInt(5)); got.Cmp(big.NewInt(105000)) != 0 {
		t.Fatalf("gas cost mismatch: %s", got)
	}
}
