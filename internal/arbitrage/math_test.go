package arbitrage

import (
	"math/big"
	"testing"
)

func TestCostPPM(t *testing.T) {
	// 5 * 1e6 / 1000 + 12000
	if got := CostPPM(big.NewInt(5), big.NewInt(1000)); got.Cmp(big.NewInt(17000)) != 0 {
		t.Fatalf("cost ppm mismatch: %s", got)
	}
	// zero gas cost still carries the fixed buffer
	if got := CostPPM(big.NewInt(0), big.NewInt(1000)); got.Cmp(big.NewInt(12000)) != 0 {
		t.Fatalf("buffer mismatch: %s", got)
	}
}

func TestCutCost(t *testing.T) {
	if got := CutCost(big.NewInt(1_000_000), big.NewInt(17000)); got.Cmp(big.NewInt(983_000)) != 0 {
		t.Fatalf("cut cost mismatch: %s", got)
	}
	// a ratio at or above 100% zeroes the amount
	if got := CutCost(big.NewInt(500), big.NewInt(1_000_000)); got.Sign() != 0 {
		t.Fatalf("expected zero, got %s", got)
	}
	if got := CutCost(big.NewInt(500), big.NewInt(2_000_000)); got.Sign() != 0 {
		t.Fatalf("expected zero, got %s", got)
	}
}

func TestSlippageMin(t *testing.T) {
	if got := SlippageMin(big.NewInt(1000)); got.Cmp(big.NewInt(997)) != 0 {
		t.Fatalf("slippage min mismatch: %s", got)
	}
}

func TestSendValue(t *testing.T) {
	if got := SendValue(big.NewInt(100), big.NewInt(30)); got.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("shortfall mismatch: %s", got)
	}
	if got := SendValue(big.NewInt(100), big.NewInt(200)); got.Sign() != 0 {
		t.Fatalf("covered probe must send zero, got %s", got)
	}
}

func TestDecide(t *testing.T) {
	costPPM := big.NewInt(12000)

	cases := []struct {
		name     string
		internal int64
		external int64
		want     Direction
	}{
		{"internal richer and covers cost", 120, 100, InternalToExternal},
		{"internal richer but cost eats the edge", 101, 100, NoTrade},
		{"external richer and covers cost", 100, 120, ExternalToInternal},
		{"external richer but cost eats the edge", 100, 101, NoTrade},
		{"equal quotes", 100, 100, NoTrade},
	}

	for _, tc := range cases {
		got := Decide(big.NewInt(tc.internal), big.NewInt(tc.external), costPPM)
		if got != tc.want {
			t.Fatalf("%s: %s != %s", tc.name, got, tc.want)
		}
	}
}
