package liquidator

import (
	"context"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/likwid-fi/likwid-margin-bot/internal/config"
	"github.com/likwid-fi/likwid-margin-bot/internal/contracts"
	"github.com/likwid-fi/likwid-margin-bot/internal/model"
	"github.com/likwid-fi/likwid-margin-bot/internal/store"
)

const (
	testChainID = uint64(97)
	testPool    = "0x00000000000000000000000000000000000000000000000000000000000000aa"
)

var (
	testManager   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testRecipient = common.HexToAddress("0x7777777777777777777777777777777777777777")
	testToken     = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

type fakeChecker struct {
	liquidated []bool
	releases   []*big.Int
	repay      *big.Int
}

func (f *fakeChecker) CheckLiquidateByIds(_ context.Context, _ common.Address, positionIDs []uint64) ([]bool, []*big.Int, error) {
	return f.liquidated[:len(positionIDs)], f.releases[:len(positionIDs)], nil
}

func (f *fakeChecker) GetLiquidateRepayAmount(context.Context, common.Address, uint64) (*big.Int, error) {
	return new(big.Int).Set(f.repay), nil
}

type fakeBurner struct {
	estimate   uint64
	burnParams []contracts.ReleaseParams
	callIDs    []uint64
	callValues []*big.Int
}

func (f *fakeBurner) LiquidateBurn(_ context.Context, params contracts.ReleaseParams) (*types.Transaction, error) {
	f.burnParams = append(f.burnParams, params)
	return types.NewTx(&types.LegacyTx{Nonce: uint64(len(f.burnParams))}), nil
}

func (f *fakeBurner) EstimateLiquidateBurn(context.Context, contracts.ReleaseParams) (uint64, error) {
	return f.estimate, nil
}

func (f *fakeBurner) LiquidateCall(_ context.Context, positionID uint64, payValue *big.Int) (*types.Transaction, error) {
	f.callIDs = append(f.callIDs, positionID)
	f.callValues = append(f.callValues, new(big.Int).Set(payValue))
	return types.NewTx(&types.LegacyTx{Nonce: positionID}), nil
}

func (f *fakeBurner) EstimateLiquidateCall(context.Context, uint64, *big.Int) (uint64, error) {
	return f.estimate, nil
}

type fakeTreasury struct {
	amounts []*big.Int
}

func (f *fakeTreasury) Withdraw(_ context.Context, _ common.Address, _ common.Hash, _ common.Address, amount *big.Int) (*types.Transaction, error) {
	f.amounts = append(f.amounts, new(big.Int).Set(amount))
	return types.NewTx(&types.LegacyTx{Nonce: 99}), nil
}

type fakeBackend struct {
	gasPrice *big.Int
	status   uint64
}

func (f *fakeBackend) GasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeBackend) WaitMined(context.Context, *types.Transaction) (*types.Receipt, error) {
	return &types.Receipt{Status: f.status}, nil
}

func testNetwork(withPrice bool) config.Network {
	network := config.Network{
		ChainID:               testChainID,
		MarginPositionManager: testManager,
	}
	if withPrice {
		network.Currencies = map[common.Address]config.Currency{
			testToken: {Name: "TKN", MinEtherPrice: new(big.Int).Set(weiPerEther)},
		}
	}
	return network
}

func seedLedger(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	ledger := store.NewMemory()

	pool := model.Pool{
		ChainID:   testChainID,
		PoolID:    testPool,
		Currency0: common.Address{}.Hex(),
		Currency1: testToken.Hex(),
	}
	if err := ledger.UpsertPool(ctx, pool); err != nil {
		t.Fatalf("seed pool: %v", err)
	}

	for i, margin := range []int64{100, 200, 300} {
		position := model.Position{
			ChainID:        testChainID,
			ManagerAddress: testManager.Hex(),
			PositionID:     uint64(i + 1),
			PoolID:         testPool,
			OwnerAddress:   "0x3333333333333333333333333333333333333333",
			MarginAmount:   big.NewInt(margin),
			MarginTotal:    big.NewInt(margin / 10),
			BorrowAmount:   big.NewInt(margin * 4),
			MarginForOne:   true,
			MarginToken:    testToken.Hex(),
		}
		if err := ledger.UpsertPosition(ctx, position); err != nil {
			t.Fatalf("seed position: %v", err)
		}
	}
	return ledger
}

func remainingIDs(t *testing.T, ledger *store.Memory) []uint64 {
	t.Helper()
	positions, err := ledger.PositionsInGroup(context.Background(), testChainID, testPool, true)
	if err != nil {
		t.Fatalf("load positions: %v", err)
	}
	ids := make([]uint64, 0, len(positions))
	for _, position := range positions {
		ids = append(ids, position.PositionID)
	}
	return ids
}

func TestLiquidateGroupSuccess(t *testing.T) {
	ledger := seedLedger(t)
	checker := &fakeChecker{
		liquidated: []bool{true, false, true},
		releases:   []*big.Int{big.NewInt(5), big.NewInt(0), big.NewInt(15)},
	}
	burner := &fakeBurner{estimate: 100}
	treasury := &fakeTreasury{}
	backend := &fakeBackend{gasPrice: big.NewInt(1), status: types.ReceiptStatusSuccessful}

	l := New(Config{
		Network:   testNetwork(true),
		Recipient: testRecipient,
		Batched:   true,
	}, ledger, checker, burner, treasury, backend, zap.NewNop())

	if err := l.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	if len(burner.burnParams) != 1 {
		t.Fatalf("expected one batch liquidation, got %d", len(burner.burnParams))
	}
	params := burner.burnParams[0]
	if params.PoolId != [32]byte(common.HexToHash(testPool)) {
		t.Fatalf("pool id mismatch")
	}
	if !params.MarginForOne {
		t.Fatalf("margin side mismatch")
	}
	ids := make([]uint64, len(params.PositionIds))
	for i, id := range params.PositionIds {
		ids[i] = id.Uint64()
	}
	if !reflect.DeepEqual(ids, []uint64{1, 3}) {
		t.Fatalf("liquidated ids mismatch: %v", ids)
	}

	// rows removed only after the confirmed receipt
	if got := remainingIDs(t, ledger); !reflect.DeepEqual(got, []uint64{2}) {
		t.Fatalf("remaining positions mismatch: %v", got)
	}

	// (100+10-5)+(300+30-15) withdrawn in margin token units
	if len(treasury.amounts) != 1 || treasury.amounts[0].Cmp(big.NewInt(420)) != 0 {
		t.Fatalf("withdrawal mismatch: %v", treasury.amounts)
	}
}

func TestLiquidateGroupRevertedKeepsPositions(t *testing.T) {
	ledger := seedLedger(t)
	checker := &fakeChecker{
		liquidated: []bool{true, false, true},
		releases:   []*big.Int{big.NewInt(5), big.NewInt(0), big.NewInt(15)},
	}
	burner := &fakeBurner{estimate: 100}
	treasury := &fakeTreasury{}
	backend := &fakeBackend{gasPrice: big.NewInt(1), status: types.ReceiptStatusFailed}

	l := New(Config{
		Network:   testNetwork(true),
		Recipient: testRecipient,
		Batched:   true,
	}, ledger, checker, burner, treasury, backend, zap.NewNop())

	if err := l.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	if got := remainingIDs(t, ledger); !reflect.DeepEqual(got, []uint64{1, 2, 3}) {
		t.Fatalf("reverted liquidation must keep positions tracked: %v", got)
	}
	if len(treasury.amounts) != 0 {
		t.Fatalf("no withdrawal after a revert: %v", treasury.amounts)
	}
}

func TestLiquidateGroupGasGate(t *testing.T) {
	ledger := seedLedger(t)
	checker := &fakeChecker{
		liquidated: []bool{true, false, true},
		releases:   []*big.Int{big.NewInt(5), big.NewInt(0), big.NewInt(15)},
	}
	// obtainable is 420 gas-token units, cost is 1000
	burner := &fakeBurner{estimate: 1000}
	backend := &fakeBackend{gasPrice: big.NewInt(1), status: types.ReceiptStatusSuccessful}

	l := New(Config{
		Network:   testNetwork(true),
		Recipient: testRecipient,
		Batched:   true,
	}, ledger, checker, burner, &fakeTreasury{}, backend, zap.NewNop())

	if err := l.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	if len(burner.burnParams) != 0 {
		t.Fatalf("unprofitable liquidation must not be submitted")
	}
	if got := remainingIDs(t, ledger); !reflect.DeepEqual(got, []uint64{1, 2, 3}) {
		t.Fatalf("positions mismatch: %v", got)
	}
}

func TestLiquidateGroupSkipsWithoutFloorPrice(t *testing.T) {
	ledger := seedLedger(t)
	checker := &fakeChecker{
		liquidated: []bool{true, true, true},
		releases:   []*big.Int{big.NewInt(0), big.NewInt(0), big.NewInt(0)},
	}
	burner := &fakeBurner{estimate: 1}
	backend := &fakeBackend{gasPrice: big.NewInt(1), status: types.ReceiptStatusSuccessful}

	l := New(Config{
		Network:   testNetwork(false),
		Recipient: testRecipient,
		Batched:   true,
	}, ledger, checker, burner, &fakeTreasury{}, backend, zap.NewNop())

	if err := l.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	if len(burner.burnParams) != 0 {
		t.Fatalf("unpriceable proceeds must not be liquidated")
	}
}

func TestLiquidateSinglePaysNativeBorrow(t *testing.T) {
	ledger := seedLedger(t)
	checker := &fakeChecker{
		liquidated: []bool{true, false, false},
		releases:   []*big.Int{big.NewInt(5), big.NewInt(0), big.NewInt(0)},
		repay:      big.NewInt(100),
	}
	burner := &fakeBurner{estimate: 10}
	treasury := &fakeTreasury{}
	backend := &fakeBackend{gasPrice: big.NewInt(1), status: types.ReceiptStatusSuccessful}

	l := New(Config{
		Network:   testNetwork(true),
		Recipient: testRecipient,
		Batched:   false,
	}, ledger, checker, burner, treasury, backend, zap.NewNop())

	if err := l.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	if !reflect.DeepEqual(burner.callIDs, []uint64{1}) {
		t.Fatalf("call ids mismatch: %v", burner.callIDs)
	}
	// the borrow side is currency0, the zero address, so the padded
	// repay (100 * 101 / 100) rides along as transaction value
	if burner.callValues[0].Cmp(big.NewInt(101)) != 0 {
		t.Fatalf("pay value mismatch: %s", burner.callValues[0])
	}
	if got := remainingIDs(t, ledger); !reflect.DeepEqual(got, []uint64{2, 3}) {
		t.Fatalf("remaining positions mismatch: %v", got)
	}
}
