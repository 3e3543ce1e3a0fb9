package arbitrage

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/likwid-fi/likwid-margin-bot/internal/config"
	"github.com/likwid-fi/likwid-margin-bot/internal/contracts"
)

var (
	testPoolID  = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000aa")
	testToken   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	testWrapped = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

type fakeInternal struct {
	forward *big.Int
	reverse []*big.Int
	calls   int
}

func (f *fakeInternal) GetAmountOut(_ context.Context, _ common.Hash, zeroForOne bool, _ *big.Int) (*big.Int, error) {
	if zeroForOne {
		return new(big.Int).Set(f.forward), nil
	}
	out := f.reverse[f.calls]
	if f.calls < len(f.reverse)-1 {
		f.calls++
	}
	return new(big.Int).Set(out), nil
}

type fakeExternal struct {
	forward contracts.Quote
	reverse []contracts.Quote
	calls   int
}

func (f *fakeExternal) QuoteExactInputSingle(_ context.Context, tokenIn, _ common.Address, _, _ *big.Int) (contracts.Quote, error) {
	if tokenIn == testWrapped {
		return f.forward, nil
	}
	quote := f.reverse[f.calls]
	if f.calls < len(f.reverse)-1 {
		f.calls++
	}
	return quote, nil
}

type swapCall struct {
	payValue   *big.Int
	swapOutMin *big.Int
	returnMin  *big.Int
	sendValue  *big.Int
}

type fakeHelper struct {
	balance    *big.Int
	toExternal []swapCall
	toInternal []swapCall
}

func (f *fakeHelper) Balance(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeHelper) LikwidToExternal(_ context.Context, _ common.Hash, _, _ common.Address, _, payValue, swapOutMin, returnAmountMin, sendValue *big.Int) (*types.Transaction, error) {
	f.toExternal = append(f.toExternal, swapCall{payValue, swapOutMin, returnAmountMin, sendValue})
	return types.NewTx(&types.LegacyTx{Nonce: 1}), nil
}

func (f *fakeHelper) ExternalToLikwid(_ context.Context, _, _ common.Address, _ *big.Int, _ common.Hash, payValue, swapOutMin, returnAmountMin, sendValue *big.Int) (*types.Transaction, error) {
	f.toInternal = append(f.toInternal, swapCall{payValue, swapOutMin, returnAmountMin, sendValue})
	return types.NewTx(&types.LegacyTx{Nonce: 2}), nil
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

func testTask() config.ArbTask {
	return config.ArbTask{
		PoolID:      testPoolID,
		Token:       testToken,
		Fee:         big.NewInt(3000),
		ProbeAmount: big.NewInt(100),
	}
}

func newTestEngine(internal *fakeInternal, external *fakeExternal, helper *fakeHelper, backend *fakeBackend) *Engine {
	return New(Config{
		Tasks:         []config.ArbTask{testTask()},
		WrappedNative: testWrapped,
		Cooldown:      time.Millisecond,
	}, internal, external, helper, backend, zap.NewNop())
}

func TestRunTaskInternalToExternal(t *testing.T) {
	internal := &fakeInternal{forward: big.NewInt(120)}
	external := &fakeExternal{
		forward: contracts.Quote{AmountOut: big.NewInt(100), GasEstimate: big.NewInt(0)},
		reverse: []contracts.Quote{
			{AmountOut: big.NewInt(150), GasEstimate: big.NewInt(0)},
			{AmountOut: big.NewInt(150), GasEstimate: big.NewInt(0)},
		},
	}
	helper := &fakeHelper{balance: big.NewInt(30)}
	backend := &fakeBackend{gasPrice: big.NewInt(0), status: types.ReceiptStatusSuccessful}

	e := newTestEngine(internal, external, helper, backend)
	if err := e.RunTask(context.Background(), testTask()); err != nil {
		t.Fatalf("run task: %v", err)
	}

	if len(helper.toExternal) != 1 {
		t.Fatalf("expected one internal-to-external swap, got %d", len(helper.toExternal))
	}
	call := helper.toExternal[0]
	if call.payValue.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("pay value mismatch: %s", call.payValue)
	}
	// 120 after the 0.3% slippage haircut
	if call.swapOutMin.Cmp(big.NewInt(119)) != 0 {
		t.Fatalf("swap out min mismatch: %s", call.swapOutMin)
	}
	// probe plus zero gas cost
	if call.returnMin.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("return min mismatch: %s", call.returnMin)
	}
	// probe shortfall not covered by the helper float
	if call.sendValue.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("send value mismatch: %s", call.sendValue)
	}
	if len(helper.toInternal) != 0 {
		t.Fatalf("unexpected external-to-internal swap")
	}
}

func TestRunTaskExternalToInternal(t *testing.T) {
	internal := &fakeInternal{
		forward: big.NewInt(100),
		reverse: []*big.Int{big.NewInt(150), big.NewInt(150)},
	}
	external := &fakeExternal{
		forward: contracts.Quote{AmountOut: big.NewInt(120), GasEstimate: big.NewInt(0)},
	}
	helper := &fakeHelper{balance: big.NewInt(1000)}
	backend := &fakeBackend{gasPrice: big.NewInt(0), status: types.ReceiptStatusSuccessful}

	e := newTestEngine(internal, external, helper, backend)
	if err := e.RunTask(context.Background(), testTask()); err != nil {
		t.Fatalf("run task: %v", err)
	}

	if len(helper.toInternal) != 1 {
		t.Fatalf("expected one external-to-internal swap, got %d", len(helper.toInternal))
	}
	call := helper.toInternal[0]
	if call.swapOutMin.Cmp(big.NewInt(119)) != 0 {
		t.Fatalf("swap out min mismatch: %s", call.swapOutMin)
	}
	if call.sendValue.Sign() != 0 {
		t.Fatalf("covered probe must send zero, got %s", call.sendValue)
	}
	if len(helper.toExternal) != 0 {
		t.Fatalf("unexpected internal-to-external swap")
	}
}

func TestRunTaskStaleQuoteAborts(t *testing.T) {
	internal := &fakeInternal{forward: big.NewInt(120)}
	external := &fakeExternal{
		forward: contracts.Quote{AmountOut: big.NewInt(100), GasEstimate: big.NewInt(0)},
		reverse: []contracts.Quote{
			// profitable at first glance, decayed after the cooldown
			{AmountOut: big.NewInt(150), GasEstimate: big.NewInt(0)},
			{AmountOut: big.NewInt(50), GasEstimate: big.NewInt(0)},
		},
	}
	helper := &fakeHelper{balance: big.NewInt(1000)}
	backend := &fakeBackend{gasPrice: big.NewInt(0), status: types.ReceiptStatusSuccessful}

	e := newTestEngine(internal, external, helper, backend)
	if err := e.RunTask(context.Background(), testTask()); err != nil {
		t.Fatalf("run task: %v", err)
	}

	if len(helper.toExternal) != 0 || len(helper.toInternal) != 0 {
		t.Fatalf("stale quote must not trade")
	}
}

func TestRunTaskReverseShortfallAborts(t *testing.T) {
	internal := &fakeInternal{forward: big.NewInt(120)}
	external := &fakeExternal{
		forward: contracts.Quote{AmountOut: big.NewInt(100), GasEstimate: big.NewInt(0)},
		reverse: []contracts.Quote{
			{AmountOut: big.NewInt(100), GasEstimate: big.NewInt(0)},
		},
	}
	helper := &fakeHelper{balance: big.NewInt(1000)}
	backend := &fakeBackend{gasPrice: big.NewInt(0), status: types.ReceiptStatusSuccessful}

	e := newTestEngine(internal, external, helper, backend)
	if err := e.RunTask(context.Background(), testTask()); err != nil {
		t.Fatalf("run task: %v", err)
	}

	// a reverse leg at exactly returnMin is not worth the round trip
	if len(helper.toExternal) != 0 || len(helper.toInternal) != 0 {
		t.Fatalf("shortfall must not trade")
	}
}

func TestRunTaskNoTradeOnEqualQuotes(t *testing.T) {
	internal := &fakeInternal{forward: big.NewInt(100)}
	external := &fakeExternal{
		forward: contracts.Quote{AmountOut: big.NewInt(100), GasEstimate: big.NewInt(0)},
	}
	helper := &fakeHelper{balance: big.NewInt(1000)}
	backend := &fakeBackend{gasPrice: big.NewInt(0), status: types.ReceiptStatusSuccessful}

	e := newTestEngine(internal, external, helper, backend)
	if err := e.RunTask(context.Background(), testTask()); err != nil {
		t.Fatalf("run task: %v", err)
	}

	if len(helper.toExternal) != 0 || len(helper.toInternal) != 0 {
		t.Fatalf("equal quotes must not trade")
	}
}
