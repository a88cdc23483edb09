package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaller answers eth_call by method selector
type fakeCaller struct {
	responses map[string][]byte
	errs      map[string]error
	balance   *big.Int
	calls     []ethereum.CallMsg
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{responses: map[string][]byte{}, errs: map[string]error{}}
}

func (f *fakeCaller) respond(t *testing.T, contract abi.ABI, method string, values ...interface{}) {
	t.Helper()
	out, err := contract.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	f.responses[method] = out
}

func (f *fakeCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls = append(f.calls, call)
	for _, contract := range []abi.ABI{erc20ABI, swapABI} {
		for name, m := range contract.Methods {
			if bytes.Equal(call.Data[:4], m.ID) {
				if err := f.errs[name]; err != nil {
					return nil, err
				}
				return f.responses[name], nil
			}
		}
	}
	return nil, errors.New("unknown selector")
}

func (f *fakeCaller) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	if f.balance == nil {
		return nil, errors.New("dial tcp: connection refused")
	}
	return f.balance, nil
}

var (
	usdc   = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	idrx   = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	router = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestReaderDecimalsAndBalances(t *testing.T) {
	caller := newFakeCaller()
	caller.respond(t, erc20ABI, "decimals", uint8(6))
	caller.respond(t, erc20ABI, "balanceOf", big.NewInt(5_000_000))
	caller.respond(t, erc20ABI, "allowance", big.NewInt(42))
	caller.balance = big.NewInt(1e18)

	r := NewEVMReader(caller, router, nil)
	ctx := context.Background()

	decimals, err := r.Decimals(ctx, usdc)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), decimals)

	balance, err := r.Balance(ctx, usdc, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), balance.Int64())

	allowance, err := r.Allowance(ctx, usdc, owner, router)
	require.NoError(t, err)
	assert.Equal(t, int64(42), allowance.Int64())

	native, err := r.NativeBalance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", native.String())

	require.Len(t, caller.calls, 3)
	assert.Equal(t, usdc, *caller.calls[2].To)
}

func TestReaderSwapEstimate(t *testing.T) {
	caller := newFakeCaller()
	caller.respond(t, swapABI, "getEstimatedOutput", big.NewInt(1_010_000), big.NewInt(10_000), big.NewInt(1_000_000))

	r := NewEVMReader(caller, router, nil)
	est, err := r.SwapEstimate(context.Background(), usdc, idrx, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, int64(1_010_000), est.EstimatedOut.Int64())
	assert.Equal(t, int64(10_000), est.Fee.Int64())
	assert.Equal(t, int64(1_000_000), est.NetOut.Int64())
	assert.Equal(t, router, *caller.calls[0].To)
}

func TestReaderErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("estimate revert", func(t *testing.T) {
		caller := newFakeCaller()
		caller.errs["getEstimatedOutput"] = rpcError{code: 3, msg: "execution reverted: no liquidity"}
		_, err := NewEVMReader(caller, router, nil).SwapEstimate(ctx, usdc, idrx, big.NewInt(1))
		assert.ErrorIs(t, err, ErrEstimateFailed)
	})

	t.Run("erc20 revert", func(t *testing.T) {
		caller := newFakeCaller()
		caller.errs["allowance"] = rpcError{code: 3, msg: "execution reverted"}
		_, err := NewEVMReader(caller, router, nil).Allowance(ctx, usdc, owner, router)
		assert.ErrorIs(t, err, ErrReadReverted)
	})

	t.Run("transport", func(t *testing.T) {
		caller := newFakeCaller()
		caller.errs["balanceOf"] = context.DeadlineExceeded
		_, err := NewEVMReader(caller, router, nil).Balance(ctx, usdc, owner)
		assert.ErrorIs(t, err, ErrChainUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("empty data", func(t *testing.T) {
		caller := newFakeCaller()
		_, err := NewEVMReader(caller, router, nil).Decimals(ctx, usdc)
		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("native balance", func(t *testing.T) {
		_, err := NewEVMReader(newFakeCaller(), router, nil).NativeBalance(ctx, owner)
		assert.ErrorIs(t, err, ErrChainUnavailable)
	})
}
