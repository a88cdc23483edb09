package swap

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"

	"trustbridge/pkg/chain"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(uint8), args.Error(1)
}

func (m *mockReader) Balance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	args := m.Called(ctx, token, owner)
	v, _ := args.Get(0).(*big.Int)
	return v, args.Error(1)
}

func (m *mockReader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	args := m.Called(ctx, token, owner, spender)
	v, _ := args.Get(0).(*big.Int)
	return v, args.Error(1)
}

func (m *mockReader) SwapEstimate(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*chain.SwapEstimate, error) {
	args := m.Called(ctx, tokenIn, tokenOut, amountIn)
	v, _ := args.Get(0).(*chain.SwapEstimate)
	return v, args.Error(1)
}

func (m *mockReader) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	args := m.Called(ctx, owner)
	v, _ := args.Get(0).(*big.Int)
	return v, args.Error(1)
}

type mockSigner struct {
	mock.Mock
}

func (m *mockSigner) Account() (common.Address, error) {
	args := m.Called()
	return args.Get(0).(common.Address), args.Error(1)
}

func (m *mockSigner) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	args := m.Called(ctx, token, spender, amount)
	return args.Get(0).(common.Hash), args.Error(1)
}

func (m *mockSigner) Swap(ctx context.Context, call chain.SwapCall) (common.Hash, error) {
	args := m.Called(ctx, call)
	return args.Get(0).(common.Hash), args.Error(1)
}

func (m *mockSigner) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, hash)
	v, _ := args.Get(0).(*types.Receipt)
	return v, args.Error(1)
}
