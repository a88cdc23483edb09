package tokens

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustbridge/pkg/chain"
	"trustbridge/pkg/types"
)

var (
	usdcAddr = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	idrxAddr = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	oldAddr  = common.HexToAddress("0x0000000000000000000000000000000000000b22")
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type fakeSource struct {
	calls atomic.Int32
	list  []types.Token
	err   error
}

func (f *fakeSource) Tokens(context.Context) ([]types.Token, error) {
	f.calls.Add(1)
	return f.list, f.err
}

type fakeReader struct {
	chain.Reader
	decimals     map[common.Address]uint8
	balances     map[common.Address]*big.Int
	decimalReads atomic.Int32
}

func (f *fakeReader) Decimals(_ context.Context, token common.Address) (uint8, error) {
	f.decimalReads.Add(1)
	d, ok := f.decimals[token]
	if !ok {
		return 0, chain.ErrReadReverted
	}
	return d, nil
}

func (f *fakeReader) Balance(_ context.Context, token, _ common.Address) (*big.Int, error) {
	b, ok := f.balances[token]
	if !ok {
		return nil, chain.ErrChainUnavailable
	}
	return b, nil
}

func registryList() []types.Token {
	return []types.Token{
		{Symbol: "usdc", ContractAddress: usdcAddr, Decimals: 6, IsActive: true},
		{Symbol: "IDRX", ContractAddress: idrxAddr, IsActive: true},
		{Symbol: "OLD", ContractAddress: oldAddr, Decimals: 18, IsActive: false},
	}
}

func TestLookupAndAliases(t *testing.T) {
	src := &fakeSource{list: registryList()}
	reader := &fakeReader{decimals: map[common.Address]uint8{idrxAddr: 2}}
	r := NewRegistry(src, reader, map[string]string{"idr": "idrx"}, nil)
	ctx := t.Context()

	usdc, err := r.Lookup(ctx, "USDC")
	require.NoError(t, err)
	assert.Equal(t, usdcAddr, usdc.ContractAddress)

	idr, err := r.ForCurrency(ctx, "IDR")
	require.NoError(t, err)
	assert.Equal(t, "IDRX", idr.Symbol)
	assert.Equal(t, uint8(2), idr.Decimals)

	direct, err := r.ForCurrency(ctx, "usdc")
	require.NoError(t, err)
	assert.Equal(t, "USDC", direct.Symbol)

	_, err = r.Lookup(ctx, "OLD")
	assert.ErrorIs(t, err, ErrUnknownToken)

	_, err = r.ForCurrency(ctx, "EUR")
	assert.ErrorIs(t, err, ErrUnknownToken)

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestLoadFailure(t *testing.T) {
	r := NewRegistry(&fakeSource{err: errors.New("backend down")}, nil, nil, nil)
	_, err := r.Lookup(t.Context(), "USDC")
	assert.ErrorContains(t, err, "backend down")
}

func TestBalancesRecordsPerTokenErrors(t *testing.T) {
	src := &fakeSource{list: registryList()}
	reader := &fakeReader{
		decimals: map[common.Address]uint8{idrxAddr: 2},
		balances: map[common.Address]*big.Int{usdcAddr: big.NewInt(12_500_000)},
	}
	r := NewRegistry(src, reader, nil, nil)

	balances, err := r.Balances(t.Context(), owner)
	require.NoError(t, err)
	require.Len(t, balances, 2)

	// sorted by symbol
	assert.Equal(t, "IDRX", balances[0].Token.Symbol)
	assert.ErrorIs(t, balances[0].Err, chain.ErrChainUnavailable)
	assert.Equal(t, int64(0), balances[0].Balance.Int64())

	assert.Equal(t, "USDC", balances[1].Token.Symbol)
	assert.NoError(t, balances[1].Err)
	assert.Equal(t, "12.5", balances[1].Formatted)
}

func TestBalancesToleratesFailedDecimalsRead(t *testing.T) {
	src := &fakeSource{list: registryList()}
	reader := &fakeReader{
		decimals: map[common.Address]uint8{},
		balances: map[common.Address]*big.Int{
			usdcAddr: big.NewInt(12_500_000),
			idrxAddr: big.NewInt(1_000),
		},
	}
	r := NewRegistry(src, reader, nil, nil)

	balances, err := r.Balances(t.Context(), owner)
	require.NoError(t, err)
	require.Len(t, balances, 2)

	assert.Equal(t, "IDRX", balances[0].Token.Symbol)
	assert.ErrorIs(t, balances[0].Err, chain.ErrReadReverted)
	assert.Equal(t, "0", balances[0].Formatted)
	assert.Equal(t, int64(0), balances[0].Balance.Int64())

	assert.NoError(t, balances[1].Err)
	assert.Equal(t, "12.5", balances[1].Formatted)

	_, err = r.All(t.Context())
	assert.ErrorIs(t, err, chain.ErrReadReverted)
}

func TestDecimalsAreReadOnceAndCached(t *testing.T) {
	src := &fakeSource{list: registryList()}
	reader := &fakeReader{decimals: map[common.Address]uint8{idrxAddr: 2}}
	r := NewRegistry(src, reader, nil, nil)

	all, err := r.All(t.Context())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint8(2), all[0].Decimals)
	assert.Equal(t, uint8(6), all[1].Decimals)

	idrx, err := r.Lookup(t.Context(), "idrx")
	require.NoError(t, err)
	assert.Equal(t, uint8(2), idrx.Decimals)

	// only IDRX lacked decimals, and the first read is cached
	assert.Equal(t, int32(1), reader.decimalReads.Load())
}
