package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Caller is the read side of an Ethereum node. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Reader performs read-only chain queries against the latest state
type Reader interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	Balance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	SwapEstimate(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*SwapEstimate, error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
}

// SwapEstimate is the swap contract's quote, all in output-token smallest units
type SwapEstimate struct {
	EstimatedOut *big.Int
	Fee          *big.Int
	NetOut       *big.Int
}

// EVMReader implements Reader with eth_call
type EVMReader struct {
	caller       Caller
	swapContract common.Address
	logger       *zap.Logger
}

// NewEVMReader creates a reader bound to the given swap contract
func NewEVMReader(caller Caller, swapContract common.Address, logger *zap.Logger) *EVMReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EVMReader{
		caller:       caller,
		swapContract: swapContract,
		logger:       logger,
	}
}

// SwapContract returns the address the reader estimates against
func (r *EVMReader) SwapContract() common.Address {
	return r.swapContract
}

// Decimals reads the token's decimals()
func (r *EVMReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := r.call(ctx, erc20ABI, token, ErrReadReverted, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: decimals returned %T", ErrDecode, out[0])
	}
	return decimals, nil
}

// Balance reads balanceOf(owner) on the token
func (r *EVMReader) Balance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := r.call(ctx, erc20ABI, token, ErrReadReverted, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return bigOutput(out, 0, "balanceOf")
}

// Allowance reads allowance(owner, spender) on the token
func (r *EVMReader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := r.call(ctx, erc20ABI, token, ErrReadReverted, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return bigOutput(out, 0, "allowance")
}

// SwapEstimate calls getEstimatedOutput on the swap contract
func (r *EVMReader) SwapEstimate(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*SwapEstimate, error) {
	out, err := r.call(ctx, swapABI, r.swapContract, ErrEstimateFailed, "getEstimatedOutput", tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}

	estimated, err := bigOutput(out, 0, "getEstimatedOutput")
	if err != nil {
		return nil, err
	}
	fee, err := bigOutput(out, 1, "getEstimatedOutput")
	if err != nil {
		return nil, err
	}
	net, err := bigOutput(out, 2, "getEstimatedOutput")
	if err != nil {
		return nil, err
	}

	r.logger.Debug("swap estimate",
		zap.String("tokenIn", tokenIn.Hex()),
		zap.String("tokenOut", tokenOut.Hex()),
		zap.String("amountIn", amountIn.String()),
		zap.String("netOut", net.String()))

	return &SwapEstimate{EstimatedOut: estimated, Fee: fee, NetOut: net}, nil
}

// NativeBalance returns the owner's balance in wei
func (r *EVMReader) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	balance, err := r.caller.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: balance of %s: %w", ErrChainUnavailable, owner.Hex(), err)
	}
	return balance, nil
}

func (r *EVMReader) call(ctx context.Context, contract abi.ABI, to common.Address, onRevert error, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	raw, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%w: %s on %s: %w", onRevert, method, to.Hex(), err)
		}
		return nil, fmt.Errorf("%w: %s on %s: %w", ErrChainUnavailable, method, to.Hex(), err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s on %s returned no data", ErrDecode, method, to.Hex())
	}

	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s on %s: %w", ErrDecode, method, to.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s on %s returned no values", ErrDecode, method, to.Hex())
	}
	return out, nil
}

func bigOutput(out []interface{}, i int, method string) (*big.Int, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("%w: %s returned %d values", ErrDecode, method, len(out))
	}
	v, ok := out[i].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s value %d is %T", ErrDecode, method, i, out[i])
	}
	return v, nil
}
