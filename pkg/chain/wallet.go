package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Backend is the write side of an Ethereum node. *ethclient.Client satisfies it.
type Backend interface {
	ReceiptSource
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// ReceiptSource looks up transaction receipts
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Signer is what the swap flow needs from a wallet
type Signer interface {
	Account() (common.Address, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
	Swap(ctx context.Context, call SwapCall) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// TxKind identifies what a signature request is for
type TxKind string

const (
	TxApprove TxKind = "approve"
	TxSwap    TxKind = "swap"
)

// TxRequest describes a transaction awaiting the user's signature
type TxRequest struct {
	Kind    TxKind
	To      common.Address
	Summary string
}

// ConfirmFunc asks the user to sign. Returning false rejects the request.
type ConfirmFunc func(ctx context.Context, req TxRequest) (bool, error)

// SwapCall holds the arguments of the swap contract's swap()
type SwapCall struct {
	Contract     common.Address
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	Recipient    common.Address
	MinAmountOut *big.Int
}

const (
	defaultReceiptInterval = 2 * time.Second
	gasBufferPercent       = 120
)

// KeyWallet signs and submits transactions with a local private key
type KeyWallet struct {
	backend         Backend
	privateKey      *ecdsa.PrivateKey
	address         common.Address
	chainID         *big.Int
	gasLimit        uint64
	gasPrice        *big.Int
	receiptInterval time.Duration
	confirm         ConfirmFunc
	logger          *zap.Logger

	// serializes nonce selection
	mu sync.Mutex
}

// WalletOption configures a KeyWallet
type WalletOption func(*KeyWallet)

// WithGasLimit fixes the gas limit instead of estimating it
func WithGasLimit(limit uint64) WalletOption {
	return func(w *KeyWallet) { w.gasLimit = limit }
}

// WithGasPrice fixes the gas price instead of asking the node
func WithGasPrice(price *big.Int) WalletOption {
	return func(w *KeyWallet) { w.gasPrice = price }
}

// WithConfirm installs the hook consulted before every signature
func WithConfirm(fn ConfirmFunc) WalletOption {
	return func(w *KeyWallet) { w.confirm = fn }
}

// WithReceiptInterval sets how often WaitMined polls for a receipt
func WithReceiptInterval(d time.Duration) WalletOption {
	return func(w *KeyWallet) { w.receiptInterval = d }
}

// WithWalletLogger sets the logger
func WithWalletLogger(logger *zap.Logger) WalletOption {
	return func(w *KeyWallet) { w.logger = logger }
}

// NewKeyWallet creates a wallet from a hex private key
func NewKeyWallet(backend Backend, privateKeyHex string, chainID int64, opts ...WalletOption) (*KeyWallet, error) {
	if strings.TrimSpace(privateKeyHex) == "" {
		return nil, ErrWalletNotConnected
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	w := &KeyWallet{
		backend:         backend,
		privateKey:      privateKey,
		address:         crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:         big.NewInt(chainID),
		receiptInterval: defaultReceiptInterval,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Account returns the connected address
func (w *KeyWallet) Account() (common.Address, error) {
	if w == nil || w.privateKey == nil {
		return common.Address{}, ErrWalletNotConnected
	}
	return w.address, nil
}

// Approve submits approve(spender, amount) on the token
func (w *KeyWallet) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve data: %w", err)
	}

	return w.send(ctx, TxRequest{
		Kind:    TxApprove,
		To:      token,
		Summary: fmt.Sprintf("Approve %s to spend %s of token %s", spender.Hex(), amount.String(), token.Hex()),
	}, data)
}

// Swap submits the swap contract call
func (w *KeyWallet) Swap(ctx context.Context, call SwapCall) (common.Hash, error) {
	data, err := swapABI.Pack("swap", call.TokenIn, call.TokenOut, call.AmountIn, call.Recipient, call.MinAmountOut)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack swap data: %w", err)
	}

	return w.send(ctx, TxRequest{
		Kind: TxSwap,
		To:   call.Contract,
		Summary: fmt.Sprintf("Swap %s of %s for at least %s of %s to %s",
			call.AmountIn.String(), call.TokenIn.Hex(), call.MinAmountOut.String(), call.TokenOut.Hex(), call.Recipient.Hex()),
	}, data)
}

// WaitMined blocks until the transaction has a receipt
func (w *KeyWallet) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return WaitMined(ctx, w.backend, hash, w.receiptInterval, w.logger)
}

func (w *KeyWallet) send(ctx context.Context, req TxRequest, data []byte) (common.Hash, error) {
	if _, err := w.Account(); err != nil {
		return common.Hash{}, err
	}

	if w.confirm != nil {
		ok, err := w.confirm(ctx, req)
		if err != nil {
			return common.Hash{}, fmt.Errorf("%w: %w", ErrUserRejected, err)
		}
		if !ok {
			return common.Hash{}, ErrUserRejected
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: failed to get nonce: %w", ErrChainUnavailable, err)
	}

	gasPrice, err := w.suggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	gasLimit := w.gasLimit
	if gasLimit == 0 {
		estimated, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{From: w.address, To: &req.To, Data: data})
		if err != nil {
			if isRevert(err) {
				return common.Hash{}, fmt.Errorf("%w: %s would revert: %w", ErrSubmissionFailed, req.Kind, err)
			}
			return common.Hash{}, fmt.Errorf("%w: failed to estimate gas: %w", ErrChainUnavailable, err)
		}
		gasLimit = estimated * gasBufferPercent / 100
	}

	tx := types.NewTransaction(nonce, req.To, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	w.logger.Info("transaction submitted",
		zap.String("kind", string(req.Kind)),
		zap.String("hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce))

	return signed.Hash(), nil
}

func (w *KeyWallet) suggestGasPrice(ctx context.Context) (*big.Int, error) {
	if w.gasPrice != nil {
		return w.gasPrice, nil
	}
	gasPrice, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get gas price: %w", ErrChainUnavailable, err)
	}
	return gasPrice, nil
}

// WaitMined polls src until the transaction is mined or ctx is done.
// A reverted receipt is returned together with ErrTxReverted.
func WaitMined(ctx context.Context, src ReceiptSource, hash common.Hash, interval time.Duration, logger *zap.Logger) (*types.Receipt, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultReceiptInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := src.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, fmt.Errorf("%w: %s", ErrTxReverted, hash.Hex())
			}
			return receipt, nil
		case err != nil && !isNotFound(err):
			logger.Warn("receipt lookup failed", zap.String("hash", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// CheckReceipt returns the receipt if mined, or nil when still pending
func CheckReceipt(ctx context.Context, src ReceiptSource, hash common.Hash) (*types.Receipt, error) {
	receipt, err := src.TransactionReceipt(ctx, hash)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: receipt of %s: %w", ErrChainUnavailable, hash.Hex(), err)
	}
	return receipt, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound) || strings.Contains(err.Error(), "not found")
}
