package quote

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trustbridge/pkg/chain"
	"trustbridge/pkg/types"
)

var (
	// ErrInconsistentQuote is returned when the backend quote does not add up
	ErrInconsistentQuote = errors.New("inconsistent quote")
	// ErrQuoteDivergence is returned when on-chain and off-chain prices disagree beyond the configured bound
	ErrQuoteDivergence = errors.New("on-chain estimate diverges from quoted amount")
	// ErrNoSwapEstimate is returned when a wallet-rail quote has no usable on-chain estimate
	ErrNoSwapEstimate = errors.New("on-chain swap estimate unavailable")
)

const (
	DefaultSlippage = "0.02"
	DefaultValidity = 60 * time.Second
)

// Backend fetches the off-chain quote
type Backend interface {
	Quote(ctx context.Context, req types.QuoteRequest) (*types.TransferQuote, error)
}

// TokenResolver maps a currency code to the ERC-20 token used on-chain
type TokenResolver interface {
	ForCurrency(ctx context.Context, currency string) (types.Token, error)
}

// Request is a quote request from the amount step
type Request struct {
	SenderCurrency    string
	RecipientCurrency string
	Amount            decimal.Decimal
	Rail              types.PaymentMethod
}

// SwapQuote is the on-chain estimate, in output-token smallest units
type SwapQuote struct {
	EstimatedOut *big.Int
	Fee          *big.Int
	NetOut       *big.Int
	MinAmountOut *big.Int
}

// Result combines the off-chain quote with the on-chain estimate for the wallet rail
type Result struct {
	Request Request
	Quote   *types.TransferQuote
	// Swap is nil for the card rail or when the estimate failed
	Swap *SwapQuote
	// SwapErr blocks the wallet swap step only
	SwapErr   error
	AmountIn  *big.Int
	TokenIn   *types.Token
	TokenOut  *types.Token
	FetchedAt time.Time
	// Divergence is |onchain - offchain| / offchain, nil when it cannot be computed
	Divergence *decimal.Decimal
}

// Expired reports whether the quote is older than validity
func (r *Result) Expired(now time.Time, validity time.Duration) bool {
	if validity <= 0 {
		return false
	}
	return now.Sub(r.FetchedAt) > validity
}

// SwapReady returns nil when the result can drive a swap
func (r *Result) SwapReady() error {
	if r.SwapErr != nil {
		return fmt.Errorf("%w: %w", ErrNoSwapEstimate, r.SwapErr)
	}
	if r.Swap == nil || r.TokenIn == nil || r.TokenOut == nil || r.AmountIn == nil {
		return ErrNoSwapEstimate
	}
	return nil
}

// CheckDivergence enforces max when it is positive
func (r *Result) CheckDivergence(max decimal.Decimal) error {
	if !max.IsPositive() || r.Divergence == nil {
		return nil
	}
	if r.Divergence.GreaterThan(max) {
		return fmt.Errorf("%w: %s%% exceeds %s%%", ErrQuoteDivergence,
			r.Divergence.Shift(2).StringFixed(2), max.Shift(2).StringFixed(2))
	}
	return nil
}

// Engine fetches quotes
type Engine struct {
	backend  Backend
	tokens   TokenResolver
	reader   chain.Reader
	slippage decimal.Decimal
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates a quote engine. reader and tokens may be nil when only the card rail is used.
func NewEngine(backend Backend, tokens TokenResolver, reader chain.Reader, slippage decimal.Decimal, logger *zap.Logger) (*Engine, error) {
	if slippage.IsNegative() || slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("slippage must be in [0, 1), got %s", slippage)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		backend:  backend,
		tokens:   tokens,
		reader:   reader,
		slippage: slippage,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Slippage returns the configured slippage tolerance
func (e *Engine) Slippage() decimal.Decimal {
	return e.slippage
}

// GetQuote fetches the off-chain quote and, for the wallet rail, the on-chain estimate in parallel
func (e *Engine) GetQuote(ctx context.Context, req Request) (*Result, error) {
	req.SenderCurrency = strings.ToUpper(strings.TrimSpace(req.SenderCurrency))
	req.RecipientCurrency = strings.ToUpper(strings.TrimSpace(req.RecipientCurrency))
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be greater than zero")
	}

	res := &Result{Request: req}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		q, err := e.backend.Quote(gctx, types.QuoteRequest{
			SenderCurrency:    req.SenderCurrency,
			RecipientCurrency: req.RecipientCurrency,
			Amount:            req.Amount,
		})
		if err != nil {
			return fmt.Errorf("failed to get quote: %w", err)
		}
		if err := normalize(q, req.Amount); err != nil {
			return err
		}
		res.Quote = q
		return nil
	})

	if req.Rail == types.PaymentWallet {
		// the estimate never fails the group; its error only blocks the swap step
		g.Go(func() error {
			res.SwapErr = e.estimate(gctx, req, res)
			if res.SwapErr != nil {
				e.logger.Warn("on-chain estimate failed", zap.Error(res.SwapErr))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.FetchedAt = e.now()
	res.Divergence = divergence(res)

	return res, nil
}

func (e *Engine) estimate(ctx context.Context, req Request, res *Result) error {
	if e.reader == nil || e.tokens == nil {
		return chain.ErrWalletNotConnected
	}

	tokenIn, err := e.tokens.ForCurrency(ctx, req.SenderCurrency)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", req.SenderCurrency, err)
	}
	tokenOut, err := e.tokens.ForCurrency(ctx, req.RecipientCurrency)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", req.RecipientCurrency, err)
	}

	amountIn, err := chain.ToBaseUnits(req.Amount, tokenIn.Decimals)
	if err != nil {
		return err
	}

	est, err := e.reader.SwapEstimate(ctx, tokenIn.ContractAddress, tokenOut.ContractAddress, amountIn)
	if err != nil {
		return err
	}

	res.TokenIn = &tokenIn
	res.TokenOut = &tokenOut
	res.AmountIn = amountIn
	res.Swap = &SwapQuote{
		EstimatedOut: est.EstimatedOut,
		Fee:          est.Fee,
		NetOut:       est.NetOut,
		MinAmountOut: MinAmountOut(est.NetOut, e.slippage),
	}
	return nil
}

// MinAmountOut computes floor(netOut * (1 - slippage)) exactly
func MinAmountOut(netOut *big.Int, slippage decimal.Decimal) *big.Int {
	if netOut == nil {
		return big.NewInt(0)
	}
	factor := decimal.NewFromInt(1).Sub(slippage)
	return decimal.NewFromBigInt(netOut, 0).Mul(factor).Floor().BigInt()
}

// normalize fills a missing total and rejects quotes that do not match the request
func normalize(q *types.TransferQuote, amount decimal.Decimal) error {
	if q == nil {
		return fmt.Errorf("%w: empty quote", ErrInconsistentQuote)
	}
	if q.Sender.Amount.IsZero() {
		q.Sender.Amount = amount
	}
	if !q.Sender.Amount.Equal(amount) {
		return fmt.Errorf("%w: quoted %s for requested %s", ErrInconsistentQuote, q.Sender.Amount, amount)
	}

	expected := q.Sender.Amount.Add(q.Fee.Amount)
	if q.Total.IsZero() {
		q.Total = expected
	}
	if !q.Total.Equal(expected) {
		return fmt.Errorf("%w: total %s != amount %s + fee %s", ErrInconsistentQuote, q.Total, q.Sender.Amount, q.Fee.Amount)
	}
	return nil
}

func divergence(res *Result) *decimal.Decimal {
	if res.Quote == nil || res.Swap == nil || res.TokenOut == nil {
		return nil
	}
	offchain := res.Quote.Recipient.Amount
	if !offchain.IsPositive() {
		return nil
	}
	onchain := chain.FromBaseUnits(res.Swap.NetOut, res.TokenOut.Decimals)
	d := onchain.Sub(offchain).Abs().Div(offchain)
	return &d
}
