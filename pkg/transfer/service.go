package transfer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trustbridge/pkg/parser"
	"trustbridge/pkg/quote"
	"trustbridge/pkg/swap"
	"trustbridge/pkg/types"
)

// ErrRegistrationFailed is returned when the swap went out but the backend did not record it.
// Re-submitting with the same idempotency key registers it without a second swap.
var ErrRegistrationFailed = errors.New("swap submitted but transfer registration failed")

// Backend is the subset of the REST client used for transfers
type Backend interface {
	InitiateTransfer(ctx context.Context, req types.TransferRequest) (*types.TransferInitiation, error)
	WalletSubmit(ctx context.Context, req types.WalletSubmitRequest) (*types.TransferInitiation, error)
	History(ctx context.Context, limit, offset int) (*types.TransferHistory, error)
	Invoice(ctx context.Context, id string) ([]byte, error)
}

// Quoter refetches stale quotes
type Quoter interface {
	GetQuote(ctx context.Context, req quote.Request) (*quote.Result, error)
}

// Swapper runs the on-chain swap
type Swapper interface {
	Swap(ctx context.Context, p swap.Params) (*swap.Result, error)
}

// Config tunes the wallet-rail pre-flight checks
type Config struct {
	QuoteValidity time.Duration
	// MaxDivergence disables the divergence check when zero
	MaxDivergence decimal.Decimal
}

// Service runs transfer submissions for both rails
type Service struct {
	backend Backend
	quoter  Quoter
	swapper Swapper
	journal *swap.Journal
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a transfer service. quoter, swapper and journal may be nil for card-only use.
func NewService(backend Backend, quoter Quoter, swapper Swapper, journal *swap.Journal, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QuoteValidity == 0 {
		cfg.QuoteValidity = quote.DefaultValidity
	}
	return &Service{
		backend: backend,
		quoter:  quoter,
		swapper: swapper,
		journal: journal,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// SubmitCard starts a card-rail transfer
func (s *Service) SubmitCard(ctx context.Context, req types.TransferRequest) (*types.TransferInitiation, error) {
	req.PaymentMethod = types.PaymentMastercard
	req.WhatsappNumber = parser.NormalizePhone(req.WhatsappNumber)
	if err := parser.ValidateTransferRequest(req, s.now()); err != nil {
		return nil, err
	}

	initiation, err := s.backend.InitiateTransfer(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to initiate transfer: %w", err)
	}

	s.logger.Info("card transfer initiated", zap.String("id", initiation.TransferID))
	return initiation, nil
}

// WalletTransfer is a wallet-rail submission
type WalletTransfer struct {
	Request types.TransferRequest
	// Quote is the quote the user confirmed; it is refetched when stale
	Quote *quote.Result
	// IdempotencyKey ties retries to one swap; generated when empty
	IdempotencyKey string
}

// WalletSubmission is the outcome of SubmitWallet
type WalletSubmission struct {
	TransferID     string
	Initiation     *types.TransferInitiation
	Swap           *swap.Result
	Quote          *quote.Result
	QuoteRefreshed bool
	IdempotencyKey string
	// AlreadyRegistered is true when the journal showed the backend already has this swap
	AlreadyRegistered bool
}

// SubmitWallet swaps on-chain and registers the swap with the backend
func (s *Service) SubmitWallet(ctx context.Context, wt WalletTransfer) (*WalletSubmission, error) {
	if s.swapper == nil || s.quoter == nil {
		return nil, fmt.Errorf("wallet rail is not configured")
	}

	req := wt.Request
	req.PaymentMethod = types.PaymentWallet
	req.WhatsappNumber = parser.NormalizePhone(req.WhatsappNumber)
	if err := parser.ValidateTransferRequest(req, s.now()); err != nil {
		return nil, err
	}

	sub := &WalletSubmission{IdempotencyKey: wt.IdempotencyKey}
	if sub.IdempotencyKey == "" {
		sub.IdempotencyKey = uuid.New().String()
	}

	fingerprint := Fingerprint(req)
	if attempt, ok := s.journal.Lookup(sub.IdempotencyKey); ok {
		if attempt.Fingerprint != fingerprint && (attempt.Reported() || attempt.Status == swap.AttemptSubmitted) {
			s.logger.Warn("idempotency key reused for a different transfer",
				zap.String("key", sub.IdempotencyKey),
				zap.String("journaled", attempt.Fingerprint),
				zap.String("requested", fingerprint))
			return nil, fmt.Errorf("%w: key %s was used for %s", swap.ErrIdempotencyMismatch, sub.IdempotencyKey, attempt.Fingerprint)
		}
		switch {
		case attempt.Reported():
			s.logger.Info("transfer already registered for this swap",
				zap.String("key", sub.IdempotencyKey),
				zap.String("id", attempt.TransferID))
			sub.TransferID = attempt.TransferID
			sub.AlreadyRegistered = true
			sub.Swap = replayedResult(attempt)
			return sub, nil
		case attempt.Status == swap.AttemptSubmitted:
			// the swap went out earlier; only the registration is retried
			sub.Swap = replayedResult(attempt)
			return s.register(ctx, sub, types.WalletSubmitRequest{
				TransferRequest: req,
				TxHash:          attempt.SwapTxHash,
				ApprovalTxHash:  attempt.ApprovalTxHash,
				TokenIn:         attempt.TokenIn,
				TokenOut:        attempt.TokenOut,
				AmountIn:        attempt.AmountIn,
				MinAmountOut:    attempt.MinAmountOut,
			})
		}
	}

	q, refreshed, err := s.freshQuote(ctx, req, wt.Quote)
	if err != nil {
		return nil, err
	}
	sub.Quote, sub.QuoteRefreshed = q, refreshed

	if err := q.SwapReady(); err != nil {
		return nil, err
	}
	if err := q.CheckDivergence(s.cfg.MaxDivergence); err != nil {
		return nil, err
	}

	res, err := s.swapper.Swap(ctx, swap.Params{
		TokenIn:        q.TokenIn.ContractAddress,
		TokenOut:       q.TokenOut.ContractAddress,
		AmountIn:       q.AmountIn,
		Recipient:      common.HexToAddress(req.RecipientWalletAddress),
		MinAmountOut:   q.Swap.MinAmountOut,
		DecimalsIn:     q.TokenIn.Decimals,
		DecimalsOut:    q.TokenOut.Decimals,
		IdempotencyKey: sub.IdempotencyKey,
		Fingerprint:    fingerprint,
	})
	if err != nil {
		return nil, err
	}
	sub.Swap = res

	submit := types.WalletSubmitRequest{
		TransferRequest: req,
		TxHash:          res.SwapTxHash.Hex(),
		TokenIn:         q.TokenIn.ContractAddress.Hex(),
		TokenOut:        q.TokenOut.ContractAddress.Hex(),
		AmountIn:        q.AmountIn.String(),
		MinAmountOut:    q.Swap.MinAmountOut.String(),
	}
	if res.ApprovalTxHash != nil {
		submit.ApprovalTxHash = res.ApprovalTxHash.Hex()
	}

	return s.register(ctx, sub, submit)
}

// register reports the swap to the backend and journals the assigned transfer id
func (s *Service) register(ctx context.Context, sub *WalletSubmission, submit types.WalletSubmitRequest) (*WalletSubmission, error) {
	initiation, err := s.backend.WalletSubmit(ctx, submit)
	if err != nil {
		s.logger.Error("wallet submit failed after swap",
			zap.String("tx", submit.TxHash),
			zap.String("key", sub.IdempotencyKey),
			zap.Error(err))
		return sub, fmt.Errorf("%w (swap %s): %w", ErrRegistrationFailed, submit.TxHash, err)
	}

	sub.Initiation = initiation
	sub.TransferID = initiation.TransferID

	if err := s.journal.MarkReported(sub.IdempotencyKey, initiation.TransferID); err != nil {
		s.logger.Warn("failed to journal transfer id", zap.Error(err))
	}

	s.logger.Info("wallet transfer registered",
		zap.String("id", initiation.TransferID),
		zap.String("tx", submit.TxHash))

	return sub, nil
}

// Fingerprint identifies what a wallet transfer pays for: currencies, sender amount and payout address
func Fingerprint(req types.TransferRequest) string {
	return strings.Join([]string{
		strings.ToUpper(req.SenderCurrency),
		strings.ToUpper(req.RecipientCurrency),
		req.SenderAmount.String(),
		strings.ToLower(req.RecipientWalletAddress),
	}, ":")
}

func replayedResult(a swap.Attempt) *swap.Result {
	res := &swap.Result{SwapTxHash: common.HexToHash(a.SwapTxHash), Replayed: true}
	if a.ApprovalTxHash != "" {
		h := common.HexToHash(a.ApprovalTxHash)
		res.ApprovalTxHash = &h
	}
	return res
}

func (s *Service) freshQuote(ctx context.Context, req types.TransferRequest, q *quote.Result) (*quote.Result, bool, error) {
	matches := q != nil &&
		q.Request.Amount.Equal(req.SenderAmount) &&
		strings.EqualFold(q.Request.SenderCurrency, req.SenderCurrency) &&
		strings.EqualFold(q.Request.RecipientCurrency, req.RecipientCurrency) &&
		q.Request.Rail == types.PaymentWallet

	if matches && !q.Expired(s.now(), s.cfg.QuoteValidity) {
		return q, false, nil
	}

	s.logger.Info("refreshing quote before swap", zap.Bool("stale", matches))

	fresh, err := s.quoter.GetQuote(ctx, quote.Request{
		SenderCurrency:    req.SenderCurrency,
		RecipientCurrency: req.RecipientCurrency,
		Amount:            req.SenderAmount,
		Rail:              types.PaymentWallet,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to refresh quote: %w", err)
	}
	return fresh, true, nil
}

// Filter narrows the history view. Status "" or "all" matches everything.
type Filter struct {
	Limit  int
	Offset int
	Status string
	Search string
}

// History fetches one page and applies the status and search filters
func (s *Service) History(ctx context.Context, f Filter) (*types.TransferHistory, error) {
	page, err := s.backend.History(ctx, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	status := types.TransferStatus(f.Status).Normalize()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	if (status == "" || status == "all") && search == "" {
		return page, nil
	}

	filtered := make([]types.TransferRecord, 0, len(page.Transfers))
	for _, rec := range page.Transfers {
		if status != "" && status != "all" && rec.Status.Normalize() != status {
			continue
		}
		if search != "" && !matchesSearch(rec, search) {
			continue
		}
		filtered = append(filtered, rec)
	}

	out := *page
	out.Transfers = filtered
	return &out, nil
}

func matchesSearch(rec types.TransferRecord, needle string) bool {
	for _, field := range []string{rec.ID, rec.RecipientName, rec.RecipientAccount, rec.RecipientBank, rec.TxHash} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// Invoice writes the PDF invoice of transfer id to w
func (s *Service) Invoice(ctx context.Context, id string, w io.Writer) (int64, error) {
	if strings.TrimSpace(id) == "" {
		return 0, fmt.Errorf("%w: transfer id is required", parser.ErrInvalidInput)
	}

	data, err := s.backend.Invoice(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to download invoice: %w", err)
	}

	n, err := w.Write(data)
	if err != nil {
		return int64(n), errors.Wrap(err, "failed to write invoice")
	}
	return int64(n), nil
}
