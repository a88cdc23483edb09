package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"trustbridge/pkg/chain"
	tbtypes "trustbridge/pkg/types"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 60
)

// Outcome is how a polling run ended
type Outcome string

const (
	OutcomePending    Outcome = ""
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeFailed     Outcome = "failed"
	OutcomeProcessing Outcome = "processing"
	OutcomeStopped    Outcome = "stopped"
)

// StatusSource fetches the current transfer record
type StatusSource interface {
	TransferStatus(ctx context.Context, transferID string) (*tbtypes.TransferRecord, error)
}

// Options configures one polling run
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	// TxHash, when set together with a receipt source, is checked on-chain every attempt
	TxHash *common.Hash
}

// Update is delivered after every attempt
type Update struct {
	Attempt  int
	Record   *tbtypes.TransferRecord
	Receipt  *types.Receipt
	Err      error
	Outcome  Outcome
	Terminal bool
}

// Result is the final state of a polling run
type Result struct {
	Outcome  Outcome
	Attempts int
	Record   *tbtypes.TransferRecord
	Receipt  *types.Receipt
	// TxHash is the hash attached by the backend, or the swap hash if none
	TxHash string
	Err    error
}

// Poller polls the backend until a transfer reaches a terminal status
type Poller struct {
	source   StatusSource
	receipts chain.ReceiptSource
	logger   *zap.Logger
}

// New creates a poller. receipts may be nil.
func New(source StatusSource, receipts chain.ReceiptSource, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{source: source, receipts: receipts, logger: logger}
}

// Handle controls a running poll
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	result Result
}

// Stop halts scheduling; no further polls are issued
func (h *Handle) Stop() {
	h.cancel()
}

// Done is closed when the run ends
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run ends and returns its result
func (h *Handle) Wait() Result {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Start polls transferID in the background. The first poll is immediate.
// onUpdate runs on the polling goroutine and may be nil.
func (p *Poller) Start(ctx context.Context, transferID string, opts Options, onUpdate func(Update)) *Handle {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		defer cancel()

		res := p.run(runCtx, transferID, opts, onUpdate)

		h.mu.Lock()
		h.result = res
		h.mu.Unlock()
	}()

	return h
}

// Poll runs synchronously and returns the final result
func (p *Poller) Poll(ctx context.Context, transferID string, opts Options, onUpdate func(Update)) Result {
	return p.Start(ctx, transferID, opts, onUpdate).Wait()
}

func (p *Poller) run(ctx context.Context, transferID string, opts Options, onUpdate func(Update)) Result {
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var last Result

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			last.Outcome = OutcomeStopped
			return last
		}

		u := p.attempt(ctx, transferID, attempt, opts.TxHash)
		if ctx.Err() != nil {
			last.Outcome = OutcomeStopped
			return last
		}

		last.Attempts = attempt
		if u.Record != nil {
			last.Record = u.Record
			last.TxHash = u.Record.TxHash
		}
		if u.Receipt != nil {
			last.Receipt = u.Receipt
		}
		last.Err = u.Err
		if last.TxHash == "" && opts.TxHash != nil {
			last.TxHash = opts.TxHash.Hex()
		}

		if onUpdate != nil {
			onUpdate(u)
		}

		if u.Terminal {
			last.Outcome = u.Outcome
			p.logger.Info("transfer reached terminal state",
				zap.String("id", transferID),
				zap.String("outcome", string(u.Outcome)),
				zap.Int("attempts", attempt))
			return last
		}

		if attempt == opts.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			last.Outcome = OutcomeStopped
			return last
		case <-ticker.C:
		}
	}

	p.logger.Info("transfer still processing after max attempts",
		zap.String("id", transferID),
		zap.Int("attempts", opts.MaxAttempts))

	last.Outcome = OutcomeProcessing
	return last
}

func (p *Poller) attempt(ctx context.Context, transferID string, attempt int, txHash *common.Hash) Update {
	u := Update{Attempt: attempt}

	if txHash != nil && p.receipts != nil {
		receipt, err := chain.CheckReceipt(ctx, p.receipts, *txHash)
		if err != nil {
			p.logger.Debug("receipt check failed", zap.Error(err))
		}
		if receipt != nil {
			u.Receipt = receipt
			if receipt.Status == types.ReceiptStatusFailed {
				u.Err = fmt.Errorf("%w: %s", chain.ErrTxReverted, txHash.Hex())
				u.Outcome = OutcomeFailed
				u.Terminal = true
				return u
			}
		}
	}

	record, err := p.source.TransferStatus(ctx, transferID)
	if err != nil {
		// transient: keep polling
		p.logger.Warn("status poll failed",
			zap.String("id", transferID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		u.Err = err
		return u
	}

	u.Record = record
	status := record.Status.Normalize()
	switch {
	case status.IsSuccess():
		u.Outcome, u.Terminal = OutcomeSucceeded, true
	case status.IsFailure():
		u.Outcome, u.Terminal = OutcomeFailed, true
	}

	p.logger.Debug("status polled",
		zap.String("id", transferID),
		zap.Int("attempt", attempt),
		zap.String("status", string(status)))

	return u
}
