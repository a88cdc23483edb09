package swap

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"trustbridge/pkg/chain"
)

var (
	// ErrSwapInProgress is returned when Swap is called while another swap is running
	ErrSwapInProgress = errors.New("a swap is already in progress")
	// ErrIdempotencyMismatch is returned when an idempotency key is reused for a different swap
	ErrIdempotencyMismatch = errors.New("idempotency key belongs to a different swap")
)

// Params describes one swap. Amounts are in smallest units.
type Params struct {
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	Recipient    common.Address
	MinAmountOut *big.Int
	DecimalsIn   uint8
	DecimalsOut  uint8
	// IdempotencyKey, when set, makes a repeated call return the journaled result
	IdempotencyKey string
	// Fingerprint identifies the transfer the swap pays for; a replay must carry the same one
	Fingerprint string
}

// Result of a submitted swap
type Result struct {
	ApprovalTxHash *common.Hash
	SwapTxHash     common.Hash
	// Replayed is true when the result came from the journal and nothing was sent
	Replayed bool
}

// Executor runs the approve-then-swap sequence as a state machine
type Executor struct {
	reader       chain.Reader
	wallet       chain.Signer
	allowances   *AllowanceManager
	swapContract common.Address
	journal      *Journal
	logger       *zap.Logger

	running atomic.Bool

	mu        sync.Mutex
	state     State
	observers []Observer
}

// NewExecutor creates an executor. journal may be nil.
func NewExecutor(reader chain.Reader, wallet chain.Signer, swapContract common.Address, journal *Journal, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		reader:       reader,
		wallet:       wallet,
		allowances:   NewAllowanceManager(reader, wallet, logger),
		swapContract: swapContract,
		journal:      journal,
		logger:       logger,
		state:        State{Phase: PhaseIdle},
	}
}

// Subscribe registers an observer for state transitions
func (e *Executor) Subscribe(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// State returns the current state
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Swap approves if needed and submits the swap. It never retries on its own.
func (e *Executor) Swap(ctx context.Context, p Params) (*Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrSwapInProgress
	}
	defer e.running.Store(false)

	if err := e.reset(); err != nil {
		return nil, err
	}

	if p.AmountIn == nil || p.AmountIn.Sign() <= 0 {
		return nil, e.fail(nil, fmt.Errorf("swap amount must be positive"))
	}
	if p.MinAmountOut == nil || p.MinAmountOut.Sign() < 0 {
		return nil, e.fail(nil, fmt.Errorf("minimum output must not be negative"))
	}

	if e.wallet == nil {
		return nil, e.fail(nil, chain.ErrWalletNotConnected)
	}
	owner, err := e.wallet.Account()
	if err != nil {
		return nil, e.fail(nil, err)
	}

	res, ok, err := e.replay(p)
	if err != nil {
		return nil, e.fail(nil, err)
	}
	if ok {
		return res, nil
	}

	if err := e.transition(PhaseApproving, nil); err != nil {
		return nil, err
	}

	var attempt *Attempt
	if e.journal != nil {
		if attempt, err = e.journal.Prepare(p); err != nil {
			return nil, e.fail(nil, fmt.Errorf("failed to journal swap: %w", err))
		}
	}

	approval, err := e.allowances.EnsureAllowance(ctx, p.TokenIn, owner, e.swapContract, p.AmountIn)
	if err != nil {
		return nil, e.fail(attempt, err)
	}

	var approvalHash *common.Hash
	if approval.ApprovalTxHash != nil {
		approvalHash = approval.ApprovalTxHash
		e.update(func(s *State) { s.ApprovalTxHash = approvalHash })
		e.journalErr(e.journal.MarkApproved(attempt, approvalHash.Hex()))

		if _, err := e.wallet.WaitMined(ctx, *approvalHash); err != nil {
			return nil, e.fail(attempt, fmt.Errorf("approval %s: %w", approvalHash.Hex(), err))
		}

		current, err := e.reader.Allowance(ctx, p.TokenIn, owner, e.swapContract)
		if err != nil {
			return nil, e.fail(attempt, fmt.Errorf("failed to re-read allowance: %w", err))
		}
		if current.Cmp(p.AmountIn) < 0 {
			return nil, e.fail(attempt, fmt.Errorf("%w: have %s, need %s", chain.ErrInsufficientAllowance, current, p.AmountIn))
		}
	}

	if err := e.transition(PhaseSwapping, nil); err != nil {
		return nil, err
	}

	swapHash, err := e.wallet.Swap(ctx, chain.SwapCall{
		Contract:     e.swapContract,
		TokenIn:      p.TokenIn,
		TokenOut:     p.TokenOut,
		AmountIn:     p.AmountIn,
		Recipient:    p.Recipient,
		MinAmountOut: p.MinAmountOut,
	})
	if err != nil {
		return nil, e.fail(attempt, fmt.Errorf("swap failed: %w", err))
	}

	e.journalErr(e.journal.MarkSubmitted(attempt, swapHash.Hex()))

	if err := e.transition(PhaseCompleted, func(s *State) { s.SwapTxHash = &swapHash }); err != nil {
		return nil, err
	}

	e.logger.Info("swap submitted",
		zap.String("tx", swapHash.Hex()),
		zap.Bool("approved", approvalHash != nil))

	return &Result{ApprovalTxHash: approvalHash, SwapTxHash: swapHash}, nil
}

func (e *Executor) replay(p Params) (*Result, bool, error) {
	if e.journal == nil {
		return nil, false, nil
	}
	key := p.IdempotencyKey
	attempt, ok := e.journal.Lookup(key)
	if !ok || attempt.Status != AttemptSubmitted {
		return nil, false, nil
	}
	if err := attempt.Matches(p); err != nil {
		return nil, false, err
	}

	res := &Result{SwapTxHash: common.HexToHash(attempt.SwapTxHash), Replayed: true}
	if attempt.ApprovalTxHash != "" {
		h := common.HexToHash(attempt.ApprovalTxHash)
		res.ApprovalTxHash = &h
	}

	e.logger.Info("swap already submitted for idempotency key",
		zap.String("key", key),
		zap.String("tx", attempt.SwapTxHash))

	if err := e.transition(PhaseCompleted, func(s *State) {
		s.ApprovalTxHash = res.ApprovalTxHash
		s.SwapTxHash = &res.SwapTxHash
	}); err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (e *Executor) reset() error {
	e.mu.Lock()
	phase := e.state.Phase
	e.mu.Unlock()
	if phase == PhaseIdle {
		return nil
	}
	return e.transition(PhaseIdle, func(s *State) { *s = State{Phase: PhaseIdle} })
}

func (e *Executor) fail(attempt *Attempt, cause error) error {
	msg := chain.Describe(cause)
	if err := e.transition(PhaseError, func(s *State) {
		s.Err = cause
		s.Message = msg
	}); err != nil {
		e.logger.Error("failed to enter error state", zap.Error(err))
	}
	if attempt != nil {
		e.journalErr(e.journal.MarkFailed(attempt, cause))
	}
	e.logger.Warn("swap failed", zap.Error(cause))
	return cause
}

func (e *Executor) journalErr(err error) {
	if err != nil {
		e.logger.Error("failed to write swap journal", zap.Error(err))
	}
}

func (e *Executor) update(mutate func(*State)) {
	e.mu.Lock()
	mutate(&e.state)
	snapshot := e.state
	observers := append([]Observer(nil), e.observers...)
	e.mu.Unlock()

	for _, o := range observers {
		o(snapshot)
	}
}

func (e *Executor) transition(to Phase, mutate func(*State)) error {
	e.mu.Lock()
	from := e.state.Phase
	if !CanTransition(from, to) {
		e.mu.Unlock()
		return &transitionError{from: from, to: to}
	}
	if mutate != nil {
		mutate(&e.state)
	}
	e.state.Phase = to
	snapshot := e.state
	observers := append([]Observer(nil), e.observers...)
	e.mu.Unlock()

	e.logger.Debug("swap state", zap.String("from", string(from)), zap.String("to", string(to)))
	for _, o := range observers {
		o(snapshot)
	}
	return nil
}
