package swap

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"go.uber.org/zap"
)

const (
	attemptKeyPrefix = "swap_attempt_"

	journalDirPermissions = 0o700
	journalSegmentLimit   = 200
	journalMaxSegments    = 5
)

// AttemptStatus is the journaled progress of one swap attempt
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptApproved  AttemptStatus = "approved"
	AttemptSubmitted AttemptStatus = "submitted"
	AttemptFailed    AttemptStatus = "failed"
)

// Attempt is one journaled swap
type Attempt struct {
	ID             string        `json:"id"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	Status         AttemptStatus `json:"status"`
	TokenIn        string        `json:"token_in"`
	TokenOut       string        `json:"token_out"`
	AmountIn       string        `json:"amount_in"`
	MinAmountOut   string        `json:"min_amount_out"`
	Recipient      string        `json:"recipient"`
	Fingerprint    string        `json:"fingerprint,omitempty"`
	ApprovalTxHash string        `json:"approval_tx_hash,omitempty"`
	SwapTxHash     string        `json:"swap_tx_hash,omitempty"`
	TransferID     string        `json:"transfer_id,omitempty"`
	Error          string        `json:"error,omitempty"`
	Time           time.Time     `json:"time"`
}

// Reported reports whether the backend already acknowledged this swap
func (a Attempt) Reported() bool {
	return a.TransferID != ""
}

// Matches returns ErrIdempotencyMismatch when p is not the swap journaled here
func (a Attempt) Matches(p Params) error {
	amountIn := ""
	if p.AmountIn != nil {
		amountIn = p.AmountIn.String()
	}
	switch {
	case a.Fingerprint != p.Fingerprint:
		return fmt.Errorf("%w: key %s was used for another transfer", ErrIdempotencyMismatch, a.IdempotencyKey)
	case !strings.EqualFold(a.TokenIn, p.TokenIn.Hex()),
		!strings.EqualFold(a.TokenOut, p.TokenOut.Hex()),
		!strings.EqualFold(a.Recipient, p.Recipient.Hex()),
		a.AmountIn != amountIn:
		return fmt.Errorf("%w: key %s swapped %s of %s", ErrIdempotencyMismatch, a.IdempotencyKey, a.AmountIn, a.TokenIn)
	}
	return nil
}

// Journal is a write-ahead log of swap attempts, indexed by idempotency key
type Journal struct {
	wal    *gowal.Wal
	mu     sync.Mutex
	byID   map[string]*Attempt
	byKey  map[string]*Attempt
	logger *zap.Logger
}

// OpenJournal opens (or creates) the journal in dir and replays it
func OpenJournal(dir string, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, journalDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure journal directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "swap_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init swap journal")
	}

	j := &Journal{
		wal:    wal,
		byID:   make(map[string]*Attempt),
		byKey:  make(map[string]*Attempt),
		logger: logger,
	}

	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, attemptKeyPrefix) {
			continue
		}
		var attempt Attempt
		if err := json.Unmarshal(msg.Value, &attempt); err != nil {
			logger.Error("failed to unmarshal swap attempt", zap.Error(err), zap.String("key", msg.Key))
			continue
		}
		j.index(&attempt)
	}

	return j, nil
}

// Close closes the underlying WAL
func (j *Journal) Close() error {
	if j == nil || j.wal == nil {
		return nil
	}
	return j.wal.Close()
}

// Lookup returns the latest attempt recorded under key
func (j *Journal) Lookup(key string) (Attempt, bool) {
	if j == nil || key == "" {
		return Attempt{}, false
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	a, ok := j.byKey[key]
	if !ok {
		return Attempt{}, false
	}
	return *a, true
}

// Attempts returns a snapshot of all attempts, oldest first
func (j *Journal) Attempts() []Attempt {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Attempt, 0, len(j.byID))
	for _, a := range j.byID {
		out = append(out, *a)
	}
	sortAttempts(out)
	return out
}

// Prepare journals a new pending attempt before anything is signed
func (j *Journal) Prepare(p Params) (*Attempt, error) {
	attempt := &Attempt{
		ID:             uuid.New().String(),
		IdempotencyKey: p.IdempotencyKey,
		Status:         AttemptPending,
		TokenIn:        p.TokenIn.Hex(),
		TokenOut:       p.TokenOut.Hex(),
		AmountIn:       p.AmountIn.String(),
		MinAmountOut:   p.MinAmountOut.String(),
		Recipient:      p.Recipient.Hex(),
		Fingerprint:    p.Fingerprint,
		Time:           time.Now().UTC(),
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.persist(attempt); err != nil {
		return nil, err
	}
	j.index(attempt)
	return attempt, nil
}

// MarkApproved records the approval transaction
func (j *Journal) MarkApproved(attempt *Attempt, txHash string) error {
	return j.update(attempt, func(a *Attempt) {
		a.Status = AttemptApproved
		a.ApprovalTxHash = txHash
	})
}

// MarkSubmitted records the accepted swap transaction
func (j *Journal) MarkSubmitted(attempt *Attempt, txHash string) error {
	return j.update(attempt, func(a *Attempt) {
		a.Status = AttemptSubmitted
		a.SwapTxHash = txHash
		a.Error = ""
	})
}

// MarkFailed records why the attempt stopped
func (j *Journal) MarkFailed(attempt *Attempt, cause error) error {
	return j.update(attempt, func(a *Attempt) {
		a.Status = AttemptFailed
		if cause != nil {
			a.Error = cause.Error()
		}
	})
}

// MarkReported records the transfer id the backend assigned to the swap under key
func (j *Journal) MarkReported(key, transferID string) error {
	if j == nil || key == "" {
		return nil
	}
	j.mu.Lock()
	attempt, ok := j.byKey[key]
	j.mu.Unlock()
	if !ok {
		return fmt.Errorf("no swap attempt journaled under %q", key)
	}
	return j.update(attempt, func(a *Attempt) { a.TransferID = transferID })
}

func (j *Journal) update(attempt *Attempt, mutate func(*Attempt)) error {
	if j == nil || attempt == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	mutate(attempt)
	attempt.Time = time.Now().UTC()
	return j.persist(attempt)
}

func (j *Journal) index(a *Attempt) {
	j.byID[a.ID] = a
	if a.IdempotencyKey != "" {
		j.byKey[a.IdempotencyKey] = a
	}
}

func (j *Journal) persist(a *Attempt) error {
	data, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "failed to marshal swap attempt")
	}
	key := fmt.Sprintf("%s%s", attemptKeyPrefix, a.ID)
	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, key, data)
}

func sortAttempts(attempts []Attempt) {
	sort.Slice(attempts, func(i, k int) bool {
		return attempts[i].Time.Before(attempts[k].Time)
	})
}
