package quote

import (
	"context"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period after the last input change
const DefaultDebounce = 500 * time.Millisecond

// Quoter is implemented by Engine
type Quoter interface {
	GetQuote(ctx context.Context, req Request) (*Result, error)
}

// Debouncer coalesces rapid quote requests so only the last value reaches the backend
type Debouncer struct {
	quoter   Quoter
	delay    time.Duration
	onResult func(Request, *Result, error)
	parent   context.Context

	mu      sync.Mutex
	seq     uint64
	timer   *time.Timer
	cancel  context.CancelFunc
	stopped bool
}

// NewDebouncer creates a debouncer bound to ctx. onResult runs on a timer goroutine.
func NewDebouncer(ctx context.Context, quoter Quoter, delay time.Duration, onResult func(Request, *Result, error)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{
		quoter:   quoter,
		delay:    delay,
		onResult: onResult,
		parent:   ctx,
	}
}

// Submit schedules req, superseding anything pending or in flight
func (d *Debouncer) Submit(req Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq, req) })
}

// Stop cancels the pending timer and any in-flight request
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

func (d *Debouncer) fire(seq uint64, req Request) {
	d.mu.Lock()
	if d.stopped || seq != d.seq {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(d.parent)
	d.cancel = cancel
	d.mu.Unlock()

	res, err := d.quoter.GetQuote(ctx, req)

	d.mu.Lock()
	current := !d.stopped && seq == d.seq
	if current {
		d.cancel = nil
	}
	d.mu.Unlock()
	cancel()

	if current && d.onResult != nil {
		d.onResult(req, res, err)
	}
}
