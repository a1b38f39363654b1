// Package queue bounds how many gateway operations run at once and how many
// may wait for a slot.
//
// RequestQueue starts pending work in FIFO order while fewer than
// MaxConcurrent operations are running, refuses new work once MaxQueueSize
// items are pending, and gives every item a deadline of QueueTimeout from
// the moment it was enqueued. An item that misses its deadline is rejected
// with a QueueTimeoutError; if it was already running, its context is
// canceled and its slot is handed to the next pending item.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ahrav/go-aigateway/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-aigateway/internal/llm/errors"
)

// ErrQueueClosed is returned for work submitted to, or still pending in, a
// closed queue.
var ErrQueueClosed = llmerrors.ErrQueueClosed

// Operation is one unit of queued work. ctx is canceled when the item times
// out, the caller gives up, or the operation returns.
type Operation func(ctx context.Context) error

type itemState int

const (
	statePending itemState = iota
	stateRunning
	stateSettled
)

// item tracks one enqueued operation from admission to settlement.
type item struct {
	op       Operation
	ctx      context.Context
	cancel   context.CancelFunc
	deadline time.Time
	timer    *time.Timer

	state itemState
	err   error
	done  chan struct{}
}

// RequestQueue is a bounded admission queue. All state is guarded by mu and
// no lock is held while an operation runs.
type RequestQueue struct {
	mu sync.Mutex

	cfg     configuration.QueueConfig
	pending []*item
	running int
	closed  bool

	completed uint64
	rejected  uint64
	timedOut  uint64
	canceled  uint64

	logger *slog.Logger
}

// New creates a queue from cfg.
func New(cfg configuration.QueueConfig) (*RequestQueue, error) {
	if cfg.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("max concurrent must be positive, got %d", cfg.MaxConcurrent)
	}
	if cfg.MaxQueueSize <= 0 {
		return nil, fmt.Errorf("max queue size must be positive, got %d", cfg.MaxQueueSize)
	}
	if cfg.QueueTimeout <= 0 {
		return nil, fmt.Errorf("queue timeout must be positive, got %v", cfg.QueueTimeout)
	}

	return &RequestQueue{
		cfg:    cfg,
		logger: slog.Default().With("component", "request_queue"),
	}, nil
}

// Enqueue submits op and waits for it to settle.
//
// It fails immediately with llmerrors.ErrQueueFull when MaxQueueSize items
// are already pending. Otherwise it returns op's error, a
// *llmerrors.QueueTimeoutError if the item missed its deadline, or ctx's
// error if the caller gave up first.
func (q *RequestQueue) Enqueue(ctx context.Context, op Operation) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if len(q.pending) >= q.cfg.MaxQueueSize {
		q.rejected++
		pending := len(q.pending)
		q.mu.Unlock()
		q.logger.Warn("request queue full, rejecting",
			"pending", pending,
			"max_queue_size", q.cfg.MaxQueueSize)
		return llmerrors.ErrQueueFull
	}

	opCtx, cancel := context.WithCancel(ctx)
	it := &item{
		op:       op,
		ctx:      opCtx,
		cancel:   cancel,
		deadline: time.Now().Add(q.cfg.QueueTimeout),
		done:     make(chan struct{}),
	}
	it.timer = time.AfterFunc(q.cfg.QueueTimeout, func() { q.expire(it) })
	q.pending = append(q.pending, it)
	q.advanceLocked()
	q.mu.Unlock()

	select {
	case <-it.done:
	case <-ctx.Done():
		q.abandon(it, ctx.Err())
		<-it.done
	}
	return it.err
}

// advanceLocked starts pending items in FIFO order while slots are free.
// Items already past their deadline are settled instead of started.
// Caller must hold q.mu.
func (q *RequestQueue) advanceLocked() {
	now := time.Now()
	for q.running < q.cfg.MaxConcurrent && len(q.pending) > 0 {
		it := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]

		if !now.Before(it.deadline) {
			q.timedOut++
			q.settleLocked(it, &llmerrors.QueueTimeoutError{Timeout: q.cfg.QueueTimeout})
			continue
		}

		it.state = stateRunning
		q.running++
		go q.run(it)
	}
}

// run executes it and settles it unless a timeout or the caller already did.
func (q *RequestQueue) run(it *item) {
	err := it.op(it.ctx)

	q.mu.Lock()
	defer q.mu.Unlock()

	// A timed-out or abandoned item gave up its slot when it settled.
	if it.state == stateSettled {
		return
	}
	q.running--
	q.completed++
	q.settleLocked(it, err)
	q.advanceLocked()
}

// expire fires when it reaches its deadline.
func (q *RequestQueue) expire(it *item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	started, ok := q.releaseLocked(it)
	if !ok {
		return
	}
	q.timedOut++
	q.logger.Warn("queued request timed out",
		"timeout", q.cfg.QueueTimeout,
		"started", started)
	q.settleLocked(it, &llmerrors.QueueTimeoutError{Timeout: q.cfg.QueueTimeout, Started: started})
	q.advanceLocked()
}

// abandon settles it with err after the caller stopped waiting.
func (q *RequestQueue) abandon(it *item, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.releaseLocked(it); !ok {
		return
	}
	q.canceled++
	q.settleLocked(it, err)
	q.advanceLocked()
}

// releaseLocked detaches an unsettled item from the pending list or frees
// its running slot. It reports whether the item had started and whether it
// was still unsettled. Caller must hold q.mu.
func (q *RequestQueue) releaseLocked(it *item) (started, ok bool) {
	switch it.state {
	case statePending:
		if i := slices.Index(q.pending, it); i >= 0 {
			q.pending = slices.Delete(q.pending, i, i+1)
		}
		return false, true
	case stateRunning:
		q.running--
		return true, true
	default:
		return false, false
	}
}

// settleLocked records the outcome and wakes the waiting caller. Canceling
// the item's context aborts an operation that is still running.
// Caller must hold q.mu.
func (q *RequestQueue) settleLocked(it *item, err error) {
	it.state = stateSettled
	it.err = err
	it.timer.Stop()
	it.cancel()
	close(it.done)
}

// Close rejects every pending item with ErrQueueClosed and refuses new work.
// Running operations are left to finish.
func (q *RequestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	for _, it := range q.pending {
		q.settleLocked(it, ErrQueueClosed)
	}
	q.pending = nil
}
