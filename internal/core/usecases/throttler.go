package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/pourzone/internal/pkg/metrics"
)

// DefaultMinInterval is the spacing between the starts of two backend calls.
const DefaultMinInterval = 2 * time.Second

// ErrThrottlerClosed is returned for requests still queued when the throttler stops.
var ErrThrottlerClosed = errors.New("throttler closed")

type throttledJob struct {
	ctx      context.Context
	fn       func(ctx context.Context) error
	result   chan error
	seq      uint64
	enqueued time.Time
}

// Throttler runs requests one at a time in submission order, keeping at least
// minInterval between the start of consecutive requests. One instance is shared by
// every component that talks to the backend.
type Throttler struct {
	name        string
	minInterval time.Duration
	onDispatch  func(seq uint64, at time.Time)

	mu        sync.Mutex
	queue     []*throttledJob
	seq       uint64
	closed    bool
	lastStart time.Time

	wake      chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// ThrottlerOption configures a Throttler.
type ThrottlerOption func(*Throttler)

// WithDispatchHook registers a callback invoked right before each request starts.
func WithDispatchHook(fn func(seq uint64, at time.Time)) ThrottlerOption {
	return func(t *Throttler) { t.onDispatch = fn }
}

// NewThrottler creates a Throttler and starts its dispatch loop.
func NewThrottler(name string, minInterval time.Duration, opts ...ThrottlerOption) *Throttler {
	if minInterval < 0 {
		minInterval = 0
	}
	t := &Throttler{
		name:        name,
		minInterval: minInterval,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	go t.run()
	return t
}

// Enqueue submits fn and blocks until it has run or ctx is done. A request whose
// context ends before dispatch is skipped and does not use a dispatch slot.
func (t *Throttler) Enqueue(ctx context.Context, fn func(ctx context.Context) error) error {
	j, err := t.submit(ctx, fn)
	if err != nil {
		return err
	}
	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do is Enqueue for functions returning a value.
func Do[T any](ctx context.Context, t *Throttler, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	j, err := t.submit(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	select {
	case err := <-j.result:
		return out, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Pending returns the number of queued, not yet dispatched requests.
func (t *Throttler) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Close stops the dispatch loop. Queued requests fail with ErrThrottlerClosed.
func (t *Throttler) Close() {
	t.closeOnce.Do(func() { close(t.done) })
	<-t.stopped
}

func (t *Throttler) submit(ctx context.Context, fn func(ctx context.Context) error) (*throttledJob, error) {
	j := &throttledJob{
		ctx:      ctx,
		fn:       fn,
		result:   make(chan error, 1),
		enqueued: time.Now(),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrThrottlerClosed
	}
	t.seq++
	j.seq = t.seq
	t.queue = append(t.queue, j)
	depth := len(t.queue)
	t.mu.Unlock()

	metrics.ThrottlerQueueDepth.WithLabelValues(t.name).Set(float64(depth))

	select {
	case t.wake <- struct{}{}:
	default:
	}
	return j, nil
}

func (t *Throttler) next() *throttledJob {
	for {
		t.mu.Lock()
		if len(t.queue) > 0 {
			j := t.queue[0]
			t.queue[0] = nil
			t.queue = t.queue[1:]
			depth := len(t.queue)
			t.mu.Unlock()
			metrics.ThrottlerQueueDepth.WithLabelValues(t.name).Set(float64(depth))
			return j
		}
		t.mu.Unlock()

		select {
		case <-t.wake:
		case <-t.done:
			return nil
		}
	}
}

func (t *Throttler) run() {
	defer close(t.stopped)
	defer t.drain()

	for {
		j := t.next()
		if j == nil {
			return
		}
		if err := j.ctx.Err(); err != nil {
			j.result <- err
			continue
		}

		if !t.lastStart.IsZero() {
			if wait := time.Until(t.lastStart.Add(t.minInterval)); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-j.ctx.Done():
					timer.Stop()
					j.result <- j.ctx.Err()
					continue
				case <-t.done:
					timer.Stop()
					j.result <- ErrThrottlerClosed
					return
				}
			}
		}

		start := time.Now()
		t.lastStart = start
		metrics.ThrottlerWaitSeconds.WithLabelValues(t.name).Observe(start.Sub(j.enqueued).Seconds())
		metrics.ThrottlerDispatched.WithLabelValues(t.name).Inc()
		if t.onDispatch != nil {
			t.onDispatch(j.seq, start)
		}

		j.result <- t.call(j)
	}
}

// call runs a request, turning a panic into an error so later requests still run.
func (t *Throttler) call(j *throttledJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("throttled request panicked", "throttler", t.name, "seq", j.seq, "panic", r)
			err = fmt.Errorf("throttled request %d panicked: %v", j.seq, r)
		}
	}()
	return j.fn(j.ctx)
}

func (t *Throttler) drain() {
	t.mu.Lock()
	pending := t.queue
	t.queue = nil
	t.closed = true
	t.mu.Unlock()
	for _, j := range pending {
		j.result <- ErrThrottlerClosed
	}
	metrics.ThrottlerQueueDepth.WithLabelValues(t.name).Set(0)
}
