package asyncctx

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.uber.org/atomic"
)

// ErrClosed is the result of tasks spawned on a closed AsyncContext.
var ErrClosed = errors.New("async context closed")

// AsyncContext is the background runtime lookup work is spawned on.
// It is safe for concurrent use.
type AsyncContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	inFlight atomic.Int64
}

// New creates a runtime. Close must be called to release it.
func New(log *slog.Logger) *AsyncContext {
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncContext{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// Spawn runs fn on its own goroutine. The context passed to fn is cancelled when
// the returned Pending is cancelled or the runtime is closed.
func Spawn[T any](ac *AsyncContext, fn func(ctx context.Context) (T, error)) *Pending[T] {
	taskCtx, cancel := context.WithCancel(ac.ctx)
	p := newPending[T](cancel)

	ac.mu.Lock()
	if ac.closed {
		ac.mu.Unlock()
		cancel()
		var zero T
		p.resolve(zero, ErrClosed)
		return p
	}
	ac.wg.Add(1)
	ac.mu.Unlock()

	ac.inFlight.Inc()
	go func() {
		defer ac.wg.Done()
		defer ac.inFlight.Dec()
		defer cancel()

		val, err := fn(taskCtx)
		p.resolve(val, err)
	}()

	return p
}

// InFlight returns the number of tasks still running.
func (ac *AsyncContext) InFlight() int64 {
	return ac.inFlight.Load()
}

// Close cancels all running tasks and waits for them to return.
func (ac *AsyncContext) Close() {
	ac.mu.Lock()
	if ac.closed {
		ac.mu.Unlock()
		return
	}
	ac.closed = true
	ac.mu.Unlock()

	if n := ac.inFlight.Load(); n > 0 {
		ac.log.Debug("Cancelling in-flight tasks", "count", n)
	}
	ac.cancel()
	ac.wg.Wait()
}
