package asyncctx

import (
	"context"
	"fmt"
	"io"

	"github.com/ruteri/cdsi-client/interfaces"
)

// MakeCancellable waits for p or for ctx to be done, whichever comes first.
//
// A ctx without a Done channel is a pass-through. When ctx is done first, or
// both are ready by the time the race is observed, the result is an error
// matching interfaces.ErrCancelled and the cause of ctx; p is cancelled and its
// eventual value is closed if it implements io.Closer.
func MakeCancellable[T any](ctx context.Context, p *Pending[T]) (T, error) {
	done := ctx.Done()
	if done == nil {
		return p.Result()
	}

	if ctx.Err() != nil {
		return abandon(ctx, p)
	}

	select {
	case <-done:
		return abandon(ctx, p)
	case <-p.Done():
		if ctx.Err() != nil {
			return abandon(ctx, p)
		}
		return p.Result()
	}
}

func abandon[T any](ctx context.Context, p *Pending[T]) (T, error) {
	p.Cancel()
	go dispose(p)

	var zero T
	return zero, fmt.Errorf("%w: %w", interfaces.ErrCancelled, context.Cause(ctx))
}

// dispose releases a result nobody will receive.
func dispose[T any](p *Pending[T]) {
	val, err := p.Result()
	if err != nil {
		return
	}
	if closer, ok := any(val).(io.Closer); ok && closer != nil {
		_ = closer.Close()
	}
}
