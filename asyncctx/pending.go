package asyncctx

import "context"

// Pending is the result of a spawned task. It resolves exactly once.
type Pending[T any] struct {
	done   chan struct{}
	val    T
	err    error
	cancel context.CancelFunc
}

func newPending[T any](cancel context.CancelFunc) *Pending[T] {
	return &Pending[T]{
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Ready returns an already resolved Pending.
func Ready[T any](val T, err error) *Pending[T] {
	p := newPending[T](nil)
	p.resolve(val, err)
	return p
}

func (p *Pending[T]) resolve(val T, err error) {
	p.val = val
	p.err = err
	close(p.done)
}

// Done is closed once the result is available.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// Result blocks until the task resolves and returns its outcome.
func (p *Pending[T]) Result() (T, error) {
	<-p.done
	return p.val, p.err
}

// Cancel asks the task to abandon its work. Safe to call repeatedly and after
// the task has resolved.
func (p *Pending[T]) Cancel() {
	if p.cancel != nil {
		p.cancel()
	}
}
