/*
Package asyncctx runs lookup work in the background and bridges it to a caller's
cancellation signal.

# AsyncContext

AsyncContext is the background runtime engine operations execute on. Spawn starts
a task on its own goroutine with a task context derived from the runtime, and
returns a Pending result. Close cancels every task still running and waits for
them to return.

# Pending

Pending is a single in-flight result. It resolves exactly once. Cancel asks the
task to abandon its work by cancelling the task context; tasks that honour their
context return early, others run to completion and their result is discarded.

# MakeCancellable

MakeCancellable races a Pending against a caller context:

  - context without a Done channel (context.Background()): plain pass-through
  - Pending resolves first: its value and error are returned unchanged
  - context done first, or both ready when observed: ErrCancelled is returned,
    the task is cancelled and its eventual value is closed if it is an io.Closer

Example:

	ac := asyncctx.New(logger)
	defer ac.Close()

	p := asyncctx.Spawn(ac, func(ctx context.Context) (*Session, error) {
		return dial(ctx, addr)
	})

	session, err := asyncctx.MakeCancellable(ctx, p)
	if errors.Is(err, interfaces.ErrCancelled) {
		// the caller gave up; the session, if it ever arrives, is closed
	}
*/
package asyncctx
