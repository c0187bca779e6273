package cdsi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/cdsi-client/asyncctx"
	"github.com/ruteri/cdsi-client/interfaces"
)

// State is the progress of a single lookup.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateCompleting
	StateDone
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateCompleting:
		return "completing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

var allowedTransitions = map[State][]State{
	StateIdle:       {StateConnecting},
	StateConnecting: {StateCompleting, StateFailed, StateCancelled},
	StateCompleting: {StateDone, StateFailed, StateCancelled},
}

// ErrInvalidTransition is returned for a state change the lookup protocol forbids.
var ErrInvalidTransition = errors.New("invalid lookup state transition")

// Client performs lookups. It is safe for concurrent use; each lookup owns its
// request and handle.
type Client struct {
	deps Deps
	log  *slog.Logger
}

// NewClient validates deps and returns a Client.
func NewClient(deps Deps) (*Client, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	return &Client{deps: deps, log: log}, nil
}

// Lookup resolves opts.E164s against the lookup service. ctx is the cancellation
// signal for both phases; there is no internal timeout.
//
// Errors from either phase are returned unmodified. Request construction errors
// (interfaces.ErrParse, interfaces.ErrEncoding) are returned before any network
// activity.
func (c *Client) Lookup(ctx context.Context, auth interfaces.ServiceAuth, opts RequestOptions) (*Response, error) {
	req, err := BuildRequest(opts)
	if err != nil {
		return nil, err
	}

	strategy := StrategyFor(opts.UseNewConnectLogic)
	log := c.log.With(
		slog.String("strategy", strategy.String()),
		slog.Int("e164s", len(opts.E164s)),
		slog.Int("acis", len(opts.ACIsAndAccessKeys)),
	)

	d := &driver{
		state:    StateIdle,
		deps:     c.deps,
		auth:     auth,
		strategy: strategy,
		log:      log,
	}

	raw, err := d.run(ctx, req)
	c.deps.Metrics.ObserveLookup(strategy.String(), outcomeLabel(err))
	if err != nil {
		if d.state == StateCancelled {
			log.Info("Lookup cancelled", "err", err)
		} else {
			log.Warn("Lookup failed", "state", d.state.String(), "err", err)
		}
		return nil, err
	}

	resp := ProjectResponse(raw)
	log.Info("Lookup completed",
		slog.Int("entries", len(resp.Entries)),
		slog.Int("debugPermitsUsed", resp.DebugPermitsUsed))
	return resp, nil
}

// driver sequences the two phases of one lookup.
type driver struct {
	state    State
	deps     Deps
	auth     interfaces.ServiceAuth
	strategy ConnectStrategy
	log      *slog.Logger
}

func (d *driver) transition(to State) error {
	for _, allowed := range allowedTransitions[d.state] {
		if allowed == to {
			d.log.Debug("Lookup state transition", "from", d.state.String(), "to", to.String())
			d.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.state, to)
}

// fail moves to the terminal state matching err and returns err unchanged.
func (d *driver) fail(err error) error {
	to := StateFailed
	if errors.Is(err, interfaces.ErrCancelled) {
		to = StateCancelled
	}
	if terr := d.transition(to); terr != nil {
		return errors.Join(err, terr)
	}
	return err
}

func (d *driver) connect() func(context.Context, interfaces.ConnectionManager, interfaces.ServiceAuth, *LookupRequest) (*interfaces.LookupHandle, error) {
	if d.strategy == RouteConnect {
		return d.deps.Engine.NewLookupRoutes
	}
	return d.deps.Engine.NewLookup
}

func (d *driver) run(ctx context.Context, req *LookupRequest) (*interfaces.RawLookupResult, error) {
	if err := d.transition(StateConnecting); err != nil {
		return nil, err
	}

	req.seal()
	connect := d.connect()

	start := time.Now()
	handle, err := asyncctx.MakeCancellable(ctx, asyncctx.Spawn(d.deps.AsyncContext, func(taskCtx context.Context) (*interfaces.LookupHandle, error) {
		return connect(taskCtx, d.deps.ConnectionManager, d.auth, req)
	}))
	d.deps.Metrics.ObservePhase("connect", time.Since(start))
	if err != nil {
		return nil, d.fail(err)
	}

	// The signal may fire after the connect phase won its race; the completion
	// phase must not be issued then.
	if ctx.Err() != nil {
		_ = handle.Close()
		return nil, d.fail(fmt.Errorf("%w: %w", interfaces.ErrCancelled, context.Cause(ctx)))
	}

	if err := d.transition(StateCompleting); err != nil {
		_ = handle.Close()
		return nil, err
	}

	start = time.Now()
	result, err := asyncctx.MakeCancellable(ctx, asyncctx.Spawn(d.deps.AsyncContext, func(taskCtx context.Context) (*interfaces.RawLookupResult, error) {
		return d.deps.Engine.Complete(taskCtx, handle)
	}))
	d.deps.Metrics.ObservePhase("complete", time.Since(start))
	if err != nil {
		return nil, d.fail(err)
	}

	if err := d.transition(StateDone); err != nil {
		return nil, err
	}
	return result, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, interfaces.ErrCancelled):
		return "cancelled"
	case errors.Is(err, interfaces.ErrConnection):
		return "connection_error"
	case errors.Is(err, interfaces.ErrProtocol):
		return "protocol_error"
	default:
		return "error"
	}
}
