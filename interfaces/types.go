package interfaces

import (
	"context"
	"net/http"
	"sync"

	"github.com/ruteri/cdsi-client/cryptoutils"
	"go.uber.org/atomic"
)

// ServiceAuth carries the credentials presented to the lookup service.
type ServiceAuth struct {
	Username string
	Password string
}

// E164 is a phone number in canonical E.164 string form ("+15551234567").
// No normalization is applied anywhere in the client.
type E164 = string

// RawLookupEntry is the engine-native result for a single phone number.
// A nil field means the service did not return that identifier.
type RawLookupEntry struct {
	ACI *ServiceID
	PNI *ServiceID
}

// RawLookupResult is the decoded result of a completed lookup.
type RawLookupResult struct {
	// Entries is keyed by E.164 number. Numbers without a match are absent.
	Entries map[E164]RawLookupEntry

	// DebugPermitsUsed is the rate limit permit count reported by the service.
	DebugPermitsUsed int
}

// Route is a resolved endpoint for the route-based connect strategy.
type Route struct {
	// BaseURL is the scheme://host:port the lookup protocol is spoken to.
	BaseURL string

	Priority uint16
	Weight   uint16
}

// ConnectionManager is the shared transport configuration borrowed by lookups.
// Implementations must be safe for concurrent use; lookups never mutate it.
type ConnectionManager interface {
	// HTTPClient returns the client used for every lookup request.
	HTTPClient() *http.Client

	// DirectEndpoint returns the base URL used by the legacy connect strategy.
	DirectEndpoint() string

	// EnclaveID names the enclave the lookup attests to.
	EnclaveID() string

	// Routes resolves the ordered endpoints used by the route-based connect strategy.
	Routes(ctx context.Context) ([]Route, error)

	// AttestationPolicy returns what attestation evidence is acceptable.
	AttestationPolicy() cryptoutils.AttestationPolicy
}

// LookupHandle is an attested session mid-flight: the request has been accepted
// and the result is waiting to be retrieved. It is produced by the connect phase
// and must be consumed exactly once by the completion phase.
type LookupHandle struct {
	// SessionID identifies the remote session.
	SessionID string

	// BaseURL is the endpoint the session was established with.
	BaseURL string

	// Token is the opaque token the service returned for the submitted request.
	Token []byte

	state any

	consumed atomic.Bool
	closed   atomic.Bool

	releaseOnce sync.Once
	release     func() error
	releaseErr  error
}

// NewLookupHandle creates a handle. state is private to the engine that created
// it; release is called at most once to free the remote session.
func NewLookupHandle(sessionID, baseURL string, token []byte, state any, release func() error) *LookupHandle {
	return &LookupHandle{
		SessionID: sessionID,
		BaseURL:   baseURL,
		Token:     token,
		state:     state,
		release:   release,
	}
}

// State returns the engine-private session state.
func (h *LookupHandle) State() any {
	return h.state
}

// Consume marks the handle as used. Only the first call succeeds.
func (h *LookupHandle) Consume() error {
	if !h.consumed.CompareAndSwap(false, true) {
		return ErrHandleConsumed
	}
	return nil
}

// Consumed reports whether the handle was handed to a completion phase.
func (h *LookupHandle) Consumed() bool {
	return h.consumed.Load()
}

// Close releases the remote session. It is safe to call more than once.
func (h *LookupHandle) Close() error {
	if h == nil {
		return nil
	}
	h.releaseOnce.Do(func() {
		h.closed.Store(true)
		if h.release != nil {
			h.releaseErr = h.release()
		}
	})
	return h.releaseErr
}

// Closed reports whether Close has been called.
func (h *LookupHandle) Closed() bool {
	return h.closed.Load()
}
