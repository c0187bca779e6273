package cdsi

import (
	"context"

	"github.com/ruteri/cdsi-client/interfaces"
	"github.com/stretchr/testify/mock"
)

// Engine performs the attested lookup protocol on behalf of the driver.
type Engine interface {
	// NewLookup connects to the connection manager's direct endpoint, attests the
	// enclave and submits the request.
	NewLookup(ctx context.Context, cm interfaces.ConnectionManager, auth interfaces.ServiceAuth, req *LookupRequest) (*interfaces.LookupHandle, error)

	// NewLookupRoutes is NewLookup over the routes resolved by the connection manager.
	NewLookupRoutes(ctx context.Context, cm interfaces.ConnectionManager, auth interfaces.ServiceAuth, req *LookupRequest) (*interfaces.LookupHandle, error)

	// Complete consumes the handle and retrieves the result. The handle is
	// released on every exit path.
	Complete(ctx context.Context, handle *interfaces.LookupHandle) (*interfaces.RawLookupResult, error)
}

// MockEngine implements Engine for testing. Return values may be given as
// functions of the call arguments.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) NewLookup(ctx context.Context, cm interfaces.ConnectionManager, auth interfaces.ServiceAuth, req *LookupRequest) (*interfaces.LookupHandle, error) {
	args := m.Called(ctx, cm, auth, req)
	if fn, ok := args.Get(0).(func(context.Context, interfaces.ConnectionManager, interfaces.ServiceAuth, *LookupRequest) *interfaces.LookupHandle); ok {
		return fn(ctx, cm, auth, req), args.Error(1)
	}
	handle, _ := args.Get(0).(*interfaces.LookupHandle)
	return handle, args.Error(1)
}

func (m *MockEngine) NewLookupRoutes(ctx context.Context, cm interfaces.ConnectionManager, auth interfaces.ServiceAuth, req *LookupRequest) (*interfaces.LookupHandle, error) {
	args := m.Called(ctx, cm, auth, req)
	if fn, ok := args.Get(0).(func(context.Context, interfaces.ConnectionManager, interfaces.ServiceAuth, *LookupRequest) *interfaces.LookupHandle); ok {
		return fn(ctx, cm, auth, req), args.Error(1)
	}
	handle, _ := args.Get(0).(*interfaces.LookupHandle)
	return handle, args.Error(1)
}

func (m *MockEngine) Complete(ctx context.Context, handle *interfaces.LookupHandle) (*interfaces.RawLookupResult, error) {
	args := m.Called(ctx, handle)
	if fn, ok := args.Get(0).(func(context.Context, *interfaces.LookupHandle) *interfaces.RawLookupResult); ok {
		return fn(ctx, handle), args.Error(1)
	}
	result, _ := args.Get(0).(*interfaces.RawLookupResult)
	return result, args.Error(1)
}
