package engine

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/cdsi-client/api"
	"github.com/ruteri/cdsi-client/asyncctx"
	"github.com/ruteri/cdsi-client/cdsi"
	"github.com/ruteri/cdsi-client/connmgr"
	"github.com/ruteri/cdsi-client/cryptoutils"
	"github.com/ruteri/cdsi-client/directory"
	"github.com/ruteri/cdsi-client/httpserver"
	"github.com/ruteri/cdsi-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEnclave = "test-enclave"
	testACI     = "9d0652a3-dcc3-4d11-975f-74d61598733f"
	testPNI     = "PNI:2e2b4b6c-6b50-4b64-a7b1-4b09e2d9c1f0"
	otherPNI    = "PNI:7d4e3a5f-2c1b-4e6d-8f9a-0b1c2d3e4f5a"
)

var (
	testAccessKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))
	testAuth      = interfaces.ServiceAuth{Username: "user", Password: "pass"}
	discardLog    = slog.New(slog.NewTextHandler(io.Discard, nil))
)

type stub struct {
	ts      *httptest.Server
	handler *httpserver.Handler
}

func startStub(t *testing.T) *stub {
	dir, err := directory.New([]directory.Record{
		{E164: "+15551234567", ACI: testACI, PNI: testPNI, AccessKey: testAccessKey},
		{E164: "+15557654321", PNI: otherPNI},
	})
	require.NoError(t, err)

	srv, err := httpserver.New(&api.HTTPServerConfig{
		Log:                 discardLog,
		EnclaveID:           testEnclave,
		Credentials:         testAuth,
		AttestationProvider: cryptoutils.DummyAttestationProvider{},
		SessionTTL:          time.Minute,
	}, dir)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &stub{ts: ts, handler: srv.Handler()}
}

func newManager(t *testing.T, endpoint string, allowInsecure bool) *connmgr.Manager {
	m, err := connmgr.New(connmgr.Config{
		Endpoint:          endpoint,
		EnclaveID:         testEnclave,
		HTTPTimeout:       5 * time.Second,
		AttestationPolicy: cryptoutils.AttestationPolicy{AllowInsecure: allowInsecure},
	}, discardLog)
	require.NoError(t, err)
	return m
}

// routedManager overrides route resolution with a fixed list.
type routedManager struct {
	*connmgr.Manager
	routes []interfaces.Route
}

func (m *routedManager) Routes(ctx context.Context) ([]interfaces.Route, error) {
	return m.routes, nil
}

func testRequest(t *testing.T) *cdsi.LookupRequest {
	req, err := cdsi.BuildRequest(cdsi.RequestOptions{
		E164s:             []string{"+15551234567", "+15557654321", "+15550000000"},
		ACIsAndAccessKeys: []cdsi.AccessKeyPair{{ACI: testACI, AccessKey: testAccessKey}},
	})
	require.NoError(t, err)
	return req
}

func TestLookup_EndToEnd(t *testing.T) {
	s := startStub(t)
	e := New(discardLog)
	cm := newManager(t, s.ts.URL, true)

	handle, err := e.NewLookup(context.Background(), cm, testAuth, testRequest(t))
	require.NoError(t, err)
	assert.NotEmpty(t, handle.SessionID)
	assert.Equal(t, s.ts.URL, handle.BaseURL)
	assert.NotEmpty(t, handle.Token)

	result, err := e.Complete(context.Background(), handle)
	require.NoError(t, err)
	assert.True(t, handle.Consumed())
	assert.True(t, handle.Closed())

	assert.Equal(t, 3, result.DebugPermitsUsed)
	require.Len(t, result.Entries, 2)

	entry := result.Entries["+15551234567"]
	require.NotNil(t, entry.ACI)
	assert.Equal(t, testACI, entry.ACI.String())
	require.NotNil(t, entry.PNI)
	assert.Equal(t, testPNI, entry.PNI.String())

	other := result.Entries["+15557654321"]
	assert.Nil(t, other.ACI)
	assert.Equal(t, otherPNI, other.PNI.String())

	assert.Zero(t, s.handler.OpenSessions())
}

func TestNewLookup_InsecureAttestationRejected(t *testing.T) {
	s := startStub(t)
	e := New(discardLog)

	_, err := e.NewLookup(context.Background(), newManager(t, s.ts.URL, false), testAuth, testRequest(t))
	require.ErrorIs(t, err, interfaces.ErrConnection)
	assert.ErrorIs(t, err, cryptoutils.ErrInsecureAttestation)

	// The attested session is released on failure.
	assert.Zero(t, s.handler.OpenSessions())
}

func TestNewLookup_BadCredentials(t *testing.T) {
	s := startStub(t)
	e := New(discardLog)

	_, err := e.NewLookup(context.Background(), newManager(t, s.ts.URL, true), interfaces.ServiceAuth{Username: "user", Password: "wrong"}, testRequest(t))
	require.ErrorIs(t, err, interfaces.ErrConnection)
	assert.ErrorContains(t, err, "401")
}

func TestNewLookup_Unreachable(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	_, err := New(discardLog).NewLookup(context.Background(), newManager(t, url, true), testAuth, testRequest(t))
	require.ErrorIs(t, err, interfaces.ErrConnection)
	assert.ErrorIs(t, err, errUnreachable)
}

func TestHandleClose_ReleasesSession(t *testing.T) {
	s := startStub(t)
	e := New(discardLog)

	handle, err := e.NewLookup(context.Background(), newManager(t, s.ts.URL, true), testAuth, testRequest(t))
	require.NoError(t, err)
	assert.Equal(t, 1, s.handler.OpenSessions())

	require.NoError(t, handle.Close())
	assert.Zero(t, s.handler.OpenSessions())

	// Completing a released handle fails and does not panic.
	_, err = e.Complete(context.Background(), handle)
	assert.ErrorIs(t, err, interfaces.ErrProtocol)
}

func TestComplete_HandleConsumedOnce(t *testing.T) {
	s := startStub(t)
	e := New(discardLog)

	handle, err := e.NewLookup(context.Background(), newManager(t, s.ts.URL, true), testAuth, testRequest(t))
	require.NoError(t, err)

	_, err = e.Complete(context.Background(), handle)
	require.NoError(t, err)

	_, err = e.Complete(context.Background(), handle)
	assert.ErrorIs(t, err, interfaces.ErrProtocol)
	assert.ErrorIs(t, err, interfaces.ErrHandleConsumed)
}

func TestComplete_ForeignHandle(t *testing.T) {
	handle := interfaces.NewLookupHandle("id", "http://localhost", []byte("token"), "not a session", nil)
	_, err := New(discardLog).Complete(context.Background(), handle)
	assert.ErrorIs(t, err, interfaces.ErrProtocol)
	assert.True(t, handle.Closed())
}

func TestNewLookupRoutes(t *testing.T) {
	s := startStub(t)
	e := New(discardLog)

	dead := httptest.NewServer(nil)
	deadURL := dead.URL
	dead.Close()

	t.Run("skips unreachable routes", func(t *testing.T) {
		cm := &routedManager{
			Manager: newManager(t, "http://127.0.0.1:1", true),
			routes:  []interfaces.Route{{BaseURL: deadURL, Priority: 1}, {BaseURL: s.ts.URL, Priority: 2}},
		}
		handle, err := e.NewLookupRoutes(context.Background(), cm, testAuth, testRequest(t))
		require.NoError(t, err)
		assert.Equal(t, s.ts.URL, handle.BaseURL)
		require.NoError(t, handle.Close())
	})

	t.Run("falls back to direct endpoint", func(t *testing.T) {
		cm := &routedManager{Manager: newManager(t, s.ts.URL, true)}
		handle, err := e.NewLookupRoutes(context.Background(), cm, testAuth, testRequest(t))
		require.NoError(t, err)
		assert.Equal(t, s.ts.URL, handle.BaseURL)
		require.NoError(t, handle.Close())
	})

	t.Run("attestation failure stops", func(t *testing.T) {
		other := startStub(t)
		cm := &routedManager{
			Manager: newManager(t, "http://127.0.0.1:1", false),
			routes:  []interfaces.Route{{BaseURL: s.ts.URL}, {BaseURL: other.ts.URL}},
		}
		_, err := e.NewLookupRoutes(context.Background(), cm, testAuth, testRequest(t))
		require.ErrorIs(t, err, interfaces.ErrConnection)
		assert.ErrorIs(t, err, cryptoutils.ErrInsecureAttestation)
		assert.Zero(t, s.handler.OpenSessions())
		assert.Zero(t, other.handler.OpenSessions())
	})

	t.Run("all routes unreachable", func(t *testing.T) {
		cm := &routedManager{
			Manager: newManager(t, s.ts.URL, true),
			routes:  []interfaces.Route{{BaseURL: deadURL}},
		}
		_, err := e.NewLookupRoutes(context.Background(), cm, testAuth, testRequest(t))
		require.ErrorIs(t, err, interfaces.ErrConnection)
		assert.ErrorIs(t, err, errUnreachable)
	})
}

func TestClientLookup_OverHTTP(t *testing.T) {
	s := startStub(t)
	ac := asyncctx.New(discardLog)
	t.Cleanup(ac.Close)

	client, err := cdsi.NewClient(cdsi.Deps{
		AsyncContext:      ac,
		ConnectionManager: newManager(t, s.ts.URL, true),
		Engine:            New(discardLog),
		Log:               discardLog,
	})
	require.NoError(t, err)

	for _, useNewConnectLogic := range []bool{false, true} {
		resp, err := client.Lookup(context.Background(), testAuth, cdsi.RequestOptions{
			E164s:              []string{"+15551234567", "+15550000000"},
			ACIsAndAccessKeys:  []cdsi.AccessKeyPair{{ACI: testACI, AccessKey: testAccessKey}},
			UseNewConnectLogic: useNewConnectLogic,
		})
		require.NoError(t, err)
		require.Len(t, resp.Entries, 1)
		entry := resp.Entries["+15551234567"]
		require.NotNil(t, entry.ACI)
		assert.Equal(t, testACI, *entry.ACI)
		assert.Equal(t, testPNI, *entry.PNI)
		assert.Equal(t, 2, resp.DebugPermitsUsed)
	}

	assert.Zero(t, s.handler.OpenSessions())
}

func newStubClient(t *testing.T, endpoint string) (*cdsi.Client, *asyncctx.AsyncContext) {
	ac := asyncctx.New(discardLog)
	t.Cleanup(ac.Close)

	client, err := cdsi.NewClient(cdsi.Deps{
		AsyncContext:      ac,
		ConnectionManager: newManager(t, endpoint, true),
		Engine:            New(discardLog),
		Log:               discardLog,
	})
	require.NoError(t, err)
	return client, ac
}

// holdingServer forwards to the stub but holds requests whose path ends with
// suffix until the caller goes away. reached is closed when one arrives.
func holdingServer(t *testing.T, s *stub, suffix string) (url string, reached <-chan struct{}) {
	ch := make(chan struct{})
	var once sync.Once
	upstream := s.ts.Config.Handler

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, suffix) {
			once.Do(func() { close(ch) })
			select {
			case <-r.Context().Done():
			case <-time.After(10 * time.Second):
			}
			http.Error(w, "held", http.StatusServiceUnavailable)
			return
		}
		upstream.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts.URL, ch
}

func TestClientLookup_CancelledBeforeConnect(t *testing.T) {
	s := startStub(t)
	client, ac := newStubClient(t, s.ts.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Lookup(ctx, testAuth, cdsi.RequestOptions{E164s: []string{"+15551234567"}})
	require.ErrorIs(t, err, interfaces.ErrCancelled)

	assert.Eventually(t, func() bool { return ac.InFlight() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return s.handler.OpenSessions() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestClientLookup_CancelReleasesSession(t *testing.T) {
	tests := []struct {
		name   string
		holdAt string
	}{
		{"during connect after attest", "/request"},
		{"during completion", "/complete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := startStub(t)
			url, reached := holdingServer(t, s, tt.holdAt)
			client, ac := newStubClient(t, url)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() {
				<-reached
				assert.Equal(t, 1, s.handler.OpenSessions())
				cancel()
			}()

			_, err := client.Lookup(ctx, testAuth, cdsi.RequestOptions{E164s: []string{"+15551234567"}})
			require.ErrorIs(t, err, interfaces.ErrCancelled)

			assert.Eventually(t, func() bool { return s.handler.OpenSessions() == 0 }, 5*time.Second, 10*time.Millisecond)
			assert.Eventually(t, func() bool { return ac.InFlight() == 0 }, 5*time.Second, 10*time.Millisecond)
		})
	}
}
