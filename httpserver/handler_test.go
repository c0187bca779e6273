package httpserver

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ruteri/cdsi-client/api"
	"github.com/ruteri/cdsi-client/cryptoutils"
	"github.com/ruteri/cdsi-client/directory"
	"github.com/ruteri/cdsi-client/interfaces"
	"github.com/ruteri/cdsi-client/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEnclave = "test-enclave"
	testACI     = "9d0652a3-dcc3-4d11-975f-74d61598733f"
	testPNI     = "PNI:2e2b4b6c-6b50-4b64-a7b1-4b09e2d9c1f0"
)

var (
	testAccessKey = []byte("0123456789abcdef")
	testAuth      = interfaces.ServiceAuth{Username: "user", Password: "pass"}
)

func newTestServer(t *testing.T) (*httptest.Server, *Handler) {
	dir, err := directory.New([]directory.Record{
		{E164: "+15551234567", ACI: testACI, PNI: testPNI, AccessKey: base64.StdEncoding.EncodeToString(testAccessKey)},
		{E164: "+15557654321", PNI: "PNI:7d4e3a5f-2c1b-4e6d-8f9a-0b1c2d3e4f5a"},
	})
	require.NoError(t, err)

	srv, err := New(&api.HTTPServerConfig{
		Log:                 slog.New(slog.NewTextHandler(io.Discard, nil)),
		EnclaveID:           testEnclave,
		Credentials:         testAuth,
		AttestationProvider: cryptoutils.DummyAttestationProvider{},
		SessionTTL:          time.Minute,
	}, dir)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, srv.Handler()
}

// testSession drives the protocol by hand.
type testSession struct {
	t      *testing.T
	url    string
	id     string
	cipher *cryptoutils.SessionCipher
}

func post(t *testing.T, url string, in any) *http.Response {
	body, err := json.Marshal(in)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.SetBasicAuth(testAuth.Username, testAuth.Password)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func attest(t *testing.T, url string) *testSession {
	keypair, err := cryptoutils.NewX25519Keypair()
	require.NoError(t, err)

	resp := post(t, api.AttestURL(url, testEnclave), api.AttestRequest{ClientPubkey: keypair.Public[:]})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var attestResp api.AttestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&attestResp))
	assert.Equal(t, "dummy", attestResp.AttestationType)

	reportData := cryptoutils.ReportData(attestResp.ServerPubkey, keypair.Public[:])
	require.NoError(t, cryptoutils.VerifyAttestation(cryptoutils.AttestationPolicy{AllowInsecure: true}, attestResp.AttestationType, reportData, attestResp.Quote))

	shared, err := keypair.SharedSecret(attestResp.ServerPubkey)
	require.NoError(t, err)
	cipher, err := cryptoutils.NewSessionCipher(shared, []byte(attestResp.SessionID), cryptoutils.ClientRole)
	require.NoError(t, err)

	return &testSession{t: t, url: url, id: attestResp.SessionID, cipher: cipher}
}

func (s *testSession) exchange(url string, in, out any) int {
	plaintext, err := json.Marshal(in)
	require.NoError(s.t, err)

	resp := post(s.t, url, api.EncryptedMessage{Ciphertext: s.cipher.Seal(plaintext)})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode
	}

	var msg api.EncryptedMessage
	require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&msg))
	decrypted, err := s.cipher.Open(msg.Ciphertext)
	require.NoError(s.t, err)
	require.NoError(s.t, json.Unmarshal(decrypted, out))
	return resp.StatusCode
}

func fixedWidth(t *testing.T, s string) []byte {
	id, err := interfaces.ParseServiceIDString(s)
	require.NoError(t, err)
	b := id.FixedWidthBinary()
	return b[:]
}

func TestLookupFlow(t *testing.T) {
	ts, handler := newTestServer(t)
	sess := attest(t, ts.URL)
	assert.Equal(t, 1, handler.OpenSessions())

	var tokenResp api.TokenResponse
	status := sess.exchange(api.RequestURL(ts.URL, sess.id), api.ClientRequest{
		E164s:       []string{"+15551234567", "+15557654321", "+15550000000"},
		ACIUAKPairs: []api.ACIAccessKeyPair{{ACI: fixedWidth(t, testACI), AccessKey: testAccessKey}},
	}, &tokenResp)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, tokenResp.Token, tokenSize)

	var clientResp api.ClientResponse
	status = sess.exchange(api.CompleteURL(ts.URL, sess.id), api.TokenAck{TokenAck: true}, &clientResp)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, 3, clientResp.DebugPermitsUsed)
	require.Len(t, clientResp.Entries, 2)
	assert.Equal(t, "+15551234567", clientResp.Entries[0].E164)
	assert.Equal(t, fixedWidth(t, testACI), clientResp.Entries[0].ACI)
	assert.Equal(t, fixedWidth(t, testPNI), clientResp.Entries[0].PNI)
	assert.Equal(t, "+15557654321", clientResp.Entries[1].E164)
	assert.Nil(t, clientResp.Entries[1].ACI)

	assert.Zero(t, handler.OpenSessions())
}

func TestHandleAttest_Errors(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("unknown enclave", func(t *testing.T) {
		resp := post(t, api.AttestURL(ts.URL, "other"), api.AttestRequest{ClientPubkey: make([]byte, 32)})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad public key", func(t *testing.T) {
		resp := post(t, api.AttestURL(ts.URL, testEnclave), api.AttestRequest{ClientPubkey: []byte{1, 2, 3}})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing credentials", func(t *testing.T) {
		resp, err := http.Post(api.AttestURL(ts.URL, testEnclave), "application/json", bytes.NewReader([]byte(`{}`)))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestSessionStateEnforced(t *testing.T) {
	ts, _ := newTestServer(t)
	sess := attest(t, ts.URL)

	var clientResp api.ClientResponse
	status := sess.exchange(api.CompleteURL(ts.URL, sess.id), api.TokenAck{TokenAck: true}, &clientResp)
	assert.Equal(t, http.StatusConflict, status)

	var tokenResp api.TokenResponse
	status = sess.exchange(api.RequestURL(ts.URL, "unknown"), api.ClientRequest{}, &tokenResp)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHandleRequest_BadCiphertext(t *testing.T) {
	ts, _ := newTestServer(t)
	sess := attest(t, ts.URL)

	resp := post(t, api.RequestURL(ts.URL, sess.id), api.EncryptedMessage{Ciphertext: []byte("garbage")})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleDelete(t *testing.T) {
	ts, handler := newTestServer(t)
	sess := attest(t, ts.URL)

	del := func() int {
		req, err := http.NewRequest(http.MethodDelete, api.SessionURL(ts.URL, sess.id), nil)
		require.NoError(t, err)
		req.SetBasicAuth(testAuth.Username, testAuth.Password)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, del())
	assert.Zero(t, handler.OpenSessions())
	assert.Equal(t, http.StatusNotFound, del())
}

func TestSessionExpiry(t *testing.T) {
	registry := prometheus.NewRegistry()
	handler := NewHandler(&api.HTTPServerConfig{
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		EnclaveID:  testEnclave,
		SessionTTL: time.Minute,
	}, nil, metrics.NewServerMetrics(registry))

	now := time.Now()
	handler.sessions.now = func() time.Time { return now }
	handler.sessions.put(&session{id: "a"})
	handler.sessions.put(&session{id: "b"})

	now = now.Add(2 * time.Minute)
	_, ok := handler.sessions.get("a")
	assert.False(t, ok)

	handler.ExpireSessions()
	assert.Zero(t, handler.OpenSessions())
	assert.Equal(t, 1, testutil.CollectAndCount(registry, "cdsi_server_sessions_total"))
}

func TestHealthEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	get := func(path string) int {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get("/livez"))
	assert.Equal(t, http.StatusOK, get("/readyz"))
	assert.Equal(t, http.StatusOK, get("/drain"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))
	assert.Equal(t, http.StatusOK, get("/undrain"))
	assert.Equal(t, http.StatusOK, get("/readyz"))
}
