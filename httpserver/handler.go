package httpserver

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruteri/cdsi-client/api"
	"github.com/ruteri/cdsi-client/cryptoutils"
	"github.com/ruteri/cdsi-client/directory"
	"github.com/ruteri/cdsi-client/interfaces"
	"github.com/ruteri/cdsi-client/metrics"
)

const (
	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024

	tokenSize = 32
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func requestErrorf(status int, format string, args ...any) *RequestError {
	return &RequestError{StatusCode: status, Err: fmt.Errorf(format, args...)}
}

// Handler serves the lookup protocol from a directory.
type Handler struct {
	enclaveID   string
	credentials interfaces.ServiceAuth
	provider    cryptoutils.AttestationProvider
	directory   *directory.Directory
	sessions    *sessionStore
	metrics     *metrics.ServerMetrics
	log         *slog.Logger
}

// NewHandler creates a lookup handler. A nil metrics records nothing.
func NewHandler(cfg *api.HTTPServerConfig, dir *directory.Directory, m *metrics.ServerMetrics) *Handler {
	provider := cfg.AttestationProvider
	if provider == nil {
		provider = cryptoutils.DummyAttestationProvider{}
	}
	return &Handler{
		enclaveID:   cfg.EnclaveID,
		credentials: cfg.Credentials,
		provider:    provider,
		directory:   dir,
		sessions:    newSessionStore(cfg.SessionTTL),
		metrics:     m,
		log:         cfg.Log,
	}
}

// RequireAuth rejects requests without the configured basic auth credentials.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.credentials.Username != "" {
			username, password, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(username), []byte(h.credentials.Username)) != 1 ||
				subtle.ConstantTimeCompare([]byte(password), []byte(h.credentials.Password)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="cdsi"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HandleAttest opens a session.
//
// URL format: POST /v1/{enclave}/attest
//
// Request body: api.AttestRequest
// Response: api.AttestResponse
func (h *Handler) HandleAttest(w http.ResponseWriter, r *http.Request) {
	if enclave := chi.URLParam(r, "enclave"); enclave != h.enclaveID {
		http.Error(w, fmt.Sprintf("Unknown enclave %q", enclave), http.StatusNotFound)
		return
	}

	var req api.AttestRequest
	if err := readJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	resp, err := h.attest(req.ClientPubkey)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.metrics.SessionEvent("attested")
	writeJSON(w, h.log, resp)
}

func (h *Handler) attest(clientPubkey []byte) (*api.AttestResponse, error) {
	keypair, err := cryptoutils.NewX25519Keypair()
	if err != nil {
		return nil, err
	}

	shared, err := keypair.SharedSecret(clientPubkey)
	if err != nil {
		return nil, requestErrorf(http.StatusBadRequest, "invalid client public key: %w", err)
	}

	quote, err := h.provider.Attest(cryptoutils.ReportData(keypair.Public[:], clientPubkey))
	if err != nil {
		return nil, fmt.Errorf("attestation failed: %w", err)
	}

	sess := &session{id: uuid.New().String()}
	sess.cipher, err = cryptoutils.NewSessionCipher(shared, []byte(sess.id), cryptoutils.ServerRole)
	if err != nil {
		return nil, err
	}
	h.sessions.put(sess)

	h.log.Debug("Session opened", slog.String("session", sess.id))
	return &api.AttestResponse{
		SessionID:       sess.id,
		ServerPubkey:    keypair.Public[:],
		AttestationType: h.provider.AttestationType().String(),
		Quote:           quote,
	}, nil
}

// HandleRequest accepts the encrypted lookup request of a session and runs
// the match.
//
// URL format: POST /v1/sessions/{session_id}/request
//
// Request body: api.EncryptedMessage wrapping api.ClientRequest
// Response: api.EncryptedMessage wrapping api.TokenResponse
func (h *Handler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r, sessionAttested)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer sess.mu.Unlock()

	var clientReq api.ClientRequest
	if err := h.open(r, sess, &clientReq); err != nil {
		h.writeError(w, err)
		return
	}

	acis := make([]directory.ACIAccessKey, 0, len(clientReq.ACIUAKPairs))
	for _, pair := range clientReq.ACIUAKPairs {
		aci, err := interfaces.ParseServiceIDFixedWidthBinary(pair.ACI)
		if err != nil || aci.Kind != interfaces.ACIKind {
			h.writeError(w, requestErrorf(http.StatusBadRequest, "invalid ACI in request"))
			return
		}
		acis = append(acis, directory.ACIAccessKey{ACI: aci, AccessKey: pair.AccessKey})
	}

	matches, permitsUsed := h.directory.Lookup(clientReq.E164s, acis)
	resp := api.ClientResponse{
		Entries:          make([]api.ResponseTriple, 0, len(matches)),
		DebugPermitsUsed: permitsUsed,
	}
	for _, m := range matches {
		pni := m.PNI.FixedWidthBinary()
		triple := api.ResponseTriple{E164: m.E164, PNI: pni[:]}
		if m.ACI != nil {
			aci := m.ACI.FixedWidthBinary()
			triple.ACI = aci[:]
		}
		resp.Entries = append(resp.Entries, triple)
	}

	sess.result, err = json.Marshal(resp)
	if err != nil {
		h.writeError(w, err)
		return
	}
	sess.token = make([]byte, tokenSize)
	if _, err := rand.Read(sess.token); err != nil {
		h.writeError(w, err)
		return
	}
	sess.state = sessionRequested

	h.metrics.SessionEvent("requested")
	h.metrics.PermitsUsed(permitsUsed)
	h.log.Debug("Lookup request accepted",
		slog.String("session", sess.id),
		slog.Int("e164s", len(clientReq.E164s)),
		slog.Int("matches", len(matches)))

	h.seal(w, sess, api.TokenResponse{Token: sess.token})
}

// HandleComplete returns the result of a session and closes it.
//
// URL format: POST /v1/sessions/{session_id}/complete
//
// Request body: api.EncryptedMessage wrapping api.TokenAck
// Response: api.EncryptedMessage wrapping api.ClientResponse
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r, sessionRequested)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer sess.mu.Unlock()

	var ack api.TokenAck
	if err := h.open(r, sess, &ack); err != nil {
		h.writeError(w, err)
		return
	}
	if !ack.TokenAck {
		h.writeError(w, requestErrorf(http.StatusBadRequest, "token not acknowledged"))
		return
	}

	ciphertext := sess.cipher.Seal(sess.result)
	h.sessions.remove(sess.id)
	h.metrics.SessionEvent("completed")
	h.log.Debug("Session completed", slog.String("session", sess.id))

	writeJSON(w, h.log, api.EncryptedMessage{Ciphertext: ciphertext})
}

// HandleDelete releases a session that will not be completed.
//
// URL format: DELETE /v1/sessions/{session_id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	if !h.sessions.remove(id) {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}

	h.metrics.SessionEvent("released")
	h.log.Debug("Session released", slog.String("session", id))
	w.WriteHeader(http.StatusOK)
}

// ExpireSessions drops sessions older than the configured TTL.
func (h *Handler) ExpireSessions() {
	if n := h.sessions.expire(); n > 0 {
		for i := 0; i < n; i++ {
			h.metrics.SessionEvent("expired")
		}
		h.log.Debug("Expired sessions", slog.Int("count", n))
	}
}

// OpenSessions returns the number of sessions not yet completed or released.
func (h *Handler) OpenSessions() int {
	return h.sessions.len()
}

// session looks up the session in the URL and locks it. The caller unlocks.
func (h *Handler) session(r *http.Request, want sessionState) (*session, error) {
	sess, ok := h.sessions.get(chi.URLParam(r, "session_id"))
	if !ok {
		return nil, requestErrorf(http.StatusNotFound, "unknown session")
	}

	sess.mu.Lock()
	if sess.state != want {
		sess.mu.Unlock()
		return nil, requestErrorf(http.StatusConflict, "session is not expecting this message")
	}
	return sess, nil
}

func (h *Handler) open(r *http.Request, sess *session, out any) error {
	var msg api.EncryptedMessage
	if err := readJSON(r, &msg); err != nil {
		return err
	}

	plaintext, err := sess.cipher.Open(msg.Ciphertext)
	if err != nil {
		return &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return requestErrorf(http.StatusBadRequest, "invalid message: %w", err)
	}
	return nil
}

func (h *Handler) seal(w http.ResponseWriter, sess *session, in any) {
	plaintext, err := json.Marshal(in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, h.log, api.EncryptedMessage{Ciphertext: sess.cipher.Seal(plaintext)})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		h.log.Debug("Rejected request", "err", err)
		http.Error(w, reqErr.Error(), reqErr.StatusCode)
		return
	}
	h.log.Error("Request failed", "err", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func readJSON(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return requestErrorf(http.StatusBadRequest, "failed to read request body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return requestErrorf(http.StatusBadRequest, "invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response", "err", err)
	}
}

// sweepInterval is how often expired sessions are dropped.
func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	if interval := ttl / 2; interval > time.Second {
		return interval
	}
	return time.Second
}
