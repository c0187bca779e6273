package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ruteri/cdsi-client/api"
	"github.com/ruteri/cdsi-client/cdsi"
	"github.com/ruteri/cdsi-client/cryptoutils"
	"github.com/ruteri/cdsi-client/interfaces"
	"go.uber.org/atomic"
)

// DefaultReleaseTimeout bounds the DELETE sent for an abandoned session.
const DefaultReleaseTimeout = 5 * time.Second

var _ cdsi.Engine = (*Engine)(nil)

// Engine speaks the lookup protocol to the endpoints of a connection manager.
type Engine struct {
	log            *slog.Logger
	releaseTimeout time.Duration
}

// New creates an engine. A nil logger uses slog.Default().
func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		log:            log,
		releaseTimeout: DefaultReleaseTimeout,
	}
}

// session is the engine-private state carried by a LookupHandle.
type session struct {
	client    *http.Client
	auth      interfaces.ServiceAuth
	baseURL   string
	sessionID string
	cipher    *cryptoutils.SessionCipher

	// completed is set once the service has returned the result, after which
	// the session no longer exists remotely.
	completed atomic.Bool
}

// NewLookup runs the connect phase against the direct endpoint.
func (e *Engine) NewLookup(ctx context.Context, cm interfaces.ConnectionManager, auth interfaces.ServiceAuth, req *cdsi.LookupRequest) (*interfaces.LookupHandle, error) {
	handle, err := e.connect(ctx, cm, auth, req, cm.DirectEndpoint())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrConnection, err)
	}
	return handle, nil
}

// NewLookupRoutes runs the connect phase over the resolved routes in order. An
// unreachable route is skipped; when no routes resolve the direct endpoint is
// used.
func (e *Engine) NewLookupRoutes(ctx context.Context, cm interfaces.ConnectionManager, auth interfaces.ServiceAuth, req *cdsi.LookupRequest) (*interfaces.LookupHandle, error) {
	routes, err := cm.Routes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving routes: %w", interfaces.ErrConnection, err)
	}
	if len(routes) == 0 {
		e.log.Debug("no routes resolved, using direct endpoint", "endpoint", cm.DirectEndpoint())
		routes = []interfaces.Route{{BaseURL: cm.DirectEndpoint()}}
	}

	var errs []error
	for _, route := range routes {
		handle, err := e.connect(ctx, cm, auth, req, route.BaseURL)
		if err == nil {
			return handle, nil
		}
		if !errors.Is(err, errUnreachable) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %w", interfaces.ErrConnection, route.BaseURL, err)
		}
		e.log.Warn("route unreachable", "route", route.BaseURL, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", route.BaseURL, err))
	}
	return nil, fmt.Errorf("%w: all routes failed: %w", interfaces.ErrConnection, errors.Join(errs...))
}

func (e *Engine) connect(ctx context.Context, cm interfaces.ConnectionManager, auth interfaces.ServiceAuth, req *cdsi.LookupRequest, baseURL string) (*interfaces.LookupHandle, error) {
	client := cm.HTTPClient()

	keypair, err := cryptoutils.NewX25519Keypair()
	if err != nil {
		return nil, err
	}

	var attestResp api.AttestResponse
	err = doJSON(ctx, client, http.MethodPost, api.AttestURL(baseURL, cm.EnclaveID()), &auth, api.AttestRequest{ClientPubkey: keypair.Public[:]}, &attestResp)
	if err != nil {
		return nil, fmt.Errorf("attest: %w", err)
	}
	if attestResp.SessionID == "" {
		return nil, errors.New("attest: missing session id")
	}

	s := &session{
		client:    client,
		auth:      auth,
		baseURL:   baseURL,
		sessionID: attestResp.SessionID,
	}
	// From here on the remote session exists and must be released on failure.
	handle, err := e.establish(ctx, cm, s, keypair, &attestResp, req)
	if err != nil {
		if releaseErr := e.release(s); releaseErr != nil {
			e.log.Debug("could not release failed session", "session", s.sessionID, "err", releaseErr)
		}
		return nil, err
	}
	return handle, nil
}

func (e *Engine) establish(ctx context.Context, cm interfaces.ConnectionManager, s *session, keypair *cryptoutils.X25519Keypair, attestResp *api.AttestResponse, req *cdsi.LookupRequest) (*interfaces.LookupHandle, error) {
	reportData := cryptoutils.ReportData(attestResp.ServerPubkey, keypair.Public[:])
	if err := cryptoutils.VerifyAttestation(cm.AttestationPolicy(), attestResp.AttestationType, reportData, attestResp.Quote); err != nil {
		return nil, fmt.Errorf("attestation verification failed: %w", err)
	}

	shared, err := keypair.SharedSecret(attestResp.ServerPubkey)
	if err != nil {
		return nil, err
	}
	s.cipher, err = cryptoutils.NewSessionCipher(shared, []byte(s.sessionID), cryptoutils.ClientRole)
	if err != nil {
		return nil, err
	}

	clientReq := api.ClientRequest{E164s: req.E164s()}
	for _, entry := range req.ACIsAndAccessKeys() {
		clientReq.ACIUAKPairs = append(clientReq.ACIUAKPairs, api.ACIAccessKeyPair{
			ACI:       entry.ACI[:],
			AccessKey: entry.AccessKey,
		})
	}

	var tokenResp api.TokenResponse
	if err := s.exchange(ctx, api.RequestURL(s.baseURL, s.sessionID), clientReq, &tokenResp); err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if len(tokenResp.Token) == 0 {
		return nil, errors.New("request: empty token")
	}

	e.log.Debug("lookup session established", "session", s.sessionID, "endpoint", s.baseURL)
	return interfaces.NewLookupHandle(s.sessionID, s.baseURL, tokenResp.Token, s, func() error {
		return e.release(s)
	}), nil
}

// Complete acknowledges the token and decodes the result. The handle is
// released on every exit path.
func (e *Engine) Complete(ctx context.Context, handle *interfaces.LookupHandle) (*interfaces.RawLookupResult, error) {
	if handle == nil {
		return nil, fmt.Errorf("%w: nil handle", interfaces.ErrProtocol)
	}
	if err := handle.Consume(); err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrProtocol, err)
	}
	defer handle.Close()

	s, ok := handle.State().(*session)
	if !ok {
		return nil, fmt.Errorf("%w: handle was not created by this engine", interfaces.ErrProtocol)
	}

	var clientResp api.ClientResponse
	if err := s.exchange(ctx, api.CompleteURL(s.baseURL, s.sessionID), api.TokenAck{TokenAck: true}, &clientResp); err != nil {
		return nil, fmt.Errorf("%w: complete: %w", interfaces.ErrProtocol, err)
	}
	s.completed.Store(true)

	result, err := decodeResponse(&clientResp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrProtocol, err)
	}
	return result, nil
}

// exchange seals in, posts it and opens the encrypted reply into out.
func (s *session) exchange(ctx context.Context, url string, in, out any) error {
	plaintext, err := json.Marshal(in)
	if err != nil {
		return err
	}

	var reply api.EncryptedMessage
	if err := doJSON(ctx, s.client, http.MethodPost, url, &s.auth, api.EncryptedMessage{Ciphertext: s.cipher.Seal(plaintext)}, &reply); err != nil {
		return err
	}

	decrypted, err := s.cipher.Open(reply.Ciphertext)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(decrypted, out); err != nil {
		return fmt.Errorf("could not parse decrypted message: %w", err)
	}
	return nil
}

// release deletes the remote session unless it already completed. It does not
// use the lookup's context, which is usually cancelled by the time it runs.
func (e *Engine) release(s *session) error {
	if s.completed.Load() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.releaseTimeout)
	defer cancel()

	err := doJSON(ctx, s.client, http.MethodDelete, api.SessionURL(s.baseURL, s.sessionID), &s.auth, nil, nil)
	var se *statusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

func decodeResponse(resp *api.ClientResponse) (*interfaces.RawLookupResult, error) {
	result := &interfaces.RawLookupResult{
		Entries:          make(map[interfaces.E164]interfaces.RawLookupEntry, len(resp.Entries)),
		DebugPermitsUsed: resp.DebugPermitsUsed,
	}

	for _, triple := range resp.Entries {
		if triple.E164 == "" {
			return nil, errors.New("response entry without phone number")
		}
		if _, found := result.Entries[triple.E164]; found {
			return nil, fmt.Errorf("duplicate response entry for %s", triple.E164)
		}

		var entry interfaces.RawLookupEntry
		if len(triple.ACI) > 0 {
			id, err := interfaces.ParseServiceIDFixedWidthBinary(triple.ACI)
			if err != nil || id.Kind != interfaces.ACIKind {
				return nil, fmt.Errorf("invalid ACI for %s", triple.E164)
			}
			entry.ACI = &id
		}
		if len(triple.PNI) > 0 {
			id, err := interfaces.ParseServiceIDFixedWidthBinary(triple.PNI)
			if err != nil || id.Kind != interfaces.PNIKind {
				return nil, fmt.Errorf("invalid PNI for %s", triple.E164)
			}
			entry.PNI = &id
		}
		result.Entries[triple.E164] = entry
	}
	return result, nil
}
