package api

import "fmt"

// Paths of the lookup protocol, relative to the service base URL.
const (
	// AttestPath opens a session and returns the enclave's attestation.
	AttestPath = "/v1/{enclave}/attest"

	// RequestPath submits the encrypted lookup request of a session.
	RequestPath = "/v1/sessions/{session_id}/request"

	// CompletePath acknowledges the token and returns the encrypted result.
	CompletePath = "/v1/sessions/{session_id}/complete"

	// SessionPath releases an abandoned session (DELETE).
	SessionPath = "/v1/sessions/{session_id}"
)

// AttestURL returns the URL opening a session with enclave.
func AttestURL(baseURL, enclave string) string {
	return fmt.Sprintf("%s/v1/%s/attest", baseURL, enclave)
}

// RequestURL returns the URL the encrypted request of a session is posted to.
func RequestURL(baseURL, sessionID string) string {
	return fmt.Sprintf("%s/v1/sessions/%s/request", baseURL, sessionID)
}

// CompleteURL returns the URL the token acknowledgement of a session is posted to.
func CompleteURL(baseURL, sessionID string) string {
	return fmt.Sprintf("%s/v1/sessions/%s/complete", baseURL, sessionID)
}

// SessionURL returns the URL of a session, used to release it.
func SessionURL(baseURL, sessionID string) string {
	return fmt.Sprintf("%s/v1/sessions/%s", baseURL, sessionID)
}

// AttestRequest opens a session. Byte fields are base64 encoded in JSON.
type AttestRequest struct {
	ClientPubkey []byte `json:"client_pubkey"`
}

// AttestResponse carries the enclave's session key and its attestation.
// The quote's report data commits to sha256(server_pubkey || client_pubkey).
type AttestResponse struct {
	SessionID       string `json:"session_id"`
	ServerPubkey    []byte `json:"server_pubkey"`
	AttestationType string `json:"attestation_type"`
	Quote           []byte `json:"quote"`
}

// EncryptedMessage wraps a session-encrypted JSON document.
type EncryptedMessage struct {
	Ciphertext []byte `json:"ciphertext"`
}

// ACIAccessKeyPair is an ACI in fixed-width binary form with its access key.
type ACIAccessKeyPair struct {
	ACI       []byte `json:"aci"`
	AccessKey []byte `json:"access_key"`
}

// ClientRequest is the plaintext of the lookup request.
type ClientRequest struct {
	E164s       []string           `json:"e164s"`
	ACIUAKPairs []ACIAccessKeyPair `json:"aci_uak_pairs"`
}

// TokenResponse is the plaintext answer to a ClientRequest.
type TokenResponse struct {
	Token []byte `json:"token"`
}

// TokenAck is the plaintext of the completion request.
type TokenAck struct {
	TokenAck bool `json:"token_ack"`
}

// ResponseTriple is one matched phone number. ACI and PNI are fixed-width
// binary service ids and are omitted when absent.
type ResponseTriple struct {
	E164 string `json:"e164"`
	ACI  []byte `json:"aci,omitempty"`
	PNI  []byte `json:"pni,omitempty"`
}

// ClientResponse is the plaintext of the completion response.
type ClientResponse struct {
	Entries          []ResponseTriple `json:"entries"`
	DebugPermitsUsed int              `json:"debug_permits_used"`
}
