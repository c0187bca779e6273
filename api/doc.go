/*
Package api defines the wire contract between the lookup engine and a lookup
service, and the configuration of the HTTP servers in this module.

# Protocol

	POST   /v1/{enclave}/attest                 AttestRequest  -> AttestResponse
	POST   /v1/sessions/{session_id}/request    EncryptedMessage(ClientRequest) -> EncryptedMessage(TokenResponse)
	POST   /v1/sessions/{session_id}/complete   EncryptedMessage(TokenAck)      -> EncryptedMessage(ClientResponse)
	DELETE /v1/sessions/{session_id}            releases an abandoned session

The attest call is authenticated with HTTP basic auth. Every later message is
sealed with the session cipher derived from the attest exchange (see package
cryptoutils). Sessions are single use: a completed or deleted session is gone.

Errors are plain-text bodies with a non-200 status:

  - 400: malformed request or undecryptable message
  - 401: bad credentials
  - 404: unknown session
  - 409: message out of order for the session
*/
package api
