// Package engine implements the attested lookup protocol over HTTP.
//
// Engine satisfies cdsi.Engine. The connect phase opens a session, verifies the
// enclave attestation against the connection manager's policy, derives the
// session cipher and submits the encrypted request; it yields a LookupHandle.
// The completion phase consumes the handle, acknowledges the token and decrypts
// the result.
//
// Failures of the connect phase wrap interfaces.ErrConnection, failures of the
// completion phase wrap interfaces.ErrProtocol. With the route-based strategy a
// route that cannot be reached is skipped; any other failure ends the lookup.
package engine
