// Package cryptoutils provides the cryptographic building blocks of an attested
// lookup session.
//
// # Attestation
//
// The enclave proves its identity with a quote over 64 bytes of report data. The
// report data binds both session public keys:
//
//	report_data[0:32]  = sha256(server_pubkey || client_pubkey)
//	report_data[32:64] = zero
//
// Supported attestation types:
//
//   - "qemu-tdx": Intel TDX DCAP quotes, verified with go-tdx-guest. Optional
//     expected measurements (MRTD, RTMRs) are compared after verification.
//   - "dummy": deterministic development quotes. Only accepted when the
//     AttestationPolicy explicitly allows insecure attestation.
//
// # Session Encryption
//
// Both peers generate X25519 key pairs. The shared secret is expanded with
// HKDF-SHA256 (salt = session id) into two ChaCha20-Poly1305 keys, one per
// direction. Nonces are 96-bit big-endian message counters, so every message in a
// direction must be opened in the order it was sealed.
//
//	okm = HKDF-SHA256(ikm = X25519(priv, peer_pub), salt = session_id, info = "cdsi session keys v1")
//	client->server key = okm[0:32]
//	server->client key = okm[32:64]
package cryptoutils
