// Package interfaces defines the core types and collaborator interfaces of the
// contact discovery lookup client, separating definitions from implementations.
//
// # Identity Types
//
// ServiceID: an account identifier (ACI) or phone number identifier (PNI) backed
// by a UUID. Its fixed-width binary form (one kind byte followed by 16 UUID bytes)
// is what the lookup protocol carries on the wire.
//
// # Lookup Types
//
// LookupHandle: opaque token for an attested lookup session that has submitted its
// request and is waiting to be completed. It is consumed exactly once.
//
// RawLookupResult: the engine-native result, keyed by E.164 number.
//
// # Collaborators
//
// ConnectionManager: the shared, externally owned transport configuration (HTTP
// client, direct endpoint, DNS routes, attestation policy) borrowed by lookups.
//
// # Errors
//
// ErrParse, ErrEncoding, ErrConnection, ErrProtocol and ErrCancelled classify
// lookup failures and are matched with errors.Is.
package interfaces
