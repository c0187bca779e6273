/*
Package httpserver implements a stub lookup enclave over HTTP.

It speaks the same attested session protocol as the production service so the
lookup client can be exercised end to end without enclave hardware. Matching is
served from a directory loaded at startup.

# Lookup API

All lookup endpoints require HTTP basic auth when credentials are configured.

  - POST /v1/{enclave}/attest - Open a session; returns the server session key and a quote
  - POST /v1/sessions/{session_id}/request - Submit the encrypted request; returns an encrypted token
  - POST /v1/sessions/{session_id}/complete - Acknowledge the token; returns the encrypted result
  - DELETE /v1/sessions/{session_id} - Release an unfinished session

A session that is not completed or released within the session TTL is dropped.

# Matching

  - Every known phone number yields its PNI
  - The ACI is returned only when the request carried that ACI with its access key
  - Unknown numbers are omitted
  - debug_permits_used is the number of distinct phone numbers requested

# Health Endpoints

  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Mark the server not ready
  - GET /undrain - Mark the server ready

When enabled, pprof is mounted under /debug.
*/
package httpserver
