/*
Package connmgr provides the shared connection manager lookups borrow.

A Manager holds the HTTP client, the direct endpoint and the attestation policy
of a lookup service. For the route-based connect strategy it resolves
_cdsi._tcp.<domain> SRV records and orders the targets by priority, then by
descending weight.
*/
package connmgr
