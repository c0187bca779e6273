// Package main (cmd/cdsi-lookup) performs a single contact discovery lookup and
// prints the response as JSON on stdout.
//
// Example:
//
//	cdsi-lookup --endpoint https://cdsi.example.org --enclave <enclave-id> \
//	  --username user --password pass \
//	  --e164 +15551234567 --e164 +15557654321 \
//	  --aci-access-key 9d0652a3-dcc3-4d11-975f-74d61598733f=MDEyMzQ1Njc4OWFiY2RlZg==
//
// With --route-domain and --use-new-connect-logic the endpoints are resolved from
// _cdsi._tcp.<domain> SRV records. SIGINT and --timeout cancel the lookup.
package main
