// Package main (cmd/cdsi-stub) runs the stub lookup enclave.
//
// The directory is loaded once at startup from a file or S3 object:
//
//	cdsi-stub --listen-addr 127.0.0.1:8080 --enclave default \
//	  --directory file://./directory.json --username user --password pass
//
// Quotes are dummy attestations unless --attestation-type qemu-tdx is given on
// TDX hardware.
package main
