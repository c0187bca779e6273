// Package directory holds the phone number directory served by the stub lookup
// server.
//
// A directory is a JSON list of records loaded from a file or an S3 object:
//
//	[{"e164": "+15551234567", "aci": "<uuid>", "pni": "PNI:<uuid>", "access_key": "<base64>"}]
//
// Load picks the source from the URI scheme:
//   - file:///path/to/directory.json
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/key.json?region=us-east-1&endpoint=http://localhost:9000
package directory
