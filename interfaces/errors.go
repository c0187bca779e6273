package interfaces

import "errors"

var (
	// ErrParse is returned when a service identifier string is malformed.
	ErrParse = errors.New("malformed service identifier")

	// ErrEncoding is returned when an access key is not valid base64.
	ErrEncoding = errors.New("malformed access key encoding")

	// ErrConnection is returned when the connect-and-attest phase fails.
	ErrConnection = errors.New("lookup connection failed")

	// ErrProtocol is returned when the completion phase fails.
	ErrProtocol = errors.New("lookup protocol error")

	// ErrCancelled is returned when a lookup phase was aborted by the caller.
	ErrCancelled = errors.New("lookup cancelled")

	// ErrHandleConsumed is returned when a lookup handle is used a second time.
	ErrHandleConsumed = errors.New("lookup handle already consumed")
)
