package api

import (
	"log/slog"
	"time"

	"github.com/ruteri/cdsi-client/cryptoutils"
	"github.com/ruteri/cdsi-client/interfaces"
)

// HTTPServerConfig contains all configuration parameters for the stub lookup server.
type HTTPServerConfig struct {
	// ListenAddr is the address and port the HTTP server will listen on.
	ListenAddr string

	// MetricsAddr is the address and port for the metrics server.
	// If empty, metrics server will not be started.
	MetricsAddr string

	// EnablePprof enables the pprof debugging API when true.
	EnablePprof bool

	// Log is the structured logger for server operations.
	Log *slog.Logger

	// EnclaveID is the enclave name served under /v1/{enclave}/attest.
	EnclaveID string

	// Credentials are the basic auth credentials lookups must present.
	// Empty credentials disable the check.
	Credentials interfaces.ServiceAuth

	// AttestationProvider produces the quotes handed out with each session.
	AttestationProvider cryptoutils.AttestationProvider

	// SessionTTL bounds how long an unfinished session is kept.
	SessionTTL time.Duration

	// DrainDuration is the time to wait after marking server not ready
	// before shutting down, allowing load balancers to detect the change.
	DrainDuration time.Duration

	// GracefulShutdownDuration is the maximum time to wait for in-flight
	// requests to complete during shutdown.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}
