package connmgr

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/cdsi-client/cryptoutils"
	"github.com/ruteri/cdsi-client/interfaces"
)

const (
	DefaultDNSResolver = "127.0.0.53:53"
	DefaultHTTPTimeout = 30 * time.Second
	DefaultScheme      = "https"
)

// ErrNoEndpoint is returned by New when no direct endpoint is configured.
var ErrNoEndpoint = errors.New("no lookup endpoint configured")

// Config describes a lookup service.
type Config struct {
	// Endpoint is the base URL of the direct endpoint, e.g. https://cdsi.example.org.
	Endpoint string

	// EnclaveID names the enclave the lookup attests to.
	EnclaveID string

	// RouteDomain enables SRV discovery of _cdsi._tcp.<RouteDomain>. If empty
	// the route-based strategy uses the direct endpoint.
	RouteDomain string

	// DNSResolver is the host:port queried for SRV records.
	DNSResolver string

	// RouteScheme is the URL scheme used for resolved routes.
	RouteScheme string

	// HTTPTimeout bounds each HTTP request. Lookups are additionally bounded
	// by their context.
	HTTPTimeout time.Duration

	AttestationPolicy cryptoutils.AttestationPolicy
}

// Manager implements interfaces.ConnectionManager. It is immutable after
// construction and safe for concurrent use.
type Manager struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

var _ interfaces.ConnectionManager = (*Manager)(nil)

// New applies defaults to cfg and creates a Manager. The direct endpoint is
// required even when routes are used, as it is the fallback.
func New(cfg Config, log *slog.Logger) (*Manager, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	cfg.Endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
	if cfg.DNSResolver == "" {
		cfg.DNSResolver = DefaultDNSResolver
	}
	if cfg.RouteScheme == "" {
		cfg.RouteScheme = DefaultScheme
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		log:    log,
	}, nil
}

// HTTPClient returns the client shared by every lookup borrowing this manager.
func (m *Manager) HTTPClient() *http.Client {
	return m.client
}

// DirectEndpoint returns the base URL without a trailing slash.
func (m *Manager) DirectEndpoint() string {
	return m.cfg.Endpoint
}

// EnclaveID returns the enclave lookups attest to.
func (m *Manager) EnclaveID() string {
	return m.cfg.EnclaveID
}

// AttestationPolicy returns the evidence accepted from the enclave.
func (m *Manager) AttestationPolicy() cryptoutils.AttestationPolicy {
	return m.cfg.AttestationPolicy
}

// Routes resolves the route domain. Without a route domain it returns no
// routes and the caller falls back to the direct endpoint.
func (m *Manager) Routes(ctx context.Context) ([]interfaces.Route, error) {
	if m.cfg.RouteDomain == "" {
		return nil, nil
	}

	routes, err := resolveRoutes(ctx, m.cfg.DNSResolver, m.cfg.RouteScheme, m.cfg.RouteDomain)
	if err != nil {
		return nil, err
	}

	m.log.Debug("Resolved lookup routes", slog.String("domain", m.cfg.RouteDomain), slog.Int("count", len(routes)))
	return routes, nil
}
