package cdsi

import (
	"errors"
	"log/slog"

	"github.com/ruteri/cdsi-client/asyncctx"
	"github.com/ruteri/cdsi-client/interfaces"
	"github.com/ruteri/cdsi-client/metrics"
)

// AccessKeyPair is an ACI string with its base64 encoded access key.
type AccessKeyPair struct {
	ACI       string `json:"aci"`
	AccessKey string `json:"access_key"`
}

// RequestOptions describes a single lookup.
type RequestOptions struct {
	E164s             []string
	ACIsAndAccessKeys []AccessKeyPair

	// ReturnACIsWithoutUAKs is ignored by the service and kept for compatibility.
	//
	// Deprecated: has no effect.
	ReturnACIsWithoutUAKs bool

	// UseNewConnectLogic selects the route-based connect strategy.
	UseNewConnectLogic bool
}

// ConnectStrategy selects the connect phase entry point.
type ConnectStrategy int

const (
	LegacyConnect ConnectStrategy = iota
	RouteConnect
)

// StrategyFor maps the caller-visible flag to a strategy.
func StrategyFor(useNewConnectLogic bool) ConnectStrategy {
	if useNewConnectLogic {
		return RouteConnect
	}
	return LegacyConnect
}

func (s ConnectStrategy) String() string {
	if s == RouteConnect {
		return "routes"
	}
	return "legacy"
}

// Deps are the collaborators a Client borrows. None of them is mutated.
type Deps struct {
	AsyncContext      *asyncctx.AsyncContext
	ConnectionManager interfaces.ConnectionManager
	Engine            Engine
	Log               *slog.Logger

	// Metrics is optional.
	Metrics *metrics.LookupMetrics
}

func (d Deps) validate() error {
	if d.AsyncContext == nil {
		return errors.New("async context is required")
	}
	if d.ConnectionManager == nil {
		return errors.New("connection manager is required")
	}
	if d.Engine == nil {
		return errors.New("lookup engine is required")
	}
	return nil
}
