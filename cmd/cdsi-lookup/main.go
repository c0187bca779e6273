package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/cdsi-client/asyncctx"
	"github.com/ruteri/cdsi-client/cdsi"
	"github.com/ruteri/cdsi-client/cmd/flags"
	"github.com/ruteri/cdsi-client/connmgr"
	"github.com/ruteri/cdsi-client/cryptoutils"
	"github.com/ruteri/cdsi-client/engine"
	"github.com/ruteri/cdsi-client/interfaces"
	"github.com/ruteri/cdsi-client/metrics"
	"github.com/urfave/cli/v2"
)

var lookupFlags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:     "endpoint",
		Required: true,
		Usage:    "base URL of the lookup service",
	},
	flags.EnclaveFlag,
	&cli.StringFlag{
		Name:  "route-domain",
		Usage: "domain whose _cdsi._tcp SRV records list the lookup routes",
	},
	&cli.StringFlag{
		Name:  "dns-resolver",
		Value: connmgr.DefaultDNSResolver,
		Usage: "DNS resolver used for route discovery",
	},
	&cli.StringFlag{
		Name:  "route-scheme",
		Value: connmgr.DefaultScheme,
		Usage: "URL scheme of resolved routes",
	},
	flags.UsernameFlag,
	flags.PasswordFlag,
	&cli.StringSliceFlag{
		Name:  "e164",
		Usage: "phone number to look up in E.164 form (repeatable)",
	},
	&cli.StringSliceFlag{
		Name:  "aci-access-key",
		Usage: "ACI and base64 access key as aci=key (repeatable)",
	},
	&cli.BoolFlag{
		Name:  "use-new-connect-logic",
		Usage: "connect over resolved routes instead of the direct endpoint",
	},
	&cli.BoolFlag{
		Name:  "return-acis-without-uaks",
		Usage: "deprecated, has no effect",
	},
	&cli.DurationFlag{
		Name:  "timeout",
		Usage: "cancel the lookup after this long (0 disables)",
	},
	&cli.BoolFlag{
		Name:  "insecure-attestation",
		Usage: "accept dummy attestations (testing only)",
	},
	&cli.StringFlag{
		Name:  "expected-measurements",
		Usage: `JSON map of expected TDX measurements, e.g. {"0":"<mrtd hex>"}`,
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "address to serve Prometheus metrics on while the lookup runs",
	},
	flags.LogServiceFlagFn("cdsi-lookup"),
}

func main() {
	app := &cli.App{
		Name:  "cdsi-lookup",
		Usage: "Look up phone numbers in the contact discovery service",
		Flags: append(lookupFlags, flags.LogFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx, os.Stderr)

			opts := cdsi.RequestOptions{
				E164s:                 cCtx.StringSlice("e164"),
				ReturnACIsWithoutUAKs: cCtx.Bool("return-acis-without-uaks"),
				UseNewConnectLogic:    cCtx.Bool("use-new-connect-logic"),
			}
			for _, pair := range cCtx.StringSlice("aci-access-key") {
				aci, key, found := strings.Cut(pair, "=")
				if !found {
					return fmt.Errorf("invalid --aci-access-key %q, expected aci=key", pair)
				}
				opts.ACIsAndAccessKeys = append(opts.ACIsAndAccessKeys, cdsi.AccessKeyPair{ACI: aci, AccessKey: key})
			}

			policy := cryptoutils.AttestationPolicy{AllowInsecure: cCtx.Bool("insecure-attestation")}
			if measurements := cCtx.String("expected-measurements"); measurements != "" {
				if err := json.Unmarshal([]byte(measurements), &policy.ExpectedMeasurements); err != nil {
					return fmt.Errorf("invalid --expected-measurements: %w", err)
				}
			}

			cm, err := connmgr.New(connmgr.Config{
				Endpoint:          cCtx.String("endpoint"),
				EnclaveID:         cCtx.String(flags.EnclaveFlag.Name),
				RouteDomain:       cCtx.String("route-domain"),
				DNSResolver:       cCtx.String("dns-resolver"),
				RouteScheme:       cCtx.String("route-scheme"),
				AttestationPolicy: policy,
			}, logger)
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			if metricsAddr := cCtx.String("metrics-addr"); metricsAddr != "" {
				metricsSrv := metrics.New(metricsAddr, registry)
				go func() {
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("Metrics server failed", "err", err)
					}
				}()
				defer metricsSrv.Shutdown(context.Background())
			}

			ac := asyncctx.New(logger)
			defer ac.Close()

			client, err := cdsi.NewClient(cdsi.Deps{
				AsyncContext:      ac,
				ConnectionManager: cm,
				Engine:            engine.New(logger),
				Log:               logger,
				Metrics:           metrics.NewLookupMetrics(registry),
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout := cCtx.Duration("timeout"); timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			resp, err := client.Lookup(ctx, interfaces.ServiceAuth{
				Username: cCtx.String(flags.UsernameFlag.Name),
				Password: cCtx.String(flags.PasswordFlag.Name),
			}, opts)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(resp)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
