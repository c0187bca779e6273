package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/cdsi-client/cmd/flags"
	"github.com/ruteri/cdsi-client/cryptoutils"
	"github.com/ruteri/cdsi-client/directory"
	"github.com/ruteri/cdsi-client/httpserver"
	"github.com/ruteri/cdsi-client/interfaces"
	"github.com/urfave/cli/v2"
)

var stubFlags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.StringFlag{
		Name:     "directory",
		Required: true,
		Usage:    "directory location, file://path or s3://bucket/key?region=...",
	},
	flags.EnclaveFlag,
	flags.UsernameFlag,
	flags.PasswordFlag,
	&cli.StringFlag{
		Name:  "attestation-type",
		Value: cryptoutils.DummyAttestation.String(),
		Usage: "attestation to produce: dummy or qemu-tdx",
	},
	&cli.DurationFlag{
		Name:  "session-ttl",
		Value: 5 * time.Minute,
		Usage: "drop sessions not completed within this long",
	},
	flags.LogServiceFlagFn("cdsi-stub"),
}

func main() {
	app := &cli.App{
		Name:  "cdsi-stub",
		Usage: "Serve a stub contact discovery enclave",
		Flags: append(stubFlags, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx, os.Stdout)

			var provider cryptoutils.AttestationProvider
			switch attestationType := cCtx.String("attestation-type"); attestationType {
			case cryptoutils.DummyAttestation.String():
				logger.Warn("Serving dummy attestations, clients must allow insecure attestation")
				provider = cryptoutils.DummyAttestationProvider{}
			case cryptoutils.DCAPAttestation.String():
				provider = cryptoutils.DCAPAttestationProvider{}
			default:
				return fmt.Errorf("unsupported attestation type: %s", attestationType)
			}

			dir, err := directory.Load(cCtx.Context, cCtx.String("directory"), logger)
			if err != nil {
				logger.Error("Failed to load directory", "err", err)
				return err
			}

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String("listen-addr"))
			cfg.EnclaveID = cCtx.String(flags.EnclaveFlag.Name)
			cfg.Credentials = interfaces.ServiceAuth{
				Username: cCtx.String(flags.UsernameFlag.Name),
				Password: cCtx.String(flags.PasswordFlag.Name),
			}
			cfg.AttestationProvider = provider
			cfg.SessionTTL = cCtx.Duration("session-ttl")

			server, err := httpserver.New(cfg, dir)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server")
			server.RunInBackground()

			// Wait for termination signal
			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
