// Package common contains build metadata and logger setup shared by the binaries.
package common

var (
	// PackageName is the module name used in logs and metrics.
	PackageName = "cdsi-client"

	// Version is set at build time with -ldflags "-X github.com/ruteri/cdsi-client/common.Version=...".
	Version = "dev"
)
