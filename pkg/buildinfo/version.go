// Package buildinfo holds build-time information injected via -ldflags,
// available at runtime for the version subcommand.
package buildinfo

import "runtime"

var (
	Date string

	GitSHA string

	GoVersion = runtime.Version()

	Version string
)
