// Package version carries build stamps set through -ldflags -X.
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String names the build as recorded in report attributes.
func String(program string) string {
	return fmt.Sprintf("%s %s (%s)", program, Version, GitSHA)
}
