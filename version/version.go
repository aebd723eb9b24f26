// Package version exposes build identification for the version endpoint.
package version

// Set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info returns the build identification map served by /version.
func Info() map[string]string {
	return map[string]string{
		"service":    "xray-diagnosis-service",
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
	}
}
