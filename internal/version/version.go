// Package version exposes the build version string, overridable at link
// time via -ldflags "-X .../internal/version.Version=...".
package version

var Version = "dev"
