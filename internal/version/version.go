// Package version carries build identification.
package version

// Version is the release version. Overridden at build time:
//
//	go build -ldflags "-X github.com/psychectl/psyche/internal/version.Version=v0.3.0"
var Version = "dev"
