// Package version holds the build-stamped version string.
package version

// Version is overridden at build time via
// -ldflags "-X github.com/ruby-fast-lsp/ruby-fast-lsp-go/pkg/version.Version=vX.Y.Z".
var Version = "dev"
