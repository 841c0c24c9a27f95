// Package courtside carries build metadata for the courtside binaries.
package courtside

// Version is the release version. Build tooling overrides it with
// -ldflags "-X github.com/mesh-intelligence/courtside/pkg/courtside.Version=...".
var Version = "0.1.0-dev"
