// Package version records the tool version stamped into the binary.
package version

// Version is overridable at build time:
//
//	go build -ldflags "-X occfuse/internal/version.Version=1.2.3"
var Version = "0.1.0-dev"
