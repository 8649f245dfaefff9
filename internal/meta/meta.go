// Package meta holds build metadata injected at link time with -ldflags "-X".
package meta

var (
	// Version is the updateflow release.
	Version = "v0.0.0-unknown"
	// Commit is the source revision of the build.
	Commit = "unknown"
	// Date is the build timestamp.
	Date = "unknown"
)
