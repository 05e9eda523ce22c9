// Package version holds carina's build identity, overwritten via
// -ldflags at release build time.
package version

// Current is the running build's version string.
var Current = "dev"

// AppName is the binary's display name.
const AppName = "Carina"
