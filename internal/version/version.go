// Package version provides the application version information
package version

// Version is the current application version
// This will be overridden during build time using ldflags
var Version = "1.0.0"
