package version

// Version is the application version, overridable at build time via ldflags.
var Version = "0.3.0-dev"
