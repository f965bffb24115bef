// Package version provides build and version information.
package version

// Version is the current application version.
const Version = "0.1.0"

// Milestones:
// 0.1.0 - Indexer runtime, generic and definition adapters, TUI
// 0.2.0 - (planned) Torznab HTTP endpoint
