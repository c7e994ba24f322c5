// Package logging assembles structured slog loggers and formatting helpers used
// across squish.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes attribute helpers plus canonical field names so every
// component emits log lines with the same shape. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
//
// The sidecar protocol owns stdout, so loggers here default to stderr; file
// output is added by callers that resolved a log directory.
package logging
