// Package main hosts the squish CLI entrypoint and command graph.
//
// The Cobra-based command tree covers two audiences: `squish serve` runs
// the long-lived sidecar a desktop app drives over line-delimited JSON,
// and the remaining commands (inspect, codecs, transcode, estimate,
// history, config) expose the same engine for direct terminal use. It
// centralizes configuration resolution and logging setup so subcommands
// can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags
// here.
package main
