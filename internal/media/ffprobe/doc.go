// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// This package has no squish-specific dependencies and could be extracted
// as a standalone library.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Summary: the condensed per-file view served to UI clients
//
// Primary entry point:
//   - Inspect: executes ffprobe and returns parsed Result
//
// Helper methods on Result provide stream counts, duration and size
// parsing, and frame-rate extraction from ffprobe's fractional notation.
package ffprobe
