// Package ffmpeg spawns and supervises ffmpeg processes.
//
// The Runner wires a subprocess's stdout and stderr through the progress
// parser, keeps a bounded stderr tail for diagnostics, and classifies every
// exit as succeeded, failed, or aborted. Cancellation marks the job aborted
// before the kill signal goes out so the resulting non-zero exit is never
// mistaken for a failure. Command execution sits behind the Executor
// interface so tests can script process behavior without real binaries.
package ffmpeg
