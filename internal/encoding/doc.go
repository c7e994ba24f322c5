// Package encoding turns transcode options into ffmpeg argument vectors.
//
// Options are normalized before use: codec and container are reconciled,
// out-of-range values are pulled back to the nearest valid setting, and
// combinations the encoders cannot satisfy are rejected up front. BuildArgs
// then assembles the ordered argument list for a full transcode and
// BuildExtractArgs the minimal stream-copy list for window extraction.
// Arguments are always passed as a vector, never through a shell.
//
// Keep all ffmpeg flag knowledge here so the runner and the preview
// estimator never assemble command lines of their own.
package encoding
