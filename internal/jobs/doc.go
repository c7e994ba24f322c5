// Package jobs owns the in-flight preview and transcode jobs: monotonic
// id assignment, at-most-one-active-per-kind scheduling, cancellation
// routing, retained outputs, and the event stream the UI consumes.
package jobs
