// Package sidecar speaks the newline-delimited JSON protocol between squish
// and the UI process that spawns it, and ships the matching client used by
// tests and embedders.
//
// Every line on the wire is one JSON object. Clients send requests carrying
// an id, a method name, and method params; the server answers each id with
// either a result or an error object, in whatever order the work finishes.
// Job lifecycle updates are broadcast as id-less event lines interleaved
// with responses. Requests are dispatched on their own goroutines so a
// cancel can land while a transcode is still running.
package sidecar
