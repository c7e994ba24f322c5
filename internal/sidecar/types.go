package sidecar

import (
	"encoding/json"

	"squish/internal/deps"
	"squish/internal/history"
)

// Request is one client-to-sidecar line.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorPayload carries a failed call's short summary and full detail.
type ErrorPayload struct {
	Summary string `json:"summary"`
	Detail  string `json:"detail,omitempty"`
}

// Response is one sidecar-to-client reply line. Exactly one of Result and
// Error is set.
type Response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

// EventEnvelope is one broadcast line. Payload is the JSON form of
// jobs.Event; Event repeats its type so clients can route without decoding.
type EventEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// PingResult answers the ping method.
type PingResult struct {
	OK bool `json:"ok"`
}

// CapabilitiesResult answers the capabilities method with the build
// identity plus the full dependency snapshot.
type CapabilitiesResult struct {
	Version         string `json:"version"`
	ProtocolVersion int    `json:"protocolVersion"`
	deps.Snapshot
}

// ProtocolVersion identifies this wire format. Bump it when a method or
// envelope changes incompatibly.
const ProtocolVersion = 1

// InspectParams selects the file the inspect method probes.
type InspectParams struct {
	Path string `json:"path"`
}

// CancelParams names the job the cancel method aborts.
type CancelParams struct {
	JobID int64 `json:"jobId"`
}

// CancelResult reports whether the job was still running when the abort
// arrived.
type CancelResult struct {
	Cancelled bool `json:"cancelled"`
}

// CommitParams moves a retained output to its final destination.
type CommitParams struct {
	OutputPath  string `json:"outputPath"`
	Destination string `json:"destination"`
}

// CommitResult echoes the destination the output now lives at.
type CommitResult struct {
	Path string `json:"path"`
}

// DiscardParams names the retained output to delete.
type DiscardParams struct {
	OutputPath string `json:"outputPath"`
}

// DiscardResult confirms the discard.
type DiscardResult struct {
	Discarded bool `json:"discarded"`
}

// HistoryParams bounds the history method. Limit zero means the store
// default.
type HistoryParams struct {
	Limit int `json:"limit,omitempty"`
}

// HistoryResult lists recent finished jobs, newest first.
type HistoryResult struct {
	Entries []history.Entry `json:"entries"`
}
