package jobs

import (
	"context"
	"sync/atomic"

	"squish/internal/tempfile"
)

// Kind tells preview work apart from full transcodes. The two kinds are
// scheduled independently.
type Kind string

const (
	KindPreview   Kind = "preview"
	KindTranscode Kind = "transcode"
)

// Outcome describes how a finished job ended. Aborted is a first-class
// outcome, not an error.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
)

// Job tracks one in-flight preview or transcode. Ids increase
// monotonically for the process lifetime and are never reused.
type Job struct {
	id      int64
	kind    Kind
	cancel  context.CancelFunc
	aborted atomic.Bool
	done    chan struct{}
	files   *tempfile.Manager
}

// ID returns the job id.
func (j *Job) ID() int64 { return j.id }

// Kind returns the job kind.
func (j *Job) Kind() Kind { return j.kind }

// Abort flags the job as cancelled and then kills its work. The flag is
// stored first so the resulting process exit classifies as aborted.
func (j *Job) Abort() {
	j.aborted.Store(true)
	j.cancel()
}

// Aborted reports whether Abort has been called.
func (j *Job) Aborted() bool { return j.aborted.Load() }

// Done is closed once the job has been cleaned up and removed from the
// coordinator's table.
func (j *Job) Done() <-chan struct{} { return j.done }
