package ffmpeg

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"squish/internal/logging"
	"squish/internal/services"
)

// Status classifies how a run ended.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Request describes one supervised ffmpeg invocation.
type Request struct {
	Args []string
	// DurationSeconds seeds the progress state when the caller already
	// knows the encode length, so windowed encodes report fractions
	// before ffmpeg prints its banner.
	DurationSeconds float64
	// OnProgress receives fractions in [0, 1] as the progress stream is
	// parsed. Called from the output goroutines; keep it fast.
	OnProgress func(float64)
}

// Result is the final classification of one run.
type Result struct {
	Status Status
	// StderrTail holds the bounded end of stderr for diagnostics.
	StderrTail string
	// Err carries the failure for StatusFailed results, nil otherwise.
	Err error
}

// Runner launches and supervises ffmpeg processes.
type Runner struct {
	binary string
	logger *slog.Logger
	exec   Executor
}

// Option configures the runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(executor Executor) Option {
	return func(r *Runner) {
		if executor != nil {
			r.exec = executor
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner constructs a runner for the given ffmpeg binary.
func NewRunner(binary string, opts ...Option) (*Runner, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "ffmpeg", "new runner",
			"ffmpeg binary required", nil)
	}
	runner := &Runner{
		binary: binary,
		logger: logging.NewNop(),
		exec:   commandExecutor{},
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner, nil
}

// Handle tracks one in-flight run.
type Handle struct {
	aborted  atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	result   Result
	progress *State
}

// Abort requests cancellation. The aborted flag is stored before the kill
// signal goes out so the exit handler classifies the non-zero exit as
// aborted, not failed. Aborting a finished run has no effect on its result.
func (h *Handle) Abort() {
	h.aborted.Store(true)
	h.cancel()
}

// Aborted reports whether Abort was called.
func (h *Handle) Aborted() bool {
	return h.aborted.Load()
}

// Done is closed when the run has finished and its result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run finishes and returns its result.
func (h *Handle) Wait() Result {
	<-h.done
	return h.result
}

// Progress returns the latest parsed fraction in [0, 1].
func (h *Handle) Progress() float64 {
	return h.progress.Fraction()
}

// Start launches the process and returns immediately. The returned handle
// exposes cancellation and the final result.
func (r *Runner) Start(ctx context.Context, req Request) (*Handle, error) {
	if len(req.Args) == 0 {
		return nil, services.Wrap(services.ErrValidation, "ffmpeg", "start",
			"empty argument vector", nil)
	}

	runCtx, cancel := context.WithCancel(ctx)
	handle := &Handle{
		cancel:   cancel,
		done:     make(chan struct{}),
		progress: NewState(req.DurationSeconds),
	}
	tail := newLineTail(tailMaxLines, tailMaxBytes)

	observe := func(line string) {
		if fraction, ok := handle.progress.Observe(line); ok && req.OnProgress != nil {
			req.OnProgress(fraction)
		}
	}
	onStderr := func(line string) {
		tail.Add(line)
		observe(line)
	}

	r.logger.Debug("starting ffmpeg",
		logging.String("binary", r.binary),
		logging.Int("arg_count", len(req.Args)))

	go func() {
		defer cancel()
		err := r.exec.Run(runCtx, r.binary, req.Args, observe, onStderr)
		handle.result = r.classify(runCtx, handle, err, tail)
		r.logger.Debug("ffmpeg finished",
			logging.String("status", string(handle.result.Status)))
		close(handle.done)
	}()
	return handle, nil
}

// Run is Start followed by Wait.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	handle, err := r.Start(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return handle.Wait(), nil
}

// classify turns the executor's error into a final status. Spawn failures
// are failures no matter what, except when the spawn itself was stopped by
// an abort's cancellation. A clean exit is success even when an abort
// arrived too late to matter.
func (r *Runner) classify(runCtx context.Context, handle *Handle, err error, tail *lineTail) Result {
	switch {
	case err == nil:
		return Result{Status: StatusSucceeded, StderrTail: tail.String()}
	case errors.Is(err, ErrSpawn) && !errors.Is(err, context.Canceled):
		return Result{
			Status:     StatusFailed,
			StderrTail: tail.String(),
			Err: services.Wrap(services.ErrExternalTool, "ffmpeg", "spawn",
				r.binary+" could not be started", err),
		}
	case handle.aborted.Load() || runCtx.Err() != nil:
		return Result{Status: StatusAborted, StderrTail: tail.String()}
	default:
		return Result{
			Status:     StatusFailed,
			StderrTail: tail.String(),
			Err: services.Wrap(services.ErrExternalTool, "ffmpeg", "transcode",
				"ffmpeg exited with an error", err),
		}
	}
}
