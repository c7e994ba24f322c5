package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"squish/internal/codec"
	"squish/internal/encoding"
	"squish/internal/history"
	"squish/internal/logging"
	"squish/internal/media/ffprobe"
	"squish/internal/preview"
	"squish/internal/services"
	"squish/internal/services/ffmpeg"
	"squish/internal/tempfile"
)

// Recorder persists finished jobs. The coordinator treats recording as
// best-effort: failures are logged and swallowed.
type Recorder interface {
	Record(ctx context.Context, entry history.Entry) error
}

// TranscodeRequest describes one full transcode into a retained output.
type TranscodeRequest struct {
	Input   string           `json:"input"`
	Options encoding.Options `json:"options"`
}

// TranscodeResult reports a finished transcode. Aborted runs carry no
// output and no error.
type TranscodeResult struct {
	JobID       int64   `json:"jobId"`
	Outcome     Outcome `json:"outcome"`
	OutputPath  string  `json:"outputPath,omitempty"`
	InputBytes  int64   `json:"inputBytes,omitempty"`
	OutputBytes int64   `json:"outputBytes,omitempty"`
	DurationMS  int64   `json:"durationMs"`
}

// PreviewRequest describes one preview generation.
type PreviewRequest struct {
	Input        string           `json:"input"`
	Options      encoding.Options `json:"options"`
	WantEstimate bool             `json:"estimate,omitempty"`
}

// PreviewResult reports a finished preview.
type PreviewResult struct {
	JobID        int64                 `json:"jobId"`
	Outcome      Outcome               `json:"outcome"`
	OriginalPath string                `json:"originalPath,omitempty"`
	EncodedPath  string                `json:"encodedPath,omitempty"`
	Estimate     *preview.SizeEstimate `json:"estimate,omitempty"`
	DurationMS   int64                 `json:"durationMs"`
}

// Coordinator owns the job table, assigns ids, enforces at-most-one
// active job per kind, and routes cancellation. All mutation of the
// table and the retained-output registry happens under its mutex.
type Coordinator struct {
	runner        *ffmpeg.Runner
	estimator     *preview.Estimator
	workDir       string
	ffprobeBinary string
	inspect       ffprobe.InspectFunc
	logger        *slog.Logger
	history       Recorder
	hub           *Hub

	mu       sync.Mutex
	nextID   int64
	active   map[Kind]*Job
	retained map[Kind][]string
	closed   bool
}

// Option configures the coordinator.
type Option func(*Coordinator)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder wires a history recorder for finished jobs.
func WithRecorder(recorder Recorder) Option {
	return func(c *Coordinator) {
		c.history = recorder
	}
}

// WithInspector overrides the media prober, normally ffprobe.Inspect.
func WithInspector(inspect ffprobe.InspectFunc) Option {
	return func(c *Coordinator) {
		if inspect != nil {
			c.inspect = inspect
		}
	}
}

// NewCoordinator constructs a coordinator that runs encodes through
// runner, previews through estimator, and allocates job temp files under
// workDir.
func NewCoordinator(runner *ffmpeg.Runner, estimator *preview.Estimator, workDir, ffprobeBinary string, opts ...Option) (*Coordinator, error) {
	if runner == nil {
		return nil, services.Wrap(services.ErrConfiguration, "jobs", "new coordinator",
			"runner required", nil)
	}
	if estimator == nil {
		return nil, services.Wrap(services.ErrConfiguration, "jobs", "new coordinator",
			"estimator required", nil)
	}
	if strings.TrimSpace(workDir) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "jobs", "new coordinator",
			"work directory required", nil)
	}
	ffprobeBinary = strings.TrimSpace(ffprobeBinary)
	if ffprobeBinary == "" {
		ffprobeBinary = "ffprobe"
	}
	coordinator := &Coordinator{
		runner:        runner,
		estimator:     estimator,
		workDir:       workDir,
		ffprobeBinary: ffprobeBinary,
		inspect:       ffprobe.Inspect,
		logger:        logging.NewNop(),
		hub:           NewHub(),
		active:        make(map[Kind]*Job),
		retained:      make(map[Kind][]string),
	}
	for _, opt := range opts {
		opt(coordinator)
	}
	return coordinator, nil
}

// Events returns the hub carrying progress, error, and complete events.
func (c *Coordinator) Events() *Hub { return c.hub }

// RunTranscode transcodes req.Input into a retained temp output and
// blocks until the job finishes. An abort resolves with outcome aborted
// and a nil error.
func (c *Coordinator) RunTranscode(ctx context.Context, req TranscodeRequest) (TranscodeResult, error) {
	opts, resolved, err := encoding.Normalize(req.Options)
	if err != nil {
		return TranscodeResult{}, err
	}
	info, err := os.Stat(req.Input)
	if err != nil {
		return TranscodeResult{}, services.Wrap(services.ErrNotFound, "jobs", "transcode",
			fmt.Sprintf("input %q", req.Input), err)
	}

	job, jobCtx, err := c.begin(ctx, KindTranscode)
	if err != nil {
		return TranscodeResult{}, err
	}
	defer c.finish(job)
	started := time.Now()

	result, runErr := c.runTranscodeJob(jobCtx, job, req.Input, opts, resolved)
	result.JobID = job.ID()
	result.InputBytes = info.Size()
	result.DurationMS = time.Since(started).Milliseconds()

	c.announce(job, result.Outcome, result.OutputPath, runErr)
	c.record(history.Entry{
		JobID:        job.ID(),
		Kind:         string(job.Kind()),
		InputPath:    req.Input,
		OutputPath:   result.OutputPath,
		Codec:        resolved.ID,
		Quality:      opts.Quality,
		Outcome:      string(result.Outcome),
		ErrorSummary: services.FailureSummary(runErr),
		InputBytes:   result.InputBytes,
		OutputBytes:  result.OutputBytes,
		DurationMS:   result.DurationMS,
	})
	if runErr != nil {
		return TranscodeResult{}, runErr
	}
	return result, nil
}

func (c *Coordinator) runTranscodeJob(ctx context.Context, job *Job, input string, opts encoding.Options, resolved codec.Codec) (TranscodeResult, error) {
	probe, err := c.inspect(ctx, c.ffprobeBinary, input)
	if err != nil {
		if abortedOutcome(ctx, err) {
			return TranscodeResult{Outcome: OutcomeAborted}, nil
		}
		return TranscodeResult{Outcome: OutcomeFailed},
			services.Wrap(services.ErrExternalTool, "jobs", "inspect input", "", err)
	}

	outputPath, err := job.files.Create("transcode-output", opts.Container)
	if err != nil {
		return TranscodeResult{Outcome: OutcomeFailed}, err
	}

	runResult, err := c.runner.Run(ctx, ffmpeg.Request{
		Args:            encoding.BuildArgs(resolved, opts, input, outputPath),
		DurationSeconds: probe.DurationSeconds(),
		OnProgress: func(fraction float64) {
			c.hub.Publish(Event{Type: EventProgress, JobID: job.ID(), Kind: job.Kind(), Fraction: fraction})
		},
	})
	if err != nil {
		return TranscodeResult{Outcome: OutcomeFailed}, err
	}

	switch runResult.Status {
	case ffmpeg.StatusSucceeded:
		var outputBytes int64
		if info, statErr := os.Stat(outputPath); statErr == nil {
			outputBytes = info.Size()
		}
		c.retain(job, outputPath)
		return TranscodeResult{
			Outcome:     OutcomeSucceeded,
			OutputPath:  outputPath,
			OutputBytes: outputBytes,
		}, nil
	case ffmpeg.StatusAborted:
		return TranscodeResult{Outcome: OutcomeAborted}, nil
	default:
		if tail := strings.TrimSpace(runResult.StderrTail); tail != "" {
			return TranscodeResult{Outcome: OutcomeFailed},
				services.Wrap(services.ErrExternalTool, "jobs", "transcode", tail, runResult.Err)
		}
		return TranscodeResult{Outcome: OutcomeFailed}, runResult.Err
	}
}

// RunPreview generates a preview for req.Input and blocks until the job
// finishes. Successful artifacts are retained past the job so the UI can
// play them; they are swept when the next preview starts.
func (c *Coordinator) RunPreview(ctx context.Context, req PreviewRequest) (PreviewResult, error) {
	opts, resolved, err := encoding.Normalize(req.Options)
	if err != nil {
		return PreviewResult{}, err
	}
	if opts.Window == nil {
		return PreviewResult{}, services.Wrap(services.ErrValidation, "jobs", "preview",
			"preview requires a window", nil)
	}
	info, err := os.Stat(req.Input)
	if err != nil {
		return PreviewResult{}, services.Wrap(services.ErrNotFound, "jobs", "preview",
			fmt.Sprintf("input %q", req.Input), err)
	}

	job, jobCtx, err := c.begin(ctx, KindPreview)
	if err != nil {
		return PreviewResult{}, err
	}
	defer c.finish(job)
	started := time.Now()

	result, runErr := c.runPreviewJob(jobCtx, job, req)
	result.JobID = job.ID()
	result.DurationMS = time.Since(started).Milliseconds()

	var outputBytes int64
	if result.EncodedPath != "" {
		if encoded, statErr := os.Stat(result.EncodedPath); statErr == nil {
			outputBytes = encoded.Size()
		}
	}
	c.announce(job, result.Outcome, result.EncodedPath, runErr)
	c.record(history.Entry{
		JobID:        job.ID(),
		Kind:         string(job.Kind()),
		InputPath:    req.Input,
		OutputPath:   result.EncodedPath,
		Codec:        resolved.ID,
		Quality:      opts.Quality,
		Outcome:      string(result.Outcome),
		ErrorSummary: services.FailureSummary(runErr),
		InputBytes:   info.Size(),
		OutputBytes:  outputBytes,
		DurationMS:   result.DurationMS,
	})
	if runErr != nil {
		return PreviewResult{}, runErr
	}
	return result, nil
}

func (c *Coordinator) runPreviewJob(ctx context.Context, job *Job, req PreviewRequest) (PreviewResult, error) {
	generated, err := c.estimator.GeneratePreview(ctx, job.files, preview.Request{
		Input:        req.Input,
		Options:      req.Options,
		WantEstimate: req.WantEstimate,
		OnProgress: func(fraction float64) {
			c.hub.Publish(Event{Type: EventProgress, JobID: job.ID(), Kind: job.Kind(), Fraction: fraction})
		},
	})
	switch {
	case err == nil:
		c.retain(job, generated.OriginalPath)
		c.retain(job, generated.EncodedPath)
		return PreviewResult{
			Outcome:      OutcomeSucceeded,
			OriginalPath: generated.OriginalPath,
			EncodedPath:  generated.EncodedPath,
			Estimate:     generated.Estimate,
		}, nil
	case abortedOutcome(ctx, err):
		return PreviewResult{Outcome: OutcomeAborted}, nil
	default:
		return PreviewResult{Outcome: OutcomeFailed}, err
	}
}

// abortedOutcome decides whether a job-level error should resolve as the
// aborted outcome. Spawn failures stay failures even when a cancellation
// raced in, matching the runner's own classification.
func abortedOutcome(ctx context.Context, err error) bool {
	if errors.Is(err, services.ErrAborted) {
		return true
	}
	if errors.Is(err, ffmpeg.ErrSpawn) {
		return false
	}
	return ctx.Err() != nil
}

// Cancel aborts the live job with the given id. Ids that are no longer
// live are a no-op.
func (c *Coordinator) Cancel(id int64) bool {
	c.mu.Lock()
	var target *Job
	for _, job := range c.active {
		if job.id == id {
			target = job
			break
		}
	}
	c.mu.Unlock()
	if target == nil {
		return false
	}
	c.logger.Info("cancelling job", logging.Int64(logging.FieldJobID, id))
	target.Abort()
	return true
}

// Active reports the ids of live jobs keyed by kind.
func (c *Coordinator) Active() map[Kind]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Kind]int64, len(c.active))
	for kind, job := range c.active {
		out[kind] = job.id
	}
	return out
}

// Retained lists currently retained output paths keyed by kind.
func (c *Coordinator) Retained() map[Kind][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Kind][]string, len(c.retained))
	for kind, paths := range c.retained {
		out[kind] = append([]string(nil), paths...)
	}
	return out
}

// Commit moves a retained output into place at dest, replacing any file
// already there. Rename first, copy-and-remove across filesystems. The
// path stays retained if the move fails so it can be retried or
// discarded.
func (c *Coordinator) Commit(path, dest string) error {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return services.Wrap(services.ErrValidation, "jobs", "commit",
			"destination path required", nil)
	}
	kind, ok := c.takeRetained(path)
	if !ok {
		return services.Wrap(services.ErrValidation, "jobs", "commit",
			fmt.Sprintf("unknown output %q", path), nil)
	}
	if err := c.moveFile(path, dest); err != nil {
		c.mu.Lock()
		c.retained[kind] = append(c.retained[kind], path)
		c.mu.Unlock()
		return services.Wrap(services.ErrConfiguration, "jobs", "commit",
			fmt.Sprintf("move output to %q", dest), err)
	}
	c.logger.Info("output committed",
		logging.String("path", dest),
		logging.String(logging.FieldJobKind, string(kind)))
	return nil
}

// Discard deletes a retained output.
func (c *Coordinator) Discard(path string) error {
	if _, ok := c.takeRetained(path); !ok {
		return services.Wrap(services.ErrValidation, "jobs", "discard",
			fmt.Sprintf("unknown output %q", path), nil)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return services.Wrap(services.ErrConfiguration, "jobs", "discard",
			fmt.Sprintf("remove %q", path), err)
	}
	return nil
}

// Close aborts every live job, waits for them to finish, and sweeps all
// retained outputs. The coordinator accepts no new jobs afterwards.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	live := make([]*Job, 0, len(c.active))
	for _, job := range c.active {
		live = append(live, job)
	}
	c.mu.Unlock()

	for _, job := range live {
		job.Abort()
	}
	for _, job := range live {
		<-job.Done()
	}

	c.mu.Lock()
	var stale []string
	for _, paths := range c.retained {
		stale = append(stale, paths...)
	}
	c.retained = make(map[Kind][]string)
	c.mu.Unlock()
	c.removePaths(stale)
	return nil
}

// begin installs a new job for kind, superseding and awaiting any
// incumbent first. Retained outputs from the previous job of this kind
// are swept once the slot is won.
func (c *Coordinator) begin(ctx context.Context, kind Kind) (*Job, context.Context, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, nil, services.Wrap(services.ErrConfiguration, "jobs", "start",
				"coordinator is closed", nil)
		}
		incumbent := c.active[kind]
		if incumbent == nil {
			c.nextID++
			jobCtx, cancel := context.WithCancel(ctx)
			job := &Job{
				id:     c.nextID,
				kind:   kind,
				cancel: cancel,
				done:   make(chan struct{}),
				files:  tempfile.NewManager(c.workDir, c.logger),
			}
			c.active[kind] = job
			stale := c.retained[kind]
			delete(c.retained, kind)
			c.mu.Unlock()

			c.removePaths(stale)
			c.logger.Info("job started",
				logging.Int64(logging.FieldJobID, job.id),
				logging.String(logging.FieldJobKind, string(kind)))
			return job, jobCtx, nil
		}
		c.mu.Unlock()

		c.logger.Info("superseding active job",
			logging.Int64(logging.FieldJobID, incumbent.id),
			logging.String(logging.FieldJobKind, string(kind)))
		incumbent.Abort()
		select {
		case <-incumbent.Done():
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

// finish cleans the job's temp files and clears it from the table. Done
// closes last so begin waiters observe the freed slot.
func (c *Coordinator) finish(job *Job) {
	job.files.Cleanup()
	c.mu.Lock()
	if c.active[job.kind] == job {
		delete(c.active, job.kind)
	}
	c.mu.Unlock()
	job.cancel()
	close(job.done)
}

// retain releases path from the job's temp manager into the registry so
// it survives job cleanup.
func (c *Coordinator) retain(job *Job, path string) {
	job.files.Release(path)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.removePaths([]string{path})
		return
	}
	c.retained[job.kind] = append(c.retained[job.kind], path)
	c.mu.Unlock()
}

func (c *Coordinator) takeRetained(path string) (Kind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for kind, paths := range c.retained {
		for i, candidate := range paths {
			if candidate == path {
				c.retained[kind] = append(paths[:i], paths[i+1:]...)
				return kind, true
			}
		}
	}
	return "", false
}

func (c *Coordinator) announce(job *Job, outcome Outcome, outputPath string, err error) {
	if err != nil {
		c.hub.Publish(Event{
			Type:    EventError,
			JobID:   job.ID(),
			Kind:    job.Kind(),
			Summary: services.FailureSummary(err),
			Detail:  err.Error(),
		})
		return
	}
	c.hub.Publish(Event{
		Type:    EventComplete,
		JobID:   job.ID(),
		Kind:    job.Kind(),
		Outcome: outcome,
		Output:  outputPath,
	})
}

func (c *Coordinator) record(entry history.Entry) {
	if c.history == nil {
		return
	}
	if err := c.history.Record(context.Background(), entry); err != nil {
		c.logger.Warn("history record failed",
			logging.Int64(logging.FieldJobID, entry.JobID),
			logging.Error(err))
	}
}

func (c *Coordinator) removePaths(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove retained output",
				logging.String("path", path),
				logging.Error(err))
		}
	}
}

func (c *Coordinator) moveFile(source, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	renameErr := os.Rename(source, dest)
	if renameErr == nil {
		return nil
	}
	var linkErr *os.LinkError
	if errors.As(renameErr, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if err := copyFile(source, dest); err != nil {
			return err
		}
		if err := os.Remove(source); err != nil {
			c.logger.Warn("failed to remove source file after copy", logging.Error(err))
		}
		return nil
	}
	return renameErr
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
