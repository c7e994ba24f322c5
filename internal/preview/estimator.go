package preview

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"squish/internal/codec"
	"squish/internal/encoding"
	"squish/internal/logging"
	"squish/internal/media/ffprobe"
	"squish/internal/services"
	"squish/internal/services/ffmpeg"
	"squish/internal/tempfile"
)

// Result carries the playable artifacts of one preview.
type Result struct {
	// OriginalPath is the stream-copied window, bit-identical to the
	// source.
	OriginalPath string
	// EncodedPath is the window encoded with the requested options.
	EncodedPath string
	// Estimate is present when size estimation was requested.
	Estimate *SizeEstimate
}

// Request describes one preview generation.
type Request struct {
	Input string
	// Options must carry a window; it selects the previewed slice.
	Options      encoding.Options
	WantEstimate bool
	OnProgress   func(float64)
}

// EstimateRequest describes a standalone multi-window size estimate.
type EstimateRequest struct {
	Input string
	// Options select the hypothetical transcode; any window is ignored.
	Options       encoding.Options
	SampleCount   int
	SampleSeconds float64
	OnProgress    func(float64)
}

// Estimator drives sample extraction and sample encodes.
type Estimator struct {
	runner        *ffmpeg.Runner
	ffprobeBinary string
	inspect       ffprobe.InspectFunc
	logger        *slog.Logger
}

// Option configures the estimator.
type Option func(*Estimator)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Estimator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithInspector overrides the media prober, normally ffprobe.Inspect.
func WithInspector(inspect ffprobe.InspectFunc) Option {
	return func(e *Estimator) {
		if inspect != nil {
			e.inspect = inspect
		}
	}
}

// NewEstimator constructs an estimator running encodes through runner and
// probing inputs with the given ffprobe binary.
func NewEstimator(runner *ffmpeg.Runner, ffprobeBinary string, opts ...Option) (*Estimator, error) {
	if runner == nil {
		return nil, services.Wrap(services.ErrConfiguration, "preview", "new estimator",
			"runner required", nil)
	}
	estimator := &Estimator{
		runner:        runner,
		ffprobeBinary: strings.TrimSpace(ffprobeBinary),
		inspect:       ffprobe.Inspect,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(estimator)
	}
	return estimator, nil
}

// GeneratePreview extracts the requested window by stream copy, encodes
// the extracted slice, and optionally extrapolates a size estimate from
// the observed compression ratio. Both artifacts are registered with the
// caller's temp manager.
func (e *Estimator) GeneratePreview(ctx context.Context, files *tempfile.Manager, req Request) (Result, error) {
	opts, c, err := encoding.Normalize(req.Options)
	if err != nil {
		return Result{}, err
	}
	if opts.Window == nil {
		return Result{}, services.Wrap(services.ErrValidation, "preview", "generate",
			"preview requires a window", nil)
	}
	window := *opts.Window

	probe, err := e.inspect(ctx, e.ffprobeBinary, req.Input)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "preview", "inspect input", "", err)
	}
	totalDuration := probe.DurationSeconds()
	if totalDuration > 0 && window.StartSeconds >= totalDuration {
		return Result{}, services.Wrap(services.ErrValidation, "preview", "generate",
			fmt.Sprintf("window starts at %.1fs but input ends at %.1fs", window.StartSeconds, totalDuration), nil)
	}

	originalPath, err := e.extractWindow(ctx, files, req.Input, window)
	if err != nil {
		return Result{}, err
	}
	originalBytes, err := fileSize(originalPath)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "preview", "extract window",
			"extracted sample missing or empty", err)
	}

	encodedPath, err := e.encodeSample(ctx, files, c, opts, originalPath, window.DurationSeconds, req.OnProgress)
	if err != nil {
		return Result{}, err
	}

	result := Result{OriginalPath: originalPath, EncodedPath: encodedPath}
	if req.WantEstimate {
		encodedBytes, err := fileSize(encodedPath)
		if err != nil {
			return Result{}, services.Wrap(services.ErrExternalTool, "preview", "encode sample",
				"encoded sample missing or empty", err)
		}
		inputBytes := probe.SizeBytes()
		if inputBytes == 0 {
			inputBytes, _ = fileSize(req.Input)
		}
		sampled := sampledDuration(window, totalDuration)
		estimate := buildEstimate(float64(encodedBytes)/float64(originalBytes), inputBytes, 1, sampled, totalDuration)
		result.Estimate = &estimate
	}

	e.logger.Debug("preview generated",
		logging.String("input", req.Input),
		logging.Float64("window_start", window.StartSeconds),
		logging.Float64("window_seconds", window.DurationSeconds))
	return result, nil
}

// EstimateSize encodes several windows spread across the input and
// extrapolates from their combined ratio. More, shorter windows smooth
// out scenes that compress unusually well or badly.
func (e *Estimator) EstimateSize(ctx context.Context, files *tempfile.Manager, req EstimateRequest) (SizeEstimate, error) {
	opts, c, err := encoding.Normalize(req.Options)
	if err != nil {
		return SizeEstimate{}, err
	}
	opts.Window = nil

	sampleCount := req.SampleCount
	if sampleCount < 1 {
		sampleCount = 1
	}
	sampleSeconds := req.SampleSeconds
	if sampleSeconds <= 0 {
		sampleSeconds = 3
	}

	probe, err := e.inspect(ctx, e.ffprobeBinary, req.Input)
	if err != nil {
		return SizeEstimate{}, services.Wrap(services.ErrExternalTool, "preview", "inspect input", "", err)
	}
	totalDuration := probe.DurationSeconds()
	inputBytes := probe.SizeBytes()
	if inputBytes == 0 {
		inputBytes, _ = fileSize(req.Input)
	}

	windows := sampleWindows(totalDuration, sampleCount, sampleSeconds)

	var originalTotal, encodedTotal int64
	var sampledSeconds float64
	for i, window := range windows {
		base := float64(i) / float64(len(windows))
		share := 1.0 / float64(len(windows))
		onProgress := func(fraction float64) {
			if req.OnProgress != nil {
				req.OnProgress(base + share*fraction)
			}
		}

		originalPath, err := e.extractWindow(ctx, files, req.Input, window)
		if err != nil {
			return SizeEstimate{}, err
		}
		originalBytes, err := fileSize(originalPath)
		if err != nil {
			return SizeEstimate{}, services.Wrap(services.ErrExternalTool, "preview", "extract window",
				"extracted sample missing or empty", err)
		}
		encodedPath, err := e.encodeSample(ctx, files, c, opts, originalPath, window.DurationSeconds, onProgress)
		if err != nil {
			return SizeEstimate{}, err
		}
		encodedBytes, err := fileSize(encodedPath)
		if err != nil {
			return SizeEstimate{}, services.Wrap(services.ErrExternalTool, "preview", "encode sample",
				"encoded sample missing or empty", err)
		}

		originalTotal += originalBytes
		encodedTotal += encodedBytes
		sampledSeconds += sampledDuration(window, totalDuration)
	}

	if originalTotal == 0 {
		return SizeEstimate{}, services.Wrap(services.ErrExternalTool, "preview", "estimate",
			"samples contained no data", nil)
	}
	estimate := buildEstimate(float64(encodedTotal)/float64(originalTotal), inputBytes, len(windows), sampledSeconds, totalDuration)
	e.logger.Debug("size estimated",
		logging.String("input", req.Input),
		logging.Int("samples", len(windows)),
		logging.String("confidence", string(estimate.Confidence)))
	return estimate, nil
}

func (e *Estimator) extractWindow(ctx context.Context, files *tempfile.Manager, input string, window encoding.Window) (string, error) {
	ext := strings.TrimPrefix(filepath.Ext(input), ".")
	if ext == "" {
		ext = "mkv"
	}
	outputPath, err := files.Create("sample-original", ext)
	if err != nil {
		return "", err
	}

	result, err := e.runner.Run(ctx, ffmpeg.Request{
		Args: encoding.BuildExtractArgs(input, window, outputPath),
	})
	if err != nil {
		return "", err
	}
	if runErr := runError("extract window", result); runErr != nil {
		return "", runErr
	}
	return outputPath, nil
}

func (e *Estimator) encodeSample(ctx context.Context, files *tempfile.Manager, c codec.Codec, opts encoding.Options, samplePath string, durationSeconds float64, onProgress func(float64)) (string, error) {
	outputPath, err := files.Create("sample-encoded", opts.Container)
	if err != nil {
		return "", err
	}

	encodeOpts := opts
	encodeOpts.Window = nil
	result, err := e.runner.Run(ctx, ffmpeg.Request{
		Args:            encoding.BuildArgs(c, encodeOpts, samplePath, outputPath),
		DurationSeconds: durationSeconds,
		OnProgress:      onProgress,
	})
	if err != nil {
		return "", err
	}
	if runErr := runError("encode sample", result); runErr != nil {
		return "", runErr
	}
	return outputPath, nil
}

// runError converts a non-success run into the error the job layer
// expects: aborts map to the abort sentinel, failures keep the bounded
// stderr tail as their detail.
func runError(op string, result ffmpeg.Result) error {
	switch result.Status {
	case ffmpeg.StatusSucceeded:
		return nil
	case ffmpeg.StatusAborted:
		return services.Wrap(services.ErrAborted, "preview", op, "cancelled", nil)
	default:
		if tail := strings.TrimSpace(result.StderrTail); tail != "" {
			return services.Wrap(services.ErrExternalTool, "preview", op, tail, result.Err)
		}
		return result.Err
	}
}

// sampleWindows spreads count windows of sampleSeconds across the middle
// of the input, keeping clear of the head and tail where credits and
// black frames skew ratios. Unknown durations fall back to one window at
// the start.
func sampleWindows(totalDuration float64, count int, sampleSeconds float64) []encoding.Window {
	if totalDuration <= 0 {
		return []encoding.Window{{StartSeconds: 0, DurationSeconds: sampleSeconds}}
	}

	margin := totalDuration * 0.05
	usableStart := margin
	usableEnd := totalDuration - margin
	if usableEnd-usableStart <= sampleSeconds {
		return []encoding.Window{{StartSeconds: 0, DurationSeconds: math.Min(sampleSeconds, totalDuration)}}
	}

	if count == 1 {
		center := (usableStart + usableEnd - sampleSeconds) / 2
		return []encoding.Window{{StartSeconds: center, DurationSeconds: sampleSeconds}}
	}

	windows := make([]encoding.Window, 0, count)
	step := (usableEnd - usableStart - sampleSeconds) / float64(count-1)
	for i := 0; i < count; i++ {
		windows = append(windows, encoding.Window{
			StartSeconds:    usableStart + float64(i)*step,
			DurationSeconds: sampleSeconds,
		})
	}
	return windows
}

func sampledDuration(window encoding.Window, totalDuration float64) float64 {
	if totalDuration <= 0 {
		return window.DurationSeconds
	}
	remaining := totalDuration - window.StartSeconds
	if remaining <= 0 {
		return 0
	}
	return math.Min(window.DurationSeconds, remaining)
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("empty file %s", path)
	}
	return info.Size(), nil
}
