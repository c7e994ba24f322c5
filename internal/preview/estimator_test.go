package preview

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"sync"
	"testing"

	"squish/internal/encoding"
	"squish/internal/media/ffprobe"
	"squish/internal/services"
	"squish/internal/services/ffmpeg"
	"squish/internal/tempfile"
)

// sampleSink stands in for ffmpeg: every run writes a fixed number of
// bytes to its output path so the ratio math sees real files. Stream
// copies are told apart from encodes by the "-c copy" argument pair.
type sampleSink struct {
	mu            sync.Mutex
	originalBytes int
	encodedBytes  int
	extracts      int
	encodes       int
	failEncode    bool
	onEncode      func()
}

func (s *sampleSink) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	output := args[len(args)-1]
	isCopy := containsPair(args, "-c", "copy")

	s.mu.Lock()
	if isCopy {
		s.extracts++
	} else {
		s.encodes++
	}
	size := s.encodedBytes
	if isCopy {
		size = s.originalBytes
	}
	fail := !isCopy && s.failEncode
	hook := s.onEncode
	s.mu.Unlock()

	if !isCopy && hook != nil {
		hook()
	}
	if fail {
		if onStderr != nil {
			onStderr("Conversion failed!")
		}
		return errors.New("exit status 1")
	}
	if err := os.WriteFile(output, bytes.Repeat([]byte("x"), size), 0o644); err != nil {
		return err
	}
	if !isCopy && onStdout != nil {
		onStdout("out_time_ms=1500000")
	}
	return nil
}

func (s *sampleSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extracts, s.encodes
}

func containsPair(args []string, first, second string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == first && args[i+1] == second {
			return true
		}
	}
	return false
}

func probeStub(duration, size string, err error) ffprobe.InspectFunc {
	return func(ctx context.Context, binary, path string) (ffprobe.Result, error) {
		if err != nil {
			return ffprobe.Result{}, err
		}
		return ffprobe.Result{Format: ffprobe.Format{Duration: duration, Size: size}}, nil
	}
}

func newTestEstimator(t *testing.T, sink *sampleSink, inspect ffprobe.InspectFunc) (*Estimator, *tempfile.Manager) {
	t.Helper()
	runner, err := ffmpeg.NewRunner("ffmpeg", ffmpeg.WithExecutor(sink))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	estimator, err := NewEstimator(runner, "ffprobe", WithInspector(inspect))
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	return estimator, tempfile.NewManager(t.TempDir(), nil)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestGeneratePreviewProducesArtifactsAndEstimate(t *testing.T) {
	sink := &sampleSink{originalBytes: 30_000, encodedBytes: 15_000}
	estimator, files := newTestEstimator(t, sink, probeStub("60", "600000", nil))

	var fractions []float64
	result, err := estimator.GeneratePreview(context.Background(), files, Request{
		Input: "/media/movie.mkv",
		Options: encoding.Options{
			Codec:   "libx264",
			Quality: 75,
			Window:  &encoding.Window{StartSeconds: 30, DurationSeconds: 3},
		},
		WantEstimate: true,
		OnProgress:   func(fraction float64) { fractions = append(fractions, fraction) },
	})
	if err != nil {
		t.Fatalf("generate preview: %v", err)
	}

	if !strings.HasSuffix(result.OriginalPath, ".mkv") {
		t.Errorf("original sample should keep the input extension, got %s", result.OriginalPath)
	}
	if !strings.HasSuffix(result.EncodedPath, ".mp4") {
		t.Errorf("encoded sample should use the output container, got %s", result.EncodedPath)
	}
	for _, path := range []string{result.OriginalPath, result.EncodedPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("artifact missing: %v", err)
		}
	}
	if extracts, encodes := sink.counts(); extracts != 1 || encodes != 1 {
		t.Errorf("expected one extract and one encode, got %d/%d", extracts, encodes)
	}
	if len(files.Paths()) != 2 {
		t.Errorf("both artifacts should be registered for cleanup, got %v", files.Paths())
	}

	estimate := result.Estimate
	if estimate == nil {
		t.Fatal("expected an estimate")
	}
	if estimate.PredictedBytes != 300_000 {
		t.Errorf("ratio 0.5 of 600000 bytes should predict 300000, got %d", estimate.PredictedBytes)
	}
	if estimate.Confidence != ConfidenceLow {
		t.Errorf("3s of a 60s input is 5%% coverage, want low confidence, got %s", estimate.Confidence)
	}
	if estimate.LowBytes != 225_000 || estimate.HighBytes != 375_000 {
		t.Errorf("unexpected band: %d..%d", estimate.LowBytes, estimate.HighBytes)
	}
	if estimate.SampleCount != 1 || !almostEqual(estimate.SampledSeconds, 3) {
		t.Errorf("unexpected sample accounting: %+v", estimate)
	}

	if len(fractions) != 1 || !almostEqual(fractions[0], 0.5) {
		t.Errorf("expected a single 0.5 progress report, got %v", fractions)
	}
}

func TestGeneratePreviewRequiresWindow(t *testing.T) {
	sink := &sampleSink{originalBytes: 1, encodedBytes: 1}
	estimator, files := newTestEstimator(t, sink, probeStub("60", "600000", nil))

	_, err := estimator.GeneratePreview(context.Background(), files, Request{
		Input:   "/media/movie.mkv",
		Options: encoding.Options{Codec: "libx264"},
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGeneratePreviewRejectsWindowPastEnd(t *testing.T) {
	sink := &sampleSink{originalBytes: 1, encodedBytes: 1}
	estimator, files := newTestEstimator(t, sink, probeStub("60", "600000", nil))

	_, err := estimator.GeneratePreview(context.Background(), files, Request{
		Input: "/media/movie.mkv",
		Options: encoding.Options{
			Codec:  "libx264",
			Window: &encoding.Window{StartSeconds: 120, DurationSeconds: 3},
		},
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "ends at") {
		t.Fatalf("error should name the input duration, got %v", err)
	}
}

func TestGeneratePreviewInspectFailure(t *testing.T) {
	sink := &sampleSink{originalBytes: 1, encodedBytes: 1}
	estimator, files := newTestEstimator(t, sink, probeStub("", "", errors.New("ffprobe exploded")))

	_, err := estimator.GeneratePreview(context.Background(), files, Request{
		Input: "/media/movie.mkv",
		Options: encoding.Options{
			Codec:  "libx264",
			Window: &encoding.Window{StartSeconds: 0, DurationSeconds: 3},
		},
	})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestGeneratePreviewFailureCarriesStderrTail(t *testing.T) {
	sink := &sampleSink{originalBytes: 30_000, encodedBytes: 15_000, failEncode: true}
	estimator, files := newTestEstimator(t, sink, probeStub("60", "600000", nil))

	_, err := estimator.GeneratePreview(context.Background(), files, Request{
		Input: "/media/movie.mkv",
		Options: encoding.Options{
			Codec:  "libx264",
			Window: &encoding.Window{StartSeconds: 10, DurationSeconds: 3},
		},
	})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Conversion failed!") {
		t.Fatalf("error should carry the stderr tail, got %v", err)
	}
}

func TestGeneratePreviewAbortMapsToAborted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &sampleSink{originalBytes: 30_000, encodedBytes: 15_000, failEncode: true, onEncode: cancel}
	estimator, files := newTestEstimator(t, sink, probeStub("60", "600000", nil))

	_, err := estimator.GeneratePreview(ctx, files, Request{
		Input: "/media/movie.mkv",
		Options: encoding.Options{
			Codec:  "libx264",
			Window: &encoding.Window{StartSeconds: 10, DurationSeconds: 3},
		},
	})
	if !errors.Is(err, services.ErrAborted) {
		t.Fatalf("expected abort sentinel, got %v", err)
	}
}

func TestEstimateSizeCombinesWindows(t *testing.T) {
	sink := &sampleSink{originalBytes: 30_000, encodedBytes: 12_000}
	estimator, files := newTestEstimator(t, sink, probeStub("100", "5000000", nil))

	var fractions []float64
	estimate, err := estimator.EstimateSize(context.Background(), files, EstimateRequest{
		Input:         "/media/movie.mkv",
		Options:       encoding.Options{Codec: "libx264", Quality: 50},
		SampleCount:   3,
		SampleSeconds: 3,
		OnProgress:    func(fraction float64) { fractions = append(fractions, fraction) },
	})
	if err != nil {
		t.Fatalf("estimate size: %v", err)
	}

	if extracts, encodes := sink.counts(); extracts != 3 || encodes != 3 {
		t.Errorf("expected three extract/encode pairs, got %d/%d", extracts, encodes)
	}
	if estimate.PredictedBytes != 2_000_000 {
		t.Errorf("ratio 0.4 of 5000000 bytes should predict 2000000, got %d", estimate.PredictedBytes)
	}
	if estimate.Confidence != ConfidenceMedium {
		t.Errorf("9s of a 100s input is 9%% coverage, want medium confidence, got %s", estimate.Confidence)
	}
	if estimate.LowBytes != 1_700_000 || estimate.HighBytes != 2_300_000 {
		t.Errorf("unexpected band: %d..%d", estimate.LowBytes, estimate.HighBytes)
	}
	if estimate.SampleCount != 3 || !almostEqual(estimate.SampledSeconds, 9) {
		t.Errorf("unexpected sample accounting: %+v", estimate)
	}

	if len(fractions) != 3 {
		t.Fatalf("expected one progress report per window, got %v", fractions)
	}
	for i := 1; i < len(fractions); i++ {
		if fractions[i] <= fractions[i-1] {
			t.Fatalf("progress should advance across windows, got %v", fractions)
		}
	}
	if fractions[2] < 0.8 {
		t.Fatalf("final window should report near the end of the range, got %v", fractions)
	}
}

func TestEstimateSizeDefaults(t *testing.T) {
	sink := &sampleSink{originalBytes: 30_000, encodedBytes: 12_000}
	estimator, files := newTestEstimator(t, sink, probeStub("100", "5000000", nil))

	estimate, err := estimator.EstimateSize(context.Background(), files, EstimateRequest{
		Input:   "/media/movie.mkv",
		Options: encoding.Options{Codec: "libx264"},
	})
	if err != nil {
		t.Fatalf("estimate size: %v", err)
	}
	if estimate.SampleCount != 1 || !almostEqual(estimate.SampledSeconds, 3) {
		t.Fatalf("zero-valued request should fall back to one 3s window, got %+v", estimate)
	}
}

func TestSampleWindowsPlacement(t *testing.T) {
	windows := sampleWindows(100, 3, 3)
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}
	wantStarts := []float64{5, 48.5, 92}
	for i, window := range windows {
		if !almostEqual(window.StartSeconds, wantStarts[i]) {
			t.Errorf("window %d starts at %v, want %v", i, window.StartSeconds, wantStarts[i])
		}
		if !almostEqual(window.DurationSeconds, 3) {
			t.Errorf("window %d duration %v, want 3", i, window.DurationSeconds)
		}
	}
	last := windows[len(windows)-1]
	if !almostEqual(last.StartSeconds+last.DurationSeconds, 95) {
		t.Errorf("last window should end at the tail margin, ends at %v", last.StartSeconds+last.DurationSeconds)
	}

	single := sampleWindows(100, 1, 3)
	if len(single) != 1 || !almostEqual(single[0].StartSeconds, 48.5) {
		t.Errorf("single window should sit in the middle, got %+v", single)
	}

	unknown := sampleWindows(0, 3, 3)
	if len(unknown) != 1 || !almostEqual(unknown[0].StartSeconds, 0) {
		t.Errorf("unknown duration should fall back to one window at the start, got %+v", unknown)
	}

	tiny := sampleWindows(2, 3, 3)
	if len(tiny) != 1 || !almostEqual(tiny[0].DurationSeconds, 2) {
		t.Errorf("short input should clamp to one full-length window, got %+v", tiny)
	}
}
