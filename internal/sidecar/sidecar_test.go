package sidecar_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"squish/internal/codec"
	"squish/internal/encoding"
	"squish/internal/history"
	"squish/internal/jobs"
	"squish/internal/media/ffprobe"
	"squish/internal/preview"
	"squish/internal/services/ffmpeg"
	"squish/internal/sidecar"
)

// fakeFFmpeg stands in for the real binary, the same shape the job tests
// use: stream copies write their bytes immediately, encodes emit a progress
// line, optionally park on blockEncode, then write output or fail.
type fakeFFmpeg struct {
	mu            sync.Mutex
	originalBytes int
	encodedBytes  int
	failEncode    bool
	blockEncode   chan struct{}
	started       chan struct{}
}

func (f *fakeFFmpeg) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	output := args[len(args)-1]
	isCopy := containsPair(args, "-c", "copy")

	f.mu.Lock()
	size := f.encodedBytes
	if isCopy {
		size = f.originalBytes
	}
	fail := !isCopy && f.failEncode
	block := f.blockEncode
	started := f.started
	f.mu.Unlock()

	if isCopy {
		return os.WriteFile(output, bytes.Repeat([]byte("o"), size), 0o644)
	}

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if onStdout != nil {
		onStdout("out_time_ms=10000000")
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return fmt.Errorf("signal: killed: %w", ctx.Err())
		}
	}
	if fail {
		if onStderr != nil {
			onStderr("Conversion failed!")
		}
		return errors.New("exit status 1")
	}
	if err := os.WriteFile(output, bytes.Repeat([]byte("e"), size), 0o644); err != nil {
		return err
	}
	if onStdout != nil {
		onStdout("out_time_ms=50000000")
	}
	return nil
}

func containsPair(args []string, first, second string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == first && args[i+1] == second {
			return true
		}
	}
	return false
}

type wireEvent struct {
	name  string
	event jobs.Event
}

type wireEvents struct {
	mu   sync.Mutex
	list []wireEvent
}

func (w *wireEvents) record(name string, payload json.RawMessage) {
	var event jobs.Event
	_ = json.Unmarshal(payload, &event)
	w.mu.Lock()
	w.list = append(w.list, wireEvent{name: name, event: event})
	w.mu.Unlock()
}

func (w *wireEvents) snapshot() []wireEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]wireEvent(nil), w.list...)
}

func (w *wireEvents) named(name string) []wireEvent {
	var out []wireEvent
	for _, evt := range w.snapshot() {
		if evt.name == name {
			out = append(out, evt)
		}
	}
	return out
}

type fixture struct {
	client     *sidecar.Client
	fake       *fakeFFmpeg
	workDir    string
	events     *wireEvents
	serverConn net.Conn
	serveDone  chan struct{}
}

func buildCoordinator(t *testing.T, fake *fakeFFmpeg, workDir string) (*jobs.Coordinator, ffprobe.InspectFunc) {
	t.Helper()
	runner, err := ffmpeg.NewRunner("ffmpeg", ffmpeg.WithExecutor(fake))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	inspect := func(ctx context.Context, binary, path string) (ffprobe.Result, error) {
		return ffprobe.Result{Format: ffprobe.Format{Duration: "100", Size: "5000"}}, nil
	}
	estimator, err := preview.NewEstimator(runner, "ffprobe", preview.WithInspector(inspect))
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}
	coordinator, err := jobs.NewCoordinator(runner, estimator, workDir, "ffprobe", jobs.WithInspector(inspect))
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	t.Cleanup(func() {
		if err := coordinator.Close(); err != nil {
			t.Errorf("close coordinator: %v", err)
		}
	})
	return coordinator, inspect
}

func newFixture(t *testing.T, fake *fakeFFmpeg, opts ...sidecar.Option) *fixture {
	t.Helper()
	workDir := t.TempDir()
	coordinator, inspect := buildCoordinator(t, fake, workDir)

	info := sidecar.Info{
		Version:       "1.2.3-test",
		FFmpegBinary:  "squish-test-missing-ffmpeg",
		FFprobeBinary: "squish-test-missing-ffprobe",
		WorkDir:       workDir,
	}
	server, err := sidecar.NewServer(coordinator, info,
		append([]sidecar.Option{sidecar.WithInspector(inspect)}, opts...)...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	serverConn, clientConn := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		_ = server.Serve(ctx, serverConn, serverConn)
	}()

	client := sidecar.NewClient(clientConn, clientConn)
	events := &wireEvents{}
	client.OnEvent(events.record)

	t.Cleanup(func() {
		_ = client.Close()
		select {
		case <-serveDone:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop after client close")
		}
		cancel()
	})
	return &fixture{
		client:     client,
		fake:       fake,
		workDir:    workDir,
		events:     events,
		serverConn: serverConn,
		serveDone:  serveDone,
	}
}

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.mkv")
	if err := os.WriteFile(path, bytes.Repeat([]byte("v"), 5_000), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func transcodeRequest(input string) jobs.TranscodeRequest {
	return jobs.TranscodeRequest{
		Input:   input,
		Options: encoding.Options{Codec: "libx264", Quality: 75},
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func asCallError(t *testing.T, err error) *sidecar.CallError {
	t.Helper()
	var callErr *sidecar.CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected wire error, got %v", err)
	}
	return callErr
}

func TestPingAndCapabilities(t *testing.T) {
	fix := newFixture(t, &fakeFFmpeg{})
	ctx := context.Background()

	pong, err := fix.client.Ping(ctx)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !pong.OK {
		t.Fatal("expected ping ok")
	}

	caps, err := fix.client.Capabilities(ctx)
	if err != nil {
		t.Fatalf("capabilities: %v", err)
	}
	if caps.Version != "1.2.3-test" {
		t.Errorf("unexpected version %q", caps.Version)
	}
	if caps.ProtocolVersion != sidecar.ProtocolVersion {
		t.Errorf("unexpected protocol version %d", caps.ProtocolVersion)
	}
	if caps.FFmpeg.Available {
		t.Error("expected the deliberately missing ffmpeg to be unavailable")
	}
	if len(caps.Encoders) != len(codec.All()) {
		t.Errorf("expected %d encoder entries, got %d", len(codec.All()), len(caps.Encoders))
	}
	for _, enc := range caps.Encoders {
		if enc.Available {
			t.Errorf("encoder %s should be unavailable without ffmpeg", enc.ID)
		}
	}
	if !caps.WorkDir.Passed {
		t.Errorf("work dir check should pass, got %#v", caps.WorkDir)
	}
}

func TestInspectReturnsSummary(t *testing.T) {
	stub := func(ctx context.Context, binary, path string) (ffprobe.Result, error) {
		return ffprobe.Result{
			Streams: []ffprobe.Stream{
				{CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080, AvgFrameRate: "30/1"},
				{CodecType: "audio", CodecName: "aac", Channels: 2},
			},
			Format: ffprobe.Format{Filename: path, Duration: "60.5", Size: "1000000"},
		}, nil
	}
	fix := newFixture(t, &fakeFFmpeg{}, sidecar.WithInspector(stub))
	input := writeInput(t)

	summary, err := fix.client.Inspect(context.Background(), input)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if summary.Container != "mkv" {
		t.Errorf("unexpected container %q", summary.Container)
	}
	if summary.DurationSeconds != 60.5 {
		t.Errorf("unexpected duration %v", summary.DurationSeconds)
	}
	if len(summary.Video) != 1 || summary.Video[0].Codec != "h264" || summary.Video[0].Width != 1920 {
		t.Errorf("unexpected video summary %+v", summary.Video)
	}
	if len(summary.Audio) != 1 || summary.Audio[0].Channels != 2 {
		t.Errorf("unexpected audio summary %+v", summary.Audio)
	}
}

func TestInspectMissingFileIsNotFound(t *testing.T) {
	fix := newFixture(t, &fakeFFmpeg{})

	_, err := fix.client.Inspect(context.Background(), filepath.Join(t.TempDir(), "nope.mkv"))
	callErr := asCallError(t, err)
	if callErr.Summary != "not found" {
		t.Errorf("unexpected summary %q", callErr.Summary)
	}
	if callErr.Detail == "" {
		t.Error("expected detail on inspect failure")
	}
}

func TestTranscodeOverWire(t *testing.T) {
	fix := newFixture(t, &fakeFFmpeg{encodedBytes: 2_000})
	input := writeInput(t)

	result, err := fix.client.Transcode(context.Background(), transcodeRequest(input))
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}
	if result.Outcome != jobs.OutcomeSucceeded {
		t.Fatalf("expected succeeded, got %s", result.Outcome)
	}
	if result.JobID != 1 {
		t.Errorf("first job should have id 1, got %d", result.JobID)
	}
	info, statErr := os.Stat(result.OutputPath)
	if statErr != nil {
		t.Fatalf("output missing: %v", statErr)
	}
	if info.Size() != 2_000 || result.OutputBytes != 2_000 {
		t.Errorf("unexpected output size: disk %d, reported %d", info.Size(), result.OutputBytes)
	}

	// The complete broadcast is written before the response, so it has
	// been delivered by the time the call returns.
	progress := fix.events.named("progress")
	if len(progress) == 0 {
		t.Fatal("expected progress events over the wire")
	}
	if last := progress[len(progress)-1].event; last.Fraction != 0.5 {
		t.Errorf("unexpected final fraction %v", last.Fraction)
	}
	completes := fix.events.named("complete")
	if len(completes) != 1 {
		t.Fatalf("expected one complete event, got %d", len(completes))
	}
	if evt := completes[0].event; evt.JobID != 1 || evt.Kind != jobs.KindTranscode ||
		evt.Outcome != jobs.OutcomeSucceeded || evt.Output != result.OutputPath {
		t.Errorf("unexpected complete event %+v", evt)
	}
}

func TestTranscodeFailureMapsToWireError(t *testing.T) {
	fix := newFixture(t, &fakeFFmpeg{failEncode: true})
	input := writeInput(t)

	_, err := fix.client.Transcode(context.Background(), transcodeRequest(input))
	callErr := asCallError(t, err)
	if callErr.Summary != "ffmpeg failed" {
		t.Errorf("unexpected summary %q", callErr.Summary)
	}
	if !strings.Contains(callErr.Detail, "Conversion failed!") {
		t.Errorf("detail should carry the stderr tail, got %q", callErr.Detail)
	}

	errorEvents := fix.events.named("error")
	if len(errorEvents) != 1 {
		t.Fatalf("expected one error event, got %d", len(errorEvents))
	}
	if evt := errorEvents[0].event; evt.Summary != "ffmpeg failed" || evt.JobID != 1 {
		t.Errorf("unexpected error event %+v", evt)
	}
}

func TestCancelWhileTranscodeInFlight(t *testing.T) {
	fake := &fakeFFmpeg{
		encodedBytes: 2_000,
		blockEncode:  make(chan struct{}),
		started:      make(chan struct{}, 1),
	}
	fix := newFixture(t, fake)
	input := writeInput(t)

	type outcome struct {
		result *jobs.TranscodeResult
		err    error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		result, err := fix.client.Transcode(context.Background(), transcodeRequest(input))
		resultCh <- outcome{result: result, err: err}
	}()

	waitSignal(t, fake.started, "transcode to start")

	cancelResp, err := fix.client.Cancel(context.Background(), 1)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !cancelResp.Cancelled {
		t.Fatal("expected cancel to hit the running job")
	}

	var res outcome
	select {
	case res = <-resultCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for transcode to resolve")
	}
	if res.err != nil {
		t.Fatalf("aborted transcode should resolve without error, got %v", res.err)
	}
	if res.result.Outcome != jobs.OutcomeAborted {
		t.Fatalf("expected aborted outcome, got %s", res.result.Outcome)
	}
	if res.result.OutputPath != "" {
		t.Errorf("aborted transcode should carry no output, got %q", res.result.OutputPath)
	}

	later, err := fix.client.Cancel(context.Background(), 1)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if later.Cancelled {
		t.Error("cancel after resolution should report false")
	}
}

func TestCommitAndDiscardOverWire(t *testing.T) {
	fix := newFixture(t, &fakeFFmpeg{encodedBytes: 1_500})
	input := writeInput(t)
	ctx := context.Background()

	result, err := fix.client.Transcode(ctx, transcodeRequest(input))
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "library", "movie.mp4")
	committed, err := fix.client.Commit(ctx, result.OutputPath, dest)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if committed.Path != dest {
		t.Errorf("unexpected committed path %q", committed.Path)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("committed file missing: %v", err)
	}

	_, err = fix.client.Discard(ctx, result.OutputPath)
	callErr := asCallError(t, err)
	if callErr.Summary != "invalid options" {
		t.Errorf("discarding a committed output should be rejected, got %q", callErr.Summary)
	}
}

func TestUnknownMethodRejected(t *testing.T) {
	fix := newFixture(t, &fakeFFmpeg{})

	err := fix.client.Call(context.Background(), "bogus", nil, nil)
	callErr := asCallError(t, err)
	if callErr.Summary != "malformed request" {
		t.Errorf("unexpected summary %q", callErr.Summary)
	}
	if !strings.Contains(callErr.Detail, "bogus") {
		t.Errorf("detail should name the method, got %q", callErr.Detail)
	}
}

func TestHistoryOverWire(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close history: %v", err)
		}
	})
	ctx := context.Background()
	for jobID := int64(1); jobID <= 2; jobID++ {
		entry := history.Entry{
			JobID:     jobID,
			Kind:      "transcode",
			InputPath: "/in.mkv",
			Codec:     "libx264",
			Quality:   75,
			Outcome:   "succeeded",
		}
		if err := store.Record(ctx, entry); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	fix := newFixture(t, &fakeFFmpeg{}, sidecar.WithHistory(store))

	result, err := fix.client.History(ctx, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(result.Entries))
	}
	if result.Entries[0].JobID != 2 {
		t.Errorf("expected newest entry first, got job %d", result.Entries[0].JobID)
	}
}

func TestHistoryDisabled(t *testing.T) {
	fix := newFixture(t, &fakeFFmpeg{})

	_, err := fix.client.History(context.Background(), 10)
	callErr := asCallError(t, err)
	if callErr.Summary != "configuration problem" {
		t.Errorf("unexpected summary %q", callErr.Summary)
	}
}

func TestPendingCallsRejectedWhenServerExits(t *testing.T) {
	fake := &fakeFFmpeg{
		encodedBytes: 2_000,
		blockEncode:  make(chan struct{}),
		started:      make(chan struct{}, 1),
	}
	fix := newFixture(t, fake)
	input := writeInput(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := fix.client.Transcode(context.Background(), transcodeRequest(input))
		errCh <- err
	}()
	waitSignal(t, fake.started, "transcode to start")

	_ = fix.serverConn.Close()

	var err error
	select {
	case err = <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("pending call was not rejected")
	}
	if err == nil || err.Error() != "sidecar exited" {
		t.Fatalf("expected synthetic exit error, got %v", err)
	}

	if err := fix.client.Call(context.Background(), "ping", nil, nil); err == nil || err.Error() != "sidecar exited" {
		t.Fatalf("calls after exit should fail fast, got %v", err)
	}
}

func TestMalformedLinesAreDroppedStreamSurvives(t *testing.T) {
	fake := &fakeFFmpeg{}
	workDir := t.TempDir()
	coordinator, inspect := buildCoordinator(t, fake, workDir)
	server, err := sidecar.NewServer(coordinator, sidecar.Info{WorkDir: workDir}, sidecar.WithInspector(inspect))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	serverConn, clientConn := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		_ = server.Serve(ctx, serverConn, serverConn)
	}()

	if _, err := clientConn.Write([]byte("this is not json\n{\"id\":7,\"method\":\"ping\"}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	scanner := bufio.NewScanner(clientConn)
	if !scanner.Scan() {
		t.Fatalf("no response line: %v", scanner.Err())
	}
	var resp sidecar.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 7 {
		t.Errorf("expected response to id 7, got %d", resp.ID)
	}
	if resp.Error != nil {
		t.Errorf("ping after garbage should succeed, got %+v", resp.Error)
	}

	_ = clientConn.Close()
	select {
	case <-serveDone:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after stream close")
	}
}

func TestListenAndServeUnixSocket(t *testing.T) {
	fake := &fakeFFmpeg{}
	workDir := t.TempDir()
	coordinator, inspect := buildCoordinator(t, fake, workDir)
	server, err := sidecar.NewServer(coordinator, sidecar.Info{WorkDir: workDir}, sidecar.WithInspector(inspect))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	socket := filepath.Join(t.TempDir(), "squish.sock")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(ctx, socket)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		select {
		case err := <-errCh:
			if err != nil && strings.Contains(err.Error(), "operation not permitted") {
				t.Skipf("skipping unix socket test: %v", err)
			}
			t.Fatalf("listen ended early: %v", err)
		default:
		}
		if _, err := os.Stat(socket); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("socket never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}

	client, err := sidecar.Dial(socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	pong, err := client.Ping(context.Background())
	if err != nil {
		t.Fatalf("ping over socket: %v", err)
	}
	if !pong.OK {
		t.Fatal("expected ping ok")
	}
	if err := client.Close(); err != nil {
		t.Errorf("close client: %v", err)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("listen returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Errorf("socket file should be removed, stat err %v", err)
	}
}
