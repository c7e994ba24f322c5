package sidecar

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"squish/internal/deps"
	"squish/internal/history"
	"squish/internal/jobs"
	"squish/internal/logging"
	"squish/internal/media/ffprobe"
	"squish/internal/services"
)

// maxLineBytes bounds a single protocol line. Requests are small; the cap
// exists so a corrupt stream cannot grow the scanner buffer unbounded.
const maxLineBytes = 1 << 20

// capabilitiesTimeout bounds the ffmpeg probes behind the capabilities
// method.
const capabilitiesTimeout = 10 * time.Second

// Info describes the runtime the server reports through capabilities and
// uses to drive inspect.
type Info struct {
	Version       string
	FFmpegBinary  string
	FFprobeBinary string
	WorkDir       string
}

// Server answers protocol requests against a shared coordinator.
type Server struct {
	coordinator *jobs.Coordinator
	store       *history.Store
	info        Info
	inspect     ffprobe.InspectFunc
	logger      *slog.Logger
}

// Option adjusts server construction.
type Option func(*Server)

// WithLogger routes server logs through logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHistory enables the history method against store.
func WithHistory(store *history.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithInspector substitutes the media prober used by inspect.
func WithInspector(inspect ffprobe.InspectFunc) Option {
	return func(s *Server) {
		if inspect != nil {
			s.inspect = inspect
		}
	}
}

// NewServer configures a protocol server around the coordinator.
func NewServer(coordinator *jobs.Coordinator, info Info, opts ...Option) (*Server, error) {
	if coordinator == nil {
		return nil, services.Wrap(services.ErrConfiguration, "sidecar", "new", "coordinator is required", nil)
	}
	if strings.TrimSpace(info.Version) == "" {
		info.Version = "dev"
	}
	if strings.TrimSpace(info.FFmpegBinary) == "" {
		info.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(info.FFprobeBinary) == "" {
		info.FFprobeBinary = "ffprobe"
	}
	server := &Server{
		coordinator: coordinator,
		info:        info,
		inspect:     ffprobe.Inspect,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(server)
	}
	return server, nil
}

// Serve runs the protocol on one stream until the reader ends or ctx is
// cancelled. Each request dispatches on its own goroutine; when the stream
// ends, in-flight work is cancelled and awaited before Serve returns.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := &lineWriter{w: w, logger: s.logger}
	dispose := s.coordinator.Events().Subscribe(func(event jobs.Event) {
		s.writeEvent(out, event)
	})
	defer dispose()

	var wg sync.WaitGroup
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("dropping malformed request line", logging.Error(err))
			continue
		}
		if req.ID == 0 {
			s.logger.Warn("dropping request without id", logging.String(logging.FieldMethod, req.Method))
			continue
		}
		// Params aliases the scanner's buffer, which the next Scan
		// overwrites.
		req.Params = append(json.RawMessage(nil), req.Params...)
		wg.Add(1)
		go func(req Request) {
			defer wg.Done()
			s.dispatch(ctx, out, req)
		}(req)
	}
	err := scanner.Err()
	cancel()
	wg.Wait()
	return err
}

// ListenAndServe accepts connections on a unix socket at path, serving one
// connection at a time against the shared coordinator. The socket file is
// removed on shutdown.
func (s *Server) ListenAndServe(ctx context.Context, path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	defer func() {
		_ = listener.Close()
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("failed to remove socket",
				logging.String("socket", path),
				logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	s.logger.Info("listening", logging.String("socket", path))
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("accept failed", logging.Error(err))
			continue
		}
		s.logger.Info("client connected")
		if err := s.Serve(ctx, conn, conn); err != nil && ctx.Err() == nil {
			s.logger.Warn("connection ended with error", logging.Error(err))
		}
		_ = conn.Close()
		s.logger.Info("client disconnected")
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *Server) dispatch(ctx context.Context, out *lineWriter, req Request) {
	logger := s.logger.With(
		logging.Int64(logging.FieldRequestID, req.ID),
		logging.String(logging.FieldMethod, req.Method))
	logger.Debug("request received")

	result, err := s.handle(ctx, req)
	if err != nil {
		logger.Warn("request failed", logging.Error(err))
		out.writeLine(Response{ID: req.ID, Error: &ErrorPayload{
			Summary: services.FailureSummary(err),
			Detail:  err.Error(),
		}})
		return
	}
	logger.Debug("request completed")
	out.writeLine(Response{ID: req.ID, Result: result})
}

func (s *Server) handle(ctx context.Context, req Request) (json.RawMessage, error) {
	switch req.Method {
	case "ping":
		return marshalResult(PingResult{OK: true})

	case "capabilities":
		checkCtx, cancel := context.WithTimeout(ctx, capabilitiesTimeout)
		defer cancel()
		snapshot := deps.TakeSnapshot(checkCtx, s.info.FFmpegBinary, s.info.FFprobeBinary, s.info.WorkDir)
		return marshalResult(CapabilitiesResult{
			Version:         s.info.Version,
			ProtocolVersion: ProtocolVersion,
			Snapshot:        snapshot,
		})

	case "inspect":
		var params InspectParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return s.handleInspect(ctx, params)

	case "preview":
		var params jobs.PreviewRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		result, err := s.coordinator.RunPreview(ctx, params)
		if err != nil {
			return nil, err
		}
		return marshalResult(result)

	case "transcode":
		var params jobs.TranscodeRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		result, err := s.coordinator.RunTranscode(ctx, params)
		if err != nil {
			return nil, err
		}
		return marshalResult(result)

	case "cancel":
		var params CancelParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return marshalResult(CancelResult{Cancelled: s.coordinator.Cancel(params.JobID)})

	case "commit":
		var params CommitParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		if err := s.coordinator.Commit(params.OutputPath, params.Destination); err != nil {
			return nil, err
		}
		return marshalResult(CommitResult{Path: params.Destination})

	case "discard":
		var params DiscardParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		if err := s.coordinator.Discard(params.OutputPath); err != nil {
			return nil, err
		}
		return marshalResult(DiscardResult{Discarded: true})

	case "history":
		if s.store == nil {
			return nil, services.Wrap(services.ErrConfiguration, "sidecar", "history", "history is disabled", nil)
		}
		var params HistoryParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		entries, err := s.store.Recent(ctx, params.Limit)
		if err != nil {
			return nil, err
		}
		return marshalResult(HistoryResult{Entries: entries})

	default:
		return nil, services.Wrap(services.ErrProtocol, "sidecar", "dispatch",
			fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

func (s *Server) handleInspect(ctx context.Context, params InspectParams) (json.RawMessage, error) {
	path := strings.TrimSpace(params.Path)
	if path == "" {
		return nil, services.Wrap(services.ErrValidation, "sidecar", "inspect", "path is required", nil)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, services.Wrap(services.ErrNotFound, "sidecar", "inspect", fmt.Sprintf("input %q", path), err)
		}
		return nil, services.Wrap(services.ErrConfiguration, "sidecar", "inspect", fmt.Sprintf("stat %q", path), err)
	}
	probe, err := s.inspect(ctx, s.info.FFprobeBinary, path)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "sidecar", "inspect", "probe input", err)
	}
	return marshalResult(probe.Summarize())
}

func (s *Server) writeEvent(out *lineWriter, event jobs.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("marshal event", logging.Error(err))
		return
	}
	out.writeLine(EventEnvelope{Event: string(event.Type), Payload: payload})
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return services.Wrap(services.ErrProtocol, "sidecar", "decode params", err.Error(), nil)
	}
	return nil
}

func marshalResult(value any) (json.RawMessage, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return data, nil
}

// lineWriter serializes outbound lines. Responses race events from job
// goroutines; the mutex keeps whole lines intact. After the first write
// failure the stream is considered gone and later lines are dropped.
type lineWriter struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
	failed bool
}

func (lw *lineWriter) writeLine(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		lw.logger.Warn("marshal outbound line", logging.Error(err))
		return
	}
	data = append(data, '\n')
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.failed {
		return
	}
	if _, err := lw.w.Write(data); err != nil {
		lw.failed = true
		lw.logger.Warn("write to client failed", logging.Error(err))
	}
}
