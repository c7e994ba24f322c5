package sidecar

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"squish/internal/jobs"
	"squish/internal/media/ffprobe"
)

// CallError is the wire error a method call came back with.
type CallError struct {
	Summary string
	Detail  string
}

func (e *CallError) Error() string {
	if e.Detail != "" {
		return e.Summary + ": " + e.Detail
	}
	return e.Summary
}

type callOutcome struct {
	result json.RawMessage
	err    error
}

// Client drives a sidecar over an established stream. A background
// goroutine consumes the reader; when the stream ends, every pending and
// future call fails with a "sidecar exited" error.
type Client struct {
	writeMu sync.Mutex
	w       io.Writer

	mu       sync.Mutex
	nextID   int64
	pending  map[int64]chan callOutcome
	subs     map[int]func(event string, payload json.RawMessage)
	nextSub  int
	closed   bool
	closeErr error

	closers  []io.Closer
	readDone chan struct{}
}

// NewClient wraps an established stream and starts the read loop.
func NewClient(r io.Reader, w io.Writer) *Client {
	client := &Client{
		w:        w,
		pending:  make(map[int64]chan callOutcome),
		subs:     make(map[int]func(string, json.RawMessage)),
		readDone: make(chan struct{}),
	}
	if wc, ok := w.(io.Closer); ok {
		client.closers = append(client.closers, wc)
	}
	if rc, ok := r.(io.Closer); ok {
		if len(client.closers) == 0 || client.closers[0] != rc {
			client.closers = append(client.closers, rc)
		}
	}
	go client.readLoop(r)
	return client
}

// Dial connects to a sidecar listening on a unix socket.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, conn), nil
}

// Close tears down the stream and waits for the read loop to finish
// rejecting pending calls.
func (c *Client) Close() error {
	var firstErr error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	<-c.readDone
	return firstErr
}

// OnEvent registers fn for every broadcast event. Delivery happens on the
// read goroutine in subscription order; the returned func removes the
// subscription.
func (c *Client) OnEvent(fn func(event string, payload json.RawMessage)) func() {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Call invokes method with params and decodes the result into result when
// both are non-nil. It blocks until the sidecar answers, ctx ends, or the
// stream closes.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal %s params: %w", method, err)
		}
		raw = data
	}

	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan callOutcome, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.writeLine(Request{ID: id, Method: method, Params: raw}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return err
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	case outcome := <-ch:
		if outcome.err != nil {
			return outcome.err
		}
		if result == nil || len(outcome.result) == 0 {
			return nil
		}
		if err := json.Unmarshal(outcome.result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

// Ping checks that the sidecar is responsive.
func (c *Client) Ping(ctx context.Context) (*PingResult, error) {
	var resp PingResult
	if err := c.Call(ctx, "ping", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Capabilities fetches the build identity and dependency snapshot.
func (c *Client) Capabilities(ctx context.Context) (*CapabilitiesResult, error) {
	var resp CapabilitiesResult
	if err := c.Call(ctx, "capabilities", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Inspect probes a media file and returns its summary.
func (c *Client) Inspect(ctx context.Context, path string) (*ffprobe.Summary, error) {
	var resp ffprobe.Summary
	if err := c.Call(ctx, "inspect", InspectParams{Path: path}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Preview runs a preview job and blocks until it resolves.
func (c *Client) Preview(ctx context.Context, req jobs.PreviewRequest) (*jobs.PreviewResult, error) {
	var resp jobs.PreviewResult
	if err := c.Call(ctx, "preview", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Transcode runs a transcode job and blocks until it resolves.
func (c *Client) Transcode(ctx context.Context, req jobs.TranscodeRequest) (*jobs.TranscodeResult, error) {
	var resp jobs.TranscodeResult
	if err := c.Call(ctx, "transcode", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel aborts the job with the given id.
func (c *Client) Cancel(ctx context.Context, jobID int64) (*CancelResult, error) {
	var resp CancelResult
	if err := c.Call(ctx, "cancel", CancelParams{JobID: jobID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Commit moves a retained output to its final destination.
func (c *Client) Commit(ctx context.Context, outputPath, destination string) (*CommitResult, error) {
	var resp CommitResult
	if err := c.Call(ctx, "commit", CommitParams{OutputPath: outputPath, Destination: destination}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Discard deletes a retained output.
func (c *Client) Discard(ctx context.Context, outputPath string) (*DiscardResult, error) {
	var resp DiscardResult
	if err := c.Call(ctx, "discard", DiscardParams{OutputPath: outputPath}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History lists recent finished jobs.
func (c *Client) History(ctx context.Context, limit int) (*HistoryResult, error) {
	var resp HistoryResult
	if err := c.Call(ctx, "history", HistoryParams{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) writeLine(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.w.Write(data)
	return err
}

// inbound is the union of every line the sidecar emits.
type inbound struct {
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *ErrorPayload   `json:"error"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Client) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg inbound
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		switch {
		case msg.Event != "":
			payload := append(json.RawMessage(nil), msg.Payload...)
			for _, fn := range c.snapshotSubs() {
				fn(msg.Event, payload)
			}
		case msg.ID != 0:
			outcome := callOutcome{}
			if msg.Error != nil {
				outcome.err = &CallError{Summary: msg.Error.Summary, Detail: msg.Error.Detail}
			} else {
				outcome.result = append(json.RawMessage(nil), msg.Result...)
			}
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			if ok {
				delete(c.pending, msg.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- outcome
			}
		}
	}
	c.fail(errors.New("sidecar exited"))
	close(c.readDone)
}

// fail rejects every pending call and turns away future ones.
func (c *Client) fail(err error) {
	c.mu.Lock()
	c.closed = true
	c.closeErr = err
	pending := c.pending
	c.pending = make(map[int64]chan callOutcome)
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- callOutcome{err: err}
	}
}

func (c *Client) snapshotSubs() []func(string, json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(string, json.RawMessage), 0, len(ids))
	for _, id := range ids {
		out = append(out, c.subs[id])
	}
	return out
}
