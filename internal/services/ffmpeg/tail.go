package ffmpeg

import (
	"strings"
	"sync"
)

const (
	tailMaxLines = 40
	tailMaxBytes = 16 * 1024
)

// lineTail keeps the most recent stderr lines within fixed line and byte
// budgets, so a failure report carries the end of the log rather than an
// unbounded transcript.
type lineTail struct {
	mu       sync.Mutex
	maxLines int
	maxBytes int
	lines    []string
	bytes    int
}

func newLineTail(maxLines, maxBytes int) *lineTail {
	if maxLines <= 0 {
		maxLines = tailMaxLines
	}
	if maxBytes <= 0 {
		maxBytes = tailMaxBytes
	}
	return &lineTail{maxLines: maxLines, maxBytes: maxBytes}
}

func (t *lineTail) Add(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	if len(line) > t.maxBytes {
		line = line[len(line)-t.maxBytes:]
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	t.bytes += len(line)
	for (len(t.lines) > t.maxLines || t.bytes > t.maxBytes) && len(t.lines) > 1 {
		t.bytes -= len(t.lines[0])
		t.lines = t.lines[1:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
