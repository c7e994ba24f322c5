package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// ErrSpawn marks process launches that never produced a running ffmpeg,
// typically a missing or unrunnable binary.
var ErrSpawn = errors.New("spawn ffmpeg")

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(scanOutputLines)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" && forward != nil {
				forward(line)
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout, onStdout)
	go scan(stderr, onStderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}

// scanOutputLines splits on both newline and carriage return. ffmpeg
// rewrites its stderr status line with bare \r, so newline-only splitting
// would buffer those updates until exit.
func scanOutputLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance := i + 1
		if data[i] == '\r' && advance < len(data) && data[advance] == '\n' {
			advance++
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
