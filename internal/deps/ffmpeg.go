package deps

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// FFmpegVersion reports the version of the local ffmpeg build, parsed from
// the banner line of `ffmpeg -version`.
func FFmpegVersion(ctx context.Context, binary string) (string, error) {
	output, err := runTool(ctx, binary, "-version")
	if err != nil {
		return "", fmt.Errorf("ffmpeg version: %w", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	if !scanner.Scan() {
		return "", errors.New("ffmpeg version: empty output")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 3 || fields[0] != "ffmpeg" || fields[1] != "version" {
		return "", fmt.Errorf("ffmpeg version: unrecognized banner %q", scanner.Text())
	}
	return fields[2], nil
}

// FFmpegEncoders lists the encoder names compiled into the local ffmpeg
// build, parsed from `ffmpeg -hide_banner -encoders`.
func FFmpegEncoders(ctx context.Context, binary string) (map[string]bool, error) {
	output, err := runTool(ctx, binary, "-hide_banner", "-encoders")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg encoders: %w", err)
	}
	encoders := make(map[string]bool)
	listing := false
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// The encoder table follows a "------" separator; everything above
		// it is the capability-flag legend.
		if !listing {
			if strings.HasPrefix(line, "------") {
				listing = true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		encoders[fields[1]] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ffmpeg encoders: %w", err)
	}
	return encoders, nil
}

func runTool(ctx context.Context, binary string, args ...string) ([]byte, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if detail := strings.TrimSpace(string(exitErr.Stderr)); detail != "" {
				return nil, fmt.Errorf("%w: %s", err, detail)
			}
		}
		return nil, err
	}
	return output, nil
}
