package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// cliTestEnv is a throwaway config rooted in a temp dir, with the ffmpeg
// and ffprobe entries pointing at shell stubs so commands run without real
// binaries.
type cliTestEnv struct {
	baseDir    string
	configPath string
	workDir    string
	stateDir   string
	ffmpegPath string
}

const stubProbeScript = `#!/bin/sh
cat <<'JSON'
{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1280, "height": 720, "avg_frame_rate": "30/1"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "channels": 2, "channel_layout": "stereo"}
  ],
  "format": {"filename": "input.mkv", "nb_streams": 2, "duration": "100.000000", "size": "5000", "bit_rate": "400000", "format_name": "matroska,webm"}
}
JSON
`

// stubEncodeScript answers the capability probes and otherwise acts like
// an encode: progress on stdout the way -progress pipe:1 reports it, then
// 2000 bytes written to the output path (the final argument).
const stubEncodeScript = `#!/bin/sh
if [ "$1" = "-version" ]; then
  echo "ffmpeg version 7.1 Copyright (c) 2000-2024 the FFmpeg developers"
  exit 0
fi
if [ "$1" = "-hide_banner" ] && [ "$2" = "-encoders" ]; then
  cat <<'EOF'
Encoders:
 V..... = Video
 ------
 V....D libx264              H.264 / AVC / MPEG-4 AVC
 V....D libsvtav1            SVT-AV1
 A....D aac                  AAC (Advanced Audio Coding)
EOF
  exit 0
fi
for arg; do out="$arg"; done
printf 'out_time_ms=50000000\n'
printf 'progress=end\n'
head -c 2000 /dev/zero > "$out"
exit 0
`

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	binDir := filepath.Join(base, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	ffmpegPath := writeStub(t, binDir, "ffmpeg", stubEncodeScript)
	ffprobePath := writeStub(t, binDir, "ffprobe", stubProbeScript)

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		workDir:    filepath.Join(base, "work"),
		stateDir:   filepath.Join(base, "state"),
		ffmpegPath: ffmpegPath,
	}
	writeTestConfig(t, env, ffmpegPath, ffprobePath)
	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv, ffmpegPath, ffprobePath string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
work_dir = %q
log_dir = %q
state_dir = %q

[tools]
ffmpeg = %q
ffprobe = %q
`,
		env.workDir,
		filepath.Join(env.baseDir, "logs"),
		env.stateDir,
		ffmpegPath,
		ffprobePath,
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func writeStub(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

func writeInputFile(t *testing.T, env *cliTestEnv) string {
	t.Helper()
	path := filepath.Join(env.baseDir, "input.mkv")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xAB}, 5000), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
