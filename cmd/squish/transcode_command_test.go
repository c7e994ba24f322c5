package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTranscodeCommandEndToEnd(t *testing.T) {
	env := setupCLITestEnv(t)
	input := writeInputFile(t, env)
	dest := filepath.Join(env.baseDir, "library", "movie.mp4")

	out, _, err := runCLI(t, []string{"transcode", input, "-o", dest, "--no-progress"}, env.configPath)
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}
	requireContains(t, out, "Wrote "+dest)
	requireContains(t, out, "40.0% of original")

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("expected output at %s: %v", dest, err)
	}
	if info.Size() != 2000 {
		t.Fatalf("output size = %d, want 2000", info.Size())
	}

	// The work directory holds no leftovers once the output is committed.
	leftovers, err := filepath.Glob(filepath.Join(env.workDir, "*"))
	if err != nil {
		t.Fatalf("glob work dir: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("expected empty work dir, found %v", leftovers)
	}

	// The finished job lands in history.
	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "Transcode")
	requireContains(t, out, "Succeeded")
	requireContains(t, out, "input.mkv")
}

func TestTranscodeCommandReportsEncodeFailure(t *testing.T) {
	env := setupCLITestEnv(t)
	input := writeInputFile(t, env)

	failScript := "#!/bin/sh\necho 'Conversion failed!' >&2\nexit 1\n"
	writeStub(t, filepath.Dir(env.ffmpegPath), "ffmpeg", failScript)

	dest := filepath.Join(env.baseDir, "library", "movie.mp4")
	_, _, err := runCLI(t, []string{"transcode", input, "-o", dest, "--no-progress"}, env.configPath)
	if err == nil {
		t.Fatal("expected transcode to fail")
	}
	if !strings.Contains(err.Error(), "Conversion failed!") {
		t.Fatalf("error should carry the stderr tail, got %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("no output should be committed on failure, stat err = %v", statErr)
	}
}

func TestTranscodeCommandRequiresOutputFlag(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"transcode", "whatever.mkv"}, env.configPath)
	if err == nil {
		t.Fatal("expected a flag error")
	}
	if !strings.Contains(err.Error(), "output") {
		t.Fatalf("error should name the output flag, got %v", err)
	}
}

func TestTranscodeCommandMissingInput(t *testing.T) {
	env := setupCLITestEnv(t)

	dest := filepath.Join(env.baseDir, "out.mp4")
	_, _, err := runCLI(t, []string{"transcode", filepath.Join(env.baseDir, "nope.mkv"), "-o", dest, "--no-progress"}, env.configPath)
	if err == nil {
		t.Fatal("expected an error for a missing input")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("error should report the missing input, got %v", err)
	}
}
