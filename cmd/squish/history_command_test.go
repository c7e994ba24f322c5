package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"squish/internal/history"
)

func seedHistory(t *testing.T, env *cliTestEnv) {
	t.Helper()
	if err := os.MkdirAll(env.stateDir, 0o755); err != nil {
		t.Fatalf("mkdir state dir: %v", err)
	}
	store, err := history.Open(filepath.Join(env.stateDir, "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	entries := []history.Entry{
		{
			JobID: 1, Kind: "transcode", InputPath: "/videos/holiday.mkv",
			Codec: "libx264", Quality: 75, Outcome: "succeeded",
			InputBytes: 5000, OutputBytes: 2000, DurationMS: 1500,
		},
		{
			JobID: 2, Kind: "preview", InputPath: "/videos/broken.mkv",
			Codec: "libsvtav1", Quality: 40, Outcome: "failed",
			ErrorSummary: "ffmpeg failed", DurationMS: 300,
		},
	}
	for _, entry := range entries {
		if err := store.Record(ctx, entry); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
}

func TestHistoryCommandListsEntries(t *testing.T) {
	env := setupCLITestEnv(t)
	seedHistory(t, env)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "holiday.mkv")
	requireContains(t, out, "Succeeded")
	requireContains(t, out, "Failed: ffmpeg failed")
	requireContains(t, out, "Preview")
}

func TestHistoryCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	seedHistory(t, env)

	out, _, err := runCLI(t, []string{"history", "--json", "--limit", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	requireContains(t, out, `"jobId": 2`)
	if strings.Count(out, `"jobId"`) != 1 {
		t.Fatalf("limit 1 should return one entry, got output %q", out)
	}
}

func TestHistoryCommandClear(t *testing.T) {
	env := setupCLITestEnv(t)
	seedHistory(t, env)

	out, _, err := runCLI(t, []string{"history", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("history clear: %v", err)
	}
	requireContains(t, out, "History cleared.")

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history after clear: %v", err)
	}
	requireContains(t, out, "No finished jobs recorded.")
}

func TestHistoryCommandDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	disabled := env.configPath + ".disabled"
	content, err := os.ReadFile(env.configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	content = append(content, []byte("\n[history]\nenabled = false\n")...)
	if err := os.WriteFile(disabled, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, err = runCLI(t, []string{"history"}, disabled)
	if err == nil {
		t.Fatal("expected an error with history disabled")
	}
	requireContains(t, err.Error(), "history is disabled")
}
