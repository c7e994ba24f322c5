package main

import (
	"path/filepath"
	"testing"
)

func TestEstimateCommandEndToEnd(t *testing.T) {
	env := setupCLITestEnv(t)
	input := writeInputFile(t, env)

	out, _, err := runCLI(t, []string{"estimate", input, "--samples", "1", "--no-progress"}, env.configPath)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	requireContains(t, out, "Predicted size:")
	requireContains(t, out, "Range:")
	// One 3s sample of a 100s file is far below the medium-confidence
	// coverage threshold.
	requireContains(t, out, "low")

	// Sample files are cleaned up when the command finishes.
	leftovers, err := filepath.Glob(filepath.Join(env.workDir, "*"))
	if err != nil {
		t.Fatalf("glob work dir: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("expected empty work dir, found %v", leftovers)
	}
}

func TestEstimateCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	input := writeInputFile(t, env)

	out, _, err := runCLI(t, []string{"estimate", input, "--samples", "1", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("estimate --json: %v", err)
	}
	requireContains(t, out, `"predictedBytes"`)
	requireContains(t, out, `"confidence"`)
}
