package services_test

import (
	"errors"
	"strings"
	"testing"

	"squish/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "runner", "spawn", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"runner", "spawn", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapNilMarkerDefaultsToExternalTool(t *testing.T) {
	err := services.Wrap(nil, "runner", "wait", "", errors.New("exit status 1"))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
}

func TestFailureSummaryMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", services.Wrap(services.ErrValidation, "options", "normalize", "bad scale", nil), "invalid options"},
		{"aborted", services.Wrap(services.ErrAborted, "runner", "wait", "", nil), "cancelled"},
		{"protocol", services.Wrap(services.ErrProtocol, "sidecar", "decode", "bad json", nil), "malformed request"},
		{"tool", services.Wrap(services.ErrExternalTool, "runner", "wait", "", errors.New("exit status 1")), "ffmpeg failed"},
		{"unknown", errors.New("mystery"), "internal error"},
	}
	for _, tc := range cases {
		if got := services.FailureSummary(tc.err); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}
