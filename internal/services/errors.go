package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrAborted       = errors.New("aborted")
	ErrProtocol      = errors.New("protocol error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureSummary maps an error to the short human summary surfaced over the
// sidecar protocol when the caller has nothing more specific to say. The full
// error string travels separately as detail.
func FailureSummary(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "invalid options"
	case errors.Is(err, ErrConfiguration):
		return "configuration problem"
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrAborted):
		return "cancelled"
	case errors.Is(err, ErrProtocol):
		return "malformed request"
	case errors.Is(err, ErrExternalTool):
		return "ffmpeg failed"
	default:
		return "internal error"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
