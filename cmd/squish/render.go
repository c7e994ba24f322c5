package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const detailLabelWidth = 14

// renderDetailLine prints an indented "Label: value" pair with aligned
// values.
func renderDetailLine(label, value string) string {
	return fmt.Sprintf("  %-*s %s", detailLabelWidth, label+":", value)
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	status := statusKindLabel(kind)
	if message != "" {
		status = fmt.Sprintf("[%s] %s", status, message)
	} else {
		status = fmt.Sprintf("[%s]", status)
	}
	line := fmt.Sprintf("  %-*s %s", detailLabelWidth, label+":", status)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + line + ansiReset
		}
	}
	return line
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// formatBytes renders a byte count for humans, or "-" when unknown.
func formatBytes(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

// formatSeconds renders a duration in a compact clock style.
func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	d := time.Duration(seconds * float64(time.Second)).Round(100 * time.Millisecond)
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return strings.TrimSuffix(d.Round(time.Second).String(), "0s")
}
