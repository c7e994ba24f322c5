package deps

import (
	"context"
	"log/slog"

	"squish/internal/codec"
	"squish/internal/logging"
)

// EncoderStatus pairs one registry codec with its availability in the local
// ffmpeg build.
type EncoderStatus struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Encoder     string   `json:"encoder"`
	Hardware    bool     `json:"hardware,omitempty"`
	Containers  []string `json:"containers"`
	Available   bool     `json:"available"`
}

// Snapshot aggregates the runtime dependency checks: tool resolution, the
// ffmpeg build's version and encoder set, and work-directory access. It is
// what the capabilities method returns and what serve logs at startup.
type Snapshot struct {
	FFmpeg        Status          `json:"ffmpeg"`
	FFprobe       Status          `json:"ffprobe"`
	FFmpegVersion string          `json:"ffmpegVersion,omitempty"`
	Encoders      []EncoderStatus `json:"encoders"`
	WorkDir       Result          `json:"workDir"`
}

// TakeSnapshot runs every dependency check. A missing or unreadable ffmpeg
// leaves the version blank and every encoder unavailable; the snapshot itself
// always comes back.
func TakeSnapshot(ctx context.Context, ffmpegBinary, ffprobeBinary, workDir string) Snapshot {
	checks := CheckBinaries([]Requirement{
		{Name: "FFmpeg", Command: ffmpegBinary, Description: "Required for encoding"},
		{Name: "FFprobe", Command: ffprobeBinary, Description: "Required for media inspection"},
	})
	snapshot := Snapshot{
		FFmpeg:  checks[0],
		FFprobe: checks[1],
		WorkDir: CheckDirectoryAccess("Work directory", workDir),
	}

	var available map[string]bool
	if snapshot.FFmpeg.Available {
		if version, err := FFmpegVersion(ctx, snapshot.FFmpeg.Command); err == nil {
			snapshot.FFmpegVersion = version
		}
		if encoders, err := FFmpegEncoders(ctx, snapshot.FFmpeg.Command); err == nil {
			available = encoders
		}
	}
	for _, c := range codec.All() {
		snapshot.Encoders = append(snapshot.Encoders, EncoderStatus{
			ID:          c.ID,
			DisplayName: c.DisplayName,
			Encoder:     c.Encoder,
			Hardware:    c.IsHardware(),
			Containers:  c.Containers,
			Available:   available[c.Encoder],
		})
	}
	return snapshot
}

// AvailableEncoderCount returns how many registry codecs the local ffmpeg
// build can actually drive.
func (s Snapshot) AvailableEncoderCount() int {
	count := 0
	for _, enc := range s.Encoders {
		if enc.Available {
			count++
		}
	}
	return count
}

// Log writes the snapshot through logger, one line per tool plus an encoder
// summary. Failed checks log at Warn so they stand out in the serve log.
func (s Snapshot) Log(logger *slog.Logger) {
	if logger == nil {
		return
	}
	for _, status := range []Status{s.FFmpeg, s.FFprobe} {
		attrs := []any{
			logging.String("name", status.Name),
			logging.String("command", status.Command),
			logging.Bool("available", status.Available),
		}
		if status.Detail != "" {
			attrs = append(attrs, logging.String("detail", status.Detail))
		}
		if status.Available {
			logger.Info("dependency resolved", attrs...)
		} else {
			logger.Warn("dependency missing", attrs...)
		}
	}
	if s.FFmpegVersion != "" {
		logger.Info("ffmpeg build",
			logging.String("version", s.FFmpegVersion),
			logging.Int("encoders_available", s.AvailableEncoderCount()),
			logging.Int("encoders_known", len(s.Encoders)))
	}
	if !s.WorkDir.Passed {
		logger.Warn("work directory check failed",
			logging.String("path", s.WorkDir.Path),
			logging.String("detail", s.WorkDir.Detail))
	}
}
