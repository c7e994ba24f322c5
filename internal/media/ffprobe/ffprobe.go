package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
	raw     []byte
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index         int    `json:"index"`
	CodecName     string `json:"codec_name"`
	CodecType     string `json:"codec_type"`
	Duration      string `json:"duration"`
	BitRate       string `json:"bit_rate"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	PixelFormat   string `json:"pix_fmt"`
	RFrameRate    string `json:"r_frame_rate"`
	AvgFrameRate  string `json:"avg_frame_rate"`
	SampleRate    string `json:"sample_rate"`
	Channels      int    `json:"channels"`
	ChannelLayout string `json:"channel_layout"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// InspectFunc matches Inspect's signature. Components that probe media
// accept one so tests can substitute canned results.
type InspectFunc func(ctx context.Context, binary string, path string) (Result, error)

// Inspect executes ffprobe against the provided path and decodes the JSON
// response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := commandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		detail := ""
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, detail)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	result.raw = append([]byte(nil), output...)
	return result, nil
}

// RawJSON returns the raw ffprobe JSON payload.
func (r Result) RawJSON() []byte {
	return append([]byte(nil), r.raw...)
}

// FrameRate returns the stream's frame rate in frames per second, parsed
// from ffprobe's fractional notation ("30000/1001"), or 0 when absent.
// The average rate wins over the raw rate when both are present, since the
// raw rate overstates variable-rate content.
func (s Stream) FrameRate() float64 {
	if fps := parseRatio(s.AvgFrameRate); fps > 0 {
		return fps
	}
	return parseRatio(s.RFrameRate)
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	return r.countStreams("video")
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	return r.countStreams("audio")
}

// SubtitleStreamCount returns the number of subtitle streams discovered.
func (r Result) SubtitleStreamCount() int {
	return r.countStreams("subtitle")
}

func (r Result) countStreams(codecType string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, codecType) {
			count++
		}
	}
	return count
}

// FirstVideoStream returns the first video stream, if any.
func (r Result) FirstVideoStream() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// DurationSeconds returns the container duration in seconds, or 0 when
// unavailable or unparsable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// SizeBytes returns the reported container size in bytes, or 0 when
// unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if size < 0 {
		return 0
	}
	return int64(size)
}

// BitRate returns the container bitrate in bits per second, or 0 when
// unavailable.
func (r Result) BitRate() int64 {
	rate := parseFloat(r.Format.BitRate)
	if rate < 0 {
		return 0
	}
	return int64(rate)
}

// VideoSummary condenses one video stream for UI consumption.
type VideoSummary struct {
	Codec  string  `json:"codec"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps,omitempty"`
}

// AudioSummary condenses one audio stream for UI consumption.
type AudioSummary struct {
	Codec         string `json:"codec"`
	Channels      int    `json:"channels"`
	ChannelLayout string `json:"channelLayout,omitempty"`
}

// Summary is the condensed per-file view served over the wire.
type Summary struct {
	Path            string         `json:"path"`
	Container       string         `json:"container"`
	DurationSeconds float64        `json:"durationSeconds"`
	SizeBytes       int64          `json:"sizeBytes"`
	BitRate         int64          `json:"bitRate,omitempty"`
	Video           []VideoSummary `json:"video"`
	Audio           []AudioSummary `json:"audio"`
	SubtitleCount   int            `json:"subtitleCount"`
}

// Summarize flattens the probe result into the wire summary.
func (r Result) Summarize() Summary {
	summary := Summary{
		Path:            r.Format.Filename,
		Container:       containerName(r.Format),
		DurationSeconds: r.DurationSeconds(),
		SizeBytes:       r.SizeBytes(),
		BitRate:         r.BitRate(),
		SubtitleCount:   r.SubtitleStreamCount(),
	}
	for _, stream := range r.Streams {
		switch strings.ToLower(stream.CodecType) {
		case "video":
			summary.Video = append(summary.Video, VideoSummary{
				Codec:  stream.CodecName,
				Width:  stream.Width,
				Height: stream.Height,
				FPS:    stream.FrameRate(),
			})
		case "audio":
			summary.Audio = append(summary.Audio, AudioSummary{
				Codec:         stream.CodecName,
				Channels:      stream.Channels,
				ChannelLayout: stream.ChannelLayout,
			})
		}
	}
	return summary
}

// containerName prefers the filename extension over ffprobe's format list
// ("mov,mp4,m4a,3gp,3g2,mj2" is not a useful label).
func containerName(format Format) string {
	if ext := strings.TrimPrefix(filepath.Ext(format.Filename), "."); ext != "" {
		return strings.ToLower(ext)
	}
	if name, _, ok := strings.Cut(format.FormatName, ","); ok {
		return name
	}
	return format.FormatName
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func parseRatio(value string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok {
		return parseFloat(value)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}
