package encoding

import (
	"strconv"

	"squish/internal/codec"
)

// argPrefix is emitted on every transcode: overwrite without prompting,
// never read stdin, auto-detect threads, machine-readable progress on
// stdout.
var argPrefix = []string{"-y", "-nostdin", "-threads", "0", "-progress", "pipe:1"}

// BuildArgs assembles the ordered ffmpeg argument vector for a transcode.
// Callers must pass options that went through Normalize; the builder trusts
// codec compatibility and range checks to have happened there.
func BuildArgs(c codec.Codec, opts Options, input, output string) []string {
	args := make([]string, 0, 48)
	args = append(args, argPrefix...)

	// Seeking before -i keeps extraction keyframe-fast; the duration
	// limit follows the input so it counts output time.
	if opts.Window != nil {
		args = append(args, "-ss", formatNumber(opts.Window.StartSeconds))
	}
	args = append(args, "-i", input)
	if opts.Window != nil {
		args = append(args, "-t", formatNumber(opts.Window.DurationSeconds))
	}

	args = append(args, "-c:v", c.Encoder)
	args = append(args, c.ExtraArgs...)

	args = appendAudioArgs(args, opts)
	args = appendSubtitleArgs(args, opts)

	if opts.PreserveMetadata {
		args = append(args, "-map_metadata", "0")
	} else {
		args = append(args, "-map_metadata", "-1")
	}

	if opts.ScaleFactor < 1 {
		args = append(args, "-vf", scaleFilter(opts.ScaleFactor))
	}

	switch c.PresetStyle {
	case codec.PresetNamed:
		args = append(args, "-preset", opts.Preset)
	case codec.PresetNumeric:
		args = append(args, "-preset", strconv.Itoa(codec.AV1PresetNumber(opts.Preset)))
	}

	if opts.FPS > 0 {
		args = append(args, "-r", formatNumber(opts.FPS))
	}

	if c.SupportsTune && opts.Tune != "" {
		args = append(args, "-tune", opts.Tune)
	}

	rate := codec.QualityToRate(opts.Quality, c)
	if c.IsHardware() {
		args = append(args, "-q:v", strconv.Itoa(rate))
	} else {
		args = append(args, "-crf", strconv.Itoa(rate))
	}
	if opts.MaxBitrateKbps > 0 {
		args = append(args,
			"-maxrate", strconv.Itoa(opts.MaxBitrateKbps)+"k",
			"-bufsize", strconv.Itoa(2*opts.MaxBitrateKbps)+"k")
	}

	if opts.Container == "mp4" {
		args = append(args, "-movflags", "+faststart")
	}

	return append(args, output)
}

// BuildExtractArgs assembles the stream-copy vector that slices a window
// out of the input without re-encoding.
func BuildExtractArgs(input string, window Window, output string) []string {
	return []string{
		"-y", "-nostdin",
		"-ss", formatNumber(window.StartSeconds),
		"-i", input,
		"-t", formatNumber(window.DurationSeconds),
		"-c", "copy",
		output,
	}
}

func appendAudioArgs(args []string, opts Options) []string {
	if opts.RemoveAudio {
		return append(args, "-an")
	}
	if opts.PreserveAllAudio {
		args = append(args, "-map", "0:v:0", "-map", "0:a?")
	}
	args = append(args, "-c:a", "aac", "-b:a", strconv.Itoa(opts.AudioBitrateKbps)+"k")
	if opts.DownmixStereo {
		args = append(args, "-ac", "2")
	}
	return args
}

func appendSubtitleArgs(args []string, opts Options) []string {
	if !opts.CopySubtitles {
		return append(args, "-sn")
	}
	switch opts.Container {
	case "mp4", "mov":
		return append(args, "-c:s", "mov_text")
	case "mkv":
		return append(args, "-c:s", "copy")
	default:
		// webm cannot carry the subtitle codecs we would copy.
		return append(args, "-sn")
	}
}

// scaleFilter halves-then-doubles the scaled width so both dimensions stay
// even, which most encoders require.
func scaleFilter(factor float64) string {
	return "scale=round(iw*" + formatNumber(factor) + "/2)*2:-2"
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
