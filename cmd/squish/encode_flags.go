package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"squish/internal/config"
	"squish/internal/encoding"
)

// encodeFlags carries the option flags shared by transcode and estimate.
// Zero values mean "unset"; options() fills those from config defaults, so
// quality uses -1 as its sentinel because 0 is a legal value.
type encodeFlags struct {
	codec          string
	container      string
	quality        int
	preset         string
	tune           string
	scale          float64
	fps            float64
	maxBitrateKbps int
	removeAudio    bool
	audioBitrate   int
	downmixStereo  bool
	keepAllAudio   bool
	copySubtitles  bool
	keepMetadata   bool
}

func (f *encodeFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.codec, "codec", "", "Codec id (see `squish codecs`; default from config)")
	flags.StringVar(&f.container, "container", "", "Output container (default inferred from the output path)")
	flags.IntVarP(&f.quality, "quality", "q", -1, "Quality 0-100 (default from config)")
	flags.StringVar(&f.preset, "preset", "", "Encoder preset (default from config)")
	flags.StringVar(&f.tune, "tune", "", "Encoder tune, for codecs that support it")
	flags.Float64Var(&f.scale, "scale", 0, "Resolution scale factor, 0.25 to 1.0")
	flags.Float64Var(&f.fps, "fps", 0, "Frame rate cap")
	flags.IntVar(&f.maxBitrateKbps, "max-bitrate", 0, "Video bitrate ceiling in kb/s")
	flags.BoolVar(&f.removeAudio, "remove-audio", false, "Drop all audio streams")
	flags.IntVar(&f.audioBitrate, "audio-bitrate", 0, "Audio bitrate in kb/s (default from config)")
	flags.BoolVar(&f.downmixStereo, "stereo", false, "Downmix audio to stereo")
	flags.BoolVar(&f.keepAllAudio, "all-audio", false, "Keep every audio stream, not just the first")
	flags.BoolVar(&f.copySubtitles, "subtitles", false, "Copy subtitle streams when the container allows it")
	flags.BoolVar(&f.keepMetadata, "metadata", false, "Preserve container metadata tags")
}

// options merges the flags with config defaults. outputPath may be empty;
// when set and no container was given, its extension picks the container.
func (f *encodeFlags) options(cfg *config.Config, outputPath string) encoding.Options {
	opts := encoding.Options{
		Codec:            strings.TrimSpace(f.codec),
		Container:        strings.TrimSpace(f.container),
		Quality:          f.quality,
		Preset:           strings.TrimSpace(f.preset),
		Tune:             strings.TrimSpace(f.tune),
		ScaleFactor:      f.scale,
		FPS:              f.fps,
		MaxBitrateKbps:   f.maxBitrateKbps,
		RemoveAudio:      f.removeAudio,
		AudioBitrateKbps: f.audioBitrate,
		DownmixStereo:    f.downmixStereo,
		PreserveAllAudio: f.keepAllAudio,
		CopySubtitles:    f.copySubtitles,
		PreserveMetadata: f.keepMetadata,
	}
	if opts.Codec == "" {
		opts.Codec = cfg.Defaults.Codec
	}
	if opts.Container == "" {
		if ext := strings.TrimPrefix(filepath.Ext(outputPath), "."); ext != "" {
			opts.Container = ext
		} else {
			opts.Container = cfg.Defaults.Container
		}
	}
	if opts.Quality < 0 {
		opts.Quality = cfg.Defaults.Quality
	}
	if opts.Preset == "" {
		opts.Preset = cfg.Defaults.Preset
	}
	if opts.AudioBitrateKbps <= 0 {
		opts.AudioBitrateKbps = cfg.Defaults.AudioBitrateKbps
	}
	return opts
}
