package encoding

import (
	"fmt"
	"strings"

	"squish/internal/codec"
	"squish/internal/services"
)

const (
	// MinScaleFactor bounds downscaling; anything smaller produces
	// outputs too small to judge quality from.
	MinScaleFactor = 0.25
	// MaxScaleFactor forbids upscaling.
	MaxScaleFactor = 1.0

	defaultPreset           = "medium"
	defaultAudioBitrateKbps = 128
)

// Window selects a slice of the input, used for previews and sample
// encodes. Seconds, not frames.
type Window struct {
	StartSeconds    float64 `json:"startSeconds"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// Valid reports whether the window selects a playable, non-empty slice.
func (w Window) Valid() bool {
	return w.StartSeconds >= 0 && w.DurationSeconds > 0
}

// Options describes one transcode. The zero value is not usable directly;
// run it through Normalize first so defaults and codec compatibility are
// applied.
type Options struct {
	Codec     string `json:"codec"`
	Container string `json:"container"`
	// Quality is the 0-100 slider value, 100 best.
	Quality int `json:"quality"`
	// MaxBitrateKbps caps the bitstream via constrained CRF when above
	// zero.
	MaxBitrateKbps int     `json:"maxBitrateKbps,omitempty"`
	ScaleFactor    float64 `json:"scaleFactor,omitempty"`
	// FPS above zero forces the output frame rate.
	FPS              float64 `json:"fps,omitempty"`
	RemoveAudio      bool    `json:"removeAudio,omitempty"`
	AudioBitrateKbps int     `json:"audioBitrateKbps,omitempty"`
	DownmixStereo    bool    `json:"downmixStereo,omitempty"`
	PreserveAllAudio bool    `json:"preserveAllAudio,omitempty"`
	CopySubtitles    bool    `json:"copySubtitles,omitempty"`
	PreserveMetadata bool    `json:"preserveMetadata,omitempty"`
	Preset           string  `json:"preset,omitempty"`
	Tune             string  `json:"tune,omitempty"`
	// Window restricts the encode to a slice of the input when set.
	Window *Window `json:"window,omitempty"`
}

// Normalize resolves the codec and corrects the options to the nearest
// valid combination: an unsupported container switches to the codec's
// preferred one, tune is stripped from codecs that ignore it, audio
// settings are cleared when audio is removed, and numeric fields are
// clamped to their legal ranges. Unsatisfiable input (unknown codec,
// degenerate window) is rejected with a validation error rather than
// corrected.
func Normalize(opts Options) (Options, codec.Codec, error) {
	c, err := codec.Resolve(opts.Codec)
	if err != nil {
		return Options{}, codec.Codec{}, err
	}
	opts.Codec = c.ID

	opts.Container = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(opts.Container), "."))
	if opts.Container == "" || !c.SupportsContainer(opts.Container) {
		opts.Container = c.DefaultContainer()
	}

	opts.Quality = codec.ClampQuality(opts.Quality)

	if opts.MaxBitrateKbps < 0 {
		opts.MaxBitrateKbps = 0
	}

	switch {
	case opts.ScaleFactor == 0:
		opts.ScaleFactor = MaxScaleFactor
	case opts.ScaleFactor < MinScaleFactor:
		opts.ScaleFactor = MinScaleFactor
	case opts.ScaleFactor > MaxScaleFactor:
		opts.ScaleFactor = MaxScaleFactor
	}

	if opts.FPS < 0 {
		opts.FPS = 0
	}

	if opts.RemoveAudio {
		opts.AudioBitrateKbps = 0
		opts.DownmixStereo = false
		opts.PreserveAllAudio = false
	} else {
		if opts.AudioBitrateKbps <= 0 {
			opts.AudioBitrateKbps = defaultAudioBitrateKbps
		}
	}

	opts.Preset = strings.ToLower(strings.TrimSpace(opts.Preset))
	switch c.PresetStyle {
	case codec.PresetNone:
		opts.Preset = ""
	case codec.PresetNamed:
		if opts.Preset == "" || !codec.ValidPresetName(opts.Preset) {
			opts.Preset = defaultPreset
		}
		// PresetNumeric keeps the raw name; the builder's translation
		// supplies its own fallback for names outside the lookup.
	}

	opts.Tune = strings.ToLower(strings.TrimSpace(opts.Tune))
	if !c.SupportsTune {
		opts.Tune = ""
	}

	if opts.Window != nil && !opts.Window.Valid() {
		return Options{}, codec.Codec{}, services.Wrap(services.ErrValidation, "encoding", "normalize",
			fmt.Sprintf("window start %.3f duration %.3f does not select a playable slice",
				opts.Window.StartSeconds, opts.Window.DurationSeconds), nil)
	}

	return opts, c, nil
}
