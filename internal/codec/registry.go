package codec

import (
	"fmt"
	"sort"
	"strings"

	"squish/internal/services"
)

// Family distinguishes rate-control models. Software encoders take a CRF
// value on a codec-specific scale where lower numbers mean higher quality;
// hardware encoders take the 0-100 slider directly.
type Family string

const (
	FamilySoftware Family = "software-crf"
	FamilyHardware Family = "hardware"
)

// PresetStyle describes how an encoder names its speed presets.
type PresetStyle string

const (
	// PresetNamed encoders accept the x264-style preset words
	// (ultrafast through veryslow).
	PresetNamed PresetStyle = "named"
	// PresetNumeric encoders accept a numeric preset; named presets are
	// translated through the SVT-AV1 lookup in presets.go.
	PresetNumeric PresetStyle = "numeric"
	// PresetNone encoders have no preset flag at all.
	PresetNone PresetStyle = "none"
)

// Codec describes one supported encoder. Entries are immutable; whether the
// encoder is actually present in the local ffmpeg build is probed separately
// by the deps package.
type Codec struct {
	ID          string
	DisplayName string
	// Encoder is the ffmpeg -c:v value.
	Encoder    string
	Containers []string
	Family     Family
	// BestRate and WorstRate bound the native CRF scale for software
	// encoders. BestRate is the highest quality the slider reaches, not
	// the encoder's absolute minimum.
	BestRate  int
	WorstRate int
	// Offset positions the encoder on the shared perceptual scale: a
	// codec with offset N matches another codec's quality at a CRF about
	// N higher. Zero for the reference codec and for hardware encoders.
	Offset       int
	PresetStyle  PresetStyle
	SupportsTune bool
	// ExtraArgs are appended immediately after -c:v by the command
	// builder.
	ExtraArgs []string
}

// IsHardware reports whether the codec uses hardware rate control.
func (c Codec) IsHardware() bool {
	return c.Family == FamilyHardware
}

// SupportsContainer reports whether the codec can be muxed into ext.
func (c Codec) SupportsContainer(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	for _, candidate := range c.Containers {
		if candidate == ext {
			return true
		}
	}
	return false
}

// DefaultContainer returns the first (preferred) container for the codec.
func (c Codec) DefaultContainer() string {
	if len(c.Containers) == 0 {
		return "mp4"
	}
	return c.Containers[0]
}

var registry = []Codec{
	{
		ID:           "libx264",
		DisplayName:  "H.264 (x264)",
		Encoder:      "libx264",
		Containers:   []string{"mp4", "mkv", "mov"},
		Family:       FamilySoftware,
		BestRate:     23,
		WorstRate:    51,
		Offset:       0,
		PresetStyle:  PresetNamed,
		SupportsTune: true,
	},
	{
		ID:           "libx265",
		DisplayName:  "H.265 (x265)",
		Encoder:      "libx265",
		Containers:   []string{"mp4", "mkv", "mov"},
		Family:       FamilySoftware,
		BestRate:     28,
		WorstRate:    51,
		Offset:       5,
		PresetStyle:  PresetNamed,
		SupportsTune: true,
	},
	{
		ID:          "libsvtav1",
		DisplayName: "AV1 (SVT-AV1)",
		Encoder:     "libsvtav1",
		Containers:  []string{"mp4", "mkv", "webm"},
		Family:      FamilySoftware,
		BestRate:    35,
		WorstRate:   63,
		Offset:      12,
		PresetStyle: PresetNumeric,
		ExtraArgs:   []string{"-svtav1-params", "tune=0:fast-decode=1"},
	},
	{
		ID:          "libvpx-vp9",
		DisplayName: "VP9",
		Encoder:     "libvpx-vp9",
		Containers:  []string{"webm", "mkv"},
		Family:      FamilySoftware,
		BestRate:    31,
		WorstRate:   63,
		Offset:      8,
		PresetStyle: PresetNone,
		ExtraArgs:   []string{"-b:v", "0", "-row-mt", "1"},
	},
	{
		ID:          "h264_videotoolbox",
		DisplayName: "H.264 (VideoToolbox)",
		Encoder:     "h264_videotoolbox",
		Containers:  []string{"mp4", "mkv", "mov"},
		Family:      FamilyHardware,
		PresetStyle: PresetNone,
	},
	{
		ID:          "hevc_videotoolbox",
		DisplayName: "H.265 (VideoToolbox)",
		Encoder:     "hevc_videotoolbox",
		Containers:  []string{"mp4", "mkv", "mov"},
		Family:      FamilyHardware,
		PresetStyle: PresetNone,
	},
}

var registryByID = func() map[string]Codec {
	m := make(map[string]Codec, len(registry))
	for _, c := range registry {
		m[c.ID] = c
	}
	return m
}()

// Lookup returns the codec registered under id. IDs are matched
// case-insensitively.
func Lookup(id string) (Codec, bool) {
	c, ok := registryByID[strings.ToLower(strings.TrimSpace(id))]
	return c, ok
}

// Resolve is Lookup with a validation error for unknown ids.
func Resolve(id string) (Codec, error) {
	c, ok := Lookup(id)
	if !ok {
		return Codec{}, services.Wrap(services.ErrValidation, "codec", "resolve",
			fmt.Sprintf("unknown codec %q (known: %s)", id, strings.Join(IDs(), ", ")), nil)
	}
	return c, nil
}

// All returns every registered codec in registry order.
func All() []Codec {
	out := make([]Codec, len(registry))
	copy(out, registry)
	return out
}

// IDs returns the sorted registered codec ids.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for _, c := range registry {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}
