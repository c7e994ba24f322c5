package codec

import "strings"

// namedPresets is the x264-style preset vocabulary accepted by encoders
// with PresetNamed style.
var namedPresets = map[string]struct{}{
	"ultrafast": {},
	"superfast": {},
	"veryfast":  {},
	"faster":    {},
	"fast":      {},
	"medium":    {},
	"slow":      {},
	"slower":    {},
	"veryslow":  {},
}

// av1PresetNumbers translates named presets onto SVT-AV1's numeric scale,
// where 0 is slowest and 8 is fastest.
var av1PresetNumbers = map[string]int{
	"ultrafast": 8,
	"superfast": 7,
	"veryfast":  6,
	"faster":    5,
	"fast":      4,
	"medium":    3,
	"slow":      2,
}

// DefaultAV1Preset is used for preset names outside the lookup.
const DefaultAV1Preset = 6

// ValidPresetName reports whether name is a recognized named preset.
func ValidPresetName(name string) bool {
	_, ok := namedPresets[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// AV1PresetNumber maps a named preset onto the SVT-AV1 numeric scale.
// Unknown names fall back to a mid-fast default rather than failing, since
// the preset only trades speed for efficiency and never correctness.
func AV1PresetNumber(name string) int {
	if n, ok := av1PresetNumbers[strings.ToLower(strings.TrimSpace(name))]; ok {
		return n
	}
	return DefaultAV1Preset
}
