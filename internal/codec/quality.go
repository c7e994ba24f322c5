package codec

import "math"

// ClampQuality bounds a slider value to [0, 100].
func ClampQuality(quality int) int {
	if quality < 0 {
		return 0
	}
	if quality > 100 {
		return 100
	}
	return quality
}

// QualityToRate maps the 0-100 slider onto the codec's native rate scale.
// Software encoders interpolate linearly across their CRF range, so quality
// 100 lands on BestRate and quality 0 on WorstRate. Hardware encoders take
// the slider value directly.
func QualityToRate(quality int, c Codec) int {
	quality = ClampQuality(quality)
	if c.IsHardware() {
		return quality
	}
	span := float64(c.WorstRate - c.BestRate)
	rate := float64(c.WorstRate) - (float64(quality)/100.0)*span
	return int(math.Round(rate))
}

// RateToQuality inverts QualityToRate, recovering the slider position that
// produces the given rate. Results are clamped to [0, 100]; round-trips stay
// within one slider step of the original value.
func RateToQuality(rate int, c Codec) int {
	if c.IsHardware() {
		return ClampQuality(rate)
	}
	span := float64(c.WorstRate - c.BestRate)
	if span == 0 {
		return 100
	}
	quality := (float64(c.WorstRate) - float64(rate)) / span * 100.0
	return ClampQuality(int(math.Round(quality)))
}

// ConvertQuality translates a slider position from one codec to another so a
// codec switch keeps roughly the same perceived quality. Software scales are
// bridged through a codec-neutral reference rate: the source rate minus its
// perceptual offset, plus the target's offset, inverted on the target scale.
// Hardware encoders sit on the slider axis itself, so any pair involving one
// keeps the slider value unchanged.
func ConvertQuality(quality int, from, to Codec) int {
	quality = ClampQuality(quality)
	if from.ID == to.ID {
		return quality
	}
	if from.IsHardware() || to.IsHardware() {
		return quality
	}
	reference := QualityToRate(quality, from) - from.Offset
	return RateToQuality(reference+to.Offset, to)
}
