package preview

import "math"

// Confidence buckets how trustworthy an estimate is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Coverage thresholds and tolerance bands are policy constants, not
// derived statistics. Coverage is sampled seconds over total duration.
const (
	coverageHigh   = 0.20
	coverageMedium = 0.08

	bandHigh   = 0.08
	bandMedium = 0.15
	bandLow    = 0.25
)

// SizeEstimate predicts the full-file output size from sampled encodes.
type SizeEstimate struct {
	PredictedBytes int64      `json:"predictedBytes"`
	LowBytes       int64      `json:"lowBytes"`
	HighBytes      int64      `json:"highBytes"`
	Confidence     Confidence `json:"confidence"`
	SampleCount    int        `json:"sampleCount"`
	SampledSeconds float64    `json:"sampledSeconds"`
}

func confidenceForCoverage(coverage float64) Confidence {
	switch {
	case coverage >= coverageHigh:
		return ConfidenceHigh
	case coverage >= coverageMedium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func bandForConfidence(confidence Confidence) float64 {
	switch confidence {
	case ConfidenceHigh:
		return bandHigh
	case ConfidenceMedium:
		return bandMedium
	default:
		return bandLow
	}
}

// buildEstimate extrapolates the ratio onto the whole input and brackets
// the prediction by the confidence band.
func buildEstimate(ratio float64, inputBytes int64, sampleCount int, sampledSeconds, totalDuration float64) SizeEstimate {
	coverage := 0.0
	if totalDuration > 0 {
		coverage = sampledSeconds / totalDuration
	}
	confidence := confidenceForCoverage(coverage)
	band := bandForConfidence(confidence)

	predicted := math.Round(ratio * float64(inputBytes))
	if predicted < 0 {
		predicted = 0
	}
	low := math.Round(predicted * (1 - band))
	if low < 0 {
		low = 0
	}
	high := math.Round(predicted * (1 + band))

	return SizeEstimate{
		PredictedBytes: int64(predicted),
		LowBytes:       int64(low),
		HighBytes:      int64(high),
		Confidence:     confidence,
		SampleCount:    sampleCount,
		SampledSeconds: sampledSeconds,
	}
}
