package models

import (
	"time"
)

// AlignmentTransform is the per-pair result of the estimator.
//
// Coordinates are working-resolution pixels with top-left origins. A point f
// in the fixed working image corresponds to the point
//
//	m = Scale*f + (TranslationX, TranslationY)
//
// in the moving working image after Orientation has been applied to it. With
// Scale 1 the translation is the displacement of the moving tissue relative
// to the fixed tissue.
type AlignmentTransform struct {
	Orientation

	TranslationX float64
	TranslationY float64
	Scale        float64

	// Confidence is the final mask IoU in [0, 1]
	Confidence float64

	// Method tags how the transform was produced ("auto" here)
	Method string

	Timestamp time.Time

	// FixedNativeScale and MovingNativeScale convert working pixels back to
	// native pixels (native = working * scale)
	FixedNativeScale  float64
	MovingNativeScale float64

	// Diagnostics for manual triage
	Detection Detection

	// LowConfidence flags the result for manual review; Reasons explains why
	LowConfidence bool
	Reasons       []string
}

// Detection carries the intermediate scores behind a transform
type Detection struct {
	OrientationScore float64
	Sharpness        float64
	AcceptedRank     int
	InitialObjective float64
	Refined          bool
	Iterations       int

	// FixedCoverage and MovingCoverage are the tissue fractions of each mask
	FixedCoverage  float64
	MovingCoverage float64

	// TissueRatio is moving tissue area over fixed tissue area, in pixels
	TissueRatio  float64
	CoverageMode string

	// Matcher names the translation method that produced the estimate
	Matcher string

	FixedWorking  [2]int
	MovingWorking [2]int
	FixedNative   [2]int
	MovingNative  [2]int

	TopCandidates []ScoredOrientation
}
