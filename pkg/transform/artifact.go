// Package transform serialises alignment results into the per-slide
// transform.json artifact consumed by the viewer, and reads them back.
package transform

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"slidealign/internal/models"
)

// Method tags
const (
	MethodAuto   = "auto"
	MethodManual = "manual_adjustment"
)

// Payload is the geometry shared by every artifact variant
type Payload struct {
	Rotation     int     `json:"rotation"`
	FlipX        bool    `json:"flipX"`
	FlipY        bool    `json:"flipY"`
	TranslationX float64 `json:"translationX"`
	TranslationY float64 `json:"translationY"`
	Scale        float64 `json:"scale"`
}

// Orientation returns the discrete part of the payload
func (p Payload) Orientation() models.Orientation {
	return models.Orientation{Rotation: p.Rotation, FlipX: p.FlipX, FlipY: p.FlipY}
}

// Transform is the tagged artifact body: *AutoTransform or *ManualTransform
type Transform interface {
	Method() string
	Geometry() Payload
}

// AutoTransform is written by the estimator
type AutoTransform struct {
	Payload
	Confidence float64 `json:"confidence"`
}

func (t *AutoTransform) Method() string    { return MethodAuto }
func (t *AutoTransform) Geometry() Payload { return t.Payload }

// ManualTransform is written by the viewer after a user adjustment
type ManualTransform struct {
	Payload
	ViewportCenter [2]float64 `json:"viewportCenter"`
	ViewportZoom   float64    `json:"viewportZoom"`
}

func (t *ManualTransform) Method() string    { return MethodManual }
func (t *ManualTransform) Geometry() Payload { return t.Payload }

// Candidate is one ranked orientation hypothesis
type Candidate struct {
	Rotation int     `json:"rotation"`
	FlipX    bool    `json:"flipX"`
	FlipY    bool    `json:"flipY"`
	Score    float64 `json:"score"`
}

// DetectionBlock carries diagnostics for manual triage
type DetectionBlock struct {
	OrientationScore float64     `json:"orientation_score"`
	Sharpness        float64     `json:"sharpness"`
	AcceptedRank     int         `json:"accepted_rank"`
	InitialObjective float64     `json:"initial_objective"`
	Refined          bool        `json:"refined"`
	Iterations       int         `json:"iterations,omitempty"`
	FixedCoverage    float64     `json:"fixed_coverage"`
	MovingCoverage   float64     `json:"moving_coverage"`
	TissueRatio      float64     `json:"tissue_ratio"`
	CoverageMode     string      `json:"coverage_mode"`
	Matcher          string      `json:"matcher,omitempty"`
	LowConfidence    bool        `json:"low_confidence"`
	Reasons          []string    `json:"reasons,omitempty"`
	TopCandidates    []Candidate `json:"top_candidates"`
}

// WorkingBlock records the working-resolution geometry
type WorkingBlock struct {
	Fixed       [2]int  `json:"fixed"`
	Moving      [2]int  `json:"moving"`
	FixedScale  float64 `json:"fixed_scale"`
	MovingScale float64 `json:"moving_scale"`
}

// SizesBlock records native image sizes
type SizesBlock struct {
	Fixed  [2]int `json:"fixed"`
	Moving [2]int `json:"moving"`

	// SizeRatio is the mean of the moving/fixed width and height ratios
	SizeRatio float64 `json:"size_ratio"`
}

// Artifact is the full transform.json document
type Artifact struct {
	Version   string
	SlideID   string
	Timestamp time.Time
	Transform Transform

	// Optional diagnostics; absent on manual artifacts
	Detection     *DetectionBlock
	Working       *WorkingBlock
	OriginalSizes *SizesBlock
}

// Method returns the tag of the carried variant
func (a *Artifact) Method() string {
	if a.Transform == nil {
		return ""
	}
	return a.Transform.Method()
}

type wireArtifact struct {
	Version       string          `json:"version"`
	SlideID       string          `json:"slide_id"`
	Method        string          `json:"method"`
	Timestamp     string          `json:"timestamp"`
	Transform     json.RawMessage `json:"transform"`
	Detection     *DetectionBlock `json:"detection,omitempty"`
	Working       *WorkingBlock   `json:"working,omitempty"`
	OriginalSizes *SizesBlock     `json:"original_sizes,omitempty"`
}

// MarshalJSON writes the canonical layout with the method tag at top level
func (a *Artifact) MarshalJSON() ([]byte, error) {
	if a.Transform == nil {
		return nil, errors.New("artifact has no transform")
	}
	body, err := json.Marshal(a.Transform)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode transform")
	}
	return json.Marshal(wireArtifact{
		Version:       a.Version,
		SlideID:       a.SlideID,
		Method:        a.Transform.Method(),
		Timestamp:     a.Timestamp.UTC().Format(time.RFC3339),
		Transform:     body,
		Detection:     a.Detection,
		Working:       a.Working,
		OriginalSizes: a.OriginalSizes,
	})
}

// UnmarshalJSON accepts either variant, chosen by the method tag
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var w wireArtifact
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "failed to parse artifact")
	}

	var ts time.Time
	if w.Timestamp != "" {
		var err error
		if ts, err = time.Parse(time.RFC3339, w.Timestamp); err != nil {
			return errors.Wrapf(err, "bad timestamp %q", w.Timestamp)
		}
	}

	method := w.Method
	if method == "" && bytes.Contains(w.Transform, []byte(`"viewportCenter"`)) {
		method = MethodManual
	}

	var body Transform
	switch method {
	case MethodAuto:
		body = &AutoTransform{}
	case MethodManual:
		body = &ManualTransform{}
	default:
		return errors.Errorf("unknown artifact method %q", w.Method)
	}
	if len(w.Transform) == 0 {
		return errors.New("artifact has no transform")
	}
	if err := json.Unmarshal(w.Transform, body); err != nil {
		return errors.Wrap(err, "failed to parse transform")
	}
	if o := body.Geometry().Orientation(); !o.Valid() {
		return errors.Errorf("rotation %d is not a multiple of 90", o.Rotation)
	}

	*a = Artifact{
		Version:       w.Version,
		SlideID:       w.SlideID,
		Timestamp:     ts,
		Transform:     body,
		Detection:     w.Detection,
		Working:       w.Working,
		OriginalSizes: w.OriginalSizes,
	}
	return nil
}

// Decode parses an artifact of either variant
func Decode(data []byte) (*Artifact, error) {
	a := &Artifact{}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, err
	}
	return a, nil
}

// SniffMethod reads only the method tag of an existing artifact
func SniffMethod(data []byte) (string, error) {
	var head struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", errors.Wrap(err, "failed to parse artifact")
	}
	return head.Method, nil
}

// FromResult converts an estimator result into an auto artifact
func FromResult(id, version string, t models.AlignmentTransform) *Artifact {
	d := t.Detection
	top := make([]Candidate, 0, len(d.TopCandidates))
	for _, c := range d.TopCandidates {
		top = append(top, Candidate{Rotation: c.Rotation, FlipX: c.FlipX, FlipY: c.FlipY, Score: c.Score})
	}

	return &Artifact{
		Version:   version,
		SlideID:   id,
		Timestamp: t.Timestamp,
		Transform: &AutoTransform{
			Payload: Payload{
				Rotation:     t.Rotation,
				FlipX:        t.FlipX,
				FlipY:        t.FlipY,
				TranslationX: t.TranslationX,
				TranslationY: t.TranslationY,
				Scale:        t.Scale,
			},
			Confidence: t.Confidence,
		},
		Detection: &DetectionBlock{
			OrientationScore: d.OrientationScore,
			Sharpness:        d.Sharpness,
			AcceptedRank:     d.AcceptedRank,
			InitialObjective: d.InitialObjective,
			Refined:          d.Refined,
			Iterations:       d.Iterations,
			FixedCoverage:    d.FixedCoverage,
			MovingCoverage:   d.MovingCoverage,
			TissueRatio:      d.TissueRatio,
			CoverageMode:     d.CoverageMode,
			Matcher:          d.Matcher,
			LowConfidence:    t.LowConfidence,
			Reasons:          t.Reasons,
			TopCandidates:    top,
		},
		Working: &WorkingBlock{
			Fixed:       d.FixedWorking,
			Moving:      d.MovingWorking,
			FixedScale:  t.FixedNativeScale,
			MovingScale: t.MovingNativeScale,
		},
		OriginalSizes: &SizesBlock{
			Fixed:     d.FixedNative,
			Moving:    d.MovingNative,
			SizeRatio: sizeRatio(d.FixedNative, d.MovingNative),
		},
	}
}

func sizeRatio(fixed, moving [2]int) float64 {
	if fixed[0] == 0 || fixed[1] == 0 {
		return 0
	}
	return (float64(moving[0])/float64(fixed[0]) + float64(moving[1])/float64(fixed[1])) / 2
}
