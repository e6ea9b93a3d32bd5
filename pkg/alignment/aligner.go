// Package alignment runs the slide/composite alignment pipeline: mask
// extraction, orientation search, translation estimation, optional local
// refinement and artifact output, once per matched pair.
package alignment

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/pkg/errors"

	"slidealign/internal/models"
	"slidealign/pkg/config"
	"slidealign/pkg/logger"
	"slidealign/pkg/mask"
	"slidealign/pkg/orientation"
	"slidealign/pkg/refine"
	"slidealign/pkg/telemetry"
	"slidealign/pkg/transform"
)

// MethodAuto tags transforms produced by this package
const MethodAuto = transform.MethodAuto

// Matchers recorded in the detection block
const (
	MatcherPhaseCorrelation = "phase_correlation"
	MatcherMultiScale       = "multiscale"
)

// Params holds everything an Aligner needs besides the pairs themselves
type Params struct {
	// DataDir is the root containing slides/, cosmx/ and cosmx_tiles/
	DataDir string

	// Config carries every tunable; it must already be validated
	Config *config.Config

	// Logger receives progress and per-pair diagnostics
	Logger logger.Logger

	// Optional collaborators; nil values get no-op defaults
	Metrics  *telemetry.Metrics
	Latency  *telemetry.LatencyRecorder
	Reporter telemetry.Reporter
	Writer   *transform.Writer
}

// Aligner estimates transforms for fixed/moving image pairs
type Aligner struct {
	// params stores the run configuration
	params *Params
	cfg    *config.Config
	log    logger.Logger

	fixedExtractor  *mask.Extractor
	movingExtractor *mask.Extractor
	scorer          orientation.Scorer

	writer   *transform.Writer
	metrics  *telemetry.Metrics
	latency  *telemetry.LatencyRecorder
	reporter telemetry.Reporter
}

// NewAligner creates an aligner from params, filling in defaults
func NewAligner(params *Params) (*Aligner, error) {
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	scorer, err := orientation.NewScorer(cfg.Orientation.Scorer)
	if err != nil {
		return nil, err
	}

	log := params.Logger
	if log == nil {
		log = logger.Discard
	}

	a := &Aligner{
		params:          params,
		cfg:             cfg,
		log:             log,
		fixedExtractor:  mask.NewExtractor(cfg, models.Fixed),
		movingExtractor: mask.NewExtractor(cfg, models.Moving),
		scorer:          scorer,
		writer:          params.Writer,
		metrics:         params.Metrics,
		latency:         params.Latency,
		reporter:        params.Reporter,
	}
	if a.writer == nil {
		a.writer = transform.NewWriter(params.DataDir, cfg, log)
	}
	if a.metrics == nil {
		a.metrics = telemetry.NewMetrics()
	}
	if a.latency == nil {
		a.latency = telemetry.NewLatencyRecorder()
	}
	if a.reporter == nil {
		a.reporter = telemetry.NullReporter{}
	}
	return a, nil
}

// Metrics exposes the collectors the aligner reports into
func (a *Aligner) Metrics() *telemetry.Metrics {
	return a.metrics
}

// Estimation is the pure result of aligning one pair, together with the
// intermediate products the debug renderer needs
type Estimation struct {
	Transform models.AlignmentTransform

	Fixed    *mask.Result
	Moving   *mask.Result
	Oriented *models.Mask
	Canvas   *orientation.Canvas

	// Final is the transform in canvas coordinates
	Final refine.Params
}

func (a *Aligner) observe(stage string, start time.Time) {
	a.metrics.ObserveStage(stage, time.Since(start))
}

// Estimate aligns moving onto fixed. It has no side effects beyond logging
// and metrics; writing the artifact is left to the caller.
func (a *Aligner) Estimate(ctx context.Context, id string, fixedImg, movingImg image.Image) (*Estimation, error) {
	// Step 1: tissue masks
	start := time.Now()
	fixed, err := a.fixedExtractor.Extract(id, fixedImg)
	if err != nil {
		return nil, err
	}
	moving, err := a.movingExtractor.Extract(id, movingImg)
	if err != nil {
		return nil, err
	}
	a.observe("mask", start)
	a.log.Debugf("%s: masks fixed %dx%d (%.1f%%, polarity %s) moving %dx%d (%.1f%%, polarity %s)", id,
		fixed.Mask.Width, fixed.Mask.Height, 100*fixed.Mask.Coverage(), fixed.Polarity,
		moving.Mask.Width, moving.Mask.Height, 100*moving.Mask.Coverage(), moving.Polarity)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 2: rank the 16 orientation hypotheses
	start = time.Now()
	ranked, err := orientation.Search(ctx, fixed.Mask, moving.Mask, orientation.Options{
		Scorer:     a.scorer,
		TieEpsilon: a.cfg.Orientation.TieEpsilon,
	})
	if err != nil {
		return nil, errors.Wrap(err, "orientation search failed")
	}
	a.observe("orientation", start)
	a.log.Debugf("%s: best orientation %v (score %.4f via %s)", id, ranked[0].Orientation, ranked[0].Score, a.scorer.Name())

	// Step 3: translation by phase correlation over the best candidates
	start = time.Now()
	cand, err := a.selectCandidate(ctx, id, fixed.Mask, moving.Mask, ranked)
	if err != nil {
		return nil, err
	}
	a.observe("translation", start)

	// Step 3b: multi-scale matching for partial composites, or when unit
	// scale barely overlaps in full mode
	tissueRatio := float64(moving.Mask.Count()) / float64(fixed.Mask.Count())
	mode := a.matchMode(fixed.Mask, moving.Mask, tissueRatio)
	initialObjective := refine.Objective(cand.canvas.Fixed, cand.canvas.Moving, cand.params)
	if mode == config.ModePartial || initialObjective < a.cfg.Translation.PartialFallback {
		start = time.Now()
		scaled, objective, err := a.selectScaled(ctx, id, fixed.Mask, moving.Mask, ranked)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			a.log.Infof("%s: %v, keeping unit scale", id, err)
		case objective > initialObjective:
			a.log.Infof("%s: multi-scale (%s mode) accepted orientation rank %d (%v) at scale %.3f, iou %.3f over %.3f", id,
				mode, scaled.hypothesis.Rank, scaled.hypothesis.Orientation, scaled.params.Scale, objective, initialObjective)
			cand, initialObjective = scaled, objective
		default:
			a.log.Debugf("%s: multi-scale iou %.3f did not beat unit scale %.3f", id, objective, initialObjective)
		}
		a.observe("multiscale", start)
	}

	est := &Estimation{
		Fixed:    fixed,
		Moving:   moving,
		Oriented: cand.oriented,
		Canvas:   cand.canvas,
	}
	t := &est.Transform
	t.Orientation = cand.hypothesis.Orientation
	t.Method = MethodAuto
	t.FixedNativeScale = fixed.Working.Scale
	t.MovingNativeScale = moving.Working.Scale
	t.Detection.CoverageMode = mode
	t.Detection.TissueRatio = tissueRatio
	t.Detection.Matcher = MatcherPhaseCorrelation
	if cand.scaled {
		t.Detection.Matcher = MatcherMultiScale
	}
	if !cand.passed {
		t.LowConfidence = true
		t.Reasons = append(t.Reasons, fmt.Sprintf("no candidate reached sharpness %.1f", a.cfg.Translation.MinSharpness))
	}
	if cand.guarded {
		t.Reasons = append(t.Reasons, "large shift rejected in favour of zero shift")
	}

	initial := cand.params
	final := initial

	// Step 4: optional local refinement
	if a.cfg.Processing.Refine {
		start = time.Now()
		res, err := refine.Refine(ctx, cand.canvas.Fixed, cand.canvas.Moving, initial, a.refineOptions())
		switch {
		case err == nil:
			final = res.Params
			t.Detection.Refined = true
		case errors.Is(err, models.ErrRefinementNonConvergence):
			a.log.Infof("%s: refinement hit %d iterations, keeping the phase correlation estimate", id, res.Iterations)
			t.LowConfidence = true
			t.Reasons = append(t.Reasons, models.ErrRefinementNonConvergence.Error())
		default:
			return nil, errors.Wrap(err, "refinement failed")
		}
		t.Detection.Iterations = res.Iterations
		a.observe("refine", start)
	}
	est.Final = final

	// Step 5: confidence and conversion to working-image coordinates
	confidence := refine.Objective(cand.canvas.Fixed, cand.canvas.Moving, final)
	t.Confidence = confidence
	if confidence < a.cfg.Output.MinConfidence {
		t.LowConfidence = true
		t.Reasons = append(t.Reasons, fmt.Sprintf("confidence %.3f below %.2f", confidence, a.cfg.Output.MinConfidence))
	}

	cx := float64(cand.canvas.Width()) / 2
	cy := float64(cand.canvas.Height()) / 2
	of, om := cand.canvas.FixedOffset, cand.canvas.MovingOffset
	t.Scale = final.Scale
	t.TranslationX = cx + final.Scale*(float64(of.X)-cx) + final.DX - float64(om.X)
	t.TranslationY = cy + final.Scale*(float64(of.Y)-cy) + final.DY - float64(om.Y)

	fillDetection(&t.Detection, fixed, moving, ranked, cand, initialObjective)

	a.log.Infof("%s: %v translation (%.1f, %.1f) scale %.3f confidence %.3f%s", id,
		t.Orientation, t.TranslationX, t.TranslationY, t.Scale, t.Confidence, lowSuffix(t))
	return est, nil
}

func (a *Aligner) refineOptions() refine.Options {
	r := a.cfg.Refine
	return refine.Options{
		Window:        r.Window,
		Step:          r.Step,
		MinStep:       r.MinStep,
		RefineScale:   r.RefineScale,
		ScaleWindow:   r.ScaleWindow,
		ScaleStep:     r.ScaleStep,
		MaxIterations: r.MaxIterations,
	}
}

func fillDetection(d *models.Detection, fixed, moving *mask.Result, ranked []models.ScoredOrientation, cand *candidate, initialObjective float64) {
	d.OrientationScore = cand.hypothesis.Score
	d.Sharpness = cand.estimate.Sharpness
	d.AcceptedRank = cand.hypothesis.Rank
	d.InitialObjective = initialObjective

	d.FixedCoverage = fixed.Mask.Coverage()
	d.MovingCoverage = moving.Mask.Coverage()

	d.FixedWorking = [2]int{fixed.Mask.Width, fixed.Mask.Height}
	d.MovingWorking = [2]int{moving.Mask.Width, moving.Mask.Height}
	d.FixedNative = [2]int{fixed.Working.NativeWidth, fixed.Working.NativeHeight}
	d.MovingNative = [2]int{moving.Working.NativeWidth, moving.Working.NativeHeight}

	n := 5
	if len(ranked) < n {
		n = len(ranked)
	}
	d.TopCandidates = append([]models.ScoredOrientation(nil), ranked[:n]...)
}

// matchMode resolves the configured matching mode for a pair
func (a *Aligner) matchMode(fixed, moving *models.Mask, tissueRatio float64) string {
	if m := a.cfg.Translation.Mode; m != config.ModeAuto {
		return m
	}
	return coverageMode(fixed, moving, tissueRatio)
}

// coverageMode labels a pair "partial" when the composite covers a clearly
// different amount of tissue or image area than the slide
func coverageMode(fixed, moving *models.Mask, tissueRatio float64) string {
	areaRatio := float64(moving.Width*moving.Height) / float64(fixed.Width*fixed.Height)
	if areaRatio < 0.6 || tissueRatio > 1.5 || tissueRatio < 0.4 {
		return config.ModePartial
	}
	return config.ModeFull
}

func lowSuffix(t *models.AlignmentTransform) string {
	if !t.LowConfidence {
		return ""
	}
	return " [LOW CONFIDENCE]"
}
