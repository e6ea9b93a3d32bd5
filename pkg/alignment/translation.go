package alignment

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"slidealign/internal/models"
	"slidealign/pkg/orientation"
	"slidealign/pkg/phasecorr"
	"slidealign/pkg/refine"
)

// candidate is one orientation hypothesis with its translation estimate
type candidate struct {
	hypothesis models.ScoredOrientation
	oriented   *models.Mask
	canvas     *orientation.Canvas
	estimate   phasecorr.Estimate

	// passed is set when the peak reached the sharpness threshold
	passed bool

	// guarded is set when a large shift was replaced by zero shift
	guarded bool

	// params is the starting transform on the canvas; scaled marks one found
	// by the multi-scale matcher
	params refine.Params
	scaled bool
}

// unitParams is the phase correlation estimate as a unit-scale transform
func (c *candidate) unitParams() refine.Params {
	return refine.Params{DX: c.estimate.DX, DY: c.estimate.DY, Scale: 1}
}

// selectCandidate walks the ranked hypotheses best first and accepts the
// first whose correlation peak is sharp enough. Hypotheses equivalent to one
// already tried are skipped. When none passes, the sharpest one is used.
func (a *Aligner) selectCandidate(ctx context.Context, id string, fixed, moving *models.Mask, ranked []models.ScoredOrientation) (*candidate, error) {
	topK := a.cfg.Translation.TopK
	opts := phasecorr.Options{PeakExclusion: a.cfg.Translation.PeakExclusion}

	var tried []models.Orientation
	var sharpest *candidate
	for _, h := range ranked {
		if len(tried) >= topK {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seen(tried, h.Orientation) {
			continue
		}
		tried = append(tried, h.Orientation)

		oriented := orientation.Apply(moving, h.Orientation)
		canvas := orientation.PadToCanvas(fixed, oriented)
		est, err := phasecorr.EstimateShift(canvas.Fixed, canvas.Moving, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "translation estimate for %v failed", h.Orientation)
		}

		c := &candidate{hypothesis: h, oriented: oriented, canvas: canvas, estimate: est}
		if a.cfg.Translation.LargeShiftGuard {
			c.guarded = guardLargeShift(c)
		}
		c.params = c.unitParams()
		a.log.Debugf("%s: candidate rank %d %v shift (%.2f, %.2f) sharpness %.2f", id, h.Rank, h.Orientation, c.estimate.DX, c.estimate.DY, est.Sharpness)

		if est.Sharpness >= a.cfg.Translation.MinSharpness {
			c.passed = true
			a.log.Infof("%s: accepted orientation rank %d (%v) with sharpness %.2f", id, h.Rank, h.Orientation, est.Sharpness)
			return c, nil
		}
		if sharpest == nil || est.Sharpness > sharpest.estimate.Sharpness {
			sharpest = c
		}
	}

	a.log.Infof("%s: no candidate reached sharpness %.1f, using rank %d (%v) with sharpness %.2f", id,
		a.cfg.Translation.MinSharpness, sharpest.hypothesis.Rank, sharpest.hypothesis.Orientation, sharpest.estimate.Sharpness)
	return sharpest, nil
}

func seen(tried []models.Orientation, o models.Orientation) bool {
	for _, t := range tried {
		if orientation.Equivalent(t, o) {
			return true
		}
	}
	return false
}

// guardLargeShift compares a shift beyond a quarter of the canvas with no
// shift at all and keeps whichever overlaps better
func guardLargeShift(c *candidate) bool {
	w, h := float64(c.canvas.Width()), float64(c.canvas.Height())
	if math.Abs(c.estimate.DX) <= w/4 && math.Abs(c.estimate.DY) <= h/4 {
		return false
	}
	shifted := refine.Objective(c.canvas.Fixed, c.canvas.Moving, refine.Params{DX: c.estimate.DX, DY: c.estimate.DY, Scale: 1})
	zero := refine.Objective(c.canvas.Fixed, c.canvas.Moving, refine.Params{Scale: 1})
	if zero > shifted {
		c.estimate.DX, c.estimate.DY = 0, 0
		return true
	}
	return false
}

// selectScaled runs the multi-scale matcher on every distinct hypothesis and
// returns the one whose best lattice scale overlaps most. The orientation
// score is not consulted beyond ordering: centred IoU is unreliable when the
// two masks differ in scale. Hypotheses where no scale gives a usable
// correlation are passed over.
func (a *Aligner) selectScaled(ctx context.Context, id string, fixed, moving *models.Mask, ranked []models.ScoredOrientation) (*candidate, float64, error) {
	opts := phasecorr.Options{PeakExclusion: a.cfg.Translation.PeakExclusion}

	var tried []models.Orientation
	var best *candidate
	bestObjective := -1.0
	for _, h := range ranked {
		if seen(tried, h.Orientation) {
			continue
		}
		tried = append(tried, h.Orientation)

		oriented := orientation.Apply(moving, h.Orientation)
		canvas := orientation.PadToCanvas(fixed, oriented)
		match, err := refine.MatchScales(ctx, canvas.Fixed, canvas.Moving, a.cfg.Translation.Scales, opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, 0, ctxErr
			}
			a.log.Debugf("%s: multi-scale rank %d %v: %v", id, h.Rank, h.Orientation, err)
			continue
		}
		a.log.Debugf("%s: multi-scale rank %d %v scale %.3f shift (%.2f, %.2f) iou %.4f", id,
			h.Rank, h.Orientation, match.Params.Scale, match.Params.DX, match.Params.DY, match.Objective)

		if match.Objective > bestObjective {
			bestObjective = match.Objective
			best = &candidate{
				hypothesis: h,
				oriented:   oriented,
				canvas:     canvas,
				estimate:   phasecorr.Estimate{DX: match.Params.DX, DY: match.Params.DY, Sharpness: match.Sharpness},
				passed:     match.Sharpness >= a.cfg.Translation.MinSharpness,
				params:     match.Params,
				scaled:     true,
			}
		}
	}
	if best == nil {
		return nil, 0, errors.New("multi-scale matching found no usable scale")
	}
	return best, bestObjective, nil
}
