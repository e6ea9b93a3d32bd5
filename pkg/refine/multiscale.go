package refine

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"slidealign/internal/models"
	"slidealign/pkg/phasecorr"
)

// ScaleMatch is the best entry of a scale lattice search
type ScaleMatch struct {
	Params    Params
	Objective float64
	Sharpness float64
}

type scaleTrial struct {
	match ScaleMatch
	ok    bool
}

// MatchScales brings moving to each lattice scale about the canvas centre,
// phase-correlates it against fixed and keeps the scale whose transform
// overlaps best. Scales that leave the warped mask empty or full are
// skipped. Ties go to the scale closest to 1.
func MatchScales(ctx context.Context, fixed, moving *models.Mask, scales []float64, opts phasecorr.Options) (ScaleMatch, error) {
	trials := make([]scaleTrial, len(scales))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range scales {
		i, s := i, s
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			trials[i] = tryScale(fixed, moving, s, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ScaleMatch{}, err
	}

	best := -1
	for i, t := range trials {
		if !t.ok {
			continue
		}
		if best < 0 || t.match.Objective > trials[best].match.Objective ||
			(t.match.Objective == trials[best].match.Objective && closerToUnit(scales[i], scales[best])) {
			best = i
		}
	}
	if best < 0 {
		return ScaleMatch{}, fmt.Errorf("no scale in %v gave a usable correlation", scales)
	}
	return trials[best].match, nil
}

// tryScale resamples moving so that W(q) = moving(c + s(q - c)). A shift d
// between fixed and W becomes the translation s*d of the warp mapping.
func tryScale(fixed, moving *models.Mask, s float64, opts phasecorr.Options) scaleTrial {
	warped := Warp(moving, Params{Scale: s})
	if n := warped.Count(); n == 0 || n == len(warped.Pix) {
		return scaleTrial{}
	}
	est, err := phasecorr.EstimateShift(fixed, warped, opts)
	if err != nil {
		return scaleTrial{}
	}
	p := Params{DX: s * est.DX, DY: s * est.DY, Scale: s}
	return scaleTrial{
		match: ScaleMatch{Params: p, Objective: Objective(fixed, moving, p), Sharpness: est.Sharpness},
		ok:    true,
	}
}

func closerToUnit(a, b float64) bool {
	return math.Abs(math.Log(a)) < math.Abs(math.Log(b))
}
