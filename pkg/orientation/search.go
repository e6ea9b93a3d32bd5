package orientation

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"slidealign/internal/models"
)

// DefaultTieEpsilon is the score distance within which hypotheses tie
const DefaultTieEpsilon = 0.005

// Options configures Search
type Options struct {
	Scorer     Scorer
	TieEpsilon float64
}

// Search scores all 16 hypotheses of moving against fixed and returns them
// ranked best first. Each oriented moving mask is padded onto a common canvas
// with fixed before scoring. Scores are computed concurrently but collected
// by index, so the ranking is the same as a serial evaluation.
func Search(ctx context.Context, fixed, moving *models.Mask, opts Options) ([]models.ScoredOrientation, error) {
	scorer := opts.Scorer
	if scorer == nil {
		scorer = HybridScorer{}
	}

	hyps := models.AllOrientations()
	scored := make([]models.ScoredOrientation, len(hyps))

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range hyps {
		i, h := i, h
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			canvas := PadToCanvas(fixed, Apply(moving, h))
			scored[i] = models.ScoredOrientation{
				Orientation: h,
				Score:       scorer.Score(canvas.Fixed, canvas.Moving),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	Rank(scored, opts.TieEpsilon)
	return scored, nil
}

// Rank sorts hypotheses best first and fills in Rank. Everything within eps
// of the best score is treated as tied and ordered by the identity-closest
// preference; the remainder is ordered by score.
func Rank(scored []models.ScoredOrientation, eps float64) {
	if len(scored) == 0 {
		return
	}
	best := scored[0].Score
	for _, s := range scored[1:] {
		if s.Score > best {
			best = s.Score
		}
	}
	top := func(s models.ScoredOrientation) bool {
		return s.Score >= best-eps
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		at, bt := top(a), top(b)
		if at != bt {
			return at
		}
		if !at && a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.PreferredOver(b.Orientation)
	})

	for i := range scored {
		scored[i].Rank = i
	}
}
