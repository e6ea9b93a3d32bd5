package orientation

import (
	"fmt"
	"math"

	"slidealign/internal/models"
)

// Scorer rates how well an oriented moving mask matches the fixed mask. Both
// masks share one canvas (see PadToCanvas). Scores are in [0, 1], higher is
// better, and must not depend on where the tissue sits on the canvas.
type Scorer interface {
	Name() string
	Score(fixed, moving *models.Mask) float64
}

// NewScorer looks a strategy up by name
func NewScorer(name string) (Scorer, error) {
	switch name {
	case "coverage":
		return CoverageScorer{}, nil
	case "centered_iou":
		return CenteredIoUScorer{}, nil
	case "hybrid", "":
		return HybridScorer{}, nil
	}
	return nil, fmt.Errorf("unknown orientation scorer %q", name)
}

// CoverageScorer compares the foreground fractions of the two masks on their
// common canvas. It only depends on pixel counts, so it cannot tell
// orientations apart and serves as a baseline.
type CoverageScorer struct{}

func (CoverageScorer) Name() string { return "coverage" }

func (CoverageScorer) Score(fixed, moving *models.Mask) float64 {
	cf, cm := fixed.Coverage(), moving.Coverage()
	hi := math.Max(cf, cm)
	if hi == 0 {
		return 0
	}
	return 1 - math.Abs(cf-cm)/hi
}

// CenteredIoUScorer overlays the masks with their centroids aligned and
// returns intersection over union
type CenteredIoUScorer struct{}

func (CenteredIoUScorer) Name() string { return "centered_iou" }

func (CenteredIoUScorer) Score(fixed, moving *models.Mask) float64 {
	return CenteredIoU(fixed, moving)
}

// HybridScorer multiplies coverage agreement by centred IoU
type HybridScorer struct{}

func (HybridScorer) Name() string { return "hybrid" }

func (HybridScorer) Score(fixed, moving *models.Mask) float64 {
	return CoverageScorer{}.Score(fixed, moving) * CenteredIoU(fixed, moving)
}

// CenteredIoU shifts moving by the rounded centroid difference and measures
// overlap. Pixels shifted off the fixed grid still count towards the union.
func CenteredIoU(fixed, moving *models.Mask) float64 {
	fx, fy, okF := fixed.Centroid()
	mx, my, okM := moving.Centroid()
	if !okF || !okM {
		return 0
	}
	dx := int(math.Round(fx - mx))
	dy := int(math.Round(fy - my))
	return ShiftedIoU(fixed, moving, dx, dy)
}

// ShiftedIoU is the IoU of fixed and moving translated by (dx, dy)
func ShiftedIoU(fixed, moving *models.Mask, dx, dy int) float64 {
	inter, nm := 0, 0
	for y := 0; y < moving.Height; y++ {
		row := moving.Pix[y*moving.Width : (y+1)*moving.Width]
		for x, v := range row {
			if !v {
				continue
			}
			nm++
			if fixed.At(x+dx, y+dy) {
				inter++
			}
		}
	}
	union := fixed.Count() + nm - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
