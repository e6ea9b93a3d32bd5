package refine

import (
	"context"
	"errors"
	"math"
	"testing"

	"slidealign/internal/models"
	"slidealign/pkg/phasecorr"
)

func createEllipseMask(w, h int, cx, cy, rx, ry float64) *models.Mask {
	m := models.NewMask(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := (float64(x)-cx)/rx, (float64(y)-cy)/ry
			if dx*dx+dy*dy <= 1 {
				m.Set(x, y, true)
			}
		}
	}
	return m
}

func shiftMask(m *models.Mask, dx, dy int) *models.Mask {
	out := models.NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.At(x-dx, y-dy) {
				out.Set(x, y, true)
			}
		}
	}
	return out
}

func TestObjectiveAtTruthIsOne(t *testing.T) {
	fixed := createEllipseMask(120, 100, 55, 50, 30, 20)
	moving := shiftMask(fixed, 10, -6)

	if got := Objective(fixed, moving, Params{DX: 10, DY: -6, Scale: 1}); got != 1 {
		t.Errorf("Expected IoU 1 at the true shift, got %g", got)
	}
	if got := Objective(fixed, moving, Params{Scale: 1}); got >= 1 {
		t.Errorf("Expected IoU below 1 at zero shift, got %g", got)
	}
}

func TestRefineConvergesToTruth(t *testing.T) {
	fixed := createEllipseMask(120, 100, 55, 50, 30, 20)
	moving := shiftMask(fixed, 10, -6)

	res, err := Refine(context.Background(), fixed, moving, Params{DX: 7, DY: -3, Scale: 1}, DefaultOptions)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if !res.Converged {
		t.Error("Expected convergence")
	}
	if res.Objective < 0.98 {
		t.Errorf("Expected near-perfect overlap, got %g", res.Objective)
	}
	if math.Abs(res.Params.DX-10) > 1 || math.Abs(res.Params.DY+6) > 1 {
		t.Errorf("Expected (10, -6), got (%.2f, %.2f)", res.Params.DX, res.Params.DY)
	}
	if res.Params.Scale != 1 {
		t.Errorf("Scale should not move without scale refinement, got %g", res.Params.Scale)
	}
}

func TestRefineNeverGetsWorse(t *testing.T) {
	fixed := createEllipseMask(100, 100, 40, 50, 25, 15)
	moving := createEllipseMask(100, 100, 60, 45, 18, 22)

	for _, init := range []Params{{0, 0, 1}, {15, -3, 1}, {-20, 10, 1}, {5, 5, 0.9}} {
		res, err := Refine(context.Background(), fixed, moving, init, DefaultOptions)
		if err != nil && !errors.Is(err, models.ErrRefinementNonConvergence) {
			t.Fatalf("Unexpected error: %v", err)
		}
		if res.Objective < res.Initial {
			t.Errorf("Objective dropped from %g to %g starting at %+v", res.Initial, res.Objective, init)
		}
		if res.Initial != Objective(fixed, moving, init) {
			t.Errorf("Initial objective mismatch for %+v", init)
		}
	}
}

func TestRefineIterationCap(t *testing.T) {
	fixed := createEllipseMask(120, 100, 55, 50, 30, 20)
	moving := shiftMask(fixed, 20, 0)

	opts := DefaultOptions
	opts.MaxIterations = 1
	res, err := Refine(context.Background(), fixed, moving, Params{Scale: 1}, opts)
	if !errors.Is(err, models.ErrRefinementNonConvergence) {
		t.Fatalf("Expected non-convergence, got %v", err)
	}
	if res.Converged {
		t.Error("Result should not be marked converged")
	}
	if res.Objective <= res.Initial {
		t.Errorf("Expected the single move to improve, got %g -> %g", res.Initial, res.Objective)
	}
}

func TestRefineRespectsWindow(t *testing.T) {
	fixed := createEllipseMask(120, 100, 55, 50, 30, 20)
	moving := shiftMask(fixed, 20, 0)

	opts := DefaultOptions
	opts.Window = 3
	res, _ := Refine(context.Background(), fixed, moving, Params{Scale: 1}, opts)
	if math.Abs(res.Params.DX) > 3 || math.Abs(res.Params.DY) > 3 {
		t.Errorf("Expected result inside the window, got (%.2f, %.2f)", res.Params.DX, res.Params.DY)
	}
}

func TestRefineScale(t *testing.T) {
	fixed := createEllipseMask(120, 120, 60, 60, 30, 20)
	moving := createEllipseMask(120, 120, 60, 60, 33, 22)

	// moving is fixed grown by 10% about the centre
	opts := DefaultOptions
	opts.RefineScale = true
	res, err := Refine(context.Background(), fixed, moving, Params{Scale: 1}, opts)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if math.Abs(res.Params.Scale-1.1) > 0.03 {
		t.Errorf("Expected scale near 1.1, got %g", res.Params.Scale)
	}
	if res.Objective <= res.Initial {
		t.Errorf("Expected scale refinement to improve overlap, got %g -> %g", res.Initial, res.Objective)
	}
}

func TestRefineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := createEllipseMask(50, 50, 25, 25, 10, 10)
	if _, err := Refine(ctx, m, m, Params{Scale: 1}, DefaultOptions); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestWarpMatchesObjective(t *testing.T) {
	fixed := createEllipseMask(120, 100, 55, 50, 30, 20)
	moving := shiftMask(fixed, 10, -6)

	warped := Warp(moving, Params{DX: 10, DY: -6, Scale: 1})
	if !warped.Equal(fixed) {
		t.Error("Expected warping by the true shift to reproduce the fixed mask")
	}
}

// TestMatchScalesFindsSmallerComposite places the section at 0.6x in the
// moving canvas and expects the lattice to land on it
func TestMatchScalesFindsSmallerComposite(t *testing.T) {
	fixed := createEllipseMask(160, 120, 70, 55, 40, 25)
	// fixed centre maps to (80,60) + 0.6*((70,55)-(80,60)) + (4,-3)
	moving := createEllipseMask(160, 120, 78, 54, 24, 15)

	scales := []float64{0.4, 0.5, 0.6, 0.7, 0.8, 1.0, 1.25}
	match, err := MatchScales(context.Background(), fixed, moving, scales, phasecorr.DefaultOptions)
	if err != nil {
		t.Fatalf("MatchScales failed: %v", err)
	}
	if match.Params.Scale != 0.6 {
		t.Errorf("Expected scale 0.6, got %g", match.Params.Scale)
	}
	if math.Abs(match.Params.DX-4) > 1.5 || math.Abs(match.Params.DY+3) > 1.5 {
		t.Errorf("Expected (4, -3), got (%.2f, %.2f)", match.Params.DX, match.Params.DY)
	}
	if match.Objective < 0.85 {
		t.Errorf("Expected a close overlap, got %.3f", match.Objective)
	}
	unit := Objective(fixed, moving, Params{Scale: 1})
	if match.Objective <= unit {
		t.Errorf("Expected the lattice to beat unit scale: %.3f <= %.3f", match.Objective, unit)
	}
}

func TestMatchScalesNoUsableScale(t *testing.T) {
	fixed := createEllipseMask(60, 60, 30, 30, 10, 10)
	if _, err := MatchScales(context.Background(), fixed, models.NewMask(60, 60), []float64{0.5, 1, 2}, phasecorr.DefaultOptions); err == nil {
		t.Error("Expected error for an empty moving mask")
	}
}
