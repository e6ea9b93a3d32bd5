// Package refine polishes a coarse translation (and optionally scale) by
// deterministic hill climbing on mask overlap.
package refine

import (
	"context"
	"image"
	"math"

	"slidealign/internal/models"
)

// Params is a similarity without rotation: moving content sits at
// scale*(p - centre) + centre + (DX, DY) for every fixed point p
type Params struct {
	DX    float64
	DY    float64
	Scale float64
}

// Options bounds the search
type Options struct {
	// Window limits |DX-init.DX| and |DY-init.DY|, in pixels
	Window float64

	// Step is the first translation step; it halves on every stall until
	// it drops below MinStep
	Step    float64
	MinStep float64

	RefineScale bool
	ScaleWindow float64
	ScaleStep   float64

	MaxIterations int
}

// DefaultOptions mirrors the shipped configuration
var DefaultOptions = Options{
	Window:        30,
	Step:          4,
	MinStep:       0.5,
	ScaleWindow:   0.2,
	ScaleStep:     0.02,
	MaxIterations: 200,
}

// Result is the outcome of a refinement run
type Result struct {
	Params    Params
	Objective float64

	// Initial is the objective at the starting parameters
	Initial float64

	Iterations int
	Converged  bool
}

// Refine climbs from init towards higher overlap between fixed and the
// warped moving mask. Both masks share a canvas. Only strictly improving
// moves are taken, so Objective >= Initial. Running out of iterations while
// still improving returns the best parameters found together with
// models.ErrRefinementNonConvergence.
func Refine(ctx context.Context, fixed, moving *models.Mask, init Params, opts Options) (Result, error) {
	if init.Scale == 0 {
		init.Scale = 1
	}
	obj := newObjective(fixed, moving)

	current := init
	score := obj.eval(current)
	res := Result{Params: current, Objective: score, Initial: score}

	step := opts.Step
	scaleStep := opts.ScaleStep
	for res.Iterations < opts.MaxIterations {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Iterations++

		bestScore := score
		var best Params
		improved := false
		for _, cand := range neighbours(current, step, scaleStep, opts) {
			if !inBounds(cand, init, opts) {
				continue
			}
			if s := obj.eval(cand); s > bestScore {
				bestScore = s
				best = cand
				improved = true
			}
		}

		if improved {
			current = best
			score = bestScore
			res.Params = current
			res.Objective = score
			continue
		}

		step /= 2
		scaleStep /= 2
		if step < opts.MinStep {
			res.Converged = true
			return res, nil
		}
	}

	return res, models.ErrRefinementNonConvergence
}

func neighbours(p Params, step, scaleStep float64, opts Options) []Params {
	diag := step * math.Sqrt2 / 2
	out := []Params{
		{p.DX + step, p.DY, p.Scale}, {p.DX - step, p.DY, p.Scale},
		{p.DX, p.DY + step, p.Scale}, {p.DX, p.DY - step, p.Scale},
		{p.DX + diag, p.DY + diag, p.Scale}, {p.DX + diag, p.DY - diag, p.Scale},
		{p.DX - diag, p.DY + diag, p.Scale}, {p.DX - diag, p.DY - diag, p.Scale},
	}
	if opts.RefineScale {
		out = append(out, Params{p.DX, p.DY, p.Scale + scaleStep}, Params{p.DX, p.DY, p.Scale - scaleStep})
	}
	return out
}

func inBounds(p, init Params, opts Options) bool {
	if math.Abs(p.DX-init.DX) > opts.Window || math.Abs(p.DY-init.DY) > opts.Window {
		return false
	}
	if p.Scale <= 0 || math.Abs(p.Scale-init.Scale) > opts.ScaleWindow+1e-9 {
		return false
	}
	return true
}

// Objective is the IoU of fixed and moving warped by p
func Objective(fixed, moving *models.Mask, p Params) float64 {
	if p.Scale == 0 {
		p.Scale = 1
	}
	return newObjective(fixed, moving).eval(p)
}

type objective struct {
	fixed, moving *models.Mask
	fixedBox      image.Rectangle
	movingBox     image.Rectangle
	fixedCount    int
	cx, cy        float64
}

func newObjective(fixed, moving *models.Mask) *objective {
	return &objective{
		fixed:      fixed,
		moving:     moving,
		fixedBox:   foregroundBox(fixed),
		movingBox:  foregroundBox(moving),
		fixedCount: fixed.Count(),
		cx:         float64(fixed.Width) / 2,
		cy:         float64(fixed.Height) / 2,
	}
}

// eval samples the moving mask with nearest-neighbour lookup over the
// region where either mask can have foreground
func (o *objective) eval(p Params) float64 {
	// pre-image of the moving foreground box on the fixed grid
	x0 := (float64(o.movingBox.Min.X)-0.5-o.cx-p.DX)/p.Scale + o.cx
	x1 := (float64(o.movingBox.Max.X)-0.5-o.cx-p.DX)/p.Scale + o.cx
	y0 := (float64(o.movingBox.Min.Y)-0.5-o.cy-p.DY)/p.Scale + o.cy
	y1 := (float64(o.movingBox.Max.Y)-0.5-o.cy-p.DY)/p.Scale + o.cy
	pre := image.Rect(int(math.Floor(x0))-1, int(math.Floor(y0))-1, int(math.Ceil(x1))+1, int(math.Ceil(y1))+1)
	region := pre.Intersect(o.fixed.Bounds())

	inter, warped := 0, 0
	for y := region.Min.Y; y < region.Max.Y; y++ {
		sy := int(math.Round(o.cy + p.Scale*(float64(y)-o.cy) + p.DY))
		for x := region.Min.X; x < region.Max.X; x++ {
			sx := int(math.Round(o.cx + p.Scale*(float64(x)-o.cx) + p.DX))
			if !o.moving.At(sx, sy) {
				continue
			}
			warped++
			if o.fixed.At(x, y) {
				inter++
			}
		}
	}

	union := o.fixedCount + warped - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func foregroundBox(m *models.Mask) image.Rectangle {
	box := image.Rectangle{}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.Pix[y*m.Width+x] {
				box = box.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return box
}

// Warp resamples moving onto its own grid with the objective's mapping:
// output pixel p takes moving at centre + Scale*(p - centre) + (DX, DY)
func Warp(moving *models.Mask, p Params) *models.Mask {
	if p.Scale == 0 {
		p.Scale = 1
	}
	out := models.NewMask(moving.Width, moving.Height)
	cx, cy := float64(moving.Width)/2, float64(moving.Height)/2
	for y := 0; y < out.Height; y++ {
		sy := int(math.Round(cy + p.Scale*(float64(y)-cy) + p.DY))
		for x := 0; x < out.Width; x++ {
			sx := int(math.Round(cx + p.Scale*(float64(x)-cx) + p.DX))
			out.Pix[y*out.Width+x] = moving.At(sx, sy)
		}
	}
	return out
}
