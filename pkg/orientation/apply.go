// Package orientation searches the 16 rotation/flip hypotheses for the one
// that best matches a moving mask to a fixed mask.
package orientation

import (
	"image"

	"slidealign/internal/models"
)

// OrientedSize returns the dimensions of a w x h grid after applying o
func OrientedSize(o models.Orientation, w, h int) (int, int) {
	if o.Rotation == 90 || o.Rotation == 270 {
		return h, w
	}
	return w, h
}

// sourceFunc returns, for an output pixel of the oriented grid, the input
// pixel it is copied from. The input grid is w x h.
func sourceFunc(o models.Orientation, w, h int) func(x, y int) (int, int) {
	ow, oh := OrientedSize(o, w, h)
	return func(x, y int) (int, int) {
		// flips were applied last, undo them first
		if o.FlipY {
			y = oh - 1 - y
		}
		if o.FlipX {
			x = ow - 1 - x
		}
		switch o.Rotation {
		case 90:
			return w - 1 - y, x
		case 180:
			return w - 1 - x, h - 1 - y
		case 270:
			return y, h - 1 - x
		}
		return x, y
	}
}

// Apply rotates m counter-clockwise by o.Rotation and then mirrors it. Pixels
// are remapped exactly, with no interpolation.
func Apply(m *models.Mask, o models.Orientation) *models.Mask {
	ow, oh := OrientedSize(o, m.Width, m.Height)
	src := sourceFunc(o, m.Width, m.Height)

	out := models.NewMask(ow, oh)
	for y := 0; y < oh; y++ {
		for x := 0; x < ow; x++ {
			sx, sy := src(x, y)
			out.Pix[y*ow+x] = m.Pix[sy*m.Width+sx]
		}
	}
	return out
}

// ApplyImage orients an RGBA image the same way Apply orients masks
func ApplyImage(img *image.RGBA, o models.Orientation) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	ow, oh := OrientedSize(o, w, h)
	src := sourceFunc(o, w, h)

	out := image.NewRGBA(image.Rect(0, 0, ow, oh))
	for y := 0; y < oh; y++ {
		for x := 0; x < ow; x++ {
			sx, sy := src(x, y)
			out.SetRGBA(x, y, img.RGBAAt(b.Min.X+sx, b.Min.Y+sy))
		}
	}
	return out
}

// asymmetric has no symmetry, so every distinct orientation maps it to a
// distinct grid
var asymmetric = func() *models.Mask {
	m := models.NewMask(3, 2)
	m.Set(0, 0, true)
	m.Set(1, 0, true)
	m.Set(2, 1, true)
	return m
}()

// Equivalent reports whether two hypotheses describe the same transform
// (for example a 180 degree turn and a double flip)
func Equivalent(a, b models.Orientation) bool {
	return Apply(asymmetric, a).Equal(Apply(asymmetric, b))
}

// Inverse returns the preferred hypothesis that undoes o
func Inverse(o models.Orientation) models.Orientation {
	applied := Apply(asymmetric, o)
	var best *models.Orientation
	for _, c := range models.AllOrientations() {
		c := c
		if !Apply(applied, c).Equal(asymmetric) {
			continue
		}
		if best == nil || c.PreferredOver(*best) {
			best = &c
		}
	}
	return *best
}

// Canonical returns the preferred hypothesis equivalent to o
func Canonical(o models.Orientation) models.Orientation {
	best := o
	for _, c := range models.AllOrientations() {
		if Equivalent(c, o) && c.PreferredOver(best) {
			best = c
		}
	}
	return best
}
